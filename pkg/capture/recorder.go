package capture

import (
	"context"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/mstp.go/pkg/mstp"
	mstpv1 "github.com/robotalks/mstp.go/pkg/proto/mstp/v1"
)

// Sink consumes frame records.
type Sink interface {
	WriteRecord(*mstpv1.FrameRecord) error
}

// RecordReader produces frame records, io.EOF at the end.
type RecordReader interface {
	ReadRecord() (*mstpv1.FrameRecord, error)
}

// WriteRecordFunc is func type of Sink.
type WriteRecordFunc func(*mstpv1.FrameRecord) error

// WriteRecord implements Sink.
func (f WriteRecordFunc) WriteRecord(rec *mstpv1.FrameRecord) error {
	return f(rec)
}

// DefaultQueueSize is the number of records buffered by a Recorder.
const DefaultQueueSize = 256

// Recorder implements mstp.FrameTap and forwards records to sinks from its
// own goroutine. Records are dropped when the sinks fall behind.
type Recorder struct {
	Sinks []Sink

	ch      chan *mstpv1.FrameRecord
	dropped uint64
}

// NewRecorder creates a recorder.
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{Sinks: sinks, ch: make(chan *mstpv1.FrameRecord, DefaultQueueSize)}
}

// TapFrame implements mstp.FrameTap.
func (r *Recorder) TapFrame(rec *mstp.TapRecord) {
	select {
	case r.ch <- RecordOf(rec):
	default:
		atomic.AddUint64(&r.dropped, 1)
	}
}

// Dropped returns the number of records lost.
func (r *Recorder) Dropped() uint64 {
	return atomic.LoadUint64(&r.dropped)
}

// Run implements Runnable. Pending records are flushed when ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.ch:
			r.write(rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.ch:
					r.write(rec)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

func (r *Recorder) write(rec *mstpv1.FrameRecord) {
	for _, s := range r.Sinks {
		if err := s.WriteRecord(rec); err != nil {
			glog.Warningf("capture: %v", err)
		}
	}
}
