package capture

import (
	"github.com/golang/glog"

	"github.com/robotalks/mstp.go/pkg/bridge/mqtt"
	mstpv1 "github.com/robotalks/mstp.go/pkg/proto/mstp/v1"
)

// MQTTSink publishes every record to <iface>/frames.
type MQTTSink struct {
	Queue *mqtt.Queue
}

// WriteRecord implements Sink.
func (s *MQTTSink) WriteRecord(rec *mstpv1.FrameRecord) error {
	b, err := Encode(rec)
	if err != nil {
		return err
	}
	s.Queue.Pub(rec.Interface+"/"+mqtt.TopicFrames, b)
	return nil
}

// MQTTReader receives records published by MQTTSink.
type MQTTReader struct {
	sub    *mqtt.Subscription
	ch     chan *mstpv1.FrameRecord
	doneCh chan struct{}
}

// SubscribeRecords subscribes to the frames of the named interface, or of
// all interfaces when iface is "+". The queue may connect afterwards.
func SubscribeRecords(q *mqtt.Queue, iface string) *MQTTReader {
	r := &MQTTReader{
		ch:     make(chan *mstpv1.FrameRecord, DefaultQueueSize),
		doneCh: make(chan struct{}),
	}
	r.sub = q.Sub(iface+"/"+mqtt.TopicFrames, func(topic string, payload []byte) {
		rec, err := Decode(payload)
		if err != nil {
			glog.Warningf("capture: %s: %v", topic, err)
			return
		}
		select {
		case r.ch <- rec:
		case <-r.doneCh:
		}
	})
	return r
}

// ReadRecord implements RecordReader.
func (r *MQTTReader) ReadRecord() (*mstpv1.FrameRecord, error) {
	select {
	case rec := <-r.ch:
		return rec, nil
	case <-r.doneCh:
		return nil, ErrClosed
	}
}

// Close unsubscribes.
func (r *MQTTReader) Close() error {
	close(r.doneCh)
	return r.sub.Close()
}
