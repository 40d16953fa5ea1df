package capture

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	mstpv1 "github.com/robotalks/mstp.go/pkg/proto/mstp/v1"
)

// MaxRecordSize bounds a record read from a stream.
const MaxRecordSize = 64 * 1024

// StreamWriter writes records prefixed by a 4-byte little-endian length.
type StreamWriter struct {
	lock sync.Mutex
	w    *bufio.Writer
	c    io.Closer
}

// NewStreamWriter creates a StreamWriter.
func NewStreamWriter(w io.Writer) *StreamWriter {
	s := &StreamWriter{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// CreateFile creates a capture file.
func CreateFile(path string) (*StreamWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewStreamWriter(f), nil
}

// WriteRecord implements Sink. Each record is flushed.
func (s *StreamWriter) WriteRecord(rec *mstpv1.FrameRecord) error {
	b, err := Encode(rec)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err = binary.Write(s.w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	if _, err = s.w.Write(b); err != nil {
		return err
	}
	return s.w.Flush()
}

// Close flushes and closes the underlying writer.
func (s *StreamWriter) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	err := s.w.Flush()
	if s.c != nil {
		if cerr := s.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// StreamReader reads records written by StreamWriter.
type StreamReader struct {
	r io.Reader
}

// NewStreamReader creates a StreamReader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: bufio.NewReader(r)}
}

// ReadRecord implements RecordReader. A truncated record is
// io.ErrUnexpectedEOF.
func (s *StreamReader) ReadRecord() (*mstpv1.FrameRecord, error) {
	var size uint32
	if err := binary.Read(s.r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > MaxRecordSize {
		return nil, ErrRecordTooLarge
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(s.r, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return Decode(b)
}
