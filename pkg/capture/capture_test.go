package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mstp.go/pkg/mstp"
	mstpv1 "github.com/robotalks/mstp.go/pkg/proto/mstp/v1"
)

func tapRecord(payload string) *mstp.TapRecord {
	return &mstp.TapRecord{
		Time:      time.Unix(10, 500),
		Interface: "mstp0",
		Type:      mstp.FrameDataNotExpectingReply,
		Dst:       5,
		Src:       3,
		Payload:   []byte(payload),
		Valid:     true,
	}
}

func TestRecordOf(t *testing.T) {
	tr := tapRecord("abc")
	rec := RecordOf(tr)
	tr.Payload[0] = 'x'
	require.Equal(t, int64(10000000500), rec.TimestampNs)
	require.Equal(t, uint32(mstp.FrameDataNotExpectingReply), rec.FrameType)
	require.Equal(t, []byte("abc"), rec.Payload)

	out := Format(rec)
	require.Contains(t, out, "mstp0 RX DataNotExpectingReply 3->5 len=3")
	require.Contains(t, out, "61 62 63")
	require.NotContains(t, out, "INVALID")

	rec.Valid, rec.Outbound, rec.Payload = false, true, nil
	out = Format(rec)
	require.True(t, strings.HasSuffix(out, "TX DataNotExpectingReply 3->5 len=0 INVALID\n"), out)
}

func TestStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)
	for _, p := range []string{"one", "", "three"} {
		require.NoError(t, w.WriteRecord(RecordOf(tapRecord(p))))
	}
	r := NewStreamReader(&buf)
	for _, p := range []string{"one", "", "three"} {
		rec, err := r.ReadRecord()
		require.NoError(t, err)
		require.Equal(t, p, string(rec.Payload))
		require.Equal(t, "mstp0", rec.Interface)
	}
	_, err := r.ReadRecord()
	require.Equal(t, io.EOF, err)
}

func TestStreamErrors(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewStreamWriter(&buf).WriteRecord(RecordOf(tapRecord("payload"))))
	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := NewStreamReader(bytes.NewReader(truncated)).ReadRecord()
	require.Equal(t, io.ErrUnexpectedEOF, err)

	var big bytes.Buffer
	binary.Write(&big, binary.LittleEndian, uint32(MaxRecordSize+1))
	_, err = NewStreamReader(&big).ReadRecord()
	require.Equal(t, ErrRecordTooLarge, err)
}

func TestRecorder(t *testing.T) {
	var got []string
	failing := errors.New("sink failed")
	r := NewRecorder(
		WriteRecordFunc(func(rec *mstpv1.FrameRecord) error {
			got = append(got, string(rec.Payload))
			return nil
		}),
		WriteRecordFunc(func(*mstpv1.FrameRecord) error { return failing }),
	)
	for n := 0; n < DefaultQueueSize+2; n++ {
		r.TapFrame(tapRecord("p"))
	}
	require.Equal(t, uint64(2), r.Dropped())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, r.Run(ctx))
	require.Len(t, got, DefaultQueueSize)
}

func TestHub(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	rd, err := DialWebsocket("ws://" + srv.Listener.Addr().String() + "/")
	require.NoError(t, err)
	defer rd.Close()
	for n := 0; hub.Clients() == 0; n++ {
		require.True(t, n < 200, "client not registered")
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, hub.WriteRecord(RecordOf(tapRecord("hello"))))
	rec, err := rd.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), rec.Payload)
	require.Equal(t, uint32(3), rec.Src)

	rd.Close()
	for n := 0; hub.Clients() != 0; n++ {
		require.True(t, n < 200, "client not removed")
		time.Sleep(5 * time.Millisecond)
	}
}
