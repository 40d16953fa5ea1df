// Package capture records the frames seen by interfaces and replays them.
package capture

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/mstp.go/pkg/mstp"
	mstpv1 "github.com/robotalks/mstp.go/pkg/proto/mstp/v1"
)

// RecordOf converts a tapped frame. The payload is copied.
func RecordOf(r *mstp.TapRecord) *mstpv1.FrameRecord {
	return &mstpv1.FrameRecord{
		TimestampNs: r.Time.UnixNano(),
		Interface:   r.Interface,
		Outbound:    r.Outbound,
		FrameType:   uint32(r.Type),
		Dst:         uint32(r.Dst),
		Src:         uint32(r.Src),
		Payload:     append([]byte(nil), r.Payload...),
		Valid:       r.Valid,
	}
}

// Encode marshals a record.
func Encode(rec *mstpv1.FrameRecord) ([]byte, error) {
	return proto.Marshal(rec)
}

// Decode unmarshals a record.
func Decode(b []byte) (*mstpv1.FrameRecord, error) {
	rec := &mstpv1.FrameRecord{}
	if err := proto.Unmarshal(b, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Format renders a record as one summary line followed by a hex dump of
// the payload.
func Format(rec *mstpv1.FrameRecord) string {
	dir := "RX"
	if rec.Outbound {
		dir = "TX"
	}
	ts := time.Unix(0, rec.TimestampNs).Format("15:04:05.000000")
	line := fmt.Sprintf("%s %s %s %s %d->%d len=%d",
		ts, rec.Interface, dir, mstp.FrameType(rec.FrameType), rec.Src, rec.Dst, len(rec.Payload))
	if !rec.Valid {
		line += " INVALID"
	}
	if len(rec.Payload) == 0 {
		return line + "\n"
	}
	return line + "\n" + strings.TrimSuffix(hex.Dump(rec.Payload), "\n") + "\n"
}
