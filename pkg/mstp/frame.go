package mstp

import "fmt"

// FrameType is the MS/TP frame type octet.
type FrameType byte

// Frame types.
const (
	FrameToken                    FrameType = 0x00
	FramePollForMaster            FrameType = 0x01
	FrameReplyPollForMaster       FrameType = 0x02
	FrameTestRequest              FrameType = 0x03
	FrameTestResponse             FrameType = 0x04
	FrameDataExpectingReply       FrameType = 0x05
	FrameDataNotExpectingReply    FrameType = 0x06
	FrameReplyPostponed           FrameType = 0x07
	FrameExtDataExpectingReply    FrameType = 0x20
	FrameExtDataNotExpectingReply FrameType = 0x21
)

// Wire constants.
const (
	Preamble1 byte = 0x55
	Preamble2 byte = 0xff

	// BroadcastAddr addresses every station on the bus.
	BroadcastAddr byte = 0xff
	// MaxDataLength is the largest payload carried by a frame.
	MaxDataLength = 1500

	// HeaderLength includes the preamble and the header check octet.
	HeaderLength = 8
)

var frameTypeNames = map[FrameType]string{
	FrameToken:                    "Token",
	FramePollForMaster:            "PollForMaster",
	FrameReplyPollForMaster:       "ReplyPollForMaster",
	FrameTestRequest:              "TestRequest",
	FrameTestResponse:             "TestResponse",
	FrameDataExpectingReply:       "DataExpectingReply",
	FrameDataNotExpectingReply:    "DataNotExpectingReply",
	FrameReplyPostponed:           "ReplyPostponed",
	FrameExtDataExpectingReply:    "ExtDataExpectingReply",
	FrameExtDataNotExpectingReply: "ExtDataNotExpectingReply",
}

// String implements fmt.Stringer.
func (t FrameType) String() string {
	if s, ok := frameTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("FrameType(0x%02x)", byte(t))
}

// IsExtended indicates the payload is COBS encoded and protected by CRC-32K.
func (t FrameType) IsExtended() bool {
	return t >= 0x20
}

// IsData indicates the frame carries an application payload.
func (t FrameType) IsData() bool {
	switch t {
	case FrameDataExpectingReply, FrameDataNotExpectingReply,
		FrameExtDataExpectingReply, FrameExtDataNotExpectingReply:
		return true
	}
	return false
}

// ExpectsReply indicates the sender waits for a reply.
func (t FrameType) ExpectsReply() bool {
	switch t {
	case FrameDataExpectingReply, FrameExtDataExpectingReply, FrameTestRequest:
		return true
	}
	return false
}

// Frame is an outbound frame.
type Frame struct {
	Type FrameType
	Dst  byte
	Src  byte
	Data []byte
}

// String implements fmt.Stringer.
func (f *Frame) String() string {
	return fmt.Sprintf("%s %d->%d len=%d", f.Type, f.Src, f.Dst, len(f.Data))
}

// AppendTo appends the on-wire bytes of the frame to b.
func (f *Frame) AppendTo(b []byte) ([]byte, error) {
	if len(f.Data) > MaxDataLength {
		return b, ErrPayloadTooLarge
	}
	data := f.Data
	if f.Type.IsExtended() && len(data) > 0 {
		data = COBSStuff(make([]byte, 0, COBSMaxLength(len(data))), data)
	}
	l := len(data)
	b = append(b, Preamble1, Preamble2)
	hdr := [5]byte{byte(f.Type), f.Dst, f.Src, byte(l >> 8), byte(l)}
	b = append(b, hdr[:]...)
	b = append(b, HeaderCheck(hdr[:]))
	if l == 0 {
		return b, nil
	}
	b = append(b, data...)
	if f.Type.IsExtended() {
		return AppendExtDataCheck(b, data), nil
	}
	return AppendDataCheck(b, data), nil
}

// Bytes returns encoded bytes for sending.
func (f *Frame) Bytes() ([]byte, error) {
	return f.AppendTo(make([]byte, 0, HeaderLength+COBSMaxLength(len(f.Data))+4))
}
