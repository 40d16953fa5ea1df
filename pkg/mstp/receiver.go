package mstp

import (
	"fmt"
	"sync/atomic"
)

// RecvState is the state of the frame receiver.
type RecvState int

// Receiver states. ValidateHeader and DataCRC are transient: they are
// evaluated on the octet completing the header or the trailing CRC.
const (
	RecvIdle RecvState = iota
	RecvPreamble
	RecvHeader
	RecvValidateHeader
	RecvData
	RecvDataCRC
	RecvSkipData
)

var recvStateNames = []string{"Idle", "Preamble", "Header", "ValidateHeader", "Data", "DataCRC", "SkipData"}

// String implements fmt.Stringer.
func (s RecvState) String() string {
	if s >= 0 && int(s) < len(recvStateNames) {
		return recvStateNames[s]
	}
	return fmt.Sprintf("RecvState(%d)", int(s))
}

// RecvEvent is raised by the receiver when a frame stage completes.
type RecvEvent int

// Receiver events.
const (
	RecvNoEvent RecvEvent = iota
	// RecvFrameAvailable hands a frame to the caller, valid or not.
	RecvFrameAvailable
	// RecvBadHeader is raised on a header CRC mismatch or an impossible length.
	RecvBadHeader
	// RecvFrameSkipped is raised when a frame for another station was consumed.
	RecvFrameSkipped
	// RecvOverrun is raised when no frame buffer was free for a frame.
	RecvOverrun
	// RecvAborted is raised when a frame in flight was discarded on timeout.
	RecvAborted
)

// TimerAction defines what to do with the frame abort timer.
type TimerAction int

const (
	// TimerRestart to restart the timer.
	TimerRestart TimerAction = iota
	// TimerStop to stop/cancel the timer.
	TimerStop
)

// RecvResult indicates the result after one receiving step.
type RecvResult struct {
	State RecvState
	Event RecvEvent
	// Frame is set with RecvFrameAvailable. Ownership moves to the caller,
	// which must return it with FramePool.Release.
	Frame *RxFrame
}

// WhatAboutTimer decides what to do with the frame abort timer.
func (r RecvResult) WhatAboutTimer() TimerAction {
	if r.State != RecvIdle {
		return TimerRestart
	}
	return TimerStop
}

// RxFrame is a frame being received or handed over by the receiver.
type RxFrame struct {
	Type      FrameType
	Dst       byte
	Src       byte
	Length    int
	HeaderCRC byte
	DataCRC   uint32
	Encoded   bool
	Valid     bool

	raw     [MaxEncodedLength + 4]byte
	data    [MaxDataLength]byte
	payload []byte
}

// Payload returns the decoded payload. It is only meaningful on a valid frame.
func (f *RxFrame) Payload() []byte {
	return f.payload
}

// Raw returns the payload octets as received, before COBS decoding.
func (f *RxFrame) Raw() []byte {
	return f.raw[:f.Length]
}

// Reset clears the frame for reuse.
func (f *RxFrame) Reset() {
	f.Type, f.Dst, f.Src, f.Length = 0, 0, 0, 0
	f.HeaderCRC, f.DataCRC = 0, 0
	f.Encoded, f.Valid = false, false
	f.payload = nil
}

// String implements fmt.Stringer.
func (f *RxFrame) String() string {
	return fmt.Sprintf("%s %d->%d len=%d valid=%v", f.Type, f.Src, f.Dst, f.Length, f.Valid)
}

// FramePool is the free list of receive buffers of one interface.
type FramePool struct {
	free chan *RxFrame
}

// NewFramePool creates a pool with n buffers.
func NewFramePool(n int) *FramePool {
	if n < 1 {
		n = 1
	}
	p := &FramePool{free: make(chan *RxFrame, n)}
	for i := 0; i < n; i++ {
		p.free <- &RxFrame{}
	}
	return p
}

// Acquire takes a free buffer, nil if all are in use.
func (p *FramePool) Acquire() *RxFrame {
	select {
	case f := <-p.free:
		return f
	default:
		return nil
	}
}

// Release returns a buffer to the pool.
func (p *FramePool) Release(f *RxFrame) {
	if f == nil {
		return
	}
	f.Reset()
	select {
	case p.free <- f:
	default:
	}
}

// Receiver assembles frames from octets received on the bus.
// Parse and Timeout must be called from a single context.
type Receiver struct {
	pool        *FramePool
	addr        uint32
	promiscuous bool

	state   RecvState
	hdr     [5]byte
	hdrLen  int
	hdrCRC  byte
	frame   *RxFrame
	count   int
	crcLen  int
	dataCRC uint32
	skip    int
}

// NewReceiver creates a receiver for station addr.
func NewReceiver(addr byte, pool *FramePool) *Receiver {
	return &Receiver{pool: pool, addr: uint32(addr)}
}

// SetAddr changes the station address. It's safe to call from any context.
func (r *Receiver) SetAddr(addr byte) {
	atomic.StoreUint32(&r.addr, uint32(addr))
}

// Addr returns the station address.
func (r *Receiver) Addr() byte {
	return byte(atomic.LoadUint32(&r.addr))
}

// SetPromiscuous makes the receiver hand over frames for every station.
// Call before the first octet is parsed.
func (r *Receiver) SetPromiscuous(on bool) {
	r.promiscuous = on
}

// State gets the current receiver state.
func (r *Receiver) State() RecvState {
	return r.state
}

// Parse consumes one octet.
func (r *Receiver) Parse(b byte) (rr RecvResult) {
	rr.Event, rr.Frame = r.parseByte(b)
	rr.State = r.state
	return
}

// Timeout notifies the receiver the frame abort timer expired.
func (r *Receiver) Timeout() (rr RecvResult) {
	if r.state != RecvIdle {
		r.pool.Release(r.frame)
		r.frame = nil
		r.state = RecvIdle
		rr.Event = RecvAborted
	}
	rr.State = r.state
	return
}

func (r *Receiver) parseByte(b byte) (RecvEvent, *RxFrame) {
	switch r.state {
	case RecvIdle:
		if b == Preamble1 {
			r.state = RecvPreamble
		}
	case RecvPreamble:
		switch b {
		case Preamble2:
			r.state, r.hdrLen, r.hdrCRC = RecvHeader, 0, HeaderCRCInit
		case Preamble1:
		default:
			r.state = RecvIdle
		}
	case RecvHeader:
		r.hdrCRC = CRC8Update(b, r.hdrCRC)
		if r.hdrLen < len(r.hdr) {
			r.hdr[r.hdrLen] = b
			r.hdrLen++
			return RecvNoEvent, nil
		}
		if r.hdrCRC != HeaderCRCResidue {
			r.state = RecvIdle
			return RecvBadHeader, nil
		}
		r.state = RecvValidateHeader
		return r.validateHeader()
	case RecvData:
		r.frame.raw[r.count] = b
		r.count++
		if r.frame.Encoded {
			r.dataCRC = CRC32KUpdate(b, r.dataCRC)
		} else {
			r.dataCRC = uint32(CRC16Update(b, uint16(r.dataCRC)))
		}
		if r.count >= r.frame.Length+r.crcLen {
			r.state = RecvDataCRC
			return r.checkData()
		}
	case RecvSkipData:
		r.skip--
		if r.skip <= 0 {
			r.state = RecvIdle
			return RecvFrameSkipped, nil
		}
	}
	return RecvNoEvent, nil
}

func (r *Receiver) validateHeader() (RecvEvent, *RxFrame) {
	typ, dst := FrameType(r.hdr[0]), r.hdr[1]
	length := int(r.hdr[3])<<8 | int(r.hdr[4])
	if length > MaxDataLength && (!typ.IsExtended() || length > MaxEncodedLength) {
		r.state = RecvIdle
		return RecvBadHeader, nil
	}
	forUs := r.promiscuous || dst == BroadcastAddr || dst == r.Addr()
	if !forUs {
		if length == 0 {
			r.state = RecvIdle
			return RecvFrameSkipped, nil
		}
		r.state, r.skip = RecvSkipData, length
		return RecvNoEvent, nil
	}
	f := r.pool.Acquire()
	if f == nil {
		if length == 0 {
			r.state = RecvIdle
		} else {
			r.state, r.skip = RecvSkipData, length
		}
		return RecvOverrun, nil
	}
	f.Type, f.Dst, f.Src, f.Length = typ, dst, r.hdr[2], length
	f.HeaderCRC, f.Encoded = r.hdrCRC, typ.IsExtended()
	if length == 0 {
		f.Valid = true
		f.payload = f.data[:0]
		return r.frameReady(f)
	}
	r.frame, r.count = f, 0
	if f.Encoded {
		r.crcLen, r.dataCRC = 4, ExtDataCRCInit
	} else {
		r.crcLen, r.dataCRC = 2, uint32(DataCRCInit)
	}
	r.state = RecvData
	return RecvNoEvent, nil
}

func (r *Receiver) checkData() (RecvEvent, *RxFrame) {
	f := r.frame
	f.DataCRC = r.dataCRC
	if f.Encoded {
		f.Valid = r.dataCRC == ExtDataCRCResidue
		if f.Valid {
			payload, err := COBSUnstuff(f.data[:0], f.raw[:f.Length])
			f.Valid = err == nil && len(payload) <= MaxDataLength
			f.payload = payload
		}
	} else {
		f.Valid = uint16(r.dataCRC) == DataCRCResidue
		f.payload = f.raw[:f.Length]
	}
	if !f.Valid {
		f.payload = nil
	}
	r.frame = nil
	return r.frameReady(f)
}

func (r *Receiver) frameReady(f *RxFrame) (RecvEvent, *RxFrame) {
	r.state = RecvIdle
	return RecvFrameAvailable, f
}
