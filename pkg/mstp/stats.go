package mstp

import "sync/atomic"

// Stats are link counters of an interface.
type Stats struct {
	FramesReceived  uint64
	FramesSent      uint64
	HeaderCRCErrors uint64
	DataCRCErrors   uint64
	FramesSkipped   uint64
	FrameAborts     uint64
	Overruns        uint64
	TxErrors        uint64
	ReplyTimeouts   uint64
	TokensPassed    uint64
	TokensGenerated uint64
	PacketsDropped  uint64
}

func (s *Stats) inc(counter *uint64) {
	atomic.AddUint64(counter, 1)
}

// Snapshot returns a consistent-per-counter copy.
func (s *Stats) Snapshot() Stats {
	return Stats{
		FramesReceived:  atomic.LoadUint64(&s.FramesReceived),
		FramesSent:      atomic.LoadUint64(&s.FramesSent),
		HeaderCRCErrors: atomic.LoadUint64(&s.HeaderCRCErrors),
		DataCRCErrors:   atomic.LoadUint64(&s.DataCRCErrors),
		FramesSkipped:   atomic.LoadUint64(&s.FramesSkipped),
		FrameAborts:     atomic.LoadUint64(&s.FrameAborts),
		Overruns:        atomic.LoadUint64(&s.Overruns),
		TxErrors:        atomic.LoadUint64(&s.TxErrors),
		ReplyTimeouts:   atomic.LoadUint64(&s.ReplyTimeouts),
		TokensPassed:    atomic.LoadUint64(&s.TokensPassed),
		TokensGenerated: atomic.LoadUint64(&s.TokensGenerated),
		PacketsDropped:  atomic.LoadUint64(&s.PacketsDropped),
	}
}

// recvEvent accounts a receiver event.
func (s *Stats) recvEvent(rr RecvResult) {
	switch rr.Event {
	case RecvFrameAvailable:
		if rr.Frame.Valid {
			s.inc(&s.FramesReceived)
		} else {
			s.inc(&s.DataCRCErrors)
		}
	case RecvBadHeader:
		s.inc(&s.HeaderCRCErrors)
	case RecvFrameSkipped:
		s.inc(&s.FramesSkipped)
	case RecvOverrun:
		s.inc(&s.Overruns)
	}
}
