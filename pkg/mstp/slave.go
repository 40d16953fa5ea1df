package mstp

import (
	"github.com/golang/glog"

	"github.com/robotalks/mstp.go/pkg/netapi"
)

// slaveNode only transmits in answer to requests addressed to it.
type slaveNode struct {
	nodeContext
}

func newSlaveNode(io nodeIO, conf Config, stats *Stats) *slaveNode {
	return &slaveNode{nodeContext: newNodeContext(io, conf, stats)}
}

func (s *slaveNode) start() {
	s.io.stateChanged(s.state)
}

func (s *slaveNode) handleFrame(f *RxFrame) {
	if s.state != StateIdle || !f.Valid {
		return
	}
	switch f.Type {
	case FrameDataExpectingReply, FrameExtDataExpectingReply, FrameTestRequest:
		if f.Dst == s.addr {
			s.accept(f, StateAnswerData)
		} else if f.Type != FrameTestRequest {
			s.io.deliver(f)
		}
	case FrameDataNotExpectingReply, FrameExtDataNotExpectingReply:
		s.io.deliver(f)
	}
}

func (s *slaveNode) frameAborted() {}

func (s *slaveNode) timeout() {
	if s.state != StateAnswerData {
		return
	}
	glog.V(2).Infof("station %d: no reply to %d in time", s.addr, s.pending.src)
	s.stats.inc(&s.stats.ReplyTimeouts)
	s.pending = pendingRequest{}
	s.enter(StateIdle)
}

func (s *slaveNode) send(pkt *netapi.Packet, dst byte) error {
	if s.state != StateAnswerData || !s.isReply(dst) {
		return ErrNotTransmitting
	}
	s.reply(pkt)
	s.enter(StateIdle)
	return nil
}
