package mstp

import (
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mstp.go/pkg/netapi"
)

// masterNode takes part in token passing.
type masterNode struct {
	nodeContext

	frameCount   int
	pollStation  byte
	replyFrom    byte
	tokenRetries int
}

func newMasterNode(io nodeIO, conf Config, stats *Stats) *masterNode {
	m := &masterNode{nodeContext: newNodeContext(io, conf, stats)}
	// the successor is unknown until the first sweep.
	m.pollCounter = conf.PollInterval - 1
	return m
}

func (m *masterNode) start() {
	m.io.stateChanged(m.state)
	m.armNoToken()
}

func (m *masterNode) noTokenTimeout() time.Duration {
	return m.conf.NoTokenTimeout + m.conf.SlotTime*time.Duration(m.addr)
}

func (m *masterNode) armNoToken() {
	if m.conf.NoTokenTimeout > 0 {
		m.io.startTimer(m.noTokenTimeout())
	} else {
		m.io.stopTimer()
	}
}

func (m *masterNode) enterIdle() {
	m.enter(StateIdle)
	m.armNoToken()
}

func (m *masterNode) handleFrame(f *RxFrame) {
	switch m.state {
	case StateNoToken:
		// the successor is active; the token moved on.
		m.enterIdle()
		m.idleFrame(f)
	case StateIdle:
		m.idleFrame(f)
	case StatePassToken:
		// only entered for a pass to self.
		m.idleFrame(f)
	case StateWaitForReply:
		m.waitFrame(f)
	case StatePollForMaster:
		if m.forUs(f) && f.Type == FrameReplyPollForMaster && f.Src == m.pollStation {
			if m.nextStation != f.Src {
				glog.Infof("station %d: next station is %d", m.addr, f.Src)
			}
			m.nextStation = f.Src
			m.io.stopTimer()
			m.passToken()
		}
	}
}

// idleFrame handles frames received while not holding the token.
func (m *masterNode) idleFrame(f *RxFrame) {
	if !f.Valid {
		return
	}
	forUs := f.Dst == m.addr
	switch f.Type {
	case FrameToken:
		if forUs {
			m.frameCount = 0
			m.useToken()
		}
	case FramePollForMaster:
		if forUs {
			m.transmit(FrameReplyPollForMaster, f.Src, nil)
		}
	case FrameTestRequest:
		if forUs {
			m.transmit(FrameTestResponse, f.Src, f.Payload())
		}
	case FrameDataExpectingReply, FrameExtDataExpectingReply:
		if forUs {
			m.accept(f, StateAnswerDataRequest)
		} else {
			m.io.deliver(f)
		}
	case FrameDataNotExpectingReply, FrameExtDataNotExpectingReply:
		m.io.deliver(f)
	}
}

func (m *masterNode) waitFrame(f *RxFrame) {
	if !f.Valid {
		m.replyDone()
		return
	}
	if f.Dst != m.addr {
		return
	}
	if f.Src == m.replyFrom {
		switch f.Type {
		case FrameDataNotExpectingReply, FrameExtDataNotExpectingReply, FrameTestResponse:
			m.io.deliver(f)
		case FrameReplyPostponed:
		default:
			glog.Warningf("station %d: unexpected %s from %d waiting for reply", m.addr, f.Type, f.Src)
		}
	}
	m.replyDone()
}

func (m *masterNode) useToken() {
	m.enter(StateUseToken)
	for m.frameCount < m.conf.MaxInfoFrames && len(m.outbound) > 0 {
		p := m.dequeue()
		m.frameCount++
		if p.dst == BroadcastAddr {
			p.pkt.Done(m.transmit(FrameExtDataNotExpectingReply, BroadcastAddr, p.pkt.Payload))
			continue
		}
		err := m.transmit(FrameExtDataExpectingReply, p.dst, p.pkt.Payload)
		p.pkt.Done(err)
		if err != nil {
			continue
		}
		m.awaitingReply, m.replyFrom = true, p.dst
		m.enter(StateWaitForReply)
		m.io.startTimer(m.conf.ReplyTimeout)
		return
	}
	m.doneWithToken()
}

func (m *masterNode) replyDone() {
	m.awaitingReply = false
	m.io.stopTimer()
	m.doneWithToken()
}

func (m *masterNode) doneWithToken() {
	m.enter(StateDoneWithToken)
	if m.frameCount < m.conf.MaxInfoFrames && len(m.outbound) > 0 {
		m.useToken()
		return
	}
	m.pollCounter++
	if m.pollCounter >= m.conf.PollInterval {
		m.pollCounter = 0
		m.pollStation = m.addr
		m.pollNext()
		return
	}
	m.passToken()
}

func (m *masterNode) nextAddr(a byte) byte {
	if a >= m.conf.MaxMaster {
		return 0
	}
	return a + 1
}

// pollNext polls the next candidate after pollStation. Wrapping around to
// this station ends the sweep with no successor.
func (m *masterNode) pollNext() {
	m.pollStation = m.nextAddr(m.pollStation)
	if m.pollStation == m.addr {
		if m.nextStation != m.addr {
			glog.Infof("station %d: no other master found", m.addr)
		}
		m.nextStation = m.addr
		m.passToken()
		return
	}
	m.enter(StatePollForMaster)
	m.transmit(FramePollForMaster, m.pollStation, nil)
	m.io.startTimer(m.conf.UsageTimeout)
}

func (m *masterNode) passToken() {
	m.enter(StatePassToken)
	if m.nextStation == m.addr {
		m.io.startTimer(m.conf.SelfPassDelay)
		return
	}
	m.tokenRetries = 0
	m.sendToken()
}

func (m *masterNode) sendToken() {
	if m.transmit(FrameToken, m.nextStation, nil) == nil {
		m.stats.inc(&m.stats.TokensPassed)
	}
	m.enter(StateNoToken)
	m.io.startTimer(m.conf.UsageTimeout)
}

func (m *masterNode) frameAborted() {
	if m.state == StateWaitForReply {
		m.replyDone()
	}
}

func (m *masterNode) timeout() {
	switch m.state {
	case StateIdle:
		limit := m.noTokenTimeout()
		if s := m.io.silence(); s < limit {
			m.io.startTimer(limit - s)
			return
		}
		glog.Infof("station %d: no token, generating one", m.addr)
		m.stats.inc(&m.stats.TokensGenerated)
		m.pollCounter = m.conf.PollInterval - 1
		m.frameCount = 0
		m.useToken()
	case StateAnswerDataRequest:
		glog.V(2).Infof("station %d: reply to %d postponed", m.addr, m.pending.src)
		m.stats.inc(&m.stats.ReplyTimeouts)
		src := m.pending.src
		m.pending = pendingRequest{}
		m.transmit(FrameReplyPostponed, src, nil)
		m.enterIdle()
	case StateWaitForReply:
		glog.V(2).Infof("station %d: no reply from %d", m.addr, m.replyFrom)
		m.stats.inc(&m.stats.ReplyTimeouts)
		m.awaitingReply = false
		m.doneWithToken()
	case StatePollForMaster:
		m.pollNext()
	case StatePassToken:
		m.frameCount = 0
		m.useToken()
	case StateNoToken:
		if m.io.silence() < m.conf.UsageTimeout {
			m.enterIdle()
			return
		}
		if m.tokenRetries < 1 {
			m.tokenRetries++
			m.sendToken()
			return
		}
		glog.Warningf("station %d: station %d did not use the token", m.addr, m.nextStation)
		m.nextStation = m.addr
		m.pollCounter = 0
		m.pollStation = m.addr
		m.pollNext()
	}
}

func (m *masterNode) send(pkt *netapi.Packet, dst byte) error {
	if m.state == StateAnswerDataRequest && m.isReply(dst) {
		m.reply(pkt)
		m.enterIdle()
		return nil
	}
	return m.enqueue(pkt, dst)
}
