package mstp

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mstp.go/pkg/netapi"
)

// NodeState is the state of the node protocol.
type NodeState int

// Master states, followed by the slave-only AnswerData state.
const (
	StateIdle NodeState = iota
	StateUseToken
	StateAnswerDataRequest
	StateWaitForReply
	StateDoneWithToken
	StatePollForMaster
	StatePassToken
	StateNoToken
	StateAnswerData
)

var nodeStateNames = []string{
	"Idle", "UseToken", "AnswerDataRequest", "WaitForReply",
	"DoneWithToken", "PollForMaster", "PassToken", "NoToken", "AnswerData",
}

// String implements fmt.Stringer.
func (s NodeState) String() string {
	if s >= 0 && int(s) < len(nodeStateNames) {
		return nodeStateNames[s]
	}
	return fmt.Sprintf("NodeState(%d)", int(s))
}

// nodeIO is what a node FSM needs from its MAC loop. All calls happen on
// the MAC loop.
type nodeIO interface {
	transmit(*Frame) error
	deliver(*RxFrame)
	// startTimer (re)arms the single node timer; timeout is called on expiry.
	startTimer(time.Duration)
	stopTimer()
	// silence is the time since the last octet was received.
	silence() time.Duration
	stateChanged(NodeState)
}

type node interface {
	base() *nodeContext
	start()
	handleFrame(*RxFrame)
	frameAborted()
	timeout()
	send(*netapi.Packet, byte) error
	setAddr(byte)
}

type outboundPacket struct {
	pkt *netapi.Packet
	dst byte
}

type pendingRequest struct {
	active bool
	src    byte
	typ    FrameType
}

// replyType is the frame type answering the request.
func (r pendingRequest) replyType() FrameType {
	if r.typ == FrameTestRequest {
		return FrameTestResponse
	}
	return FrameDataNotExpectingReply
}

// nodeContext is the per-interface protocol state shared by node flavors.
type nodeContext struct {
	io    nodeIO
	conf  Config
	stats *Stats

	addr          byte
	nextStation   byte
	state         NodeState
	pollCounter   int
	outbound      []outboundPacket
	awaitingReply bool
	pending       pendingRequest
}

func newNodeContext(io nodeIO, conf Config, stats *Stats) nodeContext {
	return nodeContext{
		io:          io,
		conf:        conf,
		stats:       stats,
		addr:        conf.Addr,
		nextStation: conf.Addr,
	}
}

func (n *nodeContext) base() *nodeContext {
	return n
}

func (n *nodeContext) setAddr(a byte) {
	if n.nextStation == n.addr {
		n.nextStation = a
	}
	n.addr = a
}

func (n *nodeContext) enter(s NodeState) {
	if n.state != s {
		n.state = s
		n.io.stateChanged(s)
	}
}

func (n *nodeContext) transmit(typ FrameType, dst byte, data []byte) error {
	err := n.io.transmit(&Frame{Type: typ, Dst: dst, Src: n.addr, Data: data})
	if err != nil {
		glog.Warningf("station %d: transmit %s to %d failed: %v", n.addr, typ, dst, err)
	}
	return err
}

func (n *nodeContext) forUs(f *RxFrame) bool {
	return f.Valid && f.Dst == n.addr
}

func (n *nodeContext) enqueue(pkt *netapi.Packet, dst byte) error {
	if len(n.outbound) >= n.conf.TxQueueLen {
		return ErrQueueFull
	}
	n.outbound = append(n.outbound, outboundPacket{pkt: pkt, dst: dst})
	return nil
}

func (n *nodeContext) dequeue() outboundPacket {
	p := n.outbound[0]
	n.outbound[0] = outboundPacket{}
	n.outbound = n.outbound[1:]
	return p
}

// releaseAll fails every queued packet.
func (n *nodeContext) releaseAll(err error) {
	for len(n.outbound) > 0 {
		n.dequeue().pkt.Done(err)
	}
}

// isReply checks if an application send answers the pending request.
func (n *nodeContext) isReply(dst byte) bool {
	return n.pending.active && dst == n.pending.src
}

// reply transmits pkt as the answer to the pending request.
func (n *nodeContext) reply(pkt *netapi.Packet) {
	req := n.pending
	n.pending = pendingRequest{}
	n.io.stopTimer()
	pkt.Done(n.transmit(req.replyType(), req.src, pkt.Payload))
}

// accept records a request to be answered and hands its payload up.
func (n *nodeContext) accept(f *RxFrame, state NodeState) {
	n.pending = pendingRequest{active: true, src: f.Src, typ: f.Type}
	n.enter(state)
	n.io.startTimer(n.conf.ReplyDelay)
	n.io.deliver(f)
}

// monitorNode never transmits. Data frames are still handed up.
type monitorNode struct {
	nodeContext
}

func newMonitorNode(io nodeIO, conf Config, stats *Stats) *monitorNode {
	return &monitorNode{nodeContext: newNodeContext(io, conf, stats)}
}

func (m *monitorNode) start() {
	m.io.stateChanged(m.state)
}

func (m *monitorNode) handleFrame(f *RxFrame) {
	if f.Valid && f.Type.IsData() {
		m.io.deliver(f)
	}
}

func (m *monitorNode) frameAborted() {}

func (m *monitorNode) timeout() {}

func (m *monitorNode) send(*netapi.Packet, byte) error {
	return ErrNotTransmitting
}
