package mstp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mstp.go/pkg/netapi"
)

// simClock is a discrete event scheduler driving node FSMs without real
// time. Events at the same instant run in scheduling order.
type simClock struct {
	now    time.Duration
	seq    int
	events []*simEvent
}

type simEvent struct {
	at  time.Duration
	seq int
	fn  func()
}

func (c *simClock) after(d time.Duration, fn func()) *simEvent {
	c.seq++
	ev := &simEvent{at: c.now + d, seq: c.seq, fn: fn}
	c.events = append(c.events, ev)
	return ev
}

func (c *simClock) step() bool {
	next := -1
	for n, ev := range c.events {
		if next < 0 || ev.at < c.events[next].at ||
			ev.at == c.events[next].at && ev.seq < c.events[next].seq {
			next = n
		}
	}
	if next < 0 {
		return false
	}
	ev := c.events[next]
	c.events = append(c.events[:next], c.events[next+1:]...)
	c.now = ev.at
	if ev.fn != nil {
		ev.fn()
	}
	return true
}

// runUntil runs events until cond is met or limit of simulated time passed.
func (c *simClock) runUntil(limit time.Duration, cond func() bool) bool {
	end := c.now + limit
	for !cond() {
		if !c.step() || c.now > end {
			return cond()
		}
	}
	return true
}

// simRing is a bus of stations. A transmitted frame reaches every other
// station frameDelay later.
type simRing struct {
	t          *testing.T
	clock      simClock
	frameDelay time.Duration
	stations   []*simStation
}

func newSimRing(t *testing.T) *simRing {
	return &simRing{t: t, frameDelay: time.Millisecond}
}

func simConfig(addr byte) Config {
	conf := *NewConfig()
	conf.Addr = addr
	conf.MaxMaster = 7
	conf.NoTokenTimeout = 0
	return conf
}

func (r *simRing) add(conf Config) *simStation {
	s := &simStation{
		ring:   r,
		conf:   conf,
		pool:   NewFramePool(conf.RxBuffers),
		lastRx: -1,
	}
	s.rx = NewReceiver(conf.Addr, s.pool)
	switch conf.Role {
	case RoleSlave:
		s.node = newSlaveNode(s, conf, &s.stats)
	case RoleMonitor:
		s.rx.SetPromiscuous(true)
		s.node = newMonitorNode(s, conf, &s.stats)
	default:
		s.node = newMasterNode(s, conf, &s.stats)
	}
	r.stations = append(r.stations, s)
	s.node.start()
	return s
}

func (r *simRing) master(addr byte) *simStation {
	return r.add(simConfig(addr))
}

func (r *simRing) slave(addr byte) *simStation {
	conf := simConfig(addr)
	conf.Role = RoleSlave
	return r.add(conf)
}

func (r *simRing) remove(s *simStation) {
	for n, st := range r.stations {
		if st == s {
			r.stations = append(r.stations[:n], r.stations[n+1:]...)
			s.removed = true
			s.timer = nil
			return
		}
	}
}

func (r *simRing) broadcast(from *simStation, b []byte) {
	r.clock.after(r.frameDelay, func() {
		for _, s := range r.stations {
			if s != from {
				s.feed(b)
			}
		}
	})
}

// inject puts a frame from a foreign station on the bus.
func (r *simRing) inject(f *Frame) {
	b, err := f.Bytes()
	require.NoError(r.t, err)
	r.broadcast(nil, b)
}

func (r *simRing) runUntil(limit time.Duration, cond func() bool) {
	require.True(r.t, r.clock.runUntil(limit, cond), "condition not met at %v", r.clock.now)
}

type simStation struct {
	ring  *simRing
	conf  Config
	node  node
	rx    *Receiver
	pool  *FramePool
	stats Stats

	timer   *simEvent
	lastRx  time.Duration
	removed bool

	states    []NodeState
	tokens    int
	sent      []Frame
	delivered []*netapi.Packet
	onDeliver func(*netapi.Packet)
}

func (s *simStation) feed(b []byte) {
	for _, octet := range b {
		s.lastRx = s.ring.clock.now
		if rr := s.rx.Parse(octet); rr.Frame != nil {
			s.node.handleFrame(rr.Frame)
			s.pool.Release(rr.Frame)
		}
	}
}

func (s *simStation) transmit(f *Frame) error {
	if s.removed {
		return nil
	}
	b, err := f.Bytes()
	if err != nil {
		return err
	}
	s.sent = append(s.sent, Frame{Type: f.Type, Dst: f.Dst, Src: f.Src, Data: append([]byte(nil), f.Data...)})
	s.ring.broadcast(s, b)
	return nil
}

func (s *simStation) deliver(f *RxFrame) {
	pkt := &netapi.Packet{
		Src:       []byte{f.Src},
		Dst:       []byte{f.Dst},
		Broadcast: f.Dst == BroadcastAddr,
		Kind:      byte(f.Type),
		Payload:   append([]byte(nil), f.Payload()...),
	}
	s.delivered = append(s.delivered, pkt)
	if s.onDeliver != nil {
		s.onDeliver(pkt)
	}
}

func (s *simStation) startTimer(d time.Duration) {
	if s.removed {
		return
	}
	s.stopTimer()
	ev := s.ring.clock.after(d, nil)
	ev.fn = func() {
		if s.timer == ev {
			s.timer = nil
			s.node.timeout()
		}
	}
	s.timer = ev
}

func (s *simStation) stopTimer() {
	s.timer = nil
}

func (s *simStation) silence() time.Duration {
	if s.lastRx < 0 {
		return s.ring.clock.now
	}
	return s.ring.clock.now - s.lastRx
}

func (s *simStation) stateChanged(st NodeState) {
	s.states = append(s.states, st)
	if st == StateUseToken {
		s.tokens++
	}
}

func (s *simStation) addr() byte {
	return s.node.base().addr
}

func (s *simStation) state() NodeState {
	return s.node.base().state
}

func (s *simStation) nextStation() byte {
	return s.node.base().nextStation
}

// send queues an application packet, returning its release result.
func (s *simStation) send(dst byte, payload []byte) (*error, error) {
	released := new(error)
	*released = errNotReleased
	pkt := &netapi.Packet{Dst: []byte{dst}, Payload: payload, Release: func(err error) { *released = err }}
	return released, s.node.send(pkt, dst)
}

func newBroadcastPacket(payload []byte) *netapi.Packet {
	return &netapi.Packet{Broadcast: true, Payload: payload}
}

// later runs fn on the station after d.
func (s *simStation) later(d time.Duration, fn func()) {
	s.ring.clock.after(d, fn)
}

func (s *simStation) sentTypes() []FrameType {
	types := make([]FrameType, len(s.sent))
	for n, f := range s.sent {
		types[n] = f.Type
	}
	return types
}

var errNotReleased = errors.New("not released")

func tokenTo(dst byte) *Frame {
	return &Frame{Type: FrameToken, Dst: dst, Src: 0x7f}
}

func TestRingThreeStations(t *testing.T) {
	r := newSimRing(t)
	s1, s2, s3 := r.master(1), r.master(2), r.master(3)

	r.inject(tokenTo(1))
	r.runUntil(10*time.Second, func() bool { return s1.tokens == 2 })

	require.Equal(t, 1, s2.tokens)
	require.Equal(t, 1, s3.tokens)
	require.Equal(t, byte(2), s1.nextStation())
	require.Equal(t, byte(3), s2.nextStation())
	require.Equal(t, byte(1), s3.nextStation())
	// station 1 passes the token on as soon as it got it back.
	require.Equal(t, []NodeState{
		StateIdle, StateUseToken, StateDoneWithToken, StatePollForMaster,
		StatePassToken, StateNoToken, StateIdle,
		StateUseToken, StateDoneWithToken, StatePassToken, StateNoToken,
	}, s1.states)
	require.Equal(t, uint64(2), s1.stats.TokensPassed)
	require.Equal(t, uint64(1), s2.stats.TokensPassed)
	require.Equal(t, uint64(1), s3.stats.TokensPassed)
	// station 3 answered 2's poll, then swept 4..7, 0 before 1 answered.
	require.Equal(t, []FrameType{
		FrameReplyPollForMaster, FramePollForMaster, FramePollForMaster, FramePollForMaster, FramePollForMaster,
		FramePollForMaster, FramePollForMaster, FrameToken,
	}, s3.sentTypes())
	require.Equal(t, []FrameType{FramePollForMaster, FrameToken, FrameReplyPollForMaster, FrameToken}, s1.sentTypes())
}

func TestRingKeepsCirculating(t *testing.T) {
	r := newSimRing(t)
	s1, s2, s3 := r.master(1), r.master(2), r.master(3)
	r.inject(tokenTo(1))
	r.runUntil(30*time.Second, func() bool { return s1.tokens == 10 })
	require.True(t, s2.tokens >= 9)
	require.True(t, s3.tokens >= 9)
	// periodic sweeps keep finding the same ring.
	require.Equal(t, byte(2), s1.nextStation())
	require.Equal(t, byte(3), s2.nextStation())
	require.Equal(t, byte(1), s3.nextStation())
}

func TestRingDataExchange(t *testing.T) {
	r := newSimRing(t)
	a, b := r.master(3), r.slave(5)

	request := []byte("0123456789")
	reply := []byte("ack")
	released, err := a.send(5, request)
	require.NoError(t, err)
	b.onDeliver = func(pkt *netapi.Packet) {
		b.later(5*time.Millisecond, func() {
			_, err := b.send(pkt.Src[0], reply)
			require.NoError(t, err)
		})
	}

	r.inject(tokenTo(3))
	r.runUntil(time.Second, func() bool { return a.state() == StateDoneWithToken || len(a.states) > 4 })

	require.Equal(t, []NodeState{StateIdle, StateAnswerData, StateIdle}, b.states)
	require.Len(t, b.delivered, 1)
	require.Equal(t, request, b.delivered[0].Payload)
	require.Equal(t, []byte{3}, b.delivered[0].Src)
	require.Equal(t, byte(FrameExtDataExpectingReply), b.delivered[0].Kind)
	require.Equal(t, []Frame{{Type: FrameDataNotExpectingReply, Dst: 3, Src: 5, Data: reply}}, b.sent)

	require.Equal(t, []NodeState{StateIdle, StateUseToken, StateWaitForReply, StateDoneWithToken}, a.states[:4])
	require.Len(t, a.delivered, 1)
	require.Equal(t, reply, a.delivered[0].Payload)
	require.Equal(t, []byte{5}, a.delivered[0].Src)
	require.Equal(t, Frame{Type: FrameExtDataExpectingReply, Dst: 5, Src: 3, Data: request}, a.sent[0])
	require.Nil(t, *released)
	require.False(t, a.node.base().awaitingReply)
}

func TestRingSoleMaster(t *testing.T) {
	r := newSimRing(t)
	conf := simConfig(1)
	conf.MaxMaster = 3
	conf.PollInterval = 5
	s := r.add(conf)
	r.inject(tokenTo(1))
	r.runUntil(5*time.Second, func() bool { return s.tokens == 12 })
	require.Equal(t, byte(1), s.nextStation())
	polls, tokens := 0, 0
	for _, f := range s.sent {
		switch f.Type {
		case FramePollForMaster:
			polls++
		case FrameToken:
			tokens++
		}
	}
	// a sweep of 2, 3, 0 on the first hold and every 5th after.
	require.Equal(t, 9, polls)
	require.Equal(t, 0, tokens)
	require.Equal(t, uint64(0), s.stats.TokensPassed)
}

func TestRingTokenGeneration(t *testing.T) {
	r := newSimRing(t)
	conf1, conf2 := simConfig(1), simConfig(2)
	conf1.NoTokenTimeout, conf2.NoTokenTimeout = 500*time.Millisecond, 500*time.Millisecond
	s1, s2 := r.add(conf1), r.add(conf2)

	r.runUntil(10*time.Second, func() bool { return s1.tokens >= 2 && s2.tokens >= 1 })
	require.Equal(t, uint64(1), s1.stats.TokensGenerated)
	require.Equal(t, uint64(0), s2.stats.TokensGenerated)
	require.Equal(t, byte(2), s1.nextStation())
	require.Equal(t, byte(1), s2.nextStation())
}

func TestRingLostSuccessor(t *testing.T) {
	r := newSimRing(t)
	s1, s2 := r.master(1), r.master(2)
	r.inject(tokenTo(1))
	r.runUntil(5*time.Second, func() bool { return s1.tokens == 2 })
	require.Equal(t, byte(2), s1.nextStation())

	r.remove(s2)
	sent := len(s2.sent)
	r.runUntil(5*time.Second, func() bool { return s1.tokens == 4 })
	require.Equal(t, byte(1), s1.nextStation())
	require.Len(t, s2.sent, sent)
	var tokens []byte
	for _, f := range s1.sent {
		if f.Type == FrameToken {
			tokens = append(tokens, f.Dst)
		}
	}
	// passed, used; then passed and retried once with no usage.
	require.Equal(t, []byte{2, 2, 2}, tokens)
}
