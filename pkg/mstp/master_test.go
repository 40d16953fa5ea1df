package mstp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMasterIdleReplies(t *testing.T) {
	r := newSimRing(t)
	m := r.master(5)
	r.inject(&Frame{Type: FramePollForMaster, Dst: 5, Src: 3})
	r.inject(&Frame{Type: FrameTestRequest, Dst: 5, Src: 3, Data: []byte{1, 2, 3}})
	r.inject(&Frame{Type: FramePollForMaster, Dst: 6, Src: 3})
	r.runUntil(time.Second, func() bool { return len(m.sent) == 2 })
	require.Equal(t, []Frame{
		{Type: FrameReplyPollForMaster, Dst: 3, Src: 5},
		{Type: FrameTestResponse, Dst: 3, Src: 5, Data: []byte{1, 2, 3}},
	}, m.sent)
	require.Equal(t, []NodeState{StateIdle}, m.states)
	require.Empty(t, m.delivered)
}

func TestMasterAnswerDataRequest(t *testing.T) {
	r := newSimRing(t)
	m := r.master(5)
	r.inject(&Frame{Type: FrameDataExpectingReply, Dst: 5, Src: 3, Data: []byte("ping")})
	r.runUntil(time.Second, func() bool { return m.state() == StateAnswerDataRequest })
	require.Len(t, m.delivered, 1)
	require.Equal(t, []byte("ping"), m.delivered[0].Payload)

	released, err := m.send(3, []byte("pong"))
	require.NoError(t, err)
	require.Nil(t, *released)
	require.Equal(t, []Frame{{Type: FrameDataNotExpectingReply, Dst: 3, Src: 5, Data: []byte("pong")}}, m.sent)
	require.Equal(t, []NodeState{StateIdle, StateAnswerDataRequest, StateIdle}, m.states)
	require.Empty(t, m.node.base().outbound)
}

func TestMasterReplyPostponed(t *testing.T) {
	r := newSimRing(t)
	m := r.master(5)
	r.inject(&Frame{Type: FrameExtDataExpectingReply, Dst: 5, Src: 3, Data: []byte("ping")})
	r.runUntil(time.Second, func() bool { return len(m.sent) == 1 })
	require.Equal(t, Frame{Type: FrameReplyPostponed, Dst: 3, Src: 5}, m.sent[0])
	require.Equal(t, StateIdle, m.state())
	require.Equal(t, uint64(1), m.stats.ReplyTimeouts)

	// a late answer waits for the token.
	_, err := m.send(3, []byte("pong"))
	require.NoError(t, err)
	require.Len(t, m.node.base().outbound, 1)
}

func TestMasterPeerPostponesReply(t *testing.T) {
	r := newSimRing(t)
	a, b := r.master(3), r.master(5)
	_, err := a.send(5, []byte("ping"))
	require.NoError(t, err)
	r.inject(tokenTo(3))
	r.runUntil(time.Second, func() bool { return len(b.sent) > 0 && a.state() != StateWaitForReply })
	require.Equal(t, FrameReplyPostponed, b.sent[0].Type)
	require.Equal(t, []NodeState{StateIdle, StateUseToken, StateWaitForReply, StateDoneWithToken}, a.states[:4])
	require.Empty(t, a.delivered)
	require.Equal(t, uint64(0), a.stats.ReplyTimeouts)
	require.Equal(t, uint64(1), b.stats.ReplyTimeouts)
}

func TestMasterReplyTimeout(t *testing.T) {
	r := newSimRing(t)
	m := r.master(3)
	released, err := m.send(9, []byte("anyone"))
	require.NoError(t, err)
	r.inject(tokenTo(3))
	r.runUntil(time.Second, func() bool { return m.state() == StateWaitForReply })
	require.True(t, m.node.base().awaitingReply)
	start := r.clock.now
	r.runUntil(time.Second, func() bool { return m.state() != StateWaitForReply })
	require.Equal(t, m.conf.ReplyTimeout, r.clock.now-start)
	require.Equal(t, StateDoneWithToken, m.states[3])
	require.Equal(t, uint64(1), m.stats.ReplyTimeouts)
	require.False(t, m.node.base().awaitingReply)
	require.Nil(t, *released)
}

func TestMasterInvalidFrameEndsWait(t *testing.T) {
	r := newSimRing(t)
	m := r.master(3)
	_, err := m.send(9, []byte("anyone"))
	require.NoError(t, err)
	r.inject(tokenTo(3))
	r.runUntil(time.Second, func() bool { return m.state() == StateWaitForReply })

	raw := mustFrameBytes(t, &Frame{Type: FrameDataNotExpectingReply, Dst: 3, Src: 9, Data: []byte("reply")})
	r.broadcast(nil, corrupt(raw, HeaderLength+1))
	r.runUntil(time.Second, func() bool { return m.state() != StateWaitForReply })
	require.Equal(t, StateDoneWithToken, m.states[3])
	require.Empty(t, m.delivered)
	require.Equal(t, uint64(0), m.stats.ReplyTimeouts)
}

func TestMasterAbortEndsWait(t *testing.T) {
	r := newSimRing(t)
	m := r.master(3)
	_, err := m.send(9, []byte("anyone"))
	require.NoError(t, err)
	r.inject(tokenTo(3))
	r.runUntil(time.Second, func() bool { return m.state() == StateWaitForReply })
	m.node.frameAborted()
	require.Equal(t, StateDoneWithToken, m.states[3])
}

func TestMasterMaxInfoFrames(t *testing.T) {
	r := newSimRing(t)
	conf := simConfig(3)
	conf.MaxInfoFrames = 2
	m := r.add(conf)
	for n := 0; n < 3; n++ {
		pkt := newBroadcastPacket([]byte{byte(n)})
		require.NoError(t, m.node.send(pkt, BroadcastAddr))
	}
	r.inject(tokenTo(3))
	r.runUntil(time.Second, func() bool { return len(m.sent) > 0 })
	require.Equal(t, []Frame{
		{Type: FrameExtDataNotExpectingReply, Dst: BroadcastAddr, Src: 3, Data: []byte{0}},
		{Type: FrameExtDataNotExpectingReply, Dst: BroadcastAddr, Src: 3, Data: []byte{1}},
		{Type: FramePollForMaster, Dst: 4, Src: 3},
	}, m.sent)
	require.Len(t, m.node.base().outbound, 1)
}

func TestMasterQueueFull(t *testing.T) {
	r := newSimRing(t)
	conf := simConfig(3)
	conf.TxQueueLen = 2
	m := r.add(conf)
	_, err := m.send(4, nil)
	require.NoError(t, err)
	_, err = m.send(4, nil)
	require.NoError(t, err)
	_, err = m.send(4, nil)
	require.Equal(t, ErrQueueFull, err)
}

func TestMasterSetAddr(t *testing.T) {
	r := newSimRing(t)
	m := r.master(3)
	m.node.setAddr(4)
	require.Equal(t, byte(4), m.addr())
	require.Equal(t, byte(4), m.nextStation())
}

func TestMasterNoTokenTimeout(t *testing.T) {
	r := newSimRing(t)
	conf := simConfig(4)
	conf.NoTokenTimeout = 100 * time.Millisecond
	m := r.add(conf)
	mn := m.node.(*masterNode)
	require.Equal(t, 140*time.Millisecond, mn.noTokenTimeout())

	// traffic between other stations defers token generation.
	for n := 1; n <= 3; n++ {
		m.later(time.Duration(n)*100*time.Millisecond, func() {
			r.inject(&Frame{Type: FrameToken, Dst: 9, Src: 8})
		})
	}
	r.runUntil(time.Second, func() bool { return m.tokens > 0 })
	require.Equal(t, 301*time.Millisecond+mn.noTokenTimeout(), r.clock.now)
	require.Equal(t, uint64(1), m.stats.TokensGenerated)
}
