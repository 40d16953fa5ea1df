package mstp

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mstp.go/pkg/netapi"
	"github.com/robotalks/mstp.go/pkg/uart"
)

// StateNotifier is called when the node state changed.
type StateNotifier interface {
	StateChanged(context.Context, NodeState)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(context.Context, NodeState)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(ctx context.Context, state NodeState) {
	f(ctx, state)
}

// TapRecord describes a frame received or sent by an interface.
type TapRecord struct {
	Time      time.Time
	Interface string
	Outbound  bool
	Type      FrameType
	Dst       byte
	Src       byte
	Payload   []byte
	Valid     bool
}

// FrameTap observes every frame handled by an interface. It's called on the
// MAC loop and must not block.
type FrameTap interface {
	TapFrame(*TapRecord)
}

// TapFrameFunc is func type of FrameTap.
type TapFrameFunc func(*TapRecord)

// TapFrame implements FrameTap.
func (f TapFrameFunc) TapFrame(r *TapRecord) {
	f(r)
}

// NodeInfo is a snapshot of the node protocol state.
type NodeInfo struct {
	Addr        byte
	NextStation byte
	State       NodeState
	Queued      int
	Role        Role
}

// Interface is one MS/TP link: a receiver fed by the port's byte callback
// and a MAC loop running the node protocol.
// Notifier and Tap must be set before Run. The packet handler runs on the
// MAC loop and must not wait for Send to return.
type Interface struct {
	Name     string
	Notifier StateNotifier
	Tap      FrameTap

	conf    Config
	port    uart.Port
	handler netapi.PacketHandler
	stats   Stats
	pool    *FramePool
	rx      *Receiver
	node    node
	state   int32

	msgCh  chan interface{}
	doneCh chan struct{}
	runCtx context.Context

	// byte context
	abortTimer   *time.Timer
	rxGen        uint64 // odd once the MAC loop has claimed an abort
	lastActivity int64

	// MAC loop
	nodeTimer *time.Timer
	timerGen  uint64
	started   time.Time
}

type sendMsg struct {
	pkt    *netapi.Packet
	dst    byte
	result chan error
}

type optMsg struct {
	opt    netapi.Option
	set    bool
	value  byte
	result chan optResult
}

type optResult struct {
	value interface{}
	err   error
}

type infoMsg struct {
	result chan NodeInfo
}

type frameMsg struct {
	frame *RxFrame
}

type abortMsg struct {
	gen uint64
}

type timerMsg struct {
	gen uint64
}

// New creates an interface with the default name.
func New(port uart.Port, conf Config, h netapi.PacketHandler) (*Interface, error) {
	return conf.NewInterface("mstp0", port, h)
}

func newInterface(name string, conf Config, port uart.Port, h netapi.PacketHandler) *Interface {
	i := &Interface{
		Name:    name,
		conf:    conf,
		port:    port,
		handler: h,
		pool:    NewFramePool(conf.RxBuffers),
		msgCh:   make(chan interface{}, conf.QueueSize),
		doneCh:  make(chan struct{}),
		runCtx:  context.Background(),
	}
	i.rx = NewReceiver(conf.Addr, i.pool)
	switch conf.Role {
	case RoleSlave:
		i.node = newSlaveNode(i, conf, &i.stats)
	case RoleMonitor:
		i.rx.SetPromiscuous(true)
		i.node = newMonitorNode(i, conf, &i.stats)
	default:
		i.node = newMasterNode(i, conf, &i.stats)
	}
	return i
}

// Config returns the configuration the interface was created with.
func (i *Interface) Config() Config {
	return i.conf
}

// Stats returns a snapshot of link counters.
func (i *Interface) Stats() Stats {
	return i.stats.Snapshot()
}

// State returns the current node state.
func (i *Interface) State() NodeState {
	return NodeState(atomic.LoadInt32(&i.state))
}

// Run runs the MAC loop until ctx is done.
func (i *Interface) Run(ctx context.Context) error {
	i.runCtx = ctx
	i.started = time.Now()
	defer i.shutdown()
	i.node.start()
	i.port.Listen(i.onByte)
	glog.Infof("%s: up as %s station %d", i.Name, i.conf.Role, i.conf.Addr)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-i.msgCh:
			i.handleMessage(msg)
		}
	}
}

func (i *Interface) shutdown() {
	close(i.doneCh)
	i.stopTimer()
	i.node.base().releaseAll(ErrStopped)
	for {
		select {
		case msg := <-i.msgCh:
			switch m := msg.(type) {
			case *sendMsg:
				m.pkt.Done(ErrStopped)
				m.result <- ErrStopped
			case *optMsg:
				m.result <- optResult{err: ErrStopped}
			case *infoMsg:
				close(m.result)
			case frameMsg:
				i.pool.Release(m.frame)
			}
		default:
			glog.Infof("%s: down", i.Name)
			return
		}
	}
}

// Send implements netapi.Device. The packet is released once transmitted
// or rejected.
func (i *Interface) Send(ctx context.Context, pkt *netapi.Packet) error {
	dst, err := destination(pkt)
	if err != nil {
		i.stats.inc(&i.stats.PacketsDropped)
		pkt.Done(err)
		return err
	}
	req := &sendMsg{pkt: pkt, dst: dst, result: make(chan error, 1)}
	if err = i.request(ctx, req); err != nil {
		pkt.Done(err)
		return err
	}
	select {
	case err = <-req.result:
		return err
	case <-i.doneCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func destination(pkt *netapi.Packet) (byte, error) {
	dst := BroadcastAddr
	if !pkt.Broadcast {
		if len(pkt.Dst) != 1 {
			return 0, netapi.ErrInvalidAddrLen
		}
		dst = pkt.Dst[0]
	}
	if len(pkt.Payload) > MaxDataLength {
		return 0, netapi.ErrOverflow
	}
	return dst, nil
}

// Get implements netapi.Device.
func (i *Interface) Get(ctx context.Context, opt netapi.Option) (interface{}, error) {
	switch opt {
	case netapi.OptAddrLen, netapi.OptSrcLen:
		return 1, nil
	case netapi.OptMaxPacketSize:
		return MaxDataLength, nil
	case netapi.OptIsWired:
		return true, nil
	case netapi.OptState:
		return netapi.StateIdle, nil
	case netapi.OptAddress:
		return i.option(ctx, &optMsg{opt: opt})
	}
	return nil, &netapi.OptionError{Option: opt}
}

// Set implements netapi.Device. Only ADDRESS is writable, as a single
// octet given as byte, int or []byte.
func (i *Interface) Set(ctx context.Context, opt netapi.Option, value interface{}) error {
	if opt != netapi.OptAddress {
		return &netapi.OptionError{Option: opt}
	}
	addr, ok := addrValue(value)
	if !ok || addr == BroadcastAddr ||
		i.conf.Role == RoleMaster && addr > i.conf.MaxMaster {
		return &netapi.OptionError{Option: opt, Value: value}
	}
	_, err := i.option(ctx, &optMsg{opt: opt, set: true, value: addr})
	return err
}

func addrValue(v interface{}) (byte, bool) {
	switch a := v.(type) {
	case byte:
		return a, true
	case int:
		return byte(a), a >= 0 && a <= 0xff
	case []byte:
		if len(a) == 1 {
			return a[0], true
		}
	}
	return 0, false
}

func (i *Interface) option(ctx context.Context, req *optMsg) (interface{}, error) {
	req.result = make(chan optResult, 1)
	if err := i.request(ctx, req); err != nil {
		return nil, err
	}
	select {
	case r := <-req.result:
		return r.value, r.err
	case <-i.doneCh:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Info returns a snapshot of the node protocol state.
func (i *Interface) Info(ctx context.Context) (NodeInfo, error) {
	req := &infoMsg{result: make(chan NodeInfo, 1)}
	if err := i.request(ctx, req); err != nil {
		return NodeInfo{}, err
	}
	select {
	case info, ok := <-req.result:
		if !ok {
			return info, ErrStopped
		}
		return info, nil
	case <-ctx.Done():
		return NodeInfo{}, ctx.Err()
	}
}

func (i *Interface) request(ctx context.Context, msg interface{}) error {
	select {
	case <-i.doneCh:
		return ErrStopped
	default:
	}
	select {
	case i.msgCh <- msg:
		return nil
	case <-i.doneCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post is used by the byte and timer contexts.
func (i *Interface) post(msg interface{}) bool {
	select {
	case i.msgCh <- msg:
		return true
	case <-i.doneCh:
		return false
	}
}

func (i *Interface) handleMessage(msg interface{}) {
	n := i.node.base()
	switch m := msg.(type) {
	case *sendMsg:
		err := i.node.send(m.pkt, m.dst)
		if err != nil {
			i.stats.inc(&i.stats.PacketsDropped)
			m.pkt.Done(err)
		}
		m.result <- err
	case *optMsg:
		if m.set {
			i.node.setAddr(m.value)
			i.rx.SetAddr(m.value)
			glog.Infof("%s: address set to %d", i.Name, m.value)
		}
		m.result <- optResult{value: []byte{n.addr}}
	case *infoMsg:
		m.result <- NodeInfo{
			Addr:        n.addr,
			NextStation: n.nextStation,
			State:       n.state,
			Queued:      len(n.outbound),
			Role:        i.conf.Role,
		}
	case frameMsg:
		glog.V(2).Infof("%s: rx %v", i.Name, m.frame)
		i.tapFrame(m.frame)
		i.node.handleFrame(m.frame)
		i.pool.Release(m.frame)
	case abortMsg:
		// a byte since the arm moved rxGen on, so a late abort loses here.
		if !atomic.CompareAndSwapUint64(&i.rxGen, m.gen, m.gen+1) {
			return
		}
		i.stats.inc(&i.stats.FrameAborts)
		glog.V(2).Infof("%s: frame aborted", i.Name)
		i.node.frameAborted()
	case timerMsg:
		if m.gen == i.timerGen {
			i.nodeTimer = nil
			i.node.timeout()
		}
	}
}

func (i *Interface) tapFrame(f *RxFrame) {
	if i.Tap == nil {
		return
	}
	r := &TapRecord{
		Time:      time.Now(),
		Interface: i.Name,
		Type:      f.Type,
		Dst:       f.Dst,
		Src:       f.Src,
		Valid:     f.Valid,
	}
	if f.Valid {
		r.Payload = append([]byte(nil), f.Payload()...)
	} else {
		r.Payload = append([]byte(nil), f.Raw()...)
	}
	i.Tap.TapFrame(r)
}

// onByte is the byte receive context. It is the only mutator of the
// receiver; frames leave it through frameMsg.
func (i *Interface) onByte(b byte) {
	atomic.StoreInt64(&i.lastActivity, time.Now().UnixNano())
	if i.nextRxGen() && i.rx.State() != RecvIdle {
		i.rx.Timeout()
	}
	rr := i.rx.Parse(b)
	switch rr.WhatAboutTimer() {
	case TimerRestart:
		i.armAbort()
	case TimerStop:
		i.disarmAbort()
	}
	i.stats.recvEvent(rr)
	switch rr.Event {
	case RecvFrameAvailable:
		if !i.post(frameMsg{frame: rr.Frame}) {
			i.pool.Release(rr.Frame)
		}
	case RecvOverrun:
		glog.Warningf("%s: no frame buffer, frame dropped", i.Name)
	}
}

func (i *Interface) armAbort() {
	if i.abortTimer != nil {
		i.abortTimer.Stop()
	}
	gen := atomic.LoadUint64(&i.rxGen)
	i.abortTimer = time.AfterFunc(i.conf.FrameAbortTimeout, func() {
		i.post(abortMsg{gen: gen})
	})
}

func (i *Interface) disarmAbort() {
	if i.abortTimer != nil {
		i.abortTimer.Stop()
		i.abortTimer = nil
	}
}

// nextRxGen moves rxGen to the next even generation, invalidating any
// abort still in flight. It reports whether an abort was claimed since
// the previous byte.
func (i *Interface) nextRxGen() bool {
	for {
		gen := atomic.LoadUint64(&i.rxGen)
		aborted := gen&1 == 1
		next := gen + 2
		if aborted {
			next = gen + 1
		}
		if atomic.CompareAndSwapUint64(&i.rxGen, gen, next) {
			return aborted
		}
	}
}

// nodeIO

func (i *Interface) transmit(f *Frame) error {
	if i.conf.Role == RoleMonitor {
		return ErrNotTransmitting
	}
	b, err := f.Bytes()
	if err != nil {
		return err
	}
	if err = i.port.Transmit(b, i.conf.WriteTimeout); err != nil {
		i.stats.inc(&i.stats.TxErrors)
		return err
	}
	i.stats.inc(&i.stats.FramesSent)
	glog.V(2).Infof("%s: tx %v", i.Name, f)
	if i.Tap != nil {
		i.Tap.TapFrame(&TapRecord{
			Time:      time.Now(),
			Interface: i.Name,
			Outbound:  true,
			Type:      f.Type,
			Dst:       f.Dst,
			Src:       f.Src,
			Payload:   append([]byte(nil), f.Data...),
			Valid:     true,
		})
	}
	return nil
}

func (i *Interface) deliver(f *RxFrame) {
	if i.handler == nil {
		return
	}
	i.handler.HandlePacket(i.runCtx, &netapi.Packet{
		Src:       []byte{f.Src},
		Dst:       []byte{f.Dst},
		Broadcast: f.Dst == BroadcastAddr,
		Kind:      byte(f.Type),
		Payload:   append([]byte(nil), f.Payload()...),
	})
}

func (i *Interface) startTimer(d time.Duration) {
	i.stopTimer()
	gen := i.timerGen
	i.nodeTimer = time.AfterFunc(d, func() {
		i.post(timerMsg{gen: gen})
	})
}

func (i *Interface) stopTimer() {
	if i.nodeTimer != nil {
		i.nodeTimer.Stop()
		i.nodeTimer = nil
	}
	i.timerGen++
}

func (i *Interface) silence() time.Duration {
	if last := atomic.LoadInt64(&i.lastActivity); last != 0 {
		return time.Since(time.Unix(0, last))
	}
	return time.Since(i.started)
}

func (i *Interface) stateChanged(s NodeState) {
	atomic.StoreInt32(&i.state, int32(s))
	glog.V(2).Infof("%s: state %s", i.Name, s)
	if i.Notifier != nil {
		i.Notifier.StateChanged(i.runCtx, s)
	}
}
