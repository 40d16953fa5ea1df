// Package simbus simulates a shared RS-485 medium in memory.
package simbus

import (
	"sync"
	"time"

	"github.com/robotalks/mstp.go/pkg/uart"
)

// Bus is a shared medium. Bytes written by one port are received by
// every other attached port, in order.
type Bus struct {
	// ByteDelay is the simulated transmission time of one octet.
	ByteDelay time.Duration

	lock  sync.Mutex
	ports []*Port
	trace func(from *Port, p []byte)
}

// New creates a Bus.
func New() *Bus {
	return &Bus{}
}

// Trace registers a func called with every transmission on the bus.
func (b *Bus) Trace(fn func(from *Port, p []byte)) {
	b.lock.Lock()
	b.trace = fn
	b.lock.Unlock()
}

// Attach connects a new port to the bus.
func (b *Bus) Attach(name string) *Port {
	p := &Port{
		Name:   name,
		bus:    b,
		rxCh:   make(chan []byte, 64),
		doneCh: make(chan struct{}),
	}
	b.lock.Lock()
	b.ports = append(b.ports, p)
	b.lock.Unlock()
	return p
}

// Inject puts raw bytes on the bus as if sent by a foreign station.
func (b *Bus) Inject(p []byte) {
	b.write(nil, p, 0)
}

func (b *Bus) detach(p *Port) {
	b.lock.Lock()
	defer b.lock.Unlock()
	for n, port := range b.ports {
		if port == p {
			b.ports = append(b.ports[:n], b.ports[n+1:]...)
			return
		}
	}
}

// write delivers p to every port but from. A zero timeout waits for
// slow receivers indefinitely.
func (b *Bus) write(from *Port, p []byte, timeout time.Duration) error {
	if d := b.ByteDelay; d > 0 {
		time.Sleep(d * time.Duration(len(p)))
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	data := append([]byte(nil), p...)
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.trace != nil {
		b.trace(from, data)
	}
	for _, port := range b.ports {
		if port == from {
			continue
		}
		if err := port.deliver(data, expired); err != nil {
			return err
		}
	}
	return nil
}

// Port is a station attached to the Bus.
type Port struct {
	Name string

	bus    *Bus
	rxCh   chan []byte
	doneCh chan struct{}

	lock      sync.Mutex
	listening bool
	closed    bool
}

// Listen implements uart.Port.
func (p *Port) Listen(h uart.ByteHandler) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.listening || p.closed {
		return
	}
	p.listening = true
	go p.rxLoop(h)
}

// Transmit implements uart.Port.
func (p *Port) Transmit(data []byte, timeout time.Duration) error {
	select {
	case <-p.doneCh:
		return uart.ErrClosed
	default:
	}
	return p.bus.write(p, data, timeout)
}

// Close implements uart.Port.
func (p *Port) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.closed {
		p.closed = true
		close(p.doneCh)
		p.bus.detach(p)
	}
	return nil
}

func (p *Port) deliver(data []byte, expired <-chan time.Time) error {
	select {
	case p.rxCh <- data:
	case <-p.doneCh:
	case <-expired:
		return uart.ErrWriteTimeout
	}
	return nil
}

func (p *Port) rxLoop(h uart.ByteHandler) {
	for {
		select {
		case <-p.doneCh:
			return
		case data := <-p.rxCh:
			for _, b := range data {
				h(b)
			}
		}
	}
}
