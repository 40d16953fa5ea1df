// Package serial provides a uart.Port on a serial device.
package serial

import (
	"flag"
	"io"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/tarm/serial"

	"github.com/robotalks/mstp.go/pkg/uart"
)

// Config is the serial port configuration.
type Config struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
}

var defaultConfig = Config{
	Name:        "/dev/ttyUSB0",
	Baud:        38400,
	ReadTimeout: 100 * time.Millisecond,
}

func init() {
	if name := os.Getenv("MSTP_PORT"); name != "" {
		defaultConfig.Name = name
	}
	if baud, err := strconv.Atoi(os.Getenv("MSTP_BAUD")); err == nil && baud > 0 {
		defaultConfig.Baud = baud
	}
}

// SetupFlags registers flags on the default configuration.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Name, "port", defaultConfig.Name, "serial device")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "baud rate")
	flag.DurationVar(&defaultConfig.ReadTimeout, "port-read-timeout", defaultConfig.ReadTimeout, "serial read timeout")
}

// NewConfig creates a copy of the default config.
func NewConfig() Config {
	return defaultConfig
}

// Open opens the serial port.
func (c Config) Open() (*Port, error) {
	s, err := serial.OpenPort(&serial.Config{
		Name:        c.Name,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return newPort(c.Name, s), nil
}

// MustOpen opens the serial port or exits.
func (c Config) MustOpen() *Port {
	p, err := c.Open()
	if err != nil {
		log.Fatalln(err)
	}
	return p
}

// Port is a serial uart.Port.
type Port struct {
	name string
	rw   io.ReadWriteCloser

	writeCh chan writeReq
	doneCh  chan struct{}

	lock      sync.Mutex
	listening bool
	closed    bool
}

type writeReq struct {
	data   []byte
	result chan error
}

func newPort(name string, rw io.ReadWriteCloser) *Port {
	p := &Port{
		name:    name,
		rw:      rw,
		writeCh: make(chan writeReq),
		doneCh:  make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

// Listen implements uart.Port.
func (p *Port) Listen(h uart.ByteHandler) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.listening || p.closed {
		return
	}
	p.listening = true
	go p.readLoop(h)
}

// Transmit implements uart.Port.
func (p *Port) Transmit(data []byte, timeout time.Duration) error {
	select {
	case <-p.doneCh:
		return uart.ErrClosed
	default:
	}
	req := writeReq{data: data, result: make(chan error, 1)}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p.writeCh <- req:
	case <-p.doneCh:
		return uart.ErrClosed
	case <-timer.C:
		return uart.ErrWriteTimeout
	}
	select {
	case err := <-req.result:
		return err
	case <-p.doneCh:
		return uart.ErrClosed
	case <-timer.C:
		// the write is still pending in the driver; it can't be cancelled.
		return uart.ErrWriteTimeout
	}
}

// Close implements uart.Port.
func (p *Port) Close() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil
	}
	p.closed = true
	close(p.doneCh)
	p.lock.Unlock()
	return p.rw.Close()
}

func (p *Port) readLoop(h uart.ByteHandler) {
	buf := make([]byte, 64)
	for {
		n, err := p.rw.Read(buf)
		for _, b := range buf[:n] {
			h(b)
		}
		if err == nil || err == io.EOF && n > 0 {
			continue
		}
		select {
		case <-p.doneCh:
			return
		default:
		}
		if err == io.EOF {
			// tarm/serial reports a read timeout as 0, EOF on posix.
			continue
		}
		glog.Errorf("serial %s: read error: %v", p.name, err)
		return
	}
}

func (p *Port) writeLoop() {
	for {
		select {
		case <-p.doneCh:
			return
		case req := <-p.writeCh:
			_, err := p.rw.Write(req.data)
			req.result <- err
		}
	}
}
