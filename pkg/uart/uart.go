// Package uart defines the byte level contract of a serial bus port.
package uart

import (
	"errors"
	"time"
)

var (
	// ErrWriteTimeout indicates the port did not accept bytes in time.
	ErrWriteTimeout = errors.New("write timeout")
	// ErrClosed indicates the port is closed.
	ErrClosed = errors.New("port closed")
)

// ByteHandler is called once per received octet, from a single context.
type ByteHandler func(byte)

// Port is a half-duplex bus port.
type Port interface {
	// Listen registers the receive callback. Bytes received before Listen
	// are dropped.
	Listen(ByteHandler)
	// Transmit blocks until p is written or timeout expires.
	Transmit(p []byte, timeout time.Duration) error
	// Close releases the port.
	Close() error
}
