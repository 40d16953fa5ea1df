package mstp

import (
	"errors"
	"fmt"
)

var (
	// ErrPayloadTooLarge indicates the payload exceeds MaxDataLength.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrBadEncoding indicates a COBS encoded block is malformed.
	ErrBadEncoding = errors.New("bad COBS encoding")
	// ErrQueueFull indicates the transmit queue has no room left.
	ErrQueueFull = errors.New("transmit queue full")
	// ErrStopped indicates the interface loop is not running.
	ErrStopped = errors.New("interface stopped")
	// ErrNotTransmitting indicates the node may not originate the transmission,
	// e.g. a monitor, or a slave with no pending request from the destination.
	ErrNotTransmitting = errors.New("interface does not transmit")
)

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field string
	Value interface{}
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %v", e.Field, e.Value)
}
