package netapi

import (
	"errors"
	"fmt"
)

var (
	// ErrOverflow indicates the payload exceeds the maximum packet size.
	ErrOverflow = errors.New("payload overflow")
	// ErrInvalidAddrLen indicates the destination address length is not supported.
	ErrInvalidAddrLen = errors.New("invalid address length")
)

// OptionError is returned when an option is not supported or its value is invalid.
type OptionError struct {
	Option Option
	Value  interface{}
}

// Error implements error.
func (e *OptionError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("option %s not supported", e.Option)
	}
	return fmt.Sprintf("invalid value %v for option %s", e.Value, e.Option)
}

// IsNotSupported checks if err reports an unsupported option.
func IsNotSupported(err error) bool {
	oe, ok := err.(*OptionError)
	return ok && oe.Value == nil
}
