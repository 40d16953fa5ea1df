package capture

import "errors"

var (
	// ErrRecordTooLarge is returned for a record length beyond MaxRecordSize.
	ErrRecordTooLarge = errors.New("record too large")
	// ErrClosed is returned when reading from a closed source.
	ErrClosed = errors.New("closed")
)
