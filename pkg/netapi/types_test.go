package netapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOption(t *testing.T) {
	for n, name := range optionNames {
		opt, ok := ParseOption(name)
		require.True(t, ok, name)
		require.Equal(t, Option(n), opt)
		require.Equal(t, name, opt.String())
	}
	_, ok := ParseOption("NOPE")
	require.False(t, ok)
	require.Equal(t, "Option(99)", Option(99).String())
}

func TestOptionError(t *testing.T) {
	err := &OptionError{Option: OptChannel}
	require.True(t, IsNotSupported(err))
	require.Equal(t, "option CHANNEL not supported", err.Error())
	err = &OptionError{Option: OptAddress, Value: 300}
	require.False(t, IsNotSupported(err))
	require.Equal(t, "invalid value 300 for option ADDRESS", err.Error())
	require.False(t, IsNotSupported(errors.New("other")))
}

func TestPacketDone(t *testing.T) {
	var released error = errors.New("pending")
	pkt := &Packet{Release: func(err error) { released = err }}
	pkt.Done(ErrOverflow)
	require.Equal(t, ErrOverflow, released)
	(&Packet{}).Done(nil)
}
