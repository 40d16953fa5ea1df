package mstp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCOBSStuff(t *testing.T) {
	long := bytes.Repeat([]byte{0x11}, 254)
	testCases := []struct {
		name string
		in   []byte
		out  []byte
	}{
		{"empty", nil, []byte{0x01}},
		{"zero", []byte{0}, []byte{0x01, 0x01}},
		{"zeros", []byte{0, 0}, []byte{0x01, 0x01, 0x01}},
		{"no zero", []byte{0x11, 0x22}, []byte{0x03, 0x11, 0x22}},
		{"mixed", []byte{0x11, 0x22, 0x00, 0x33}, []byte{0x03, 0x11, 0x22, 0x02, 0x33}},
		{"trailing zero", []byte{0x11, 0x00}, []byte{0x02, 0x11, 0x01}},
		{"full block", long, append(append([]byte{0xff}, long...), 0x01)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := COBSStuff(nil, tc.in)
			require.Equal(t, tc.out, out)
			require.NotContains(t, out, byte(0))
			require.True(t, len(out) <= COBSMaxLength(len(tc.in)))
		})
	}
}

func TestCOBSRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		bytes.Repeat([]byte{0}, 1),
		bytes.Repeat([]byte{0}, 300),
		bytes.Repeat([]byte{0xaa}, 253),
		bytes.Repeat([]byte{0xaa}, 254),
		bytes.Repeat([]byte{0xaa}, 255),
		append(bytes.Repeat([]byte{0xaa}, 254), 0),
	}
	pattern := make([]byte, MaxDataLength)
	for n := range pattern {
		pattern[n] = byte(n % 7)
	}
	inputs = append(inputs, pattern)
	for n := 0; n < 600; n++ {
		inputs = append(inputs, pattern[:n])
	}
	for _, in := range inputs {
		enc := COBSStuff(nil, in)
		require.True(t, len(enc) <= COBSMaxLength(len(in)))
		out, err := COBSUnstuff(nil, enc)
		require.NoError(t, err)
		require.Equal(t, len(in), len(out))
		require.True(t, bytes.Equal(in, out), "%x", in)
	}
	require.Equal(t, 1506, MaxEncodedLength)
	require.Len(t, COBSStuff(nil, bytes.Repeat([]byte{1}, MaxDataLength)), MaxEncodedLength)
}

func TestCOBSUnstuffErrors(t *testing.T) {
	_, err := COBSUnstuff(nil, []byte{0x03, 0x11})
	require.Equal(t, ErrBadEncoding, err)
	_, err = COBSUnstuff(nil, []byte{0x02, 0x11, 0x00})
	require.Equal(t, ErrBadEncoding, err)
	_, err = COBSUnstuff(nil, []byte{0x03, 0x00, 0x11})
	require.Equal(t, ErrBadEncoding, err)
}
