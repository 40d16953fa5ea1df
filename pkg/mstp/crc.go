package mstp

import (
	"hash/crc32"
	"math/bits"

	"github.com/sigurn/crc16"
)

// CRC seeds and residues. A residue is the accumulator value obtained after
// feeding a correctly computed check sequence back into the running CRC.
const (
	HeaderCRCInit     byte   = 0xff
	HeaderCRCResidue  byte   = 0x55
	DataCRCInit       uint16 = 0xffff
	DataCRCResidue    uint16 = 0xf0b8
	ExtDataCRCInit    uint32 = 0xffffffff
	ExtDataCRCResidue uint32 = 0x0843323b
)

var (
	// CRC-CCITT, reflected, seeded with 0xffff: same accumulator as the
	// BACnet Annex G data CRC.
	dataCRCTable = crc16.MakeTable(crc16.CRC16_MCRF4XX)
	// CRC-32K (Koopman) for extended frames.
	extDataCRCTable = crc32.MakeTable(crc32.Koopman)
)

// CRC8Update accumulates one header octet into crc.
func CRC8Update(b, crc byte) byte {
	c := uint16(crc ^ b)
	c = c ^ (c << 1) ^ (c << 2) ^ (c << 3) ^ (c << 4) ^ (c << 5) ^ (c << 6) ^ (c << 7)
	return byte((c & 0xfe) ^ ((c >> 8) & 1))
}

// CRC16Update accumulates one data octet into crc.
func CRC16Update(b byte, crc uint16) uint16 {
	// crc16 keeps its register bit-reversed for reflected tables.
	p := [1]byte{b}
	return bits.Reverse16(crc16.Update(bits.Reverse16(crc), p[:], dataCRCTable))
}

// CRC32KUpdate accumulates one data octet into crc.
func CRC32KUpdate(b byte, crc uint32) uint32 {
	// crc32.Update complements the register on entry and exit.
	p := [1]byte{b}
	return ^crc32.Update(^crc, extDataCRCTable, p[:])
}

// HeaderCheck returns the check octet transmitted after the header fields.
func HeaderCheck(hdr []byte) byte {
	crc := HeaderCRCInit
	for _, b := range hdr {
		crc = CRC8Update(b, crc)
	}
	return ^crc
}

// AppendDataCheck appends the CRC-16 check sequence of data, least
// significant octet first.
func AppendDataCheck(dst, data []byte) []byte {
	crc := DataCRCInit
	for _, b := range data {
		crc = CRC16Update(b, crc)
	}
	crc = ^crc
	return append(dst, byte(crc), byte(crc>>8))
}

// AppendExtDataCheck appends the CRC-32K check sequence of data, least
// significant octet first.
func AppendExtDataCheck(dst, data []byte) []byte {
	crc := ExtDataCRCInit
	for _, b := range data {
		crc = CRC32KUpdate(b, crc)
	}
	crc = ^crc
	return append(dst, byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24))
}
