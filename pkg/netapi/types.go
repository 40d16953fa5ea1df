package netapi

import (
	"context"
	"fmt"
)

// Packet is a unit of payload exchanged with the network layer.
type Packet struct {
	// Src and Dst are link layer addresses.
	Src []byte
	Dst []byte
	// Broadcast is set for packets to or from the broadcast address.
	Broadcast bool
	// Kind is the link layer frame type the packet was received with.
	Kind    byte
	Payload []byte
	// Release is called once the device is done with an outbound packet,
	// with nil on success.
	Release func(error)
}

// Done releases the packet back to its owner.
func (p *Packet) Done(err error) {
	if p.Release != nil {
		p.Release(err)
	}
}

// Option identifies a device option.
type Option int

// Generic device options.
const (
	OptAddress Option = iota
	OptAddrLen
	OptMaxPacketSize
	OptIsWired
	OptState
	OptChannel
	OptTxPower
	OptSrcLen
	OptPromiscuous
	OptProtocol
)

var optionNames = []string{
	"ADDRESS", "ADDR_LEN", "MAX_PACKET_SIZE", "IS_WIRED", "STATE",
	"CHANNEL", "TX_POWER", "SRC_LEN", "PROMISCUOUS", "PROTO",
}

// String implements fmt.Stringer.
func (o Option) String() string {
	if o >= 0 && int(o) < len(optionNames) {
		return optionNames[o]
	}
	return fmt.Sprintf("Option(%d)", int(o))
}

// ParseOption looks up an option by name.
func ParseOption(name string) (Option, bool) {
	for n, s := range optionNames {
		if s == name {
			return Option(n), true
		}
	}
	return 0, false
}

// State is the device state reported by OptState.
type State int

// Device states.
const (
	StateOff State = iota
	StateSleep
	StateIdle
	StateRx
	StateTx
)

var stateNames = []string{"off", "sleep", "idle", "rx", "tx"}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Device is a link layer device.
type Device interface {
	// Send hands an outbound packet to the device.
	Send(context.Context, *Packet) error
	// Get reads an option.
	Get(context.Context, Option) (interface{}, error)
	// Set writes an option.
	Set(context.Context, Option, interface{}) error
}

// PacketHandler is called when a packet is received.
type PacketHandler interface {
	HandlePacket(context.Context, *Packet)
}

// HandlePacketFunc is func type of PacketHandler.
type HandlePacketFunc func(context.Context, *Packet)

// HandlePacket implements PacketHandler.
func (f HandlePacketFunc) HandlePacket(ctx context.Context, pkt *Packet) {
	f(ctx, pkt)
}
