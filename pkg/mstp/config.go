package mstp

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/robotalks/mstp.go/pkg/netapi"
	"github.com/robotalks/mstp.go/pkg/uart"
)

// Role selects the node protocol run by an interface.
type Role int

// Roles.
const (
	RoleMaster Role = iota
	RoleSlave
	// RoleMonitor receives every frame on the bus and never transmits.
	RoleMonitor
)

var roleNames = []string{"master", "slave", "monitor"}

// String implements fmt.Stringer and flag.Value.
func (r Role) String() string {
	if r >= 0 && int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Set implements flag.Value.
func (r *Role) Set(s string) error {
	for n, name := range roleNames {
		if name == s {
			*r = Role(n)
			return nil
		}
	}
	return fmt.Errorf("unknown role %q", s)
}

// Config defines the configurations of an MS/TP interface.
type Config struct {
	// Addr is the station address.
	Addr byte
	Role Role

	// MaxMaster is the highest address polled for masters.
	MaxMaster byte
	// PollInterval is the number of token cycles between poll-for-master sweeps.
	PollInterval int
	// MaxInfoFrames is the number of data frames sent per token hold.
	MaxInfoFrames int

	FrameAbortTimeout time.Duration
	// ReplyTimeout bounds the wait for a reply to a data request.
	ReplyTimeout time.Duration
	// UsageTimeout bounds the wait for a station to reply to poll-for-master
	// or to use a passed token.
	UsageTimeout time.Duration
	// ReplyDelay bounds the wait for the application to answer a request.
	ReplyDelay time.Duration
	// NoTokenTimeout is the bus silence after which a master generates a token.
	// Zero disables token generation.
	NoTokenTimeout time.Duration
	// SlotTime staggers token generation by station address.
	SlotTime time.Duration
	// SelfPassDelay is the pause before reusing a token passed to self.
	SelfPassDelay time.Duration
	WriteTimeout  time.Duration

	// QueueSize is the capacity of the MAC loop message queue.
	QueueSize int
	// TxQueueLen is the number of outbound packets waiting for the token.
	TxQueueLen int
	// RxBuffers is the number of frame buffers shared by receiver and MAC loop.
	RxBuffers int
}

var defaultConfig = Config{
	Addr:              1,
	Role:              RoleMaster,
	MaxMaster:         127,
	PollInterval:      50,
	MaxInfoFrames:     1,
	FrameAbortTimeout: 100 * time.Millisecond,
	ReplyTimeout:      255 * time.Millisecond,
	UsageTimeout:      20 * time.Millisecond,
	ReplyDelay:        250 * time.Millisecond,
	NoTokenTimeout:    500 * time.Millisecond,
	SlotTime:          10 * time.Millisecond,
	SelfPassDelay:     10 * time.Millisecond,
	WriteTimeout:      time.Second,
	QueueSize:         8,
	TxQueueLen:        8,
	RxBuffers:         2,
}

func init() {
	if val, err := strconv.ParseUint(os.Getenv("MSTP_ADDR"), 10, 8); err == nil {
		defaultConfig.Addr = byte(val)
	}
}

type byteValue struct {
	p *byte
}

func (v byteValue) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.Itoa(int(*v.p))
}

func (v byteValue) Set(s string) error {
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return err
	}
	*v.p = byte(n)
	return nil
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.Var(byteValue{&defaultConfig.Addr}, "addr", "Station address.")
	flag.Var(&defaultConfig.Role, "role", "Node role: master, slave or monitor.")
	flag.Var(byteValue{&defaultConfig.MaxMaster}, "max-master", "Highest address polled for masters.")
	flag.IntVar(&defaultConfig.PollInterval, "poll-interval", defaultConfig.PollInterval, "Token cycles between poll-for-master sweeps.")
	flag.IntVar(&defaultConfig.MaxInfoFrames, "max-info-frames", defaultConfig.MaxInfoFrames, "Data frames sent per token hold.")
	flag.DurationVar(&defaultConfig.FrameAbortTimeout, "frame-abort", defaultConfig.FrameAbortTimeout, "Inter-octet timeout within a frame.")
	flag.DurationVar(&defaultConfig.ReplyTimeout, "reply-timeout", defaultConfig.ReplyTimeout, "Timeout waiting for a reply.")
	flag.DurationVar(&defaultConfig.UsageTimeout, "usage-timeout", defaultConfig.UsageTimeout, "Timeout waiting for poll reply or token usage.")
	flag.DurationVar(&defaultConfig.ReplyDelay, "reply-delay", defaultConfig.ReplyDelay, "Time allowed for the application to answer a request.")
	flag.DurationVar(&defaultConfig.NoTokenTimeout, "no-token", defaultConfig.NoTokenTimeout, "Bus silence before generating a token, 0 to disable.")
	flag.DurationVar(&defaultConfig.SlotTime, "slot-time", defaultConfig.SlotTime, "Token generation slot per address.")
	flag.DurationVar(&defaultConfig.WriteTimeout, "write-timeout", defaultConfig.WriteTimeout, "Transmit timeout.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks the config.
func (c *Config) Validate() error {
	switch {
	case c.Role < RoleMaster || c.Role > RoleMonitor:
		return &ConfigError{Field: "Role", Value: c.Role}
	case c.Addr == BroadcastAddr:
		return &ConfigError{Field: "Addr", Value: c.Addr}
	case c.Role == RoleMaster && c.Addr > c.MaxMaster:
		return &ConfigError{Field: "Addr", Value: c.Addr}
	case c.MaxMaster == BroadcastAddr:
		return &ConfigError{Field: "MaxMaster", Value: c.MaxMaster}
	case c.PollInterval < 1:
		return &ConfigError{Field: "PollInterval", Value: c.PollInterval}
	case c.MaxInfoFrames < 1:
		return &ConfigError{Field: "MaxInfoFrames", Value: c.MaxInfoFrames}
	case c.FrameAbortTimeout <= 0:
		return &ConfigError{Field: "FrameAbortTimeout", Value: c.FrameAbortTimeout}
	case c.ReplyTimeout <= 0:
		return &ConfigError{Field: "ReplyTimeout", Value: c.ReplyTimeout}
	case c.UsageTimeout <= 0:
		return &ConfigError{Field: "UsageTimeout", Value: c.UsageTimeout}
	case c.ReplyDelay <= 0:
		return &ConfigError{Field: "ReplyDelay", Value: c.ReplyDelay}
	case c.NoTokenTimeout < 0:
		return &ConfigError{Field: "NoTokenTimeout", Value: c.NoTokenTimeout}
	case c.WriteTimeout <= 0:
		return &ConfigError{Field: "WriteTimeout", Value: c.WriteTimeout}
	case c.QueueSize < 1:
		return &ConfigError{Field: "QueueSize", Value: c.QueueSize}
	case c.TxQueueLen < 1:
		return &ConfigError{Field: "TxQueueLen", Value: c.TxQueueLen}
	case c.RxBuffers < 1:
		return &ConfigError{Field: "RxBuffers", Value: c.RxBuffers}
	}
	return nil
}

// NewInterface creates an interface on port using the config.
func (c *Config) NewInterface(name string, port uart.Port, h netapi.PacketHandler) (*Interface, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return newInterface(name, *c, port, h), nil
}

// MustNewInterface creates an interface and fails on error.
func (c *Config) MustNewInterface(name string, port uart.Port, h netapi.PacketHandler) *Interface {
	i, err := c.NewInterface(name, port, h)
	if err != nil {
		log.Fatalln(err)
	}
	return i
}
