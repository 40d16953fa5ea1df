package sh

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/mstp.go/pkg/mstp"
	"github.com/robotalks/mstp.go/pkg/netapi"
)

// ParseDest parses a destination address, decimal, 0x-hex or "bcast".
func ParseDest(s string) (byte, bool, error) {
	if s == "bcast" || s == "*" {
		return mstp.BroadcastAddr, true, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, false, fmt.Errorf("invalid address %q", s)
	}
	return byte(n), byte(n) == mstp.BroadcastAddr, nil
}

// ParsePayload joins args as text, or decodes them as hex when the first
// arg is -x.
func ParsePayload(args []string) ([]byte, error) {
	if len(args) > 0 && args[0] == "-x" {
		return hex.DecodeString(strings.Join(args[1:], ""))
	}
	return []byte(strings.Join(args, " ")), nil
}

func parseOptionValue(opt netapi.Option, s string) (interface{}, error) {
	switch opt {
	case netapi.OptAddress:
		n, err := strconv.ParseUint(s, 0, 8)
		if err != nil {
			return nil, err
		}
		return byte(n), nil
	case netapi.OptPromiscuous, netapi.OptIsWired:
		return strconv.ParseBool(s)
	}
	return strconv.Atoi(s)
}

func formatReceived(pkt *netapi.Packet) ReceivedPacket {
	r := ReceivedPacket{
		Broadcast: pkt.Broadcast,
		Kind:      mstp.FrameType(pkt.Kind).String(),
		Payload:   pkt.Payload,
	}
	if len(pkt.Src) > 0 {
		r.Src = int(pkt.Src[0])
	}
	return r
}

func (r ReceivedPacket) String() string {
	dst := "me"
	if r.Broadcast {
		dst = "bcast"
	}
	return fmt.Sprintf("%d->%s %s %q", r.Src, dst, r.Kind, r.Payload)
}

var (
	// ListCmd lists interfaces.
	ListCmd = ishell.Cmd{
		Name:    "list",
		Aliases: []string{"l"},
		Help:    "list interfaces",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			type item struct {
				Name  string `json:"name"`
				Addr  int    `json:"addr"`
				Role  string `json:"role"`
				State string `json:"state"`
			}
			items := []item{}
			for _, l := range s.Links() {
				conf := l.Iface.Config()
				items = append(items, item{
					Name:  l.Name,
					Addr:  int(conf.Addr),
					Role:  conf.Role.String(),
					State: l.Iface.State().String(),
				})
			}
			if s.OutputJSON {
				s.Print(c, items)
				return
			}
			for _, it := range items {
				mark := " "
				if cur := s.Current(); cur != nil && cur.Name == it.Name {
					mark = "*"
				}
				c.Printf("%s %s addr=%d %s %s\n", mark, it.Name, it.Addr, it.Role, it.State)
			}
		},
	}

	// UseCmd selects the current interface.
	UseCmd = ishell.Cmd{
		Name:    "use",
		Aliases: []string{"u"},
		Help:    "NAME",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) != 1 {
				names := make([]string, 0, len(s.links))
				for _, l := range s.Links() {
					names = append(names, l.Name)
				}
				if !s.Interactive || len(names) == 0 {
					c.Err(fmt.Errorf("interface name expected"))
					return
				}
				c.Args = []string{names[s.Shell.MultiChoice(names, "Which interface?")]}
			}
			if err := s.Use(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// InfoCmd shows the node protocol state.
	InfoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"i"},
		Help:    "show node state",
		Func: MustHaveLink(func(c *ishell.Context, l *Link) {
			s := ShellFrom(c)
			ctx, cancel := s.timeoutContext()
			defer cancel()
			info, err := l.Iface.Info(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				s.Print(c, map[string]interface{}{
					"addr":         info.Addr,
					"next_station": info.NextStation,
					"state":        info.State.String(),
					"queued":       info.Queued,
					"role":         info.Role.String(),
				})
				return
			}
			c.Printf("addr=%d next=%d state=%s queued=%d role=%s\n",
				info.Addr, info.NextStation, info.State, info.Queued, info.Role)
		}),
	}

	// StatsCmd shows link counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "show link counters",
		Func: MustHaveLink(func(c *ishell.Context, l *Link) {
			s := ShellFrom(c)
			st := l.Iface.Stats()
			if s.OutputJSON {
				s.Print(c, st)
				return
			}
			c.Printf("rx=%d tx=%d hdr-crc=%d data-crc=%d skipped=%d aborts=%d overruns=%d\n",
				st.FramesReceived, st.FramesSent, st.HeaderCRCErrors, st.DataCRCErrors,
				st.FramesSkipped, st.FrameAborts, st.Overruns)
			c.Printf("tx-errors=%d reply-timeouts=%d tokens-passed=%d tokens-generated=%d dropped=%d\n",
				st.TxErrors, st.ReplyTimeouts, st.TokensPassed, st.TokensGenerated, st.PacketsDropped)
		}),
	}

	// AddrCmd gets or sets the station address.
	AddrCmd = ishell.Cmd{
		Name: "addr",
		Help: "[ADDR]",
		Func: MustHaveLink(func(c *ishell.Context, l *Link) {
			s := ShellFrom(c)
			ctx, cancel := s.timeoutContext()
			defer cancel()
			if len(c.Args) == 0 {
				v, err := l.Iface.Get(ctx, netapi.OptAddress)
				if err != nil {
					c.Err(err)
					return
				}
				if b, ok := v.([]byte); ok && len(b) == 1 {
					s.Print(c, int(b[0]))
				}
				return
			}
			addr, _, err := ParseDest(c.Args[0])
			if err == nil {
				err = l.Iface.Set(ctx, netapi.OptAddress, addr)
			}
			if err != nil {
				c.Err(err)
			}
		}),
	}

	// GetCmd reads a device option.
	GetCmd = ishell.Cmd{
		Name: "get",
		Help: "OPTION",
		Func: MustHaveLink(func(c *ishell.Context, l *Link) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("option expected"))
				return
			}
			opt, ok := netapi.ParseOption(strings.ToUpper(c.Args[0]))
			if !ok {
				c.Err(fmt.Errorf("unknown option %q", c.Args[0]))
				return
			}
			s := ShellFrom(c)
			ctx, cancel := s.timeoutContext()
			defer cancel()
			v, err := l.Iface.Get(ctx, opt)
			if err != nil {
				c.Err(err)
				return
			}
			s.Print(c, v)
		}),
	}

	// SetCmd writes a device option.
	SetCmd = ishell.Cmd{
		Name: "set",
		Help: "OPTION VALUE",
		Func: MustHaveLink(func(c *ishell.Context, l *Link) {
			if len(c.Args) != 2 {
				c.Err(fmt.Errorf("option and value expected"))
				return
			}
			opt, ok := netapi.ParseOption(strings.ToUpper(c.Args[0]))
			if !ok {
				c.Err(fmt.Errorf("unknown option %q", c.Args[0]))
				return
			}
			val, err := parseOptionValue(opt, c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := ShellFrom(c).timeoutContext()
			defer cancel()
			if err = l.Iface.Set(ctx, opt, val); err != nil {
				c.Err(err)
			}
		}),
	}

	// SendCmd sends a packet and waits until it's on the wire.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "DST|bcast [-x] PAYLOAD",
		Func: MustHaveLink(func(c *ishell.Context, l *Link) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("destination expected"))
				return
			}
			dst, bcast, err := ParseDest(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			payload, err := ParsePayload(c.Args[1:])
			if err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := ShellFrom(c).timeoutContext()
			defer cancel()
			done := make(chan error, 1)
			pkt := &netapi.Packet{
				Dst:       []byte{dst},
				Broadcast: bcast,
				Payload:   payload,
				Release:   func(err error) { done <- err },
			}
			if err = l.Iface.Send(ctx, pkt); err == nil {
				select {
				case err = <-done:
				case <-ctx.Done():
					err = ctx.Err()
				}
			}
			if err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// RecvCmd prints and clears the packets received so far.
	RecvCmd = ishell.Cmd{
		Name:    "recv",
		Aliases: []string{"r"},
		Help:    "print received packets",
		Func: MustHaveLink(func(c *ishell.Context, l *Link) {
			s := ShellFrom(c)
			pkts := l.Take()
			items := make([]ReceivedPacket, 0, len(pkts))
			for _, pkt := range pkts {
				items = append(items, formatReceived(pkt))
			}
			if s.OutputJSON {
				s.Print(c, items)
				return
			}
			if len(items) == 0 {
				c.Println("No packets")
				return
			}
			for _, it := range items {
				c.Println(it.String())
			}
		}),
	}
)
