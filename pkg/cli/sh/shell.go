// Package sh is an interactive shell for MS/TP interfaces.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/mstp.go/pkg/mstp"
	"github.com/robotalks/mstp.go/pkg/netapi"
)

// Shell provides ishell backed interactive shell over MS/TP interfaces.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration

	Shell *ishell.Shell

	links   map[string]*Link
	current *Link
}

// Link is an interface managed by the shell. It also collects the packets
// received by the interface.
type Link struct {
	Name  string
	Iface *mstp.Interface

	lock     sync.Mutex
	received []*netapi.Packet
}

// ReceivedPacket is the printable form of a received packet.
type ReceivedPacket struct {
	Src       int    `json:"src"`
	Broadcast bool   `json:"broadcast"`
	Kind      string `json:"kind"`
	Payload   []byte `json:"payload"`
}

const (
	shellKey     = "$shell"
	noLinkPrompt = "[none] > "
	maxReceived  = 64
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	commands = []*ishell.Cmd{
		&ListCmd,
		&UseCmd,
		&InfoCmd,
		&StatsCmd,
		&AddrCmd,
		&GetCmd,
		&SetCmd,
		&SendCmd,
		&RecvCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// NewLink creates a link to be used as the packet handler of the named
// interface. Iface must be set before the link is added to a shell.
func NewLink(name string) *Link {
	return &Link{Name: name}
}

// HandlePacket implements netapi.PacketHandler.
func (l *Link) HandlePacket(ctx context.Context, pkt *netapi.Packet) {
	cp := &netapi.Packet{
		Src:       append([]byte(nil), pkt.Src...),
		Broadcast: pkt.Broadcast,
		Kind:      pkt.Kind,
		Payload:   append([]byte(nil), pkt.Payload...),
	}
	l.lock.Lock()
	if len(l.received) >= maxReceived {
		l.received = l.received[1:]
	}
	l.received = append(l.received, cp)
	l.lock.Unlock()
}

// Take removes and returns the packets received so far.
func (l *Link) Take() []*netapi.Packet {
	l.lock.Lock()
	defer l.lock.Unlock()
	pkts := l.received
	l.received = nil
	return pkts
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     5 * time.Second,

		Shell: ishell.New(),
		links: make(map[string]*Link),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(noLinkPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Add adds links. The first one added becomes current.
func (s *Shell) Add(links ...*Link) *Shell {
	for _, l := range links {
		s.links[l.Name] = l
		if s.current == nil {
			s.Use(l.Name)
		}
	}
	return s
}

// Links returns the links sorted by name.
func (s *Shell) Links() []*Link {
	links := make([]*Link, 0, len(s.links))
	for _, l := range s.links {
		links = append(links, l)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Name < links[j].Name })
	return links
}

// Current returns the selected link, nil if none.
func (s *Shell) Current() *Link {
	return s.current
}

// Use selects the current link.
func (s *Shell) Use(name string) error {
	l := s.links[name]
	if l == nil {
		return fmt.Errorf("unknown interface %q", name)
	}
	s.current = l
	s.Shell.SetPrompt(name + " > ")
	return nil
}

func (s *Shell) timeoutContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.Timeout)
}

// Print prints v as JSON or with its default format.
func (s *Shell) Print(c *ishell.Context, v interface{}) {
	if !s.OutputJSON {
		c.Println(v)
		return
	}
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

// MustHaveLink wraps command func requires a selected link.
func MustHaveLink(fn func(c *ishell.Context, l *Link)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		l := ShellFrom(c).current
		if l == nil || l.Iface == nil {
			c.Err(fmt.Errorf("no interface selected"))
			return
		}
		fn(c, l)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}
