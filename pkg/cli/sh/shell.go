// Package sh provides the interactive shell of the bridge host.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/uartbridge/pkg/acm"
	"github.com/robotalks/uartbridge/pkg/env"
	fx "github.com/robotalks/uartbridge/pkg/framework"
	"github.com/robotalks/uartbridge/pkg/transport/mqtt"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Config *env.Config
	Loop   *HostLoop
}

// HostLoop is a running loop with a bridge session.
type HostLoop struct {
	Ctx    context.Context
	Cancel func()
	Name   string
	Loop   *fx.Loop
	Host   *acm.Host
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	timeout    = time.Second

	// commands
	commands = []*ishell.Cmd{
		&DiscoverCmd,
		&ConnectCmd,
		&DisconnectCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.DurationVar(&timeout, "timeout", timeout, "Time to wait for discovery and replies.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     timeout,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Loop == nil {
			c.Err(acm.ErrNotConnected)
			return
		}
		fn(c)
	}
}

// FormatMeta prints a presence record into friendly string for display.
func FormatMeta(meta mqtt.Meta) string {
	str := meta.ID
	if meta.Serial != "" {
		str += " (" + meta.Serial + ")"
	}
	if meta.Description != "" {
		str += ": " + meta.Description
	}
	return str
}

// Print prints v as JSON or with its String form.
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

// DoRequest waits for the result of a request.
func DoRequest(c *ishell.Context, fut *acm.Future) (*acm.Frame, error) {
	s := ShellFrom(c)
	ctx, cancel := context.WithTimeout(s.Loop.Ctx, s.Timeout+s.Loop.Host.Expiration)
	defer cancel()
	f, err := fut.Wait(ctx)
	if err != nil {
		c.Err(err)
		return nil, err
	}
	return f, nil
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Discover lists bridges present on the MQTT broker.
func (s *Shell) Discover() ([]mqtt.Meta, error) {
	return s.Config.Discover(context.Background(), s.Timeout)
}

// SelectBridge discovers bridges and asks for a choice.
func (s *Shell) SelectBridge() (*mqtt.Meta, error) {
	metas, err := s.Discover()
	if err != nil || len(metas) == 0 {
		return nil, err
	}
	var index int
	if len(metas) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 bridges discovered in non-interactive mode")
		}
		items := make([]string, len(metas))
		for n, meta := range metas {
			items[n] = FormatMeta(meta)
		}
		index = s.Shell.MultiChoice(items, "Which one to connect?")
	}
	return &metas[index], nil
}

// Connect connects the bridge with id. id is only used by MQTT.
func (s *Shell) Connect(id string) error {
	conf := *s.Config
	conf.ID = id
	conn, err := conf.Dial()
	if err != nil {
		return err
	}
	hl := &HostLoop{Name: id, Host: acm.NewHost(conn)}
	if hl.Name == "" {
		hl.Name = conf.URL
	}
	hl.Ctx, hl.Cancel = context.WithCancel(context.Background())
	hl.Loop = fx.NewLoop().Add(hl.Host)
	if s.Loop != nil {
		s.Loop.Cancel()
	}
	s.Loop = hl
	go func() {
		if err := hl.Loop.Run(hl.Ctx); err != nil && err != context.Canceled {
			log.Printf("session %s ended: %v", hl.Name, err)
		}
	}()
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", hl.Name))
	return nil
}

// Disconnect disconnects current bridge.
func (s *Shell) Disconnect() {
	if s.Loop != nil {
		s.Loop.Cancel()
		s.Loop = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && (s.Config.ID != "" || !s.Config.IsMQTT()) {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.URL)
		}
		if err := s.Connect(s.Config.ID); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.URL, err)
		}
	}

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

var (
	// DiscoverCmd discovers bridges.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			metas, err := s.Discover()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if len(metas) == 0 {
					// in case metas is nil, make it empty slice.
					metas = []mqtt.Meta{}
				}
				s.Print(c, metas)
				return
			}
			if len(metas) == 0 {
				c.Println("No bridges found")
				return
			}
			for _, meta := range metas {
				c.Println(FormatMeta(meta))
			}
		},
	}

	// ConnectCmd connects a bridge.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[ID]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var id string
			if len(c.Args) > 0 {
				id = c.Args[0]
			} else if s.Config.IsMQTT() {
				meta, err := s.SelectBridge()
				if err != nil {
					c.Err(err)
					return
				}
				if meta == nil {
					c.Err(fmt.Errorf("no bridge discovered"))
					return
				}
				id = meta.ID
			}
			if err := s.Connect(id); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current bridge.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoConnect(true).Run(flag.Args()...)
}
