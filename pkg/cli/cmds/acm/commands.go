// Package acm registers the bridge session commands to the shell.
package acm

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/uartbridge/pkg/acm"
	"github.com/robotalks/uartbridge/pkg/cli/sh"
)

type codingOutput struct {
	Rate     uint32 `json:"rate"`
	DataBits uint8  `json:"data_bits"`
	Parity   string `json:"parity"`
	StopBits string `json:"stop_bits"`
}

func printCoding(c *ishell.Context, coding acm.LineCoding) {
	s := sh.ShellFrom(c)
	if s.OutputJSON {
		s.Print(c, &codingOutput{
			Rate:     coding.DTERate,
			DataBits: coding.DataBits,
			Parity:   coding.ParityType.String(),
			StopBits: coding.CharFormat.String(),
		})
		return
	}
	c.Println(coding.String())
}

func host(c *ishell.Context) *acm.Host {
	return sh.ShellFrom(c).Loop.Host
}

// drain discards stale serial data.
func drain(h *acm.Host) {
	for {
		select {
		case _, ok := <-h.Data():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// readLine collects serial data up to "\r\n" or the timeout.
func readLine(h *acm.Host, timeout time.Duration) (string, bool) {
	var buf bytes.Buffer
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case data, ok := <-h.Data():
			if !ok {
				return buf.String(), false
			}
			buf.Write(data)
			if pos := bytes.Index(buf.Bytes(), []byte("\r\n")); pos >= 0 {
				return string(buf.Bytes()[:pos]), true
			}
		case <-timer.C:
			return buf.String(), false
		}
	}
}

var (
	// CodingCmd queries the line coding.
	CodingCmd = ishell.Cmd{
		Name:    "coding",
		Aliases: []string{"gc"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			f, err := sh.DoRequest(c, host(c).GetLineCoding())
			if err != nil {
				return
			}
			coding, err := acm.LineCodingOf(f)
			if err != nil {
				c.Err(err)
				return
			}
			printCoding(c, coding)
		}),
	}

	// SetCodingCmd changes the line coding.
	SetCodingCmd = ishell.Cmd{
		Name:    "set-coding",
		Aliases: []string{"sc"},
		Help:    "RATE [8N1]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			coding, err := acm.ParseLineCoding(strings.Join(c.Args, " "))
			if err != nil {
				c.Err(err)
				return
			}
			if _, err := sh.DoRequest(c, host(c).SetLineCoding(coding)); err == nil {
				c.Println("OK")
			}
		}),
	}

	// LinesCmd sets DTR and RTS.
	LinesCmd = ishell.Cmd{
		Name:    "lines",
		Aliases: []string{"ln"},
		Help:    "[dtr] [rts]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			var state acm.ControlLineState
			for _, arg := range c.Args {
				switch strings.ToLower(arg) {
				case "dtr":
					state |= acm.LineStateDTR
				case "rts":
					state |= acm.LineStateRTS
				default:
					c.Err(fmt.Errorf("unknown line %q", arg))
					return
				}
			}
			if _, err := sh.DoRequest(c, host(c).SetControlLineState(state)); err == nil {
				c.Println("OK")
			}
		}),
	}

	// ResetCmd restarts the device session.
	ResetCmd = ishell.Cmd{
		Name:    "reset",
		Aliases: []string{"r"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if _, err := sh.DoRequest(c, host(c).Reset()); err == nil {
				c.Println("OK")
			}
		}),
	}

	// SendCmd sends raw text, words are joined by spaces and terminated by CR.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "TEXT...",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if err := host(c).Write([]byte(strings.Join(c.Args, " ") + "\r")); err != nil {
				c.Err(err)
			}
		}),
	}

	// ATCmd sends an AT command and prints the reply line.
	ATCmd = ishell.Cmd{
		Name: "at",
		Help: "LED<n> | LCD=<text> | BUTTON | POT",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("command expected"))
				return
			}
			s, h := sh.ShellFrom(c), host(c)
			drain(h)
			if err := h.Write([]byte("AT+" + strings.Join(c.Args, " ") + "\r")); err != nil {
				c.Err(err)
				return
			}
			reply, ok := readLine(h, s.Timeout)
			if !ok {
				c.Err(fmt.Errorf("no reply, got %q", reply))
				return
			}
			c.Println(reply)
		}),
	}

	// MonitorCmd prints serial data for a while.
	MonitorCmd = ishell.Cmd{
		Name:    "monitor",
		Aliases: []string{"m"},
		Help:    "[DURATION]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			duration := 10 * time.Second
			if len(c.Args) > 0 {
				d, err := time.ParseDuration(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				duration = d
			}
			h := host(c)
			timer := time.NewTimer(duration)
			defer timer.Stop()
			for {
				select {
				case data, ok := <-h.Data():
					if !ok {
						c.Err(acm.ErrNotConnected)
						return
					}
					c.Printf("%q\n", data)
				case <-timer.C:
					return
				}
			}
		}),
	}
)

func init() {
	sh.AddCmds(
		&CodingCmd,
		&SetCodingCmd,
		&LinesCmd,
		&ResetCmd,
		&SendCmd,
		&ATCmd,
		&MonitorCmd,
	)
}
