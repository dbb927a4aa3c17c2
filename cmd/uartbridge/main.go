package main

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/uartbridge/pkg/acm"
	"github.com/robotalks/uartbridge/pkg/bridge"
	"github.com/robotalks/uartbridge/pkg/console"
	"github.com/robotalks/uartbridge/pkg/console/joystick"
	"github.com/robotalks/uartbridge/pkg/env"
	fx "github.com/robotalks/uartbridge/pkg/framework"
	"github.com/robotalks/uartbridge/pkg/uart"
)

var (
	configFile string
	listPorts  bool
)

func init() {
	uart.SetupFlags()
	bridge.SetupFlags()
	env.SetupFlags()
	joystick.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "YAML file with serial, bridge, host and joystick sections.")
	flag.BoolVar(&listPorts, "list-ports", listPorts, "List serial ports and exit.")
}

func main() {
	flag.Parse()

	if listPorts {
		ports, err := uart.ListPorts()
		if err != nil {
			glog.Exitln(err)
		}
		for _, name := range ports {
			glog.Info(name)
		}
		return
	}

	if configFile != "" {
		err := env.LoadFile(configFile, env.Sections{
			"serial":   uart.Default(),
			"bridge":   bridge.Default(),
			"host":     env.Default(),
			"joystick": joystick.Default(),
		})
		if err != nil {
			glog.Exitln(err)
		}
	}

	serialConf := uart.NewConfig()
	listener, err := env.NewConfig().NewListener(serialConf.Device)
	if err != nil {
		glog.Exitln(err)
	}
	dev := acm.NewDevice(listener, nil)

	conf := bridge.NewConfig()
	b, err := conf.NewBridge(serialConf.NewPort(), dev)
	if err != nil {
		glog.Exitln(err)
	}
	dev.Handler = b
	board := console.NewBoard()
	b.Lines = console.New(board, b)

	loop := fx.NewLoop()
	loop.Interval = conf.PumpInterval
	loop.Add(dev, b)
	if in := joystick.NewConfig().NewInput(board); in != nil {
		loop.Add(in)
	}
	loop.RunOrFail()
}
