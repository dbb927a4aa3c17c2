package main

import (
	"github.com/robotalks/uartbridge/pkg/cli/sh"
	"github.com/robotalks/uartbridge/pkg/env"

	_ "github.com/robotalks/uartbridge/pkg/cli/cmds/acm"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
