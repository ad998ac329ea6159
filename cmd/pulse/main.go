package main

import (
	"os"

	"github.com/solpulse/engine/cmd/pulse/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
