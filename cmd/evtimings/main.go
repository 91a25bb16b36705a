package main

import (
	"os"

	"github.com/psantana5/eventtimings/cmd/evtimings/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
