package main

import (
	"fmt"
	"os"
)

// BuildVersion and BuildDate can be set at build time via ldflags.
var (
	BuildVersion = "0.0.1"
	BuildDate    = "unknown"
)

const ServiceName = "bouncelog"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
