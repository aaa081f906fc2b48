// Creature orchestrator control CLI - talks to a running orchestrator's
// HTTP API to spawn, inspect, and manage the creature fleet.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
