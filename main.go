// Package main is the entry point for the rulebase CLI and server.
package main

import (
	"fmt"
	"os"

	"rulebase/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
