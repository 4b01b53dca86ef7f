// Package main is the entry point for the freightquote CLI.
package main

import (
	"os"

	"freightquote/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
