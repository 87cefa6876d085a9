// Package main is the entry point for the collabgrid CLI.
package main

import (
	"os"

	"github.com/collabgrid/collabgrid/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
