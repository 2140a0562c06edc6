// Package main is the entry point for the starmill CLI.
package main

import (
	"os"

	"github.com/starmill-data/starmill/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
