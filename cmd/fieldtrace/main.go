// Package main provides the CLI for the fieldtrace lineage engine.
package main

import (
	"os"

	"github.com/leapstack-labs/fieldtrace/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
