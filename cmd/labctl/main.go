// Package main is the entry point for the labctl CLI.
// labctl is the operator terminal tool for the executor service: it can run
// a single claim cycle, dry-run a task file locally, and inspect configuration.
package main

import (
	"os"

	"github.com/brad-usredoxlabs/computable-lab/cmd/labctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
