// Package main provides the entry point for the lgrepd CLI.
package main

import (
	"os"

	"github.com/lgrepd/lgrepd/cmd/lgrepd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
