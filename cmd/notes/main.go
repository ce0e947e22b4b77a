// Package main is the entry point for the notes CLI.
package main

import (
	"os"

	"github.com/SnowCait/user-notes-search/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
