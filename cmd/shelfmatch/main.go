// Package main provides the entry point for the shelfmatch CLI tool.
package main

import (
	"github.com/shelfmatch/shelfmatch/cmd/shelfmatch/cmd"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.Execute(version, commit, date)
}
