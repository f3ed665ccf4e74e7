// Package main provides the entry point for the gamedb CLI tool.
package main

import (
	"github.com/macfreek/game-db-manager/cmd/gamedb/cmd"
)

// Version information populated by goreleaser.
var version = "dev"

func main() {
	cmd.Execute(version)
}
