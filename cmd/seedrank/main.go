package main

import (
	"os"

	"github.com/wonny/seedrank/backend/cmd/seedrank/commands"
)

// main is the entry point for the seedrank CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/seedrank [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
