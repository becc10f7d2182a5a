package main

import (
	"os"

	"github.com/esclipse/SynthraCloud/cmd/synthra/commands"
)

// main is the entry point for the SynthraCloud CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/synthra [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
