package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL  string
	jsonOutput bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "synthra",
	Short: "SynthraCloud - 创作 / 翻译 / 选股代理服务",
	Long: `SynthraCloud Unified CLI

Backend for the SynthraCloud editor: creative chat and translation through an
OpenAI-compatible model, and stock screening through the external job service.

Usage:
  go run ./cmd/synthra [command]

Examples:
  go run ./cmd/synthra serve
  go run ./cmd/synthra submit --strategy s1 --symbols 600519,000001 --wait
  go run ./cmd/synthra poll --token v1.eyJ...
  go run ./cmd/synthra ping`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "SynthraCloud API base URL (client commands)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")
}
