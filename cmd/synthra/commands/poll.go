package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/esclipse/SynthraCloud/internal/apiclient"
)

// pollCmd represents the poll command
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "스크리닝 작업 상태 조회",
	Long: `Polls a screening job once with the token returned by submit.

Example:
  go run ./cmd/synthra poll --token v1.eyJ0YXNrSWQiOiJ0MSJ9
  go run ./cmd/synthra poll --token v1.eyJ... --json`,
	RunE: runPoll,
}

var (
	pollToken   string
	pollTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(pollCmd)

	// Flags
	pollCmd.Flags().StringVar(&pollToken, "token", "", "pollToken from a pending answer")
	pollCmd.Flags().DurationVar(&pollTimeout, "timeout", time.Minute, "request timeout")
	_ = pollCmd.MarkFlagRequired("token")
}

func runPoll(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	out, err := apiclient.New(serverURL, pollTimeout).Poll(ctx, pollToken)
	if err != nil {
		return fmt.Errorf("poll failed: %w", err)
	}

	PrintResponse(out)
	return nil
}
