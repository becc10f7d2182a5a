package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/esclipse/SynthraCloud/internal/apiclient"
	"github.com/esclipse/SynthraCloud/internal/screening"
)

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "스크리닝 작업 제출",
	Long: `Submits a screening job to a running SynthraCloud server.

Without --symbols the whole market is scanned, which can take minutes.
With --wait the command keeps polling until the job completes.

Example:
  go run ./cmd/synthra submit --strategy s1 --symbols 600519,000001
  go run ./cmd/synthra submit --strategy s2 --wait --score
  go run ./cmd/synthra submit --symbols 600519 --wait --prompt "重点关注估值"`,
	RunE: runSubmit,
}

var (
	submitStrategy string
	submitSymbols  string
	submitNotes    string
	submitPrompt   string
	submitScore    bool
	submitWait     bool
	submitTimeout  time.Duration
)

func init() {
	rootCmd.AddCommand(submitCmd)

	// Flags
	submitCmd.Flags().StringVar(&submitStrategy, "strategy", screening.DefaultStrategy, "strategy id")
	submitCmd.Flags().StringVar(&submitSymbols, "symbols", "", "comma separated symbols (empty = full market)")
	submitCmd.Flags().StringVar(&submitNotes, "notes", "", "free-form notes forwarded to the job service")
	submitCmd.Flags().StringVar(&submitPrompt, "prompt", "", "AI analysis instruction")
	submitCmd.Flags().BoolVar(&submitScore, "score", false, "request scoring and AI analysis")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "poll until the job completes")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 20*time.Minute, "overall timeout")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	req := screening.Request{
		Strategy: submitStrategy,
		Symbols:  screening.SymbolList(screening.NormalizeSymbols(submitSymbols)),
		Notes:    submitNotes,
		Score:    submitScore,
		AIPrompt: submitPrompt,
	}

	if !jsonOutput {
		PrintHeader("Stock Screening", [][2]string{
			{"Server", serverURL},
			{"Strategy", req.Strategy},
			{"Symbols", string(req.Symbols)},
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	client := apiclient.New(serverURL, submitTimeout)
	start := time.Now()

	if !submitWait {
		out, err := client.Submit(ctx, req)
		if err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
		PrintResponse(out)
		return nil
	}

	onPending := PrintPending
	if jsonOutput {
		onPending = nil
	}
	res, err := client.Wait(ctx, req, onPending)
	if err != nil {
		return fmt.Errorf("screening failed: %w", err)
	}

	PrintResult(res)
	if !jsonOutput {
		fmt.Printf("Completed in %.2fs\n", time.Since(start).Seconds())
	}
	return nil
}
