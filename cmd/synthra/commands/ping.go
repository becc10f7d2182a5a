package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/esclipse/SynthraCloud/internal/jobservice"
	"github.com/esclipse/SynthraCloud/internal/scheduler/jobs"
	"github.com/esclipse/SynthraCloud/pkg/config"
	"github.com/esclipse/SynthraCloud/pkg/logger"
)

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Job service 연결 확인",
	Long: `Probes the configured job service (JOB_SERVICE_URL) the same way the
keep-warm job does. A sleeping free-tier instance may take a while to answer.

Example:
  go run ./cmd/synthra ping
  go run ./cmd/synthra ping --timeout 2m`,
	RunE: runPing,
}

var (
	pingTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(pingCmd)

	// Flags
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", time.Minute, "probe timeout")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	client := jobservice.New(cfg, log, nil)
	warmup := jobs.NewWarmupJob(client, cfg.JobService.WarmupSchedule, log)

	PrintHeader("Job Service Ping", [][2]string{
		{"Target", client.BaseURL()},
		{"Schedule", cfg.JobService.WarmupSchedule},
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	start := time.Now()
	if err := warmup.Run(ctx); err != nil {
		fmt.Printf("❌ %v (%.2fs)\n", err, time.Since(start).Seconds())
		return err
	}

	fmt.Printf("✅ Job service is awake (%.2fs)\n", time.Since(start).Seconds())
	return nil
}
