package jobs

import (
	"context"
	"fmt"

	"github.com/esclipse/SynthraCloud/pkg/logger"
)

// Pinger wakes the job service
type Pinger interface {
	Ping(ctx context.Context) (int, error)
}

// WarmupJob pings the job service so a sleeping free-tier instance is awake
// before users submit.
// ⭐ SSOT: job service keep-warm 스케줄은 이 Job에서만
type WarmupJob struct {
	pinger   Pinger
	schedule string
	logger   *logger.Logger
}

// NewWarmupJob creates a new warmup job
func NewWarmupJob(pinger Pinger, schedule string, log *logger.Logger) *WarmupJob {
	return &WarmupJob{
		pinger:   pinger,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *WarmupJob) Name() string {
	return "job_service_warmup"
}

// Schedule returns the configured cron schedule
func (j *WarmupJob) Schedule() string {
	return j.schedule
}

// Run pings the job service. Any HTTP answer below 500 counts as awake.
func (j *WarmupJob) Run(ctx context.Context) error {
	status, err := j.pinger.Ping(ctx)
	if err != nil {
		return fmt.Errorf("warmup ping: %w", err)
	}
	if status >= 500 {
		return fmt.Errorf("warmup ping: job service answered %d", status)
	}

	j.logger.WithField("status", status).Debug("Job service is warm")
	return nil
}
