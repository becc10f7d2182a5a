package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/esclipse/SynthraCloud/internal/api"
	"github.com/esclipse/SynthraCloud/internal/api/handlers"
	"github.com/esclipse/SynthraCloud/internal/history"
	"github.com/esclipse/SynthraCloud/internal/jobservice"
	"github.com/esclipse/SynthraCloud/internal/llm"
	"github.com/esclipse/SynthraCloud/internal/scheduler"
	"github.com/esclipse/SynthraCloud/internal/scheduler/jobs"
	"github.com/esclipse/SynthraCloud/internal/screening"
	"github.com/esclipse/SynthraCloud/internal/strategyconfig"
	"github.com/esclipse/SynthraCloud/internal/translate"
	"github.com/esclipse/SynthraCloud/pkg/config"
	"github.com/esclipse/SynthraCloud/pkg/database"
	"github.com/esclipse/SynthraCloud/pkg/logger"
	"github.com/esclipse/SynthraCloud/pkg/redis"
)

// keyPrefix namespaces every Redis key this service writes
const keyPrefix = "synthra"

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "API 서버 시작",
	Long: `Starts the SynthraCloud HTTP API.

Endpoints:
  GET  /health                         - Health check, job stats
  POST /api/creative-chat              - Creative chat (JSON or SSE)
  GET  /api/creative-chat/ws           - Creative chat over WebSocket
  POST /api/translate                  - Translate an HTML fragment
  POST /api/translate/batch            - Translate into several languages
  POST /api/stock-analysis             - Submit a screening job
  GET  /api/stock-analysis?pollToken=  - Poll a screening job
  GET  /api/stock-analysis/history     - Recent screening runs

Redis (REDIS_ENABLED) and Postgres (DATABASE_URL) are optional.

Example:
  go run ./cmd/synthra serve
  go run ./cmd/synthra serve --port 9090`,
	RunE: runServe,
}

var (
	servePort string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags
	serveCmd.Flags().StringVar(&servePort, "port", "", "API 서버 포트 (default $PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("=== SynthraCloud API Server ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Override port if flag is set
	if servePort != "" {
		cfg.Port = servePort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"env":         cfg.Env,
		"job_service": cfg.JobService.BaseURL,
		"model":       cfg.LLM.Model,
	}).Info("Initializing API server")

	// 3. Screening policy
	policy, err := strategyconfig.LoadOrDefault(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("load screening policy: %w", err)
	}
	policyHash, err := strategyconfig.Hash(policy)
	if err != nil {
		return fmt.Errorf("hash screening policy: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"file": cfg.PolicyFile,
		"hash": policyHash[:12],
	}).Info("Screening policy loaded")

	// 4. Optional infrastructure
	rdb := connectRedis(cfg, log)
	defer rdb.Close()

	db, recorder := connectHistory(cfg, log)
	if db != nil {
		defer db.Close()
	}

	// 5. Upstream clients
	model := llm.New(cfg, log)
	jobClient := jobservice.New(cfg, log, redis.NewRateLimiter(rdb, keyPrefix))

	// 6. Services
	annotator := screening.NewAnnotator(model, policy.Annotation.MaxMatches, policy.Annotation.DefaultPrompt, log)
	proxy := screening.NewProxy(cfg, jobClient, screening.NewTokenCodec(cfg.Token), policy, annotator, log).
		WithCache(redis.NewCache(rdb, keyPrefix), cfg.JobService.ResultCacheTTL).
		WithHistory(recorder)
	translator := translate.NewService(model, log)

	// 7. Scheduler
	sched := scheduler.New(log)
	if cfg.JobService.WarmupSchedule != "" {
		if err := sched.AddJob(jobs.NewWarmupJob(jobClient, cfg.JobService.WarmupSchedule, log)); err != nil {
			return fmt.Errorf("schedule warmup: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// 8. Router and server
	router := api.NewRouter(api.Handlers{
		Health:        handlers.NewHealthHandler(sched, db, rdb, policyHash),
		Chat:          handlers.NewChatHandler(model, log),
		Translate:     handlers.NewTranslateHandler(translator, log),
		StockAnalysis: handlers.NewStockAnalysisHandler(proxy, log),
	}, log)
	server := api.New(cfg, log, router)

	// 9. Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal or a failed listener
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

// connectRedis returns a live client, or a disabled one when Redis is off or
// unreachable
func connectRedis(cfg *config.Config, log *logger.Logger) *redis.Client {
	rdb, err := redis.New(cfg)
	if err == nil {
		if rdb.Enabled() {
			log.Info("Connected to Redis")
		}
		return rdb
	}

	log.WithError(err).Warn("Redis unavailable, continuing without cache and rate limiting")
	disabled := *cfg
	disabled.Redis.Enabled = false
	rdb, _ = redis.New(&disabled)
	return rdb
}

// connectHistory opens the run history store. Without a database runs are
// not recorded.
func connectHistory(cfg *config.Config, log *logger.Logger) (*database.DB, history.Recorder) {
	db, err := database.New(cfg)
	if errors.Is(err, database.ErrNotConfigured) {
		log.Info("DATABASE_URL not set, screening history disabled")
		return nil, history.Noop{}
	}
	if err != nil {
		log.WithError(err).Warn("Database unavailable, screening history disabled")
		return nil, history.Noop{}
	}

	repo := history.NewRepository(db.Pool)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.EnsureSchema(ctx); err != nil {
		log.WithError(err).Warn("Failed to prepare history table, screening history disabled")
		db.Close()
		return nil, history.Noop{}
	}

	log.Info("Connected to database")
	return db, repo
}
