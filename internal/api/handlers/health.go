package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/esclipse/SynthraCloud/internal/scheduler"
	"github.com/esclipse/SynthraCloud/pkg/database"
	"github.com/esclipse/SynthraCloud/pkg/redis"
)

// ServiceName is reported by /health
const ServiceName = "synthra-cloud-api"

// HealthHandler reports process and dependency health.
// Every dependency is optional; nil ones are left out of the report.
type HealthHandler struct {
	scheduler  *scheduler.Scheduler
	db         *database.DB
	redis      *redis.Client
	policyHash string
	startedAt  time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(sched *scheduler.Scheduler, db *database.DB, rdb *redis.Client, policyHash string) *HealthHandler {
	return &HealthHandler{
		scheduler:  sched,
		db:         db,
		redis:      rdb,
		policyHash: policyHash,
		startedAt:  time.Now(),
	}
}

// Health returns server health status. A failing database marks the service
// degraded but still answers 200.
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "ok",
		"service": ServiceName,
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.policyHash != "" {
		body["policy_hash"] = h.policyHash
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		dbHealth := h.db.HealthCheck(ctx)
		body["database"] = dbHealth
		if !dbHealth.Healthy {
			body["status"] = "degraded"
		}
	}

	if h.redis != nil && h.redis.Enabled() {
		redisStatus := map[string]interface{}{"healthy": true}
		if err := h.redis.Ping(ctx); err != nil {
			redisStatus["healthy"] = false
			redisStatus["error"] = err.Error()
			body["status"] = "degraded"
		}
		body["redis"] = redisStatus
	}

	if h.scheduler != nil {
		body["jobs"] = h.scheduler.GetJobStats()
	}

	respondJSON(w, http.StatusOK, body)
}
