package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/response"
)

const healthCheckTimeout = 2 * time.Second

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// SystemHandler reports service health and runtime metrics.
type SystemHandler struct {
	checks    map[string]PingFunc
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler. checks maps a dependency
// name to its ping.
func NewSystemHandler(checks map[string]PingFunc, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
// Pings every dependency. Responds 503 when any of them fails.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	response.Success(c, status, gin.H{"status": overall, "dependencies": deps})
}

type runtimeStats struct {
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`
}

// Stats godoc
// GET /api/v1/system/stats
// Returns Go runtime metrics of this process.
func (h *SystemHandler) Stats(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response.Success(c, http.StatusOK, gin.H{"stats": runtimeStats{
		Uptime:     time.Since(h.startTime).Truncate(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		HeapSys:    mem.HeapSys,
		NumGC:      mem.NumGC,
		GoVersion:  runtime.Version(),
		NumCPU:     runtime.NumCPU(),
	}})
}
