package health

import (
	"context"
	"time"

	"github.com/fixmate/backend/internal/database"
	"github.com/fixmate/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// EmbedderPinger is the liveness probe of the embedding backend.
type EmbedderPinger interface {
	Ping(ctx context.Context) error
}

// Checker monitors the orchestration engine's dependencies: the entry
// store, the cache, and the embedding backend.
type Checker struct {
	dbManager  *database.Manager
	cache      *database.Cache
	healthRepo models.SystemHealthRepository
	embedder   EmbedderPinger
	logger     *logrus.Logger
}

func NewChecker(dbManager *database.Manager, healthRepo models.SystemHealthRepository, embedder EmbedderPinger, logger *logrus.Logger) *Checker {
	return &Checker{
		dbManager:  dbManager,
		cache:      database.NewCache(dbManager.Redis, logger),
		healthRepo: healthRepo,
		embedder:   embedder,
		logger:     logger,
	}
}

// ServiceHealth represents the health status of a single dependency.
type ServiceHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	ResponseTime int    `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
	LastChecked  string `json:"last_checked"`
}

// OverallHealth represents the overall system health.
type OverallHealth struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
	Uptime   string          `json:"uptime"`
}

// Summary flattens the per-service detail into the compact payload
// served on /health; /health/detailed keeps the full breakdown.
func (o OverallHealth) Summary() models.HealthResponse {
	services := make(map[string]string, len(o.Services))
	for _, service := range o.Services {
		services[service.Name] = service.Status
	}

	return models.HealthResponse{
		Status:    o.Status,
		Service:   "fixmate-backend",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}
}

// CheckPostgreSQL checks the entry store.
func (h *Checker) CheckPostgreSQL() ServiceHealth {
	return h.record("postgresql", h.dbManager.PingDatabase)
}

// CheckRedis checks the cache.
func (h *Checker) CheckRedis() ServiceHealth {
	return h.record("redis", h.dbManager.PingRedis)
}

// CheckEmbedder checks the embedding backend. The semantic fallback
// degrades without it, so a failure counts as degraded rather than
// unhealthy.
func (h *Checker) CheckEmbedder() ServiceHealth {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := h.embedder.Ping(ctx)
	responseTime := int(time.Since(start).Milliseconds())

	status := "healthy"
	errorMsg := ""
	if err != nil {
		status = "degraded"
		errorMsg = err.Error()
		h.logger.WithError(err).Warn("Embedder health check failed")
	}

	h.healthRepo.UpdateServiceHealth("embedder", status, responseTime, errorMsg)

	return ServiceHealth{
		Name:         "embedder",
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

func (h *Checker) record(name string, probe func() error) ServiceHealth {
	start := time.Now()
	err := probe()
	responseTime := int(time.Since(start).Milliseconds())

	status := "healthy"
	errorMsg := ""
	if err != nil {
		status = "unhealthy"
		errorMsg = err.Error()
		h.logger.WithError(err).WithField("service", name).Error("Health check failed")
	}

	h.healthRepo.UpdateServiceHealth(name, status, responseTime, errorMsg)

	return ServiceHealth{
		Name:         name,
		Status:       status,
		ResponseTime: responseTime,
		Error:        errorMsg,
		LastChecked:  time.Now().Format(time.RFC3339),
	}
}

// CheckAll performs health checks on all dependencies.
func (h *Checker) CheckAll() OverallHealth {
	services := []ServiceHealth{
		h.CheckPostgreSQL(),
		h.CheckRedis(),
		h.CheckEmbedder(),
	}

	return OverallHealth{
		Status:   rollup(services),
		Services: services,
		Uptime:   h.getUptime(),
	}
}

// CheckCached returns the last cached health status if available.
func (h *Checker) CheckCached(ctx context.Context) (*OverallHealth, error) {
	cachedHealth, err := h.cache.GetCachedSystemHealth(ctx)
	if err != nil {
		return nil, err
	}

	services := make([]ServiceHealth, len(cachedHealth))
	for i, health := range cachedHealth {
		services[i] = ServiceHealth{
			Name:         health.ServiceName,
			Status:       health.Status,
			ResponseTime: health.ResponseTimeMs,
			Error:        health.ErrorMessage,
			LastChecked:  health.CheckedAt.Format(time.RFC3339),
		}
	}

	return &OverallHealth{
		Status:   rollup(services),
		Services: services,
		Uptime:   h.getUptime(),
	}, nil
}

func rollup(services []ServiceHealth) string {
	overall := "healthy"
	for _, service := range services {
		if service.Status == "unhealthy" {
			return "unhealthy"
		}
		if service.Status == "degraded" {
			overall = "degraded"
		}
	}
	return overall
}

var startTime = time.Now()

func (h *Checker) getUptime() string {
	return time.Since(startTime).String()
}

// PeriodicHealthCheck runs health checks on an interval until the
// context is cancelled.
func (h *Checker) PeriodicHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health := h.CheckAll()

			cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			healthModels := make([]models.SystemHealth, len(health.Services))
			for i, service := range health.Services {
				checkedAt, _ := time.Parse(time.RFC3339, service.LastChecked)
				healthModels[i] = models.SystemHealth{
					ServiceName:    service.Name,
					Status:         service.Status,
					ResponseTimeMs: service.ResponseTime,
					ErrorMessage:   service.Error,
					CheckedAt:      checkedAt,
				}
			}

			if err := h.cache.CacheSystemHealth(cacheCtx, healthModels, 2*interval); err != nil {
				h.logger.WithError(err).Error("Failed to cache health status")
			}
			cancel()

			h.logger.WithField("status", health.Status).Debug("Periodic health check completed")
		}
	}
}
