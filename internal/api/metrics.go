package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/rsu-fleet-core/internal/dispatch"
	"github.com/nerrad567/rsu-fleet-core/internal/query"
	"github.com/nerrad567/rsu-fleet-core/internal/router"
	"github.com/nerrad567/rsu-fleet-core/internal/sweeper"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string             `json:"timestamp"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Runtime       RuntimeMetrics     `json:"runtime"`
	MQTT          MQTTMetrics        `json:"mqtt"`
	Router        *router.Stats      `json:"router,omitempty"`
	Dispatch      dispatch.Stats     `json:"dispatch"`
	Query         query.Stats        `json:"query"`
	Scheduler     []sweeper.JobStats `json:"scheduler,omitempty"`
	Fleet         FleetMetrics       `json:"fleet"`
	Database      DatabaseMetrics    `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// FleetMetrics counts registered devices.
type FleetMetrics struct {
	Total  int `json:"total"`
	Online int `json:"online"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Dispatch: s.dispatcher.Stats(),
		Query:    s.gatherer.Stats(),
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}
	if s.router != nil {
		rs := s.router.Stats()
		metrics.Router = &rs
	}
	if s.scheduler != nil {
		metrics.Scheduler = s.scheduler.Stats()
	}

	if devices, err := s.registry.List(r.Context()); err == nil {
		metrics.Fleet.Total = len(devices)
		for _, d := range devices {
			if d.Online {
				metrics.Fleet.Online++
			}
		}
	} else {
		s.logger.Warn("metrics: listing rsus failed", "error", err)
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
