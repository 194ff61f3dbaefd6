package api

import (
	"database/sql"
	"net/http"
	"runtime"
	"time"
)

// ConnectionStatus is implemented by optional outbound clients (MQTT,
// InfluxDB) reported on /metrics.
type ConnectionStatus interface {
	IsConnected() bool
}

// DBStatter exposes connection pool statistics.
type DBStatter interface {
	Stats() sql.DBStats
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	Tunnel        TunnelMetrics   `json:"tunnel"`
	Clients       map[string]bool `json:"clients,omitempty"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// TunnelMetrics aggregates correlation counters over live sessions.
type TunnelMetrics struct {
	Sessions  int    `json:"sessions"`
	Pending   int    `json:"pending"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Abandoned uint64 `json:"abandoned"`
	Rejected  uint64 `json:"rejected"`
	Discarded uint64 `json:"discarded"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, tunnel and dependency metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
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
	}

	for _, sess := range s.hub.Registry().List() {
		st := sess.Stats()
		metrics.Tunnel.Sessions++
		metrics.Tunnel.Pending += st.Pending
		metrics.Tunnel.Submitted += st.Submitted
		metrics.Tunnel.Completed += st.Completed
		metrics.Tunnel.Abandoned += st.Abandoned
		metrics.Tunnel.Rejected += st.Rejected
		metrics.Tunnel.Discarded += st.Discarded
	}

	if len(s.clients) > 0 {
		metrics.Clients = make(map[string]bool, len(s.clients))
		for name, c := range s.clients {
			metrics.Clients[name] = c.IsConnected()
		}
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
