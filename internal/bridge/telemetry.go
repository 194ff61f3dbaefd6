package bridge

import (
	"sync"
	"time"

	"github.com/houseflow/lighthouse/internal/tunnel"
)

// MetricsWriter is the part of the InfluxDB client Telemetry writes to.
type MetricsWriter interface {
	WriteCommandMetric(deviceID, outcome string, latency time.Duration)
	WriteSessionEvent(deviceID string, connected bool, duration time.Duration)
}

// Telemetry records tunnel activity. It implements both
// tunnel.PresenceListener and tunnel.CommandObserver.
type Telemetry struct {
	w   MetricsWriter
	now func() time.Time

	mu    sync.Mutex
	since map[tunnel.DeviceID]time.Time
}

// NewTelemetry creates a Telemetry writing to w.
func NewTelemetry(w MetricsWriter) *Telemetry {
	return &Telemetry{
		w:     w,
		now:   time.Now,
		since: make(map[tunnel.DeviceID]time.Time),
	}
}

// DeviceConnected implements tunnel.PresenceListener.
func (t *Telemetry) DeviceConnected(id tunnel.DeviceID) {
	t.mu.Lock()
	t.since[id] = t.now()
	t.mu.Unlock()

	t.w.WriteSessionEvent(string(id), true, 0)
}

// DeviceDisconnected implements tunnel.PresenceListener.
func (t *Telemetry) DeviceDisconnected(id tunnel.DeviceID, _ error) {
	t.mu.Lock()
	start, ok := t.since[id]
	delete(t.since, id)
	t.mu.Unlock()

	var duration time.Duration
	if ok {
		duration = t.now().Sub(start)
	}
	t.w.WriteSessionEvent(string(id), false, duration)
}

// CommandCompleted implements tunnel.CommandObserver.
func (t *Telemetry) CommandCompleted(id tunnel.DeviceID, latency time.Duration, err error) {
	t.w.WriteCommandMetric(string(id), Outcome(err), latency)
}
