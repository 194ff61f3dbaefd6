package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the hub.
const (
	MeasurementCommand = "tunnel_command"
	MeasurementSession = "tunnel_session"
)

// WriteCommandMetric records one command sent through the tunnel.
//
// outcome is a short low-cardinality tag such as "ok", "timeout",
// "offline", "closed" or "busy".
func (c *Client) WriteCommandMetric(deviceID, outcome string, latency time.Duration) {
	c.WritePoint(MeasurementCommand,
		map[string]string{
			"device_id": deviceID,
			"outcome":   outcome,
		},
		map[string]any{
			"latency_ms": float64(latency) / float64(time.Millisecond),
			"count":      1,
		},
	)
}

// WriteSessionEvent records a device connecting or disconnecting. duration
// is how long the session lasted and is only written on disconnect.
func (c *Client) WriteSessionEvent(deviceID string, connected bool, duration time.Duration) {
	event := "disconnected"
	if connected {
		event = "connected"
	}

	fields := map[string]any{"connected": connected}
	if !connected && duration > 0 {
		fields["duration_s"] = duration.Seconds()
	}

	c.WritePoint(MeasurementSession,
		map[string]string{
			"device_id": deviceID,
			"event":     event,
		},
		fields,
	)
}

// WriteSessionCount records how many devices are connected right now.
func (c *Client) WriteSessionCount(hubID string, count int) {
	c.WritePoint("tunnel_sessions",
		map[string]string{"hub_id": hubID},
		map[string]any{"connected": count},
	)
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
