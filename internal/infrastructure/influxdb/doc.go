// Package influxdb writes tunnel telemetry to InfluxDB v2.
//
// The hub records one point per command sent to a device (outcome and
// latency) and one per session start or end. Telemetry is optional; when
// influxdb.enabled is false nothing here is constructed.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCommandMetric(deviceID, "ok", 42*time.Millisecond)
package influxdb
