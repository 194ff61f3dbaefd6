// Package mqtt connects the hub to an MQTT broker.
//
// The broker is optional. When enabled, the hub publishes each device's
// presence as a retained message and accepts commands for connected
// devices on a topic, replying on a matching response topic. The hub's own
// status is published on connect and carried as the Last Will so
// subscribers learn when it drops.
//
// The Client wraps paho.mqtt.golang with connection tracking, topic and
// payload validation, handler panic recovery, and re-subscription after a
// reconnect. Topics builds every topic name under the configured prefix.
package mqtt
