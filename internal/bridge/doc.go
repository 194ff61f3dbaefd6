// Package bridge connects the tunnel to the hub's optional outer systems.
//
//   - PresencePublisher mirrors device connect and disconnect events to
//     retained MQTT presence topics.
//   - CommandBridge accepts commands on MQTT, forwards them through the
//     tunnel and publishes each reply on the matching response topic.
//   - Telemetry records command outcomes and session lifetimes in InfluxDB.
//
// Each piece is attached to a Tunnel as a PresenceListener or
// CommandObserver and depends only on small interfaces, so none of them
// needs a live broker or database in tests.
package bridge
