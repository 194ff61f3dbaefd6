package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every hub topic unless configured otherwise.
const DefaultTopicPrefix = "lighthouse"

// Topics builds the hub's MQTT topic names under a common prefix:
//
//	{prefix}/device/{device_id}/presence          retained online/offline
//	{prefix}/command/{device_id}/{request_id}     command for a device
//	{prefix}/response/{device_id}/{request_id}    reply to that command
//	{prefix}/system/status                        hub online/offline (LWT)
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

// NewTopics returns a Topics rooted at prefix, trimming stray slashes.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.Trim(prefix, "/")}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// DevicePresence returns the retained presence topic for a device.
//
// Example: lighthouse/device/6f1c.../presence
func (t Topics) DevicePresence(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/presence", t.prefix(), deviceID)
}

// AllDevicePresence matches every device's presence topic.
func (t Topics) AllDevicePresence() string {
	return t.prefix() + "/device/+/presence"
}

// Command returns the topic a command for deviceID is published on.
func (t Topics) Command(deviceID, requestID string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.prefix(), deviceID, requestID)
}

// AllCommands matches every command topic.
func (t Topics) AllCommands() string {
	return t.prefix() + "/command/+/+"
}

// Response returns the topic the reply to a command is published on.
func (t Topics) Response(deviceID, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", t.prefix(), deviceID, requestID)
}

// SystemStatus returns the hub status topic, also used as the LWT topic.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// ParseCommand extracts the device and request IDs from a command topic.
// ok is false if topic is not a command topic under this prefix.
func (t Topics) ParseCommand(topic string) (deviceID, requestID string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/command/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" { //nolint:mnd // device/request
		return "", "", false
	}
	return parts[0], parts[1], true
}
