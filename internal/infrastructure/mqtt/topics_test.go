package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("/home/lighthouse/")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"presence", topics.DevicePresence("dev-1"), "home/lighthouse/device/dev-1/presence"},
		{"all presence", topics.AllDevicePresence(), "home/lighthouse/device/+/presence"},
		{"command", topics.Command("dev-1", "req-9"), "home/lighthouse/command/dev-1/req-9"},
		{"all commands", topics.AllCommands(), "home/lighthouse/command/+/+"},
		{"response", topics.Response("dev-1", "req-9"), "home/lighthouse/response/dev-1/req-9"},
		{"status", topics.SystemStatus(), "home/lighthouse/system/status"},
		{"zero value", Topics{}.SystemStatus(), "lighthouse/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		topic      string
		wantDevice string
		wantReq    string
		wantOK     bool
	}{
		{"lighthouse/command/dev-1/req-1", "dev-1", "req-1", true},
		{"lighthouse/command/dev-1", "", "", false},
		{"lighthouse/command/dev-1/req-1/extra", "", "", false},
		{"lighthouse/command//req-1", "", "", false},
		{"lighthouse/response/dev-1/req-1", "", "", false},
		{"other/command/dev-1/req-1", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			dev, req, ok := topics.ParseCommand(tt.topic)
			if ok != tt.wantOK || dev != tt.wantDevice || req != tt.wantReq {
				t.Errorf("ParseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, dev, req, ok, tt.wantDevice, tt.wantReq, tt.wantOK)
			}
		})
	}

	// Round trip through the builder.
	dev, req, ok := topics.ParseCommand(topics.Command("abc", "123"))
	if !ok || dev != "abc" || req != "123" {
		t.Errorf("round trip = (%q, %q, %v)", dev, req, ok)
	}
}
