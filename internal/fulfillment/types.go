package fulfillment

import (
	"encoding/json"
	"errors"
)

// Intents understood by Handle.
const (
	IntentSync       = "action.devices.SYNC"
	IntentQuery      = "action.devices.QUERY"
	IntentExecute    = "action.devices.EXECUTE"
	IntentDisconnect = "action.devices.DISCONNECT"
)

// Per-device statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusOffline = "OFFLINE"
	StatusError   = "ERROR"
)

// Per-device error codes.
const (
	ErrCodeDeviceOffline  = "deviceOffline"
	ErrCodeTimeout        = "timeout"
	ErrCodeTransient      = "transientError"
	ErrCodeDeviceNotFound = "deviceNotFound"
)

var (
	// ErrInvalidRequest is returned for a request with no inputs or a
	// payload that does not match its intent.
	ErrInvalidRequest = errors.New("fulfillment: invalid request")

	// ErrUnknownIntent is returned for an intent Handle does not serve.
	ErrUnknownIntent = errors.New("fulfillment: unknown intent")
)

// Request is an assistant fulfillment request.
type Request struct {
	RequestID string  `json:"requestId"`
	Inputs    []Input `json:"inputs"`
}

// Input carries one intent and its intent-specific payload.
type Input struct {
	Intent  string          `json:"intent"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response echoes the request ID. Payload is one of SyncPayload,
// QueryPayload, ExecutePayload or empty for DISCONNECT.
type Response struct {
	RequestID string `json:"requestId"`
	Payload   any    `json:"payload"`
}

// DeviceRef names a device in QUERY and EXECUTE payloads.
type DeviceRef struct {
	ID string `json:"id"`
}

// SyncPayload lists the user's devices.
type SyncPayload struct {
	AgentUserID string       `json:"agentUserId"`
	Devices     []SyncDevice `json:"devices"`
}

// SyncDevice describes one device to the assistant.
type SyncDevice struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Traits          []string   `json:"traits"`
	Name            DeviceName `json:"name"`
	RoomHint        string     `json:"roomHint,omitempty"`
	WillReportState bool       `json:"willReportState"`
}

// DeviceName holds the user-visible device name.
type DeviceName struct {
	Name string `json:"name"`
}

// QueryRequest is the QUERY input payload.
type QueryRequest struct {
	Devices []DeviceRef `json:"devices"`
}

// QueryPayload maps device ID to its state. Every entry carries "online"
// and "status"; failures add "errorCode".
type QueryPayload struct {
	Devices map[string]map[string]any `json:"devices"`
}

// ExecuteRequest is the EXECUTE input payload.
type ExecuteRequest struct {
	Commands []ExecuteCommand `json:"commands"`
}

// ExecuteCommand applies each execution, in order, to every listed device.
type ExecuteCommand struct {
	Devices   []DeviceRef `json:"devices"`
	Execution []Execution `json:"execution"`
}

// Execution is one command with its parameters.
type Execution struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// ExecutePayload reports the outcome for every targeted device.
type ExecutePayload struct {
	Commands []CommandResult `json:"commands"`
}

// CommandResult is the outcome for a set of devices.
type CommandResult struct {
	IDs       []string       `json:"ids"`
	Status    string         `json:"status"`
	States    map[string]any `json:"states,omitempty"`
	ErrorCode string         `json:"errorCode,omitempty"`
}

// deviceRequest is sent to the device over the tunnel.
type deviceRequest struct {
	Intent  string         `json:"intent"`
	Command string         `json:"command,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// deviceReply is what a device answers.
type deviceReply struct {
	Status string         `json:"status"`
	State  map[string]any `json:"state,omitempty"`
	Error  string         `json:"error,omitempty"`
}

const (
	replySuccess = "success"
	replyError   = "error"
)
