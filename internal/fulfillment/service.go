package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/houseflow/lighthouse/internal/device"
	"github.com/houseflow/lighthouse/internal/tunnel"
)

// defaultConcurrency bounds devices contacted at once for one request.
const defaultConcurrency = 8

// Devices lists the devices a user owns. *device.Registry implements it.
type Devices interface {
	ListByUser(ctx context.Context, userID string) ([]device.Device, error)
}

// Sender delivers a payload to a connected device and returns its reply.
// *tunnel.Tunnel implements it.
type Sender interface {
	Send(ctx context.Context, id tunnel.DeviceID, payload []byte, timeout time.Duration) ([]byte, error)
}

// Logger is the logging interface used by Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Service.
type Options struct {
	// Timeout applies to each device round trip. Zero selects the tunnel
	// default.
	Timeout time.Duration

	// Concurrency bounds devices contacted in parallel.
	Concurrency int

	Logger Logger
}

// Service answers fulfillment intents.
type Service struct {
	devices Devices
	sender  Sender
	opts    Options
	logger  Logger
}

// NewService creates a fulfillment service.
func NewService(devices Devices, sender Sender, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{devices: devices, sender: sender, opts: opts, logger: logger}
}

// Handle dispatches the first input of req on behalf of userID.
func (s *Service) Handle(ctx context.Context, userID string, req *Request) (*Response, error) {
	if req == nil || len(req.Inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrInvalidRequest)
	}
	input := req.Inputs[0]

	var (
		payload any
		err     error
	)
	switch input.Intent {
	case IntentSync:
		payload, err = s.Sync(ctx, userID)
	case IntentQuery:
		var q QueryRequest
		if err = decodePayload(input.Payload, &q); err == nil {
			payload, err = s.Query(ctx, userID, q)
		}
	case IntentExecute:
		var e ExecuteRequest
		if err = decodePayload(input.Payload, &e); err == nil {
			payload, err = s.Execute(ctx, userID, e)
		}
	case IntentDisconnect:
		payload = struct{}{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, input.Intent)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug("fulfillment intent handled", "intent", input.Intent, "user_id", userID, "request_id", req.RequestID)
	return &Response{RequestID: req.RequestID, Payload: payload}, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidRequest)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Sync lists the user's devices.
func (s *Service) Sync(ctx context.Context, userID string) (*SyncPayload, error) {
	devices, err := s.devices.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	out := &SyncPayload{AgentUserID: userID, Devices: make([]SyncDevice, 0, len(devices))}
	for i := range devices {
		out.Devices = append(out.Devices, syncDevice(&devices[i]))
	}
	return out, nil
}

// Query asks every requested device for its state. Devices the user does
// not own are reported with ErrCodeDeviceNotFound and never contacted.
func (s *Service) Query(ctx context.Context, userID string, req QueryRequest) (*QueryPayload, error) {
	owned, err := s.owned(ctx, userID)
	if err != nil {
		return nil, err
	}

	states := make([]map[string]any, len(req.Devices))
	g := s.group()
	for i, ref := range req.Devices {
		if _, ok := owned[ref.ID]; !ok {
			states[i] = failedState(StatusError, ErrCodeDeviceNotFound)
			continue
		}
		g.Go(func() error {
			states[i] = s.queryDevice(ctx, ref.ID)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	out := &QueryPayload{Devices: make(map[string]map[string]any, len(req.Devices))}
	for i, ref := range req.Devices {
		out.Devices[ref.ID] = states[i]
	}
	return out, nil
}

func (s *Service) queryDevice(ctx context.Context, id string) map[string]any {
	reply, status, code := s.roundTrip(ctx, id, deviceRequest{Intent: "query"})
	if status != StatusSuccess {
		return failedState(status, code)
	}

	state := make(map[string]any, len(reply.State)+2)
	for k, v := range reply.State {
		state[k] = v
	}
	state["online"] = true
	state["status"] = StatusSuccess
	return state
}

func failedState(status, code string) map[string]any {
	return map[string]any{
		"online":    status != StatusOffline,
		"status":    status,
		"errorCode": code,
	}
}

// Execute runs each command's executions, in order, on each of its
// devices. A device stops at its first failed execution.
func (s *Service) Execute(ctx context.Context, userID string, req ExecuteRequest) (*ExecutePayload, error) {
	owned, err := s.owned(ctx, userID)
	if err != nil {
		return nil, err
	}

	type target struct {
		id        string
		execution []Execution
	}
	var targets []target
	for _, cmd := range req.Commands {
		for _, ref := range cmd.Devices {
			targets = append(targets, target{id: ref.ID, execution: cmd.Execution})
		}
	}

	results := make([]CommandResult, len(targets))
	g := s.group()
	for i, t := range targets {
		if _, ok := owned[t.id]; !ok {
			results[i] = CommandResult{IDs: []string{t.id}, Status: StatusError, ErrorCode: ErrCodeDeviceNotFound}
			continue
		}
		g.Go(func() error {
			results[i] = s.executeDevice(ctx, t.id, t.execution)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	return &ExecutePayload{Commands: results}, nil
}

func (s *Service) executeDevice(ctx context.Context, id string, execution []Execution) CommandResult {
	result := CommandResult{IDs: []string{id}, Status: StatusSuccess}
	for _, ex := range execution {
		reply, status, code := s.roundTrip(ctx, id, deviceRequest{
			Intent:  "execute",
			Command: ex.Command,
			Params:  ex.Params,
		})
		if status != StatusSuccess {
			result.Status = status
			result.ErrorCode = code
			result.States = nil
			return result
		}
		if len(reply.State) > 0 {
			result.States = reply.State
		}
	}
	if result.States == nil {
		result.States = map[string]any{}
	}
	result.States["online"] = true
	return result
}

// roundTrip sends req to the device and classifies the outcome.
func (s *Service) roundTrip(ctx context.Context, id string, req deviceRequest) (*deviceReply, string, string) {
	body, err := json.Marshal(req)
	if err != nil {
		s.logger.Error("encoding device request", "device_id", id, "error", err)
		return nil, StatusError, ErrCodeTransient
	}

	raw, err := s.sender.Send(ctx, tunnel.DeviceID(id), body, s.opts.Timeout)
	if err != nil {
		status, code := classify(err)
		s.logger.Debug("device round trip failed", "device_id", id, "intent", req.Intent, "error", err)
		return nil, status, code
	}

	var reply deviceReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		s.logger.Warn("malformed device reply", "device_id", id, "error", err)
		return nil, StatusError, ErrCodeTransient
	}
	switch reply.Status {
	case replySuccess:
		return &reply, StatusSuccess, ""
	case replyError:
		if reply.Error == "" {
			return nil, StatusError, ErrCodeTransient
		}
		return nil, StatusError, reply.Error
	default:
		s.logger.Warn("unknown device reply status", "device_id", id, "status", reply.Status)
		return nil, StatusError, ErrCodeTransient
	}
}

func classify(err error) (string, string) {
	switch {
	case errors.Is(err, tunnel.ErrDeviceNotFound):
		return StatusOffline, ErrCodeDeviceOffline
	case errors.Is(err, tunnel.ErrRequestTimeout):
		return StatusError, ErrCodeTimeout
	default:
		return StatusError, ErrCodeTransient
	}
}

func (s *Service) owned(ctx context.Context, userID string) (map[string]struct{}, error) {
	devices, err := s.devices.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	ids := make(map[string]struct{}, len(devices))
	for i := range devices {
		ids[devices[i].ID] = struct{}{}
	}
	return ids, nil
}

func (s *Service) group() *errgroup.Group {
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	return g
}
