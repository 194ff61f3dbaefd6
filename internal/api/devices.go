package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/houseflow/lighthouse/internal/auth"
	"github.com/houseflow/lighthouse/internal/device"
	"github.com/houseflow/lighthouse/internal/tunnel"
)

// maxCommandTimeout caps the timeout a caller may request for one command.
const maxCommandTimeout = 60 * time.Second

// deviceView is a device as returned by the API.
type deviceView struct {
	*device.Device
	Online  bool         `json:"online"`
	Session *sessionView `json:"session,omitempty"`
}

// sessionView describes a device's live tunnel session.
type sessionView struct {
	State       string             `json:"state"`
	ConnectedAt time.Time          `json:"connected_at"`
	Stats       tunnel.EngineStats `json:"stats"`
}

// createDeviceRequest is the request body for POST /devices.
type createDeviceRequest struct {
	Name   string         `json:"name"`
	Type   device.Type    `json:"type"`
	Traits []device.Trait `json:"traits"`
	Room   string         `json:"room"`
}

// createDeviceResponse carries the device secret. It is shown only once.
type createDeviceResponse struct {
	Device   *device.Device `json:"device"`
	Password string         `json:"password"`
}

// commandRequest is the request body for POST /devices/{id}/command.
// Payload is base64 in JSON and reaches the device unchanged.
type commandRequest struct {
	Payload   []byte `json:"payload"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// commandResponse carries the device reply, base64 in JSON.
type commandResponse struct {
	Response  []byte `json:"response"`
	LatencyMs int64  `json:"latency_ms"`
}

// handleListDevices returns the caller's devices.
//
// Query parameters:
//   - room: only devices in this room
//   - online: "true" or "false" to filter by tunnel presence
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.ListByUser(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	room := r.URL.Query().Get("room")
	online := r.URL.Query().Get("online")

	out := make([]deviceView, 0, len(devices))
	for i := range devices {
		view := s.view(&devices[i], false)
		if room != "" && devices[i].Room != room {
			continue
		}
		if online != "" && (online == "true") != view.Online {
			continue
		}
		out = append(out, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleCreateDevice registers a device for the caller and returns its
// generated secret.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	secret, err := device.GenerateSecret()
	if err != nil {
		s.logger.Error("generating device secret", "error", err)
		writeInternalError(w, "failed to create device")
		return
	}
	hash, err := auth.HashPassword(secret)
	if err != nil {
		s.logger.Error("hashing device secret", "error", err)
		writeInternalError(w, "failed to create device")
		return
	}

	dev := &device.Device{
		UserID:       userIDFromContext(r.Context()),
		Name:         req.Name,
		Type:         req.Type,
		Traits:       req.Traits,
		Room:         req.Room,
		PasswordHash: hash,
	}
	if dev.Traits == nil {
		dev.Traits = []device.Trait{}
	}

	if err := s.devices.CreateDevice(r.Context(), dev); err != nil {
		switch {
		case isValidationError(err):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, device.ErrDeviceExists):
			writeConflict(w, "device already exists")
		case errors.Is(err, device.ErrOwnerNotFound):
			writeUnauthorized(w, "account no longer exists")
		default:
			s.logger.Error("creating device", "error", err)
			writeInternalError(w, "failed to create device")
		}
		return
	}

	writeJSON(w, http.StatusCreated, createDeviceResponse{Device: dev, Password: secret})
}

// handleGetDevice returns one of the caller's devices with its session.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.view(dev, true))
}

// handleDeleteDevice removes a device and drops its tunnel session.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}

	if err := s.devices.DeleteDevice(r.Context(), dev.ID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("deleting device", "device_id", dev.ID, "error", err)
		writeInternalError(w, "failed to delete device")
		return
	}

	if s.hub.Disconnect(tunnel.DeviceID(dev.ID)) {
		s.logger.Info("closed session of deleted device", "device_id", dev.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceCommand sends a payload to a connected device and returns its
// reply.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.ownedDevice(w, r)
	if !ok {
		return
	}

	var req commandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout < 0 || timeout > maxCommandTimeout {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "timeout_ms must be between 0 and 60000")
		return
	}

	start := time.Now()
	reply, err := s.hub.Send(r.Context(), tunnel.DeviceID(dev.ID), req.Payload, timeout)
	if err != nil {
		s.writeSendError(w, dev.ID, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Response:  reply,
		LatencyMs: time.Since(start).Milliseconds(),
	})
}

func (s *Server) writeSendError(w http.ResponseWriter, deviceID string, err error) {
	switch {
	case errors.Is(err, tunnel.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, ErrCodeDeviceOffline, "device is not connected")
	case errors.Is(err, tunnel.ErrRequestTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not reply in time")
	case errors.Is(err, tunnel.ErrSessionClosed), errors.Is(err, tunnel.ErrConnectionClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeConnectionClosed, "device connection closed")
	case errors.Is(err, tunnel.ErrBusy):
		writeError(w, http.StatusTooManyRequests, ErrCodeTooManyRequests, "too many commands pending for device")
	default:
		s.logger.Warn("device command failed", "device_id", deviceID, "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "command failed")
	}
}

// ownedDevice loads the {id} device and checks the caller owns it, writing
// the error response when it does not.
func (s *Server) ownedDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		s.logger.Error("loading device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return nil, false
	}

	if dev.UserID != userIDFromContext(r.Context()) {
		writeForbidden(w, "device belongs to another user")
		return nil, false
	}
	return dev, true
}

func (s *Server) view(dev *device.Device, withSession bool) deviceView {
	sess, ok := s.hub.Registry().Lookup(tunnel.DeviceID(dev.ID))
	v := deviceView{Device: dev, Online: ok}
	if ok && withSession {
		v.Session = &sessionView{
			State:       sess.State().String(),
			ConnectedAt: sess.ConnectedAt(),
			Stats:       sess.Stats(),
		}
	}
	return v
}

// isValidationError checks whether an error is a device validation error.
func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidName) ||
		errors.Is(err, device.ErrInvalidType) ||
		errors.Is(err, device.ErrInvalidTrait)
}
