package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/houseflow/lighthouse/internal/device"
	"github.com/houseflow/lighthouse/internal/tunnel"
)

// upgrader configures the tunnel WebSocket upgrader. Devices are not
// browsers, so any Origin is accepted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleTunnel authenticates a device with HTTP Basic credentials,
// upgrades the connection and serves the tunnel session until it ends.
func (s *Server) handleTunnel(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="lighthouse"`)
		writeUnauthorized(w, "device credentials required")
		return
	}

	id, err := s.deviceAuth.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, device.ErrInvalidCredentials) {
			s.logger.Info("device authentication failed", "device_id", username, "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="lighthouse"`)
			writeUnauthorized(w, "invalid device credentials")
			return
		}
		s.logger.Error("authenticating device", "device_id", username, "error", err)
		writeInternalError(w, "failed to authenticate device")
		return
	}

	// Fast path; Serve still enforces first-writer-wins after the upgrade.
	if s.hub.IsConnected(id) {
		writeConflict(w, "device already connected")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("tunnel upgrade failed", "device_id", id, "error", err)
		return
	}

	stream := tunnel.NewWebSocketStream(conn, tunnel.WebSocketOptions{
		MaxMessageSize: int64(s.tunnelCfg.MaxMessageSize),
		PingInterval:   time.Duration(s.tunnelCfg.PingInterval) * time.Second,
		PongTimeout:    time.Duration(s.tunnelCfg.PongTimeout) * time.Second,
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.logger.Info("device tunnel opened", "device_id", id, "remote", r.RemoteAddr)
	if err := s.hub.Serve(ctx, id, stream); err != nil {
		s.logger.Info("device tunnel ended", "device_id", id, "error", err)
		return
	}
	s.logger.Info("device tunnel ended", "device_id", id)
}
