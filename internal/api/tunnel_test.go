package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houseflow/lighthouse/internal/tunnel"
)

func TestTunnel_RejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "ada@example.com").AccessToken
	id, _ := env.createDevice(t, token, "Desk lamp")

	tests := []struct {
		name     string
		id, pass string
	}{
		{"wrong secret", id, "not-the-secret"},
		{"unknown device", "7d1c1c4e-0000-4000-8000-000000000000", "whatever"},
		{"malformed id", "lamp", "whatever"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := env.dialDevice(t, tt.id, tt.pass)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
	assert.Zero(t, env.hub.Registry().Count())
}

func TestTunnel_RequiresBasicAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/lighthouse/ws", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")
}

func TestTunnel_DuplicateConnectionRefused(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "ada@example.com").AccessToken
	id, secret := env.createDevice(t, token, "Desk lamp")

	first, _, err := env.dialDevice(t, id, secret)
	require.NoError(t, err)
	go echoDevice(first)
	require.Eventually(t, func() bool { return env.hub.IsConnected(tunnel.DeviceID(id)) }, 2*time.Second, 5*time.Millisecond)

	_, resp, err := env.dialDevice(t, id, secret)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The first session keeps working.
	var out commandResponse
	r := env.do(t, http.MethodPost, "/api/v1/devices/"+id+"/command", token, commandRequest{Payload: []byte("ping")}, &out)
	require.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, "ack:ping", string(out.Response))
}

func TestTunnel_ReconnectAfterClose(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "ada@example.com").AccessToken
	id, secret := env.createDevice(t, token, "Desk lamp")

	first, _, err := env.dialDevice(t, id, secret)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.hub.IsConnected(tunnel.DeviceID(id)) }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return !env.hub.IsConnected(tunnel.DeviceID(id)) }, 2*time.Second, 5*time.Millisecond)

	second, _, err := env.dialDevice(t, id, secret)
	require.NoError(t, err)
	go echoDevice(second)
	require.Eventually(t, func() bool { return env.hub.IsConnected(tunnel.DeviceID(id)) }, 2*time.Second, 5*time.Millisecond)
}

func TestTunnel_ServerCloseEndsSessions(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "ada@example.com").AccessToken
	id, secret := env.createDevice(t, token, "Desk lamp")

	conn, _, err := env.dialDevice(t, id, secret)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.hub.IsConnected(tunnel.DeviceID(id)) }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, env.srv.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return env.hub.Registry().Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}
