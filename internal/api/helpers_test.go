package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/houseflow/lighthouse/internal/auth"
	"github.com/houseflow/lighthouse/internal/device"
	"github.com/houseflow/lighthouse/internal/infrastructure/config"
	"github.com/houseflow/lighthouse/internal/infrastructure/database"
	"github.com/houseflow/lighthouse/internal/infrastructure/logging"
	"github.com/houseflow/lighthouse/internal/tunnel"
	_ "github.com/houseflow/lighthouse/migrations" // registers the schema
)

type testEnv struct {
	srv     *Server
	ts      *httptest.Server
	hub     *tunnel.Tunnel
	devices *device.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, db.Migrate(t.Context()))

	issuer := auth.NewTokenIssuer("access-secret-for-api-tests-0123456789", "refresh-secret-for-api-tests-0123456789", 0, 0)
	authSvc := auth.NewService(auth.NewUserRepository(db.DB), auth.NewTokenStore(db.DB), issuer)

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	hub := tunnel.New(tunnel.Options{RequestTimeout: 2 * time.Second})

	srv, err := New(Deps{
		Tunnel:     config.TunnelConfig{Path: "/lighthouse/ws", MaxMessageSize: 64 * 1024},
		Logger:     logging.Discard(),
		Auth:       authSvc,
		Devices:    registry,
		DeviceAuth: device.NewAuthenticator(registry),
		Hub:        hub,
		Checks:     map[string]HealthChecker{"database": db},
		DB:         db,
		Version:    "test",
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // test cleanup

	return &testEnv{srv: srv, ts: ts, hub: hub, devices: registry}
}

// do sends a JSON request and decodes the JSON response into out, if given.
func (e *testEnv) do(t *testing.T, method, path, token string, body, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, e.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// login registers a user and returns its token pair.
func (e *testEnv) login(t *testing.T, email string) auth.TokenPair {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Username: strings.Split(email, "@")[0],
		Email:    email,
		Password: "correct-horse-battery",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var pair auth.TokenPair
	resp = e.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email:    email,
		Password: "correct-horse-battery",
	}, &pair)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return pair
}

// createDevice registers a device and returns its ID and secret.
func (e *testEnv) createDevice(t *testing.T, token, name string) (string, string) {
	t.Helper()

	var out createDeviceResponse
	resp := e.do(t, http.MethodPost, "/api/v1/devices", token, createDeviceRequest{
		Name:   name,
		Type:   device.TypeLight,
		Traits: []device.Trait{device.TraitOnOff},
		Room:   "Office",
	}, &out)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return out.Device.ID, out.Password
}

// dialDevice opens the tunnel as a device. The returned response is set
// when the handshake was refused.
func (e *testEnv) dialDevice(t *testing.T, id, password string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(id+":"+password)))
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/lighthouse/ws"

	conn, resp, err := websocket.DefaultDialer.DialContext(t.Context(), url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { conn.Close() }) //nolint:errcheck // test cleanup
	}
	return conn, resp, err
}

// echoDevice answers every message with "ack:" followed by the message.
func echoDevice(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, append([]byte("ack:"), msg...)); err != nil {
			return
		}
	}
}
