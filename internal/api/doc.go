// Package api provides the hub's HTTP control plane and the device tunnel
// endpoint.
//
// Users register, log in and manage their devices under /api/v1. Devices
// connect to the tunnel path (default /lighthouse/ws) with HTTP Basic
// credentials, are upgraded to a WebSocket and handed to the tunnel.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
