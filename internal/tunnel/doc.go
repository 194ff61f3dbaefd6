// Package tunnel keeps one long-lived connection per device and lets the
// rest of the hub send a command to a device and wait for its reply.
//
// A device connects, authenticates at the HTTP layer and is handed to
// Tunnel.Serve together with its Stream. Serve registers a Session for the
// device, runs its read and write loops, and unregisters it when the
// connection ends. Only one session per device is allowed; a second
// connection is refused with ErrAlreadyConnected.
//
// Commands carry no correlation id on the wire. Replies are matched to
// requests in the order the requests were written. A request that times out
// after being written leaves a placeholder so its late reply is discarded
// rather than handed to the next caller.
//
// # Usage
//
//	t := tunnel.New(tunnel.Options{RequestTimeout: 5 * time.Second})
//
//	// device side, after authentication and upgrade:
//	err := t.Serve(ctx, deviceID, tunnel.NewWebSocketStream(conn, opts))
//
//	// control side:
//	reply, err := t.Send(ctx, deviceID, payload, 0)
//	switch {
//	case errors.Is(err, tunnel.ErrDeviceNotFound):  // offline
//	case errors.Is(err, tunnel.ErrRequestTimeout):  // no reply in time
//	}
package tunnel
