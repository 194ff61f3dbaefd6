package tunnel

import "errors"

// Errors returned by the tunnel. Check them with errors.Is:
//
//	if errors.Is(err, tunnel.ErrDeviceNotFound) {
//	    // device is offline
//	}
var (
	// ErrAlreadyConnected is returned when a device opens a second session
	// while its first one is still registered.
	ErrAlreadyConnected = errors.New("tunnel: device already connected")

	// ErrDeviceNotFound is returned when a command targets a device with no
	// active session.
	ErrDeviceNotFound = errors.New("tunnel: device not connected")

	// ErrRequestTimeout is returned when no reply arrives within the
	// request timeout.
	ErrRequestTimeout = errors.New("tunnel: request timed out")

	// ErrSessionClosed is returned when sending on a session that is not
	// active.
	ErrSessionClosed = errors.New("tunnel: session closed")

	// ErrConnectionClosed resolves every request still outstanding when a
	// session terminates.
	ErrConnectionClosed = errors.New("tunnel: connection closed")

	// ErrBusy is returned when a session already has the maximum number of
	// outstanding requests.
	ErrBusy = errors.New("tunnel: too many pending requests")
)
