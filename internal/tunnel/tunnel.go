package tunnel

import (
	"context"
	"errors"
	"time"
)

// rejectReason is sent to a device refused because it is already connected.
const rejectReason = "already connected"

// CommandObserver is notified after every command sent through a Tunnel.
type CommandObserver interface {
	CommandCompleted(id DeviceID, latency time.Duration, err error)
}

// Options configures a Tunnel.
type Options struct {
	// RequestTimeout is the default wait for a device reply.
	RequestTimeout time.Duration

	// MaxPending bounds outstanding commands per device.
	MaxPending int

	Logger Logger
}

// Tunnel accepts device connections and routes commands to them.
//
// All public methods are thread-safe.
type Tunnel struct {
	registry  *Registry
	opts      Options
	logger    Logger
	observers []CommandObserver
}

// New creates a Tunnel with an empty registry.
func New(opts Options) *Tunnel {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultMaxPending
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Tunnel{
		registry: NewRegistry(),
		opts:     opts,
		logger:   logger,
	}
}

// Registry returns the session registry.
func (t *Tunnel) Registry() *Registry { return t.registry }

// RequestTimeout returns the default command timeout.
func (t *Tunnel) RequestTimeout() time.Duration { return t.opts.RequestTimeout }

// AddObserver registers o for command notifications. Call before serving.
func (t *Tunnel) AddObserver(o CommandObserver) {
	t.observers = append(t.observers, o)
}

// Serve runs a session for an authenticated device until the connection
// ends, ctx is cancelled or the session is closed.
//
// If the device already has a session, stream is rejected and closed and
// ErrAlreadyConnected is returned. Otherwise Serve returns the error that
// ended the session, or nil for a clean close.
func (t *Tunnel) Serve(ctx context.Context, id DeviceID, stream Stream) error {
	engine := NewEngine(t.opts.RequestTimeout, t.opts.MaxPending)
	sess := newSession(id, stream, engine, t.logger)

	if err := t.registry.Register(sess); err != nil {
		t.refuse(sess, err)
		return err
	}

	t.logger.Info("device connected", "device_id", id)

	err := sess.run(ctx)
	t.registry.Remove(sess)

	if err != nil {
		t.logger.Warn("device disconnected", "device_id", id, "error", err,
			"duration", time.Since(sess.connectedAt).String())
	} else {
		t.logger.Info("device disconnected", "device_id", id,
			"duration", time.Since(sess.connectedAt).String())
	}
	return err
}

// refuse closes a stream whose session could not be registered.
func (t *Tunnel) refuse(sess *Session, cause error) {
	var err error
	if r, ok := sess.stream.(Rejecter); ok && errors.Is(cause, ErrAlreadyConnected) {
		err = r.Reject(rejectReason)
	} else {
		err = sess.stream.Close()
	}
	if err != nil {
		t.logger.Debug("closing refused stream", "device_id", sess.id, "error", err)
	}
	sess.finish(cause)
	t.logger.Warn("device connection refused", "device_id", sess.id, "error", cause)
}

// Send routes payload to the device and waits for its reply.
// It returns ErrDeviceNotFound when the device has no active session.
func (t *Tunnel) Send(ctx context.Context, id DeviceID, payload []byte, timeout time.Duration) ([]byte, error) {
	start := time.Now()

	sess, ok := t.registry.Lookup(id)
	if !ok {
		t.notify(id, 0, ErrDeviceNotFound)
		return nil, ErrDeviceNotFound
	}

	resp, err := sess.Send(ctx, payload, timeout)
	t.notify(id, time.Since(start), err)
	if err != nil {
		t.logger.Debug("device command failed", "device_id", id, "error", err)
	}
	return resp, err
}

func (t *Tunnel) notify(id DeviceID, latency time.Duration, err error) {
	for _, o := range t.observers {
		o.CommandCompleted(id, latency, err)
	}
}

// IsConnected reports whether the device has an active session.
func (t *Tunnel) IsConnected(id DeviceID) bool {
	_, ok := t.registry.Lookup(id)
	return ok
}

// Disconnect closes the device's session, if any, and reports whether one
// was found. It does not wait for the session to finish.
func (t *Tunnel) Disconnect(id DeviceID) bool {
	sess, ok := t.registry.Lookup(id)
	if ok {
		sess.Close()
	}
	return ok
}

// Shutdown closes every active session and waits until they have finished
// or ctx ends.
func (t *Tunnel) Shutdown(ctx context.Context) error {
	sessions := t.registry.List()
	for _, s := range sessions {
		s.Close()
	}
	for _, s := range sessions {
		select {
		case <-s.Closed():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
