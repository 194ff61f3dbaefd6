package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DeviceID identifies a device. It is the username presented when the
// device authenticates its tunnel.
type DeviceID string

// State is the lifecycle state of a Session.
type State int32

// Session states. A session only moves forward: Connecting, Active, Closed.
const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session is one device's live connection to the hub.
type Session struct {
	id          DeviceID
	stream      Stream
	engine      *Engine
	logger      Logger
	connectedAt time.Time

	state atomic.Int32

	shutdown     chan struct{}
	shutdownOnce sync.Once

	closed chan struct{}
	err    error // written once before closed is closed
}

func newSession(id DeviceID, stream Stream, engine *Engine, logger Logger) *Session {
	return &Session{
		id:          id,
		stream:      stream,
		engine:      engine,
		logger:      logger,
		connectedAt: time.Now(),
		shutdown:    make(chan struct{}),
		closed:      make(chan struct{}),
	}
}

// DeviceID returns the identity of the connected device.
func (s *Session) DeviceID() DeviceID { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// ConnectedAt returns when the device connected.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Stats returns the correlation counters for this session.
func (s *Session) Stats() EngineStats { return s.engine.Stats() }

// Closed returns a channel that is closed once the session reaches
// StateClosed.
func (s *Session) Closed() <-chan struct{} { return s.closed }

// Err returns the error that ended the session. It is only meaningful after
// Closed is closed and is nil for a clean shutdown.
func (s *Session) Err() error {
	select {
	case <-s.closed:
		return s.err
	default:
		return nil
	}
}

// Send writes payload to the device and waits for its reply.
// A non-positive timeout selects the hub default.
func (s *Session) Send(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	if s.State() != StateActive {
		return nil, ErrSessionClosed
	}
	return s.engine.Submit(ctx, payload, timeout)
}

// Close asks the session to shut down. It does not wait; use Closed.
func (s *Session) Close() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// activate moves a connecting session to active.
func (s *Session) activate() bool {
	return s.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
}

// finish moves the session to closed and releases every waiter.
func (s *Session) finish(err error) {
	s.engine.Close()
	s.state.Store(int32(StateClosed))
	s.err = err
	close(s.closed)
}

// run drives the read and write loops until either fails, the context ends
// or Close is called, then moves the session to closed. It returns nil when
// the session ended because of a clean close or local shutdown.
func (s *Session) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(s.readLoop)
	g.Go(func() error { return s.writeLoop(gctx) })

	// Closing the stream is the only way to unblock a pending read.
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.shutdown:
		}
		if err := s.stream.Close(); err != nil {
			s.logger.Debug("closing device stream", "device_id", s.id, "error", err)
		}
		return nil
	})

	err := g.Wait()
	if s.shutdownRequested() || ctx.Err() != nil || errors.Is(err, io.EOF) {
		err = nil
	}

	s.finish(err)
	return err
}

func (s *Session) shutdownRequested() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

func (s *Session) readLoop() error {
	for {
		msg, err := s.stream.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading from device: %w", err)
		}
		if !s.engine.deliver(msg) {
			s.logger.Debug("discarding unmatched device message", "device_id", s.id, "bytes", len(msg))
		}
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		req, err := s.engine.next(ctx)
		if err != nil {
			return err
		}
		if err := s.stream.WriteMessage(req.payload); err != nil {
			return fmt.Errorf("writing request %d to device: %w", req.seq, err)
		}
	}
}
