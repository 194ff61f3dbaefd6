package tunnel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultRequestTimeout bounds how long a command waits for its reply.
	DefaultRequestTimeout = 5 * time.Second

	// DefaultMaxPending bounds queued plus in-flight requests per session.
	DefaultMaxPending = 32
)

// result is the outcome delivered to a waiting Submit call.
type result struct {
	payload []byte
	err     error
}

// pendingRequest is one outstanding command.
//
// resolved and abandoned are guarded by Engine.mu. result is buffered so the
// resolver never blocks on a waiter that already left.
type pendingRequest struct {
	seq       uint64
	payload   []byte
	result    chan result
	resolved  bool
	abandoned bool
}

// EngineStats is a snapshot of correlation counters.
type EngineStats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Abandoned uint64 `json:"abandoned"`
	Rejected  uint64 `json:"rejected"`
	Discarded uint64 `json:"discarded"`
	Pending   int    `json:"pending"`
}

// Engine correlates requests written to a device with the replies read back.
//
// The device protocol carries no correlation id, so replies are matched in
// FIFO order: the Nth inbound message answers the Nth written request.
// A request abandoned after it was written stays in the in-flight queue as a
// tombstone so its late reply is consumed and dropped instead of being handed
// to the next waiter.
//
// Thread Safety:
//   - Submit may be called from any number of goroutines.
//   - next must only be called by the single writer.
//   - deliver must only be called by the single reader.
type Engine struct {
	defaultTimeout time.Duration
	maxPending     int

	mu       sync.Mutex
	nextSeq  uint64
	outbox   []*pendingRequest // submitted, not yet written
	inflight []*pendingRequest // written, awaiting reply in write order
	closed   bool

	wake chan struct{}
	done chan struct{}

	submitted atomic.Uint64
	completed atomic.Uint64
	abandoned atomic.Uint64
	rejected  atomic.Uint64
	discarded atomic.Uint64
}

// NewEngine creates a correlation engine.
// Non-positive arguments select DefaultRequestTimeout and DefaultMaxPending.
func NewEngine(defaultTimeout time.Duration, maxPending int) *Engine {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultRequestTimeout
	}
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Engine{
		defaultTimeout: defaultTimeout,
		maxPending:     maxPending,
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
}

// Submit queues payload for the device and waits for the matching reply.
//
// A non-positive timeout selects the engine default. Submit returns
// ErrRequestTimeout when the timeout elapses, ctx.Err() when ctx ends first,
// ErrBusy when the outstanding limit is reached and ErrConnectionClosed when
// the engine is closed before a reply arrives.
func (e *Engine) Submit(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	if e.liveLocked() >= e.maxPending {
		e.mu.Unlock()
		e.rejected.Add(1)
		return nil, ErrBusy
	}
	e.nextSeq++
	p := &pendingRequest{
		seq:     e.nextSeq,
		payload: append([]byte(nil), payload...),
		result:  make(chan result, 1),
	}
	e.outbox = append(e.outbox, p)
	e.mu.Unlock()

	e.submitted.Add(1)
	e.signal()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-p.result:
		return r.payload, r.err
	case <-timer.C:
		return e.abandon(p, ErrRequestTimeout)
	case <-ctx.Done():
		return e.abandon(p, ctx.Err())
	}
}

// abandon withdraws p after its waiter gave up. If the reply or the close
// already won the race, that outcome is returned instead of cause.
func (e *Engine) abandon(p *pendingRequest, cause error) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.resolved {
		r := <-p.result
		return r.payload, r.err
	}

	p.resolved = true
	p.abandoned = true
	e.abandoned.Add(1)

	// Never written: drop it so the device never sees it.
	for i, q := range e.outbox {
		if q == p {
			e.outbox = append(e.outbox[:i], e.outbox[i+1:]...)
			return nil, cause
		}
	}

	// Written: leave it in place as a tombstone.
	return nil, cause
}

// liveLocked counts requests that still have a waiter. Tombstones do not
// count against the limit. Callers must hold e.mu.
func (e *Engine) liveLocked() int {
	n := len(e.outbox)
	for _, p := range e.inflight {
		if !p.abandoned {
			n++
		}
	}
	return n
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// next blocks until a request is ready to be written and moves it to the
// in-flight queue. The move happens before the write so a fast reply can
// never arrive ahead of its request.
func (e *Engine) next(ctx context.Context) (*pendingRequest, error) {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, ErrConnectionClosed
		}
		if len(e.outbox) > 0 {
			p := e.outbox[0]
			e.outbox[0] = nil
			e.outbox = e.outbox[1:]
			e.inflight = append(e.inflight, p)
			e.mu.Unlock()
			return p, nil
		}
		e.mu.Unlock()

		select {
		case <-e.wake:
		case <-e.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// deliver hands an inbound message to the oldest in-flight request.
// It reports false when the message was dropped: either nothing was in
// flight or the head request had already been abandoned.
func (e *Engine) deliver(payload []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.inflight) == 0 {
		e.discarded.Add(1)
		return false
	}

	p := e.inflight[0]
	e.inflight[0] = nil
	e.inflight = e.inflight[1:]

	if p.abandoned {
		e.discarded.Add(1)
		return false
	}

	p.resolved = true
	p.result <- result{payload: payload}
	e.completed.Add(1)
	return true
}

// Close fails every outstanding request with ErrConnectionClosed, oldest
// first, and rejects further submissions. Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	close(e.done)

	// In-flight requests were all submitted before anything still queued.
	for _, queue := range [][]*pendingRequest{e.inflight, e.outbox} {
		for _, p := range queue {
			if p.resolved {
				continue
			}
			p.resolved = true
			p.result <- result{err: ErrConnectionClosed}
		}
	}
	e.inflight = nil
	e.outbox = nil
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	pending := e.liveLocked()
	e.mu.Unlock()

	return EngineStats{
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Abandoned: e.abandoned.Load(),
		Rejected:  e.rejected.Load(),
		Discarded: e.discarded.Load(),
		Pending:   pending,
	}
}
