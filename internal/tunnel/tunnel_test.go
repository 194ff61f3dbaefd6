package tunnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveAsync runs Serve in the background and returns its result channel.
func serveAsync(ctx context.Context, tun *Tunnel, id DeviceID, p *pipeStream) <-chan error {
	done := make(chan error, 1)
	go func() { done <- tun.Serve(ctx, id, p) }()
	return done
}

func awaitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func connect(t *testing.T, tun *Tunnel, id DeviceID, reply func([]byte) []byte) (*pipeStream, <-chan error) {
	t.Helper()
	p := newPipe()
	runDevice(p, reply)
	done := serveAsync(context.Background(), tun, id, p)
	require.Eventually(t, func() bool { return tun.IsConnected(id) }, time.Second, time.Millisecond)
	return p, done
}

func TestTunnel_SendUnknownDevice(t *testing.T) {
	tun := New(Options{})

	_, err := tun.Send(context.Background(), "ghost", []byte("ping"), 0)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestTunnel_SendAndReceive(t *testing.T) {
	tun := New(Options{})
	p, done := connect(t, tun, "lamp", echo)

	resp, err := tun.Send(context.Background(), "lamp", []byte("on"), 0)
	require.NoError(t, err)
	assert.Equal(t, "re:on", string(resp))

	sess, ok := tun.Registry().Lookup("lamp")
	require.True(t, ok)
	assert.Equal(t, StateActive, sess.State())
	assert.Equal(t, DeviceID("lamp"), sess.DeviceID())
	assert.Equal(t, uint64(1), sess.Stats().Completed)

	p.hangup(errors.New("device reset"))
	err = awaitServe(t, done)
	assert.Error(t, err)
	assert.False(t, tun.IsConnected("lamp"))
}

func TestTunnel_SecondConnectionRejected(t *testing.T) {
	tun := New(Options{})
	first, done := connect(t, tun, "lamp", echo)

	second := newPipe()
	err := tun.Serve(context.Background(), "lamp", second)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
	assert.True(t, second.isClosed())
	assert.Equal(t, "already connected", second.rejectReason())

	// The original session is untouched.
	resp, err := tun.Send(context.Background(), "lamp", []byte("still-there"), 0)
	require.NoError(t, err)
	assert.Equal(t, "re:still-there", string(resp))
	assert.False(t, first.isClosed())

	first.hangup(nil)
	awaitServe(t, done)
}

func TestTunnel_ReconnectAfterDisconnect(t *testing.T) {
	tun := New(Options{})
	first, done := connect(t, tun, "lamp", echo)
	first.hangup(errors.New("gone"))
	awaitServe(t, done)

	second, done2 := connect(t, tun, "lamp", echo)
	resp, err := tun.Send(context.Background(), "lamp", []byte("again"), 0)
	require.NoError(t, err)
	assert.Equal(t, "re:again", string(resp))

	second.hangup(nil)
	awaitServe(t, done2)
}

func TestTunnel_DisconnectFailsPendingRequests(t *testing.T) {
	tun := New(Options{RequestTimeout: 5 * time.Second})
	// The device reads requests but never answers.
	p, done := connect(t, tun, "mute", func([]byte) []byte { return nil })

	sess, ok := tun.Registry().Lookup("mute")
	require.True(t, ok)

	errs := make(chan error, 3)
	for i := range 3 {
		go func() {
			_, err := tun.Send(context.Background(), "mute", []byte(fmt.Sprint(i)), 0)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return sess.Stats().Pending == 3 }, time.Second, time.Millisecond)

	readErr := errors.New("connection reset")
	p.hangup(readErr)

	for range 3 {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrConnectionClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("pending send did not resolve")
		}
	}

	err := awaitServe(t, done)
	assert.ErrorIs(t, err, readErr)
	assert.ErrorIs(t, sess.Err(), readErr)
	assert.Equal(t, StateClosed, sess.State())

	// A stale reference to the closed session refuses new work.
	_, err = sess.Send(context.Background(), []byte("late"), 0)
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = tun.Send(context.Background(), "mute", []byte("late"), 0)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestTunnel_ConcurrentSendsMatchReplies(t *testing.T) {
	tun := New(Options{MaxPending: 64})
	p, done := connect(t, tun, "sensor", echo)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload := fmt.Sprintf("cmd-%d", i)
			resp, err := tun.Send(context.Background(), "sensor", []byte(payload), 0)
			if assert.NoError(t, err) {
				assert.Equal(t, "re:"+payload, string(resp))
			}
		}()
	}
	wg.Wait()

	p.hangup(nil)
	awaitServe(t, done)
}

func TestTunnel_LateReplyGoesToNoOne(t *testing.T) {
	tun := New(Options{})
	release := make(chan struct{})
	p, done := connect(t, tun, "slowpoke", func(req []byte) []byte {
		if string(req) == "slow" {
			<-release
		}
		return echo(req)
	})

	_, err := tun.Send(context.Background(), "slowpoke", []byte("slow"), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrRequestTimeout)

	fast := make(chan outcome, 1)
	go func() {
		resp, err := tun.Send(context.Background(), "slowpoke", []byte("fast"), time.Second)
		fast <- outcome{resp, err}
	}()
	close(release)

	o := await(t, fast)
	require.NoError(t, o.err)
	assert.Equal(t, "re:fast", string(o.resp))

	p.hangup(nil)
	awaitServe(t, done)
}

func TestTunnel_ContextCancelEndsSession(t *testing.T) {
	tun := New(Options{})
	p := newPipe()
	runDevice(p, echo)

	ctx, cancel := context.WithCancel(context.Background())
	done := serveAsync(ctx, tun, "lamp", p)
	require.Eventually(t, func() bool { return tun.IsConnected("lamp") }, time.Second, time.Millisecond)

	cancel()
	assert.NoError(t, awaitServe(t, done))
	assert.True(t, p.isClosed())
	assert.False(t, tun.IsConnected("lamp"))
}

func TestTunnel_Disconnect(t *testing.T) {
	tun := New(Options{})
	p, done := connect(t, tun, "lamp", echo)

	assert.True(t, tun.Disconnect("lamp"))
	assert.NoError(t, awaitServe(t, done))
	assert.True(t, p.isClosed())
	assert.False(t, tun.Disconnect("lamp"))
}

func TestTunnel_Shutdown(t *testing.T) {
	tun := New(Options{})
	_, done1 := connect(t, tun, "a", echo)
	_, done2 := connect(t, tun, "b", echo)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tun.Shutdown(ctx))

	assert.NoError(t, awaitServe(t, done1))
	assert.NoError(t, awaitServe(t, done2))
	assert.Zero(t, tun.Registry().Count())
}

type recordingObserver struct {
	mu   sync.Mutex
	errs []error
}

func (o *recordingObserver) CommandCompleted(_ DeviceID, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func TestTunnel_ObserverSeesEveryCommand(t *testing.T) {
	obs := &recordingObserver{}
	tun := New(Options{})
	tun.AddObserver(obs)

	p, done := connect(t, tun, "lamp", echo)
	_, err := tun.Send(context.Background(), "lamp", []byte("on"), 0)
	require.NoError(t, err)
	_, err = tun.Send(context.Background(), "ghost", []byte("on"), 0)
	require.ErrorIs(t, err, ErrDeviceNotFound)

	obs.mu.Lock()
	got := append([]error(nil), obs.errs...)
	obs.mu.Unlock()

	require.Len(t, got, 2)
	assert.NoError(t, got[0])
	assert.ErrorIs(t, got[1], ErrDeviceNotFound)

	p.hangup(nil)
	awaitServe(t, done)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
