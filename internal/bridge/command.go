package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/houseflow/lighthouse/internal/infrastructure/mqtt"
	"github.com/houseflow/lighthouse/internal/tunnel"
)

// defaultMaxInflight bounds concurrently forwarded MQTT commands.
const defaultMaxInflight = 64

// Subscriber is the subscribing half of an MQTT client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Sender sends a command to a connected device and waits for its reply.
// *tunnel.Tunnel implements it.
type Sender interface {
	Send(ctx context.Context, id tunnel.DeviceID, payload []byte, timeout time.Duration) ([]byte, error)
}

// Response is published on the response topic for every command.
// Payload is base64 in JSON.
type Response struct {
	OK      bool   `json:"ok"`
	Payload []byte `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CommandBridgeOptions configures a CommandBridge.
type CommandBridgeOptions struct {
	Topics mqtt.Topics
	QoS    byte

	// Timeout is passed to Sender.Send; zero selects the tunnel default.
	Timeout time.Duration

	// MaxInflight bounds concurrent commands. Extra commands are answered
	// immediately with OutcomeBusy.
	MaxInflight int64

	Logger Logger
}

// CommandBridge forwards commands received on
// {prefix}/command/{device_id}/{request_id} to the device and publishes the
// outcome on {prefix}/response/{device_id}/{request_id}. The MQTT message
// body is the device payload, unchanged.
type CommandBridge struct {
	sub    Subscriber
	pub    Publisher
	sender Sender
	opts   CommandBridgeOptions
	logger Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCommandBridge creates a bridge. It does nothing until Start.
func NewCommandBridge(sub Subscriber, pub Publisher, sender Sender, opts CommandBridgeOptions) *CommandBridge {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = defaultMaxInflight
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &CommandBridge{
		sub:    sub,
		pub:    pub,
		sender: sender,
		opts:   opts,
		logger: logger,
		sem:    semaphore.NewWeighted(opts.MaxInflight),
	}
}

// Start subscribes to the command topics. Commands in flight are bound to
// ctx and cancelled with it.
func (b *CommandBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	if err := b.sub.Subscribe(b.opts.Topics.AllCommands(), b.opts.QoS, b.handle); err != nil {
		b.cancel()
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	b.logger.Info("mqtt command bridge started", "topic", b.opts.Topics.AllCommands())
	return nil
}

// Stop unsubscribes, cancels in-flight commands and waits for them.
func (b *CommandBridge) Stop() error {
	err := b.sub.Unsubscribe(b.opts.Topics.AllCommands())

	b.mu.Lock()
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()

	b.wg.Wait()
	return err
}

// handle runs on the MQTT client's goroutine, so the round trip to the
// device is moved off it.
func (b *CommandBridge) handle(topic string, payload []byte) error {
	deviceID, requestID, ok := b.opts.Topics.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("malformed command topic %q", topic)
	}

	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return nil
	}

	if !b.sem.TryAcquire(1) {
		b.respond(deviceID, requestID, Response{Error: OutcomeBusy})
		return nil
	}

	body := append([]byte(nil), payload...)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.sem.Release(1)
		b.forward(ctx, deviceID, requestID, body)
	}()
	return nil
}

func (b *CommandBridge) forward(ctx context.Context, deviceID, requestID string, payload []byte) {
	reply, err := b.sender.Send(ctx, tunnel.DeviceID(deviceID), payload, b.opts.Timeout)
	if err != nil {
		b.logger.Debug("mqtt command failed", "device_id", deviceID, "request_id", requestID, "error", err)
		b.respond(deviceID, requestID, Response{Error: Outcome(err)})
		return
	}
	b.respond(deviceID, requestID, Response{OK: true, Payload: reply})
}

func (b *CommandBridge) respond(deviceID, requestID string, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		b.logger.Error("encoding command response", "device_id", deviceID, "error", err)
		return
	}
	if err := b.pub.Publish(b.opts.Topics.Response(deviceID, requestID), data, b.opts.QoS, false); err != nil {
		b.logger.Warn("publishing command response failed",
			"device_id", deviceID, "request_id", requestID, "error", err)
	}
}
