package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/houseflow/lighthouse/internal/infrastructure/mqtt"
	"github.com/houseflow/lighthouse/internal/tunnel"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// fakeBroker records publishes and lets tests deliver messages to the
// subscribed handler.
type fakeBroker struct {
	mu       sync.Mutex
	msgs     []published
	handlers map[string]mqtt.MessageHandler
	fail     error
	notify   chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		handlers: make(map[string]mqtt.MessageHandler),
		notify:   make(chan struct{}, 128),
	}
}

func (b *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.msgs = append(b.msgs, published{topic, append([]byte(nil), payload...), qos, retained})
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[topic]; !ok {
		return errors.New("not subscribed")
	}
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBroker) deliver(pattern, topic string, payload []byte) error {
	b.mu.Lock()
	h := b.handlers[pattern]
	b.mu.Unlock()
	if h == nil {
		return errors.New("no handler for " + pattern)
	}
	return h(topic, payload)
}

func (b *fakeBroker) messages() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.msgs...)
}

// fakeSender answers Send with a function.
type fakeSender struct {
	fn func(ctx context.Context, id tunnel.DeviceID, payload []byte) ([]byte, error)
}

func (s *fakeSender) Send(ctx context.Context, id tunnel.DeviceID, payload []byte, _ time.Duration) ([]byte, error) {
	return s.fn(ctx, id, payload)
}

type metric struct {
	device    string
	outcome   string
	connected bool
	duration  time.Duration
}

type fakeMetrics struct {
	mu       sync.Mutex
	commands []metric
	sessions []metric
}

func (m *fakeMetrics) WriteCommandMetric(deviceID, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, metric{device: deviceID, outcome: outcome})
}

func (m *fakeMetrics) WriteSessionEvent(deviceID string, connected bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, metric{device: deviceID, connected: connected, duration: duration})
}
