package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/houseflow/lighthouse/internal/infrastructure/mqtt"
	"github.com/houseflow/lighthouse/internal/tunnel"
)

// presenceQueueSize bounds events waiting to be published.
const presenceQueueSize = 256

// Publisher is the publishing half of an MQTT client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging interface used by the bridges.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Presence is the retained payload on a device presence topic.
type Presence struct {
	Online    bool   `json:"online"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

type presenceEvent struct {
	id       tunnel.DeviceID
	presence Presence
}

// PresencePublisher implements tunnel.PresenceListener by publishing
// retained presence messages.
//
// Registry callbacks only enqueue; a single worker publishes in order, so
// a slow broker never stalls a connecting device. When the queue is full
// the event is dropped and logged.
type PresencePublisher struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	logger Logger
	now    func() time.Time

	events chan presenceEvent
	wg     sync.WaitGroup
}

// NewPresencePublisher creates a publisher. Call Start before attaching it
// to a tunnel registry.
func NewPresencePublisher(pub Publisher, topics mqtt.Topics, qos byte, logger Logger) *PresencePublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &PresencePublisher{
		pub:    pub,
		topics: topics,
		qos:    qos,
		logger: logger,
		now:    time.Now,
		events: make(chan presenceEvent, presenceQueueSize),
	}
}

// Start runs the publishing worker until ctx is cancelled. Queued events
// are drained before the worker exits.
func (p *PresencePublisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case ev := <-p.events:
				p.publish(ev)
			case <-ctx.Done():
				p.drain()
				return
			}
		}
	}()
}

// Wait blocks until the worker started by Start has exited.
func (p *PresencePublisher) Wait() {
	p.wg.Wait()
}

func (p *PresencePublisher) drain() {
	for {
		select {
		case ev := <-p.events:
			p.publish(ev)
		default:
			return
		}
	}
}

// DeviceConnected implements tunnel.PresenceListener.
func (p *PresencePublisher) DeviceConnected(id tunnel.DeviceID) {
	p.enqueue(id, Presence{Online: true})
}

// DeviceDisconnected implements tunnel.PresenceListener.
func (p *PresencePublisher) DeviceDisconnected(id tunnel.DeviceID, cause error) {
	presence := Presence{Online: false}
	if cause != nil {
		presence.Reason = cause.Error()
	}
	p.enqueue(id, presence)
}

func (p *PresencePublisher) enqueue(id tunnel.DeviceID, presence Presence) {
	presence.Timestamp = p.now().UTC().Format(time.RFC3339)
	select {
	case p.events <- presenceEvent{id: id, presence: presence}:
	default:
		p.logger.Warn("presence queue full, dropping event", "device_id", id, "online", presence.Online)
	}
}

func (p *PresencePublisher) publish(ev presenceEvent) {
	payload, err := json.Marshal(ev.presence)
	if err != nil {
		p.logger.Error("encoding presence", "device_id", ev.id, "error", err)
		return
	}
	if err := p.pub.Publish(p.topics.DevicePresence(string(ev.id)), payload, p.qos, true); err != nil {
		p.logger.Warn("publishing presence failed", "device_id", ev.id, "online", ev.presence.Online, "error", err)
	}
}
