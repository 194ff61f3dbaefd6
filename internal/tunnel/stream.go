package tunnel

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Stream is a message-framed duplex connection to one device.
//
// ReadMessage is called by a single reader and WriteMessage by a single
// writer; Close may be called concurrently with both and must unblock them.
// ReadMessage returns io.EOF when the peer closed the stream cleanly.
type Stream interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Rejecter is implemented by streams that can tell the peer why they are
// being refused before closing.
type Rejecter interface {
	Reject(reason string) error
}

// WebSocketOptions configures a WebSocketStream.
type WebSocketOptions struct {
	// MaxMessageSize is the largest inbound frame accepted. Zero means no limit.
	MaxMessageSize int64

	// PingInterval is how often a ping is sent. Zero disables keepalive.
	PingInterval time.Duration

	// PongTimeout is how long after a ping the peer has to answer.
	PongTimeout time.Duration

	// WriteTimeout bounds every frame write. Defaults to 10s.
	WriteTimeout time.Duration

	// Text sends outbound frames as text instead of binary.
	Text bool
}

// WebSocketStream adapts a gorilla/websocket connection to Stream.
//
// Inbound text and binary frames are both delivered; control frames are
// handled internally. A background pinger keeps the read deadline moving
// while the peer answers pongs.
type WebSocketStream struct {
	conn *websocket.Conn
	opts WebSocketOptions

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketStream wraps conn and starts its keepalive.
func NewWebSocketStream(conn *websocket.Conn, opts WebSocketOptions) *WebSocketStream {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	s := &WebSocketStream{
		conn: conn,
		opts: opts,
		done: make(chan struct{}),
	}

	if opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}

	if opts.PingInterval > 0 {
		s.extendReadDeadline()
		conn.SetPongHandler(func(string) error {
			s.extendReadDeadline()
			return nil
		})
		go s.keepalive()
	}

	return s
}

func (s *WebSocketStream) extendReadDeadline() {
	if s.opts.PingInterval <= 0 {
		return
	}
	//nolint:errcheck // Best-effort deadline; a stale deadline surfaces as a read error
	s.conn.SetReadDeadline(time.Now().Add(s.opts.PingInterval + s.opts.PongTimeout))
}

// keepalive sends pings until the stream is closed. WriteControl is safe to
// call concurrently with WriteMessage.
func (s *WebSocketStream) keepalive() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.opts.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// The read side will fail on its deadline.
				return
			}
		}
	}
}

// ReadMessage returns the next data frame.
func (s *WebSocketStream) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		// Any frame from the device proves liveness.
		s.extendReadDeadline()

		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage sends data as a single frame.
func (s *WebSocketStream) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	msgType := websocket.BinaryMessage
	if s.opts.Text {
		msgType = websocket.TextMessage
	}

	//nolint:errcheck // Best-effort deadline; write error caught below
	s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	return s.conn.WriteMessage(msgType, data)
}

// Reject sends a policy-violation close frame carrying reason and closes
// the connection.
func (s *WebSocketStream) Reject(reason string) error {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteTimeout))
	if closeErr := s.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close closes the underlying connection. It is safe to call more than once.
func (s *WebSocketStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
