package tunnel

import (
	"errors"
	"io"
	"sync"
)

var errPipeClosed = errors.New("pipe closed")

// pipeStream is an in-memory Stream. The test plays the device through
// toHub and toDevice.
type pipeStream struct {
	toHub    chan []byte
	toDevice chan []byte
	done     chan struct{}

	once     sync.Once
	readErr  error
	mu       sync.Mutex
	rejected string
}

func newPipe() *pipeStream {
	return &pipeStream{
		toHub:    make(chan []byte, 64),
		toDevice: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

func (p *pipeStream) ReadMessage() ([]byte, error) {
	select {
	case m := <-p.toHub:
		return m, nil
	case <-p.done:
		return nil, p.readErr
	}
}

func (p *pipeStream) WriteMessage(data []byte) error {
	select {
	case <-p.done:
		return errPipeClosed
	default:
	}
	select {
	case p.toDevice <- data:
		return nil
	case <-p.done:
		return errPipeClosed
	}
}

func (p *pipeStream) Close() error {
	p.shut(errPipeClosed)
	return nil
}

func (p *pipeStream) Reject(reason string) error {
	p.mu.Lock()
	p.rejected = reason
	p.mu.Unlock()
	return p.Close()
}

func (p *pipeStream) rejectReason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rejected
}

// hangup simulates the device going away with err. A nil err is a clean
// close and reads return io.EOF.
func (p *pipeStream) hangup(err error) {
	if err == nil {
		err = io.EOF
	}
	p.shut(err)
}

func (p *pipeStream) shut(err error) {
	p.once.Do(func() {
		p.readErr = err
		close(p.done)
	})
}

func (p *pipeStream) isClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// runDevice answers every request with reply(request) until the pipe closes.
// A nil reply sends nothing.
func runDevice(p *pipeStream, reply func([]byte) []byte) {
	go func() {
		for {
			select {
			case req := <-p.toDevice:
				if resp := reply(req); resp != nil {
					select {
					case p.toHub <- resp:
					case <-p.done:
						return
					}
				}
			case <-p.done:
				return
			}
		}
	}()
}

func echo(req []byte) []byte {
	return append([]byte("re:"), req...)
}

var (
	_ Stream   = (*pipeStream)(nil)
	_ Rejecter = (*pipeStream)(nil)
)
