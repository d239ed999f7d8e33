package transport

import (
	"context"
	"errors"

	"github.com/foxseedlab/nlscribe/internal/protocol"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

var (
	ErrConnectTimeout = errors.New("connect timed out")
	ErrConnect        = errors.New("connect failed")
	ErrNotConnected   = errors.New("connection is not open")
	ErrSendFailed     = errors.New("send failed")
)

// FrameReceiver gets every inbound frame unclassified, in arrival order, from
// a single goroutine. OnClose is called once when the read side ends; err is
// nil for a close the client initiated.
type FrameReceiver interface {
	OnFrame(f protocol.Frame)
	OnClose(err error)
}

// Conn is one websocket connection to the gateway. Send never queues: it
// returns once the frame is written, or an error when the connection is not
// open.
type Conn interface {
	Connect(ctx context.Context, url string, receiver FrameReceiver) error
	Send(f protocol.Frame) error
	Close() error
	State() State
}

type Factory func() Conn
