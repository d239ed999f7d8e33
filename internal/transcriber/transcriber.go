package transcriber

import "errors"

type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateConnecting
	StateStarted
	StateStreaming
	StateStopping
	StateCompleted
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateConnecting:
		return "connecting"
	case StateStarted:
		return "started"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateClosed
}

var (
	ErrAuth           = errors.New("authentication failed")
	ErrAudioAfterStop = errors.New("audio pushed after stop")
	ErrInvalidState   = errors.New("operation not valid in current state")
	ErrStartTimeout   = errors.New("timed out waiting for TranscriptionStarted")
	ErrStopTimeout    = errors.New("timed out waiting for TranscriptionCompleted")
	ErrTaskFailed     = errors.New("task failed")
	ErrTransport      = errors.New("transport failure")
	ErrClosed         = errors.New("session closed")
)
