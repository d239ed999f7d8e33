package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/nlscribe/internal/protocol"
	"github.com/foxseedlab/nlscribe/internal/token"
	"github.com/foxseedlab/nlscribe/internal/transport"
)

// Session runs one transcription task over one gateway connection:
// StartTranscription, any number of audio frames, StopTranscription.
// A Session is single use.
type Session struct {
	opts       Options
	issuer     token.Issuer
	newConn    transport.Factory
	dispatcher *Dispatcher
	logger     *slog.Logger

	mu           sync.Mutex
	state        State
	final        State
	err          error
	taskID       string
	conn         transport.Conn
	stopped      bool
	startedSeen  bool
	messageCount int64
	eventCount   int64
	audioBytes   int64

	// sendMu orders audio against StopTranscription. emitMu orders event
	// delivery so nothing follows the terminal event.
	sendMu sync.Mutex
	emitMu sync.Mutex

	startedCh chan struct{}
	done      chan struct{}
	doneOnce  sync.Once

	// aborted releases an event delivery stuck on a slow consumer once the
	// session has failed or been closed locally.
	aborted     chan struct{}
	abortedOnce sync.Once
}

func NewSession(opts Options, issuer token.Issuer, newConn transport.Factory) *Session {
	opts = opts.withDefaults()
	return &Session{
		opts:       opts,
		issuer:     issuer,
		newConn:    newConn,
		dispatcher: NewDispatcher(),
		logger:     opts.Logger,
		state:      StateIdle,
		startedCh:  make(chan struct{}),
		done:       make(chan struct{}),
		aborted:    make(chan struct{}),
	}
}

func (s *Session) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Events registers a buffered channel as the session's consumer. The channel
// is closed after the final event or when the session is closed.
func (s *Session) Events() (<-chan protocol.Event, error) {
	c := newChannelConsumer(s.opts.EventBuffer, s.aborted)
	if err := s.dispatcher.Register(c); err != nil {
		return nil, err
	}
	return c.ch, nil
}

func (s *Session) TaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the cause of failure once the session has failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the session reaches Completed, Failed or Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// MessageCount is the number of frames sent, control and audio.
func (s *Session) MessageCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageCount
}

func (s *Session) EventCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventCount
}

func (s *Session) AudioBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioBytes
}

func (s *Session) Start(ctx context.Context) error {
	taskID, err := s.opts.NewID()
	if err != nil {
		return fmt.Errorf("generate task id: %w", err)
	}

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: start in %s", ErrInvalidState, state)
	}
	s.taskID = taskID
	s.state = StateAuthenticating
	s.mu.Unlock()
	logger := s.logger.With("task_id", taskID)

	tok, err := s.issuer.Issue(ctx)
	if err == nil && tok.Expired(time.Now()) {
		err = fmt.Errorf("token expired at %s", tok.ExpiresAt.Format(time.RFC3339))
	}
	if err != nil {
		cause := fmt.Errorf("%w: %w", ErrAuth, err)
		s.fail(cause)
		return cause
	}
	url, err := protocol.GatewayURL(s.opts.GatewayURL, tok.Value)
	if err != nil {
		cause := fmt.Errorf("%w: %w", ErrTransport, err)
		s.fail(cause)
		return cause
	}

	conn := s.newConn()
	if !s.advance(StateAuthenticating, StateConnecting, conn) {
		_ = conn.Close()
		return s.startAbortedErr()
	}
	logger.Debug("connecting to gateway")
	if err := conn.Connect(ctx, url, &frameReceiver{session: s}); err != nil {
		cause := fmt.Errorf("%w: %w", ErrTransport, err)
		s.fail(cause)
		return cause
	}

	s.sendMu.Lock()
	err = s.sendControl(protocol.NameStartTranscription, s.opts.startPayload())
	if err == nil && !s.advance(StateConnecting, StateStarted, nil) {
		err = s.startAbortedErr()
	}
	s.sendMu.Unlock()
	if err != nil {
		s.fail(err)
		return err
	}
	logger.Info("transcription start sent", "await_started", s.opts.AwaitStarted)

	if !s.opts.AwaitStarted {
		return nil
	}
	timer := time.NewTimer(s.opts.StartTimeout)
	defer timer.Stop()
	select {
	case <-s.startedCh:
		return nil
	case <-s.done:
		return s.outcome()
	case <-timer.C:
		cause := fmt.Errorf("%w after %s", ErrStartTimeout, s.opts.StartTimeout)
		s.fail(cause)
		return cause
	case <-ctx.Done():
		cause := fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
		s.fail(cause)
		return cause
	}
}

// PushAudio sends one PCM chunk. It returns once the frame is written to the
// socket, which is where a fast producer is held back.
func (s *Session) PushAudio(pcm []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrAudioAfterStop
	}
	if s.state != StateStarted && s.state != StateStreaming {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: push audio in %s", ErrInvalidState, state)
	}
	if len(pcm) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStreaming
	conn := s.conn
	s.mu.Unlock()

	if err := conn.Send(protocol.EncodeAudio(pcm)); err != nil {
		cause := fmt.Errorf("%w: %w", ErrTransport, err)
		s.fail(cause)
		return cause
	}
	s.mu.Lock()
	s.messageCount++
	s.audioBytes += int64(len(pcm))
	s.mu.Unlock()
	return nil
}

// Stop sends StopTranscription and waits for the final event. It returns nil
// once TranscriptionCompleted arrives.
func (s *Session) Stop(ctx context.Context) error {
	s.sendMu.Lock()
	s.mu.Lock()
	if s.state != StateStarted && s.state != StateStreaming {
		state := s.state
		s.mu.Unlock()
		s.sendMu.Unlock()
		return fmt.Errorf("%w: stop in %s", ErrInvalidState, state)
	}
	s.stopped = true
	s.state = StateStopping
	s.mu.Unlock()
	err := s.sendControl(protocol.NameStopTranscription, nil)
	s.sendMu.Unlock()
	if err != nil {
		s.fail(err)
		return err
	}
	s.logger.Info("transcription stop sent", "task_id", s.TaskID(), "audio_bytes", s.AudioBytes())

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return s.outcome()
	case <-timer.C:
		cause := fmt.Errorf("%w after %s", ErrStopTimeout, s.opts.StopTimeout)
		s.fail(cause)
		return s.outcome()
	case <-ctx.Done():
		cause := fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
		s.fail(cause)
		return s.outcome()
	}
}

// Close tears the session down from any state. It does not emit an event;
// a session closed before its final event simply ends. Safe to call more
// than once and from inside a consumer.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.taskID = ""
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	s.abort()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	s.dispatcher.Close()
	s.closeDone()
	return err
}

func (s *Session) outcome() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.final {
	case StateCompleted:
		return nil
	case StateFailed:
		return s.err
	default:
		return ErrClosed
	}
}

func (s *Session) startAbortedErr() error {
	if err := s.outcome(); err != nil {
		return err
	}
	return fmt.Errorf("%w: task completed before start returned", ErrInvalidState)
}

// advance moves from one state to the next unless something else (a failure
// or Close) got there first.
func (s *Session) advance(from, to State, conn transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	if conn != nil {
		s.conn = conn
	}
	return true
}

// sendControl must be called with sendMu held.
func (s *Session) sendControl(name string, payload any) error {
	messageID, err := s.opts.NewID()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}
	s.mu.Lock()
	conn := s.conn
	header := protocol.ControlHeader{MessageID: messageID, TaskID: s.taskID, AppKey: s.opts.AppKey}
	s.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}

	frame, err := protocol.EncodeControl(name, header, payload)
	if err != nil {
		return err
	}
	if err := conn.Send(frame); err != nil {
		return fmt.Errorf("%w: send %s: %w", ErrTransport, name, err)
	}
	s.mu.Lock()
	s.messageCount++
	s.mu.Unlock()
	return nil
}

func (s *Session) handleFrame(f protocol.Frame) {
	ev, ok := protocol.Decode(f)
	if !ok {
		s.logger.Debug("ignoring non-text frame from gateway", "frame_type", f.Type.String(), "bytes", len(f.Data))
		return
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.state.terminal() {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("dropping event after session end", "event", ev.Name, "state", state.String())
		return
	}
	s.eventCount++
	if ev.Kind != protocol.KindParseError {
		if ev.TaskID != "" && ev.TaskID != s.taskID {
			taskID := s.taskID
			s.mu.Unlock()
			s.logger.Warn("dropping event for another task", "event", ev.Name, "event_task_id", ev.TaskID, "task_id", taskID)
			return
		}
		if ev.Kind == protocol.KindStarted {
			if s.startedSeen {
				s.mu.Unlock()
				s.logger.Warn("dropping duplicate TranscriptionStarted", "task_id", ev.TaskID)
				return
			}
			s.startedSeen = true
			close(s.startedCh)
		} else if !s.startedSeen && !ev.IsTerminal() {
			s.logger.Warn("event arrived before TranscriptionStarted", "event", ev.Name, "task_id", s.taskID)
		}
	}

	var conn transport.Conn
	switch ev.Kind {
	case protocol.KindCompleted:
		conn = s.finishLocked(StateCompleted, nil)
	case protocol.KindFailed:
		conn = s.finishLocked(StateFailed, fmt.Errorf("%w: status %d: %s", ErrTaskFailed, ev.StatusCode, ev.StatusMessage))
		ev.Err = s.err
	}
	s.mu.Unlock()

	if ev.Kind == protocol.KindParseError {
		s.logger.Warn("unparsable message from gateway", "error", ev.Err, "raw", truncate(ev.Raw, 256))
	}
	s.dispatcher.Dispatch(ev)
	if ev.IsTerminal() {
		s.teardown(conn)
	}
}

func (s *Session) handleClose(err error) {
	if err == nil {
		err = errors.New("connection closed")
	}
	s.fail(fmt.Errorf("%w: %w", ErrTransport, err))
}

// fail moves a live session to Failed and emits the single final event. It
// is a no-op once the session has ended. The state change and connection
// teardown happen before waiting on emitMu, so a consumer that stopped
// reading cannot hold it up.
func (s *Session) fail(cause error) {
	s.mu.Lock()
	if s.state.terminal() {
		s.mu.Unlock()
		return
	}
	taskID := s.taskID
	conn := s.finishLocked(StateFailed, cause)
	s.mu.Unlock()

	s.abort()
	if conn != nil {
		_ = conn.Close()
	}
	s.logger.Error("transcription session failed", "error", cause, "task_id", taskID)

	s.emitMu.Lock()
	s.dispatcher.Dispatch(protocol.Event{
		Kind:          protocol.KindFailed,
		Name:          protocol.NameTaskFailed,
		TaskID:        taskID,
		StatusMessage: cause.Error(),
		Err:           cause,
	})
	s.emitMu.Unlock()
	s.teardown(nil)
}

// finishLocked must be called with mu held.
func (s *Session) finishLocked(state State, cause error) transport.Conn {
	s.state = state
	s.final = state
	s.err = cause
	conn := s.conn
	s.conn = nil
	return conn
}

func (s *Session) teardown(conn transport.Conn) {
	if conn != nil {
		_ = conn.Close()
	}
	s.dispatcher.Close()
	s.closeDone()
}

func (s *Session) abort() {
	s.abortedOnce.Do(func() { close(s.aborted) })
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

type frameReceiver struct {
	session *Session
}

func (r *frameReceiver) OnFrame(f protocol.Frame) { r.session.handleFrame(f) }
func (r *frameReceiver) OnClose(err error)        { r.session.handleClose(err) }

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
