package gatewaytest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/nlscribe/internal/protocol"
	"github.com/foxseedlab/nlscribe/internal/token"
	"github.com/gorilla/websocket"
)

const (
	tokenTTL      = time.Hour
	writeWait     = 5 * time.Second
	statusBadTask = 40000004
)

// Script controls how the fake gateway answers a session.
type Script struct {
	// Sentences are emitted in order, one after every FramesPerSentence
	// audio frames. Remaining sentences are flushed on StopTranscription.
	Sentences         []string
	FramesPerSentence int
	PartialResults    bool

	// FailStart answers StartTranscription with TaskFailed.
	FailStart bool
	// SkipStarted never acknowledges StartTranscription.
	SkipStarted bool
	// SkipCompleted never answers StopTranscription.
	SkipCompleted bool
	// GarbageAfterStarted sends one non-JSON text frame after
	// TranscriptionStarted.
	GarbageAfterStarted bool
	// ForeignTaskAfterStarted sends a SentenceEnd for another task id.
	ForeignTaskAfterStarted bool
	// DropAfterFrames closes the socket abruptly after that many audio
	// frames. Zero disables it.
	DropAfterFrames int
}

type Options struct {
	// Token is what CreateToken hands out and what /ws/v1 expects. Empty
	// disables the token check.
	Token string
	// AccessKeySecret enables signature verification on CreateToken.
	AccessKeySecret string
	Script          Script
	Logger          *slog.Logger
}

// Message is one client message as the gateway saw it.
type Message struct {
	Name       string
	TaskID     string
	MessageID  string
	AppKey     string
	AudioBytes int
	Payload    json.RawMessage
}

type Gateway struct {
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger
	mux      *http.ServeMux

	mu       sync.Mutex
	received []Message
	sessions int
}

func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Script.FramesPerSentence <= 0 {
		opts.Script.FramesPerSentence = 5
	}
	g := &Gateway{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	g.mux.HandleFunc("/ws/v1", g.handleWebSocket)
	g.mux.HandleFunc("/token", g.handleBackendToken)
	g.mux.HandleFunc("/", g.handleCreateToken)
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

func (g *Gateway) Received() []Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Message, len(g.received))
	copy(out, g.received)
	return out
}

func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessions
}

func (g *Gateway) record(m Message) {
	g.mu.Lock()
	g.received = append(g.received, m)
	g.mu.Unlock()
}

func (g *Gateway) issuedToken() string {
	if g.opts.Token != "" {
		return g.opts.Token
	}
	return "mock-token"
}

func (g *Gateway) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	if q.Get("Action") != "CreateToken" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"Code": "InvalidAction", "Message": "unsupported action"})
		return
	}
	if g.opts.AccessKeySecret != "" {
		if err := token.Verify(q, g.opts.AccessKeySecret); err != nil {
			writeJSON(w, http.StatusForbidden, map[string]string{"Code": "SignatureDoesNotMatch", "Message": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"NlsRequestId": serverID(),
		"Token": map[string]any{
			"Id":         g.issuedToken(),
			"ExpireTime": time.Now().Add(tokenTTL).Unix(),
		},
	})
}

func (g *Gateway) handleBackendToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      g.issuedToken(),
		"expires_in": int(tokenTTL / time.Second),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if g.opts.Token != "" && r.URL.Query().Get("token") != g.opts.Token {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("mock gateway upgrade failed", "error", err)
		return
	}
	defer func() {
		_ = ws.Close()
	}()
	g.mu.Lock()
	g.sessions++
	g.mu.Unlock()

	s := &gatewaySession{gateway: g, ws: ws, script: g.opts.Script}
	s.serve()
}

type gatewaySession struct {
	gateway *Gateway
	ws      *websocket.Conn
	script  Script

	taskID     string
	sampleRate int
	started    bool
	frames     int
	audioBytes int
	sentence   int
}

type clientEnvelope struct {
	Header  protocol.ControlHeader `json:"header"`
	Payload json.RawMessage        `json:"payload"`
}

func (s *gatewaySession) serve() {
	for {
		msgType, data, err := s.ws.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			if !s.onAudio(data) {
				return
			}
		case websocket.TextMessage:
			if !s.onControl(data) {
				return
			}
		}
	}
}

func (s *gatewaySession) onAudio(data []byte) bool {
	s.gateway.record(Message{Name: "audio", TaskID: s.taskID, AudioBytes: len(data)})
	s.frames++
	s.audioBytes += len(data)
	if s.script.DropAfterFrames > 0 && s.frames >= s.script.DropAfterFrames {
		return false
	}
	if s.started && s.frames%s.script.FramesPerSentence == 0 && s.sentence < len(s.script.Sentences) {
		return s.emitSentence()
	}
	return true
}

func (s *gatewaySession) onControl(data []byte) bool {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.gateway.logger.Warn("mock gateway got malformed control message", "error", err)
		return false
	}
	s.gateway.record(Message{
		Name:      env.Header.Name,
		TaskID:    env.Header.TaskID,
		MessageID: env.Header.MessageID,
		AppKey:    env.Header.AppKey,
		Payload:   env.Payload,
	})

	switch env.Header.Name {
	case protocol.NameStartTranscription:
		return s.onStart(env)
	case protocol.NameStopTranscription:
		return s.onStop(env)
	default:
		return s.write(protocol.NameTaskFailed, statusBadTask, fmt.Sprintf("unsupported command %s", env.Header.Name), nil)
	}
}

func (s *gatewaySession) onStart(env clientEnvelope) bool {
	s.taskID = env.Header.TaskID
	var p protocol.StartPayload
	_ = json.Unmarshal(env.Payload, &p)
	s.sampleRate = p.SampleRate
	if s.sampleRate <= 0 {
		s.sampleRate = 16000
	}
	if s.script.FailStart {
		s.write(protocol.NameTaskFailed, statusBadTask, "Gateway:APPKEY_NOT_EXIST:appkey not exist", nil)
		return false
	}
	if s.script.SkipStarted {
		return true
	}
	s.started = true
	if !s.write(protocol.NameTranscriptionStarted, protocol.StatusSuccess, "GATEWAY|SUCCESS|Success.", map[string]any{"session_id": serverID()}) {
		return false
	}
	if s.script.GarbageAfterStarted {
		if err := s.writeRaw([]byte("this is not json")); err != nil {
			return false
		}
	}
	if s.script.ForeignTaskAfterStarted {
		foreign := s.taskID
		s.taskID = serverID()
		ok := s.write(protocol.NameSentenceEnd, protocol.StatusSuccess, "GATEWAY|SUCCESS|Success.", map[string]any{"index": 99, "result": "foreign"})
		s.taskID = foreign
		return ok
	}
	return true
}

func (s *gatewaySession) onStop(env clientEnvelope) bool {
	if env.Header.TaskID != s.taskID {
		s.write(protocol.NameTaskFailed, statusBadTask, "task id mismatch", nil)
		return false
	}
	for s.started && s.sentence < len(s.script.Sentences) {
		if !s.emitSentence() {
			return false
		}
	}
	if s.script.SkipCompleted {
		return true
	}
	if s.write(protocol.NameTranscriptionCompleted, protocol.StatusSuccess, "GATEWAY|SUCCESS|Success.", nil) {
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "task completed"),
			time.Now().Add(writeWait))
	}
	return false
}

func (s *gatewaySession) emitSentence() bool {
	text := s.script.Sentences[s.sentence]
	s.sentence++
	index := s.sentence
	endMs := s.audioBytes / 2 * 1000 / s.sampleRate
	beginMs := endMs - 1000
	if beginMs < 0 {
		beginMs = 0
	}
	if !s.write(protocol.NameSentenceBegin, protocol.StatusSuccess, "GATEWAY|SUCCESS|Success.", map[string]any{"index": index, "time": beginMs}) {
		return false
	}
	if s.script.PartialResults {
		half := []rune(text)
		partial := string(half[:len(half)/2])
		if !s.write(protocol.NameTranscriptionResultChanged, protocol.StatusSuccess, "GATEWAY|SUCCESS|Success.", map[string]any{
			"index": index, "time": endMs, "result": partial,
		}) {
			return false
		}
	}
	return s.write(protocol.NameSentenceEnd, protocol.StatusSuccess, "GATEWAY|SUCCESS|Success.", map[string]any{
		"index":      index,
		"time":       endMs,
		"begin_time": beginMs,
		"result":     text,
		"confidence": 0.9,
		"words":      splitWords(text, beginMs, endMs),
	})
}

func splitWords(text string, beginMs, endMs int) []protocol.Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	step := (endMs - beginMs) / len(fields)
	words := make([]protocol.Word, 0, len(fields))
	for i, f := range fields {
		words = append(words, protocol.Word{Text: f, StartTime: beginMs + i*step, EndTime: beginMs + (i+1)*step})
	}
	return words
}

func (s *gatewaySession) write(name string, status int, statusText string, payload map[string]any) bool {
	msg := map[string]any{
		"header": map[string]any{
			"namespace":   protocol.Namespace,
			"name":        name,
			"status":      status,
			"status_text": statusText,
			"message_id":  serverID(),
			"task_id":     s.taskID,
		},
	}
	if payload != nil {
		msg["payload"] = payload
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return s.writeRaw(b) == nil
}

func (s *gatewaySession) writeRaw(b []byte) error {
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return s.ws.WriteMessage(websocket.TextMessage, b)
}

func serverID() string {
	id, err := protocol.NewID()
	if err != nil {
		return strings.Repeat("0", protocol.HexIDLength)
	}
	return id
}
