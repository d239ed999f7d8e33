package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/foxseedlab/nlscribe/internal/protocol"
	"github.com/foxseedlab/nlscribe/internal/transport"
	"github.com/gorilla/websocket"
)

type recordingReceiver struct {
	frames chan protocol.Frame
	closed chan error
}

func newRecordingReceiver() *recordingReceiver {
	return &recordingReceiver{
		frames: make(chan protocol.Frame, 16),
		closed: make(chan error, 1),
	}
}

func (r *recordingReceiver) OnFrame(f protocol.Frame) { r.frames <- f }
func (r *recordingReceiver) OnClose(err error)        { r.closed <- err }

func testOptions() Options {
	return Options{
		ConnectTimeout: 200 * time.Millisecond,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + server.URL[4:]
}

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			msgType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
}

func TestWebSocketConn_SendAndReceive(t *testing.T) {
	server := newEchoServer(t)
	defer server.Close()

	conn := NewWebSocketConn(testOptions())
	if conn.State() != transport.StateIdle {
		t.Fatalf("expected idle, got %s", conn.State())
	}
	recv := newRecordingReceiver()
	if err := conn.Connect(context.Background(), wsURL(server), recv); err != nil {
		t.Fatalf("connect error: %v", err)
	}
	if conn.State() != transport.StateOpen {
		t.Fatalf("expected open, got %s", conn.State())
	}

	if err := conn.Send(protocol.Frame{Type: protocol.TextFrame, Data: []byte(`{"a":1}`)}); err != nil {
		t.Fatalf("send text error: %v", err)
	}
	if err := conn.Send(protocol.EncodeAudio([]byte{1, 2, 3, 4})); err != nil {
		t.Fatalf("send binary error: %v", err)
	}

	for _, want := range []protocol.FrameType{protocol.TextFrame, protocol.BinaryFrame} {
		select {
		case f := <-recv.frames:
			if f.Type != want {
				t.Fatalf("expected %s frame, got %s", want, f.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s frame", want)
		}
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if conn.State() != transport.StateClosed {
		t.Fatalf("expected closed, got %s", conn.State())
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	select {
	case err := <-recv.closed:
		if err != nil {
			t.Fatalf("client initiated close should report nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
}

func TestWebSocketConn_SendBeforeConnect(t *testing.T) {
	conn := NewWebSocketConn(testOptions())
	err := conn.Send(protocol.EncodeAudio([]byte{0, 0}))
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestWebSocketConn_CloseFromIdle(t *testing.T) {
	conn := NewWebSocketConn(testOptions())
	if err := conn.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if conn.State() != transport.StateClosed {
		t.Fatalf("expected closed, got %s", conn.State())
	}
	err := conn.Connect(context.Background(), "ws://127.0.0.1:1", newRecordingReceiver())
	if !errors.Is(err, transport.ErrConnect) {
		t.Fatalf("expected ErrConnect on reuse, got %v", err)
	}
}

func TestWebSocketConn_ConnectTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	conn := NewWebSocketConn(testOptions())
	start := time.Now()
	err := conn.Connect(context.Background(), wsURL(server), newRecordingReceiver())
	if !errors.Is(err, transport.ErrConnectTimeout) {
		t.Fatalf("expected ErrConnectTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("connect timeout took too long: %v", elapsed)
	}
	if conn.State() != transport.StateError {
		t.Fatalf("expected error state, got %s", conn.State())
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if conn.State() != transport.StateClosed {
		t.Fatalf("expected closed after close, got %s", conn.State())
	}
}

func TestWebSocketConn_CloseDuringHandshake(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	opts := testOptions()
	opts.ConnectTimeout = 10 * time.Second
	conn := NewWebSocketConn(opts)
	result := make(chan error, 1)
	go func() {
		result <- conn.Connect(context.Background(), wsURL(server), newRecordingReceiver())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for conn.State() != transport.StateConnecting {
		if time.Now().After(deadline) {
			t.Fatalf("connect never started, state %s", conn.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if conn.State() != transport.StateClosed {
		t.Fatalf("expected closed right after close, got %s", conn.State())
	}
	select {
	case err := <-result:
		if !errors.Is(err, transport.ErrConnect) {
			t.Fatalf("expected ErrConnect, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not abort the handshake")
	}
	if conn.State() != transport.StateClosed {
		t.Fatalf("expected closed after connect returned, got %s", conn.State())
	}
}

func TestWebSocketConn_HandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusForbidden)
	}))
	defer server.Close()

	conn := NewWebSocketConn(testOptions())
	err := conn.Connect(context.Background(), wsURL(server), newRecordingReceiver())
	if !errors.Is(err, transport.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	if conn.State() != transport.StateError {
		t.Fatalf("expected error state, got %s", conn.State())
	}
}

func TestWebSocketConn_ServerDropReportsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = ws.Close()
	}))
	defer server.Close()

	conn := NewWebSocketConn(testOptions())
	recv := newRecordingReceiver()
	if err := conn.Connect(context.Background(), wsURL(server), recv); err != nil {
		t.Fatalf("connect error: %v", err)
	}
	select {
	case err := <-recv.closed:
		if err == nil {
			t.Fatal("expected a non-nil error for an unexpected close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
	if conn.State() != transport.StateError {
		t.Fatalf("expected error state, got %s", conn.State())
	}
	if err := conn.Send(protocol.EncodeAudio([]byte{0, 0})); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after drop, got %v", err)
	}
	_ = conn.Close()
	if conn.State() != transport.StateClosed {
		t.Fatalf("expected closed, got %s", conn.State())
	}
}

func TestRedactToken(t *testing.T) {
	got := redactToken("wss://nls-gateway-cn-shanghai.aliyuncs.com/ws/v1?token=secret")
	if got != "wss://nls-gateway-cn-shanghai.aliyuncs.com/ws/v1?token=REDACTED" {
		t.Fatalf("unexpected redacted url: %s", got)
	}
}
