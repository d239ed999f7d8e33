package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/nlscribe/internal/protocol"
	"github.com/foxseedlab/nlscribe/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultWriteWait      = 10 * time.Second
	closeWait             = time.Second
)

type Options struct {
	ConnectTimeout time.Duration
	WriteWait      time.Duration
	Header         http.Header
	Logger         *slog.Logger
}

type WebSocketConn struct {
	opts   Options
	dialer *websocket.Dialer
	logger *slog.Logger

	mu       sync.Mutex
	state    transport.State
	ws       *websocket.Conn
	receiver transport.FrameReceiver
	closing  bool
	// cancelDial aborts a handshake in progress when Close is called.
	cancelDial context.CancelFunc

	writeMu sync.Mutex
}

func NewWebSocketConn(opts Options) *WebSocketConn {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaultWriteWait
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketConn{
		opts:   opts,
		dialer: &websocket.Dialer{Proxy: http.ProxyFromEnvironment},
		logger: logger,
		state:  transport.StateIdle,
	}
}

func NewFactory(opts Options) transport.Factory {
	return func() transport.Conn {
		return NewWebSocketConn(opts)
	}
}

func (c *WebSocketConn) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *WebSocketConn) Connect(ctx context.Context, url string, receiver transport.FrameReceiver) error {
	c.mu.Lock()
	if c.state != transport.StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: connection already used (state %s)", transport.ErrConnect, state)
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	c.state = transport.StateConnecting
	c.cancelDial = cancel
	c.mu.Unlock()
	ws, resp, err := c.dialer.DialContext(dialCtx, url, c.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		if c.closing {
			c.state = transport.StateClosed
		} else {
			c.state = transport.StateError
		}
		c.mu.Unlock()
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w after %s", transport.ErrConnectTimeout, c.opts.ConnectTimeout)
		}
		if resp != nil {
			return fmt.Errorf("%w: handshake status %d: %v", transport.ErrConnect, resp.StatusCode, err)
		}
		return fmt.Errorf("%w: %v", transport.ErrConnect, err)
	}

	c.mu.Lock()
	if c.closing {
		c.state = transport.StateClosed
		c.mu.Unlock()
		_ = ws.Close()
		return fmt.Errorf("%w: closed while connecting", transport.ErrConnect)
	}
	c.ws = ws
	c.receiver = receiver
	c.state = transport.StateOpen
	c.mu.Unlock()

	c.logger.Debug("websocket connected", "url", redactToken(url))
	go c.readLoop(ws)
	return nil
}

func (c *WebSocketConn) readLoop(ws *websocket.Conn) {
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		var frame protocol.Frame
		switch msgType {
		case websocket.TextMessage:
			frame = protocol.Frame{Type: protocol.TextFrame, Data: data}
		case websocket.BinaryMessage:
			frame = protocol.Frame{Type: protocol.BinaryFrame, Data: data}
		default:
			continue
		}
		c.receiver.OnFrame(frame)
	}
}

func (c *WebSocketConn) handleReadError(err error) {
	c.mu.Lock()
	closing := c.closing
	if closing {
		c.state = transport.StateClosed
	} else {
		c.state = transport.StateError
	}
	c.mu.Unlock()

	if closing {
		c.logger.Debug("websocket read loop stopped", "reason", err.Error())
		c.receiver.OnClose(nil)
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.logger.Info("websocket closed by server", "reason", err.Error())
	} else {
		c.logger.Warn("websocket read failed", "error", err)
	}
	c.receiver.OnClose(err)
}

func (c *WebSocketConn) Send(f protocol.Frame) error {
	c.mu.Lock()
	if c.state != transport.StateOpen {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", transport.ErrNotConnected, state)
	}
	ws := c.ws
	c.mu.Unlock()

	msgType := websocket.TextMessage
	if f.Type == protocol.BinaryFrame {
		msgType = websocket.BinaryMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	if err := ws.WriteMessage(msgType, f.Data); err != nil {
		c.mu.Lock()
		if c.state == transport.StateOpen {
			c.state = transport.StateError
		}
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", transport.ErrSendFailed, err)
	}
	return nil
}

// Close is safe from any state and from any goroutine, including the
// receiver's callbacks.
func (c *WebSocketConn) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	ws := c.ws
	wasOpen := c.state == transport.StateOpen
	if ws == nil {
		c.state = transport.StateClosed
		cancelDial := c.cancelDial
		c.mu.Unlock()
		if cancelDial != nil {
			cancelDial()
		}
		return nil
	}
	if c.state != transport.StateClosed {
		c.state = transport.StateClosing
	}
	c.mu.Unlock()

	if wasOpen {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWait))
		c.writeMu.Unlock()
	}
	err := ws.Close()
	c.setState(transport.StateClosed)
	return err
}

func (c *WebSocketConn) setState(s transport.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func redactToken(raw string) string {
	base, _, found := strings.Cut(raw, "?")
	if !found {
		return raw
	}
	return base + "?token=REDACTED"
}
