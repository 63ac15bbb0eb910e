package ws

import (
	"sync"
	"time"

	"github.com/arefin-aareef/talksy/internal/config"

	"github.com/gorilla/websocket"
)

// Options tune one live connection.
type Options struct {
	HandshakeTimeout time.Duration
	PushTimeout      time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteTimeout     time.Duration
	SendBuffer       int
	MaxMessageBytes  int64
}

func OptionsFromConfig(cfg *config.RealtimeConfig) Options {
	return Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		PushTimeout:      cfg.PushTimeout,
		PingInterval:     cfg.PingInterval,
		PongWait:         cfg.PongWait,
		WriteTimeout:     cfg.WriteTimeout,
		SendBuffer:       cfg.SendBuffer,
		MaxMessageBytes:  cfg.MaxMessageBytes,
	}
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.PushTimeout <= 0 {
		o.PushTimeout = 2 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 16 * 1024
	}
	return o
}

// WebSocket wraps a gorilla connection with deadlines. WriteMessage must
// only be called from one goroutine; WritePing, CloseWith and Close are safe
// from any.
type WebSocket struct {
	*websocket.Conn
	opts      Options
	closeOnce sync.Once
}

func NewWebSocket(conn *websocket.Conn, opts Options) *WebSocket {
	return &WebSocket{Conn: conn, opts: opts.withDefaults()}
}

func (w *WebSocket) WriteMessage(data []byte) error {
	_ = w.Conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
	return w.Conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocket) WritePing() error {
	return w.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.opts.WriteTimeout))
}

// CloseWith sends a close frame with code and reason, then drops the
// connection.
func (w *WebSocket) CloseWith(code int, reason string) {
	_ = w.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(w.opts.WriteTimeout))
	w.Close()
}

// ReadLoop delivers frames to onMsg until the connection fails. Every frame
// or pong extends the read deadline.
func (w *WebSocket) ReadLoop(onMsg func([]byte)) error {
	w.Conn.SetReadLimit(w.opts.MaxMessageBytes)
	_ = w.Conn.SetReadDeadline(time.Now().Add(w.opts.PongWait))
	w.Conn.SetPongHandler(func(string) error {
		return w.Conn.SetReadDeadline(time.Now().Add(w.opts.PongWait))
	})
	for {
		_, data, err := w.Conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = w.Conn.SetReadDeadline(time.Now().Add(w.opts.PongWait))
		if len(data) > 0 {
			onMsg(data)
		}
	}
}

func (w *WebSocket) Close() {
	w.closeOnce.Do(func() {
		_ = w.Conn.Close()
	})
}

// IsUnexpectedClose reports whether err is worth logging.
func IsUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
