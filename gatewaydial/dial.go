// Package gatewaydial provides a concrete gateway.Conn backed by
// github.com/gorilla/websocket, the client-side counterpart to the
// write-pump/read-pump split the dkeye-Voice example's
// internal/adapters/ws_signal.go uses server-side (wsSignalConn, writePump,
// readPump). The FSM never imports this package directly; the orchestrator
// wires it in as the concrete gateway.Conn implementation.
package gatewaydial

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 5 * time.Second
	handshakeWait  = 10 * time.Second
	sendBufferSize = 32
)

// Callbacks are invoked from the read-pump goroutine as frames and the
// close event arrive. OnMessage errors are logged but never tear down the
// connection; only a read error or an explicit Close does that.
type Callbacks struct {
	// OnConnReady, if set, runs synchronously before the pump goroutines
	// start and before OnOpen fires, with the Conn that Dial is about to
	// return. A caller that proxies Send/Close through a placeholder (so
	// the FSM can be constructed before the Conn exists) installs the real
	// Conn here, closing the window where OnOpen could otherwise trigger a
	// Send against a proxy that has no Conn installed yet.
	OnConnReady func(*Conn)
	OnOpen      func()
	OnMessage   func(payload []byte) error
	OnClose     func(code int, reason string)
}

// Conn wraps one client WebSocket connection to a voice gateway endpoint.
// It implements gateway.Conn (Send, Close) without importing the gateway
// package, keeping the dependency direction one-way.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	cb   Callbacks

	closeOnce  sync.Once
	localClose atomic.Bool
	done       chan struct{}
}

// GatewayURL builds the wss:// URL for a voice gateway endpoint (a bare
// host:port, as delivered in a VOICE_SERVER_UPDATE payload) and API
// version.
func GatewayURL(endpoint string, version int) string {
	u := url.URL{
		Scheme:   "wss",
		Host:     endpoint,
		Path:     "/",
		RawQuery: fmt.Sprintf("v=%d", version),
	}
	return u.String()
}

// Dial opens a client WebSocket connection to the given voice gateway
// endpoint and API version and starts the write-pump and read-pump
// goroutines. The returned Conn is ready for use as soon as Dial returns;
// cb.OnConnReady fires first (synchronously, before the pumps start), then
// cb.OnOpen fires before Dial returns.
func Dial(endpoint string, version int, cb Callbacks) (*Conn, error) {
	return DialURL(GatewayURL(endpoint, version), cb)
}

// DialURL is the scheme-agnostic entry point Dial builds on; it exists
// separately so tests can target a plain ws:// loopback server without
// needing a TLS listener.
func DialURL(wsURL string, cb Callbacks) (*Conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: handshakeWait}
	ws, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gatewaydial: dial %s: %w", wsURL, err)
	}

	c := &Conn{
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		cb:   cb,
		done: make(chan struct{}),
	}

	if cb.OnConnReady != nil {
		cb.OnConnReady(c)
	}

	go c.writePump()
	go c.readPump()

	if cb.OnOpen != nil {
		cb.OnOpen()
	}

	return c, nil
}

// Send enqueues one text frame for the write pump. It never blocks past
// the send buffer's capacity; a full buffer indicates the connection is
// unhealthy and the frame is dropped with an error.
func (c *Conn) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return fmt.Errorf("gatewaydial: connection closed")
	default:
		return fmt.Errorf("gatewaydial: send buffer full")
	}
}

// Close sends a WebSocket close frame with the given close code and tears
// down both pump goroutines. Idempotent. Since this is a locally-initiated
// close, the resulting read error in readPump does not trigger OnClose at
// all.
func (c *Conn) Close(code int) error {
	c.localClose.Store(true)
	var err error
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(code, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Conn.writePump",
					"error":    err.Error(),
				}).Warn("failed to set write deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Conn.writePump",
					"error":    err.Error(),
				}).Warn("voice gateway write failed")
				return
			}
		}
	}
}

func (c *Conn) readPump() {
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			wasLocal := c.localClose.Load()
			code, reason := classifyReadError(err)
			c.closeOnce.Do(func() {
				close(c.done)
				_ = c.ws.Close()
			})
			if !wasLocal && c.cb.OnClose != nil {
				c.cb.OnClose(code, reason)
			}
			return
		}
		if c.cb.OnMessage != nil {
			if err := c.cb.OnMessage(payload); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Conn.readPump",
					"error":    err.Error(),
				}).Warn("voice gateway message handler failed")
			}
		}
	}
}

func classifyReadError(err error) (int, string) {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
