// Package wsclient wraps github.com/gorilla/websocket for the outbound
// connections supervisor dials against each exchange: dial once, write a
// subscription frame if one was given, then hand back a thin ReadMessage
// loop that folds every failure mode into one terminating error. The relay
// listener's inbound connection does not go through this package.
package wsclient

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// Default timeouts, grounded in common exchange/websocket
// connection-management conventions (ping interval well under the read
// deadline, so a live connection never trips it).
const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadTimeout  = 60 * time.Second
	DefaultPingInterval = 20 * time.Second
)

// Client is a single WebSocket connection plus the read/write deadlines
// that keep a silently-dead TCP connection from hanging a reconnect loop forever.
type Client struct {
	conn         *websocket.Conn
	readTimeout  time.Duration
	pingInterval time.Duration
	stopPing     chan struct{}
}

// Dial connects to url, optionally writes subscribe as the first text
// frame, and starts a background ping loop. The caller owns the returned
// Client and must call Close when done with it.
func Dial(ctx context.Context, url string, subscribe []byte) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultWriteTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wsclient: dial %s: %w", url, err)
	}
	if tcpConn, ok := conn.UnderlyingConn().(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	c := &Client{
		conn:         conn,
		readTimeout:  DefaultReadTimeout,
		pingInterval: DefaultPingInterval,
		stopPing:     make(chan struct{}),
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	if len(subscribe) > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, subscribe); err != nil {
			conn.Close()
			return nil, fmt.Errorf("wsclient: write subscription: %w", err)
		}
	}

	go c.pingLoop()
	return c, nil
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopPing:
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadMessage blocks for the next frame. Any close, deadline, or protocol
// error from the underlying connection is surfaced as a single terminating
// error — per the transport error-handling class, the caller's response is
// uniformly "log and reconnect," so the distinction between an expected
// peer close and an unexpected one is not exposed here.
func (c *Client) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err,
			websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
			return nil, fmt.Errorf("wsclient: unexpected close: %w", err)
		}
		return nil, fmt.Errorf("wsclient: read: %w", err)
	}
	return data, nil
}

// Close stops the ping loop and closes the underlying connection.
func (c *Client) Close() error {
	close(c.stopPing)
	return c.conn.Close()
}
