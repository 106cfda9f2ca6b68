// Package relay accepts a single inbound WebSocket connection carrying a
// pre-normalized book/trade feed (adapter.InboundMessage records) and
// routes each record, by pair, to the adapter.Relay instance registered
// for that pair. This is the inbound half of the transport the outbound
// supervisor.Task/wsclient pair handles for native exchange connections.
// Unlike wsclient, it sets no read/write deadlines and sends no pings.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wdg3/prism/adapter"
	"github.com/wdg3/prism/applog"
)

// Listener accepts one inbound relay connection at a time on addr and
// dispatches its InboundMessage records to the adapter.Relay registered
// for each record's pair.
type Listener struct {
	addr     string
	upgrader websocket.Upgrader
	log      *applog.Logger

	mu     sync.Mutex
	relays map[string]*adapter.Relay

	active   sync.Mutex // held for the duration of a single accepted connection
	srv      *http.Server
}

// NewListener returns a Listener bound to addr (e.g. "0.0.0.0:6969").
func NewListener(addr string) *Listener {
	return &Listener{
		addr:   addr,
		relays: make(map[string]*adapter.Relay),
		log:    applog.New("relay"),
	}
}

// Register associates pair with the adapter.Relay that should receive its
// InboundMessage records. Must be called before Run accepts a connection
// that references pair.
func (l *Listener) Register(pair string, r *adapter.Relay) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.relays[pair] = r
}

func (l *Listener) relayFor(pair string) (*adapter.Relay, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.relays[pair]
	return r, ok
}

// Run blocks, serving upgrade requests on addr until ctx is canceled.
// Only one connection is served at a time: a second inbound attempt is
// rejected with 503 while the first is active, per the single-producer
// assumption of the feed this listener accepts.
func (l *Listener) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handle)
	l.srv = &http.Server{Addr: l.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("relay: listen on %s: %w", l.addr, err)
		}
		return nil
	}
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	if !l.active.TryLock() {
		http.Error(w, "relay: connection already active", http.StatusServiceUnavailable)
		return
	}
	defer l.active.Unlock()

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.log.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()
	if tcpConn, ok := conn.UnderlyingConn().(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	l.log.Infof("accepted relay connection from %s", r.RemoteAddr)
	l.consume(conn)
	l.log.Infof("relay connection from %s closed", r.RemoteAddr)
}

func (l *Listener) consume(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		l.handleMessage(raw)
	}
}

// handleMessage decodes one record and dispatches it to the registered
// relay. Decoding is the only step wrapped in recover: a malformed frame
// should be logged and skipped, same as any other Parse-class error.
// Dispatch (r.Update/r.Trade) is deliberately left unrecovered — a
// DesyncError, ErrCapacityExceeded, or out-of-range book index there is
// Configuration- or Desync-class and must propagate and kill the process,
// not be swallowed as if it were a bad frame.
func (l *Listener) handleMessage(raw []byte) {
	msg, ok := l.decodeMessage(raw)
	if !ok {
		return
	}
	r, ok := l.relayFor(msg.Pair)
	if !ok {
		l.log.Warnf("no relay registered for pair %q", msg.Pair)
		return
	}

	if msg.Sent > 0 {
		latency := time.Since(time.UnixMilli(msg.Sent))
		l.log.Debugf("%s latency=%v", msg.Pair, latency)
	}

	ctx := context.Background()
	var dispatchErr error
	switch msg.MessageType {
	case "book":
		dispatchErr = r.Update(ctx, raw)
	case "trade":
		dispatchErr = r.Trade(ctx, raw)
	default:
		l.log.Warnf("%s: unknown message_type %q", msg.Pair, msg.MessageType)
		return
	}
	if dispatchErr != nil {
		l.log.Errorf("%s: %v", msg.Pair, dispatchErr)
	}
}

// decodeMessage unmarshals raw into an InboundMessage, recovering any
// panic that surfaces from malformed input during decoding. ok is false
// on both a returned error and a recovered panic.
func (l *Listener) decodeMessage(raw []byte) (msg adapter.InboundMessage, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			l.log.Errorf("recovered panic decoding relay message: %v", p)
			ok = false
		}
	}()

	if err := json.Unmarshal(raw, &msg); err != nil {
		l.log.Errorf("decode inbound message: %v", err)
		return adapter.InboundMessage{}, false
	}
	return msg, true
}
