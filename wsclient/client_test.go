package wsclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T, onSubscribe func(first []byte)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// A subscription, if the client sends one, arrives before any
		// server write; give it a short window without blocking clients
		// that send nothing.
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		_, first, err := conn.ReadMessage()
		if err == nil && onSubscribe != nil {
			onSubscribe(first)
		}
		_ = conn.SetReadDeadline(time.Time{})

		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)); err != nil {
			return
		}
		// Keep the connection open briefly so the client's read succeeds
		// before the test tears the server down.
		time.Sleep(50 * time.Millisecond)
	}))
	return srv
}

func TestDialWritesSubscriptionThenReads(t *testing.T) {
	t.Parallel()
	var got []byte
	srv := echoServer(t, func(first []byte) { got = first })
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(t.Context(), url, []byte(`{"subscribe":"book"}`))
	require.NoError(t, err)
	defer c.Close()

	msg, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"hello"}`, string(msg))
	assert.Equal(t, `{"subscribe":"book"}`, string(got))
}

func TestDialWithoutSubscriptionStillConnects(t *testing.T) {
	t.Parallel()
	srv := echoServer(t, nil)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(t.Context(), url, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ReadMessage()
	assert.NoError(t, err)
}

func TestDialFailsOnBadURL(t *testing.T) {
	t.Parallel()
	_, err := Dial(t.Context(), "ws://127.0.0.1:1/nope", nil)
	assert.Error(t, err)
}
