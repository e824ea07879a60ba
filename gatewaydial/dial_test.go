package gatewaydial

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer upgrades every connection and echoes back any text frame it
// receives, recording each one for assertions.
type echoServer struct {
	mu       sync.Mutex
	received [][]byte
	conn     *websocket.Conn
}

func newEchoServer(t *testing.T) (*httptest.Server, *echoServer) {
	t.Helper()
	es := &echoServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		es.mu.Lock()
		es.conn = ws
		es.mu.Unlock()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			es.mu.Lock()
			es.received = append(es.received, data)
			es.mu.Unlock()
			_ = ws.WriteMessage(mt, data)
		}
	}))
	return srv, es
}

// wsURL rewrites an httptest.Server's http:// base URL to ws://, since
// DialURL is scheme-agnostic and the test server never speaks TLS.
func wsURL(t *testing.T, httpURL string) string {
	t.Helper()
	u, err := url.Parse(httpURL)
	require.NoError(t, err)
	u.Scheme = "ws"
	return u.String()
}

func TestDialConnectsAndFiresOnOpen(t *testing.T) {
	srv, _ := newEchoServer(t)
	defer srv.Close()

	opened := make(chan struct{})
	conn, err := DialURL(wsURL(t, srv.URL), Callbacks{
		OnOpen: func() { close(opened) },
	})
	require.NoError(t, err)
	defer conn.Close(1000)

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("OnOpen did not fire")
	}
}

func TestSendRoundTripsThroughEchoServer(t *testing.T) {
	srv, es := newEchoServer(t)
	defer srv.Close()

	received := make(chan []byte, 1)
	conn, err := DialURL(wsURL(t, srv.URL), Callbacks{
		OnMessage: func(payload []byte) error {
			received <- payload
			return nil
		},
	})
	require.NoError(t, err)
	defer conn.Close(1000)

	require.NoError(t, conn.Send([]byte(`{"op":1}`)))

	select {
	case payload := <-received:
		assert.Equal(t, `{"op":1}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("echoed message never arrived")
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	require.Len(t, es.received, 1)
	assert.Equal(t, `{"op":1}`, string(es.received[0]))
}

func TestCloseIsIdempotentAndSuppressesLocalOnClose(t *testing.T) {
	srv, _ := newEchoServer(t)
	defer srv.Close()

	var onCloseCount int
	var mu sync.Mutex
	conn, err := DialURL(wsURL(t, srv.URL), Callbacks{
		OnClose: func(code int, reason string) {
			mu.Lock()
			onCloseCount++
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	require.NoError(t, conn.Close(1000))
	require.NoError(t, conn.Close(1000))

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, onCloseCount)
}

func TestRemoteCloseFiresOnClose(t *testing.T) {
	srv, es := newEchoServer(t)
	defer srv.Close()

	closed := make(chan int, 1)
	conn, err := DialURL(wsURL(t, srv.URL), Callbacks{
		OnClose: func(code int, reason string) { closed <- code },
	})
	require.NoError(t, err)
	defer conn.Close(1000)

	require.Eventually(t, func() bool {
		es.mu.Lock()
		defer es.mu.Unlock()
		return es.conn != nil
	}, 2*time.Second, 10*time.Millisecond)

	// httptest.Server.Close does not close hijacked WebSocket connections,
	// so the server-side socket is closed directly; the client's read pump
	// then sees a read error.
	es.mu.Lock()
	_ = es.conn.Close()
	es.mu.Unlock()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose did not fire after remote teardown")
	}
}

func TestOnConnReadyFiresBeforeOnOpen(t *testing.T) {
	srv, _ := newEchoServer(t)
	defer srv.Close()

	var order []string
	var mu sync.Mutex
	conn, err := DialURL(wsURL(t, srv.URL), Callbacks{
		OnConnReady: func(c *Conn) {
			mu.Lock()
			order = append(order, "ready")
			mu.Unlock()
		},
		OnOpen: func() {
			mu.Lock()
			order = append(order, "open")
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer conn.Close(1000)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"ready", "open"}, order)
}

func TestGatewayURLBuildsWSSWithVersion(t *testing.T) {
	got := GatewayURL("voice.example.com:443", 7)
	assert.Equal(t, "wss://voice.example.com:443/?v=7", got)
}
