package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newWSPair upgrades a loopback connection and wraps the server side.
func newWSPair(t *testing.T, queueSize int) (*WSConn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ws := NewWSConn(zap.NewNop(), <-connCh, queueSize)
	t.Cleanup(func() { ws.Close() })
	return ws, client
}

func TestWSConn_DeliversFIFO(t *testing.T) {
	ws, client := newWSPair(t, 4)

	require.NoError(t, ws.Send([]byte("one")))
	require.NoError(t, ws.Send([]byte("two")))
	require.NoError(t, ws.Send([]byte("three")))

	for _, want := range []string{"one", "two", "three"} {
		_ = client.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestWSConn_SendAfterClose(t *testing.T) {
	ws, _ := newWSPair(t, 4)
	require.NoError(t, ws.Close())
	assert.ErrorIs(t, ws.Send([]byte("x")), ErrClosed)
}

func TestWSConn_CloseIsIdempotent(t *testing.T) {
	ws, client := newWSPair(t, 4)
	require.NoError(t, ws.Close())
	_ = ws.Close()

	// the peer observes a close frame
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := client.ReadMessage()
	assert.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestWSConn_Ping(t *testing.T) {
	ws, client := newWSPair(t, 4)

	pinged := make(chan struct{}, 1)
	client.SetPingHandler(func(string) error {
		pinged <- struct{}{}
		return nil
	})
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.NoError(t, ws.Ping())
	select {
	case <-pinged:
	case <-time.After(time.Second):
		t.Fatal("ping not received")
	}
}
