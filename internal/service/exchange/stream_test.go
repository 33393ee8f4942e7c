package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xlogger "MarketPulse/pkg/logger"
)

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

// The server drops the first connection right after the subscribe frame and
// serves a trade on the second, so a tick arriving proves the read loop
// redialed and resubscribed on its own.
func TestStreamRedialsAfterReadError(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		// subscribe frame
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
		if conns.Add(1) == 1 {
			return // drop the first connection
		}
		frame := `{"e":"trade","s":"BTCUSDT","p":"67000.1","q":"0.02","T":1700000000000}`
		_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
		// hold the connection open until the client goes away
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewStream(wsURL, []string{"BTC"}, 10*time.Millisecond, time.Minute, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Subscribe(ctx))

	ticks, errs := s.Read(ctx)

	select {
	case tk := <-ticks:
		require.NotNil(t, tk)
		assert.Equal(t, "BTC", tk.Symbol)
		assert.Equal(t, 67000.1, tk.Price)
	case <-time.After(5 * time.Second):
		t.Fatal("no tick after the connection was dropped")
	}

	// the read error from the dropped connection was surfaced
	select {
	case err := <-errs:
		assert.Error(t, err)
	default:
		// already consumed is fine too; only delivery of ticks is required
	}

	assert.True(t, s.IsConnected())

	cancel()
	_ = s.Close()
}

func TestParseTickRejectsMalformedFields(t *testing.T) {
	assert.Nil(t, parseTick(&wsTrade{Symbol: "BTCUSDT", Price: "abc", Qty: "1"}))
	assert.Nil(t, parseTick(&wsTrade{Symbol: "BTCUSDT", Price: "1", Qty: ""}))

	tk := parseTick(&wsTrade{Symbol: "ETHUSDT", Price: "3500.5", Qty: "0.25", TimeMs: 1700000000000})
	require.NotNil(t, tk)
	assert.Equal(t, "ETH", tk.Symbol)
	assert.Equal(t, int64(1700000000), tk.Timestamp)
}
