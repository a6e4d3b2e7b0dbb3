package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeUpstream accepts kline stream connections and pushes one frame per
// second until the peer goes away.
func fakeUpstream(t *testing.T, dials *int64) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(dials, 1)
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frame := []byte(`{"e":"kline","s":"BTCUSDT","k":{"i":"1m","c":"45000"}}`)
		for {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func dialClient(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(msg, &m))
		if m["event"] == want || m["stream"] != nil && want == "frame" {
			return m
		}
	}
	t.Fatalf("no %q message before deadline", want)
	return nil
}

func TestSubscribeRelaysUpstreamFrames(t *testing.T) {
	var dials int64
	upstream := fakeUpstream(t, &dials)
	hub := NewHub(wsURL(upstream.URL))
	t.Cleanup(hub.Stop)

	conn := dialClient(t, hub)
	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Symbol: "BTCUSDT", Interval: "1m"}))

	ack := readUntil(t, conn, "subscribed")
	require.Equal(t, "BTCUSDT", ack["symbol"])

	frame := readUntil(t, conn, "frame")
	require.Equal(t, "btcusdt@kline_1m", frame["stream"])
	data := frame["data"].(map[string]any)
	require.Equal(t, "kline", data["e"])
}

func TestUpstreamSharedAcrossClients(t *testing.T) {
	var dials int64
	upstream := fakeUpstream(t, &dials)
	hub := NewHub(wsURL(upstream.URL))
	t.Cleanup(hub.Stop)

	c1 := dialClient(t, hub)
	c2 := dialClient(t, hub)
	for _, c := range []*websocket.Conn{c1, c2} {
		require.NoError(t, c.WriteJSON(controlMessage{Action: "subscribe", Symbol: "BTCUSDT", Interval: "1m"}))
		readUntil(t, c, "subscribed")
		readUntil(t, c, "frame")
	}
	require.Equal(t, int64(1), atomic.LoadInt64(&dials), "one upstream connection serves all clients")
}

func TestLastUnsubscribeClosesUpstream(t *testing.T) {
	var dials int64
	upstream := fakeUpstream(t, &dials)
	hub := NewHub(wsURL(upstream.URL))
	t.Cleanup(hub.Stop)

	conn := dialClient(t, hub)
	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Symbol: "BTCUSDT", Interval: "1m"}))
	readUntil(t, conn, "subscribed")
	readUntil(t, conn, "frame")

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "unsubscribe", Symbol: "BTCUSDT", Interval: "1m"}))
	readUntil(t, conn, "unsubscribed")

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.upstreams) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestBadControlMessages(t *testing.T) {
	hub := NewHub("ws://127.0.0.1:1") // never dialed
	t.Cleanup(hub.Stop)

	conn := dialClient(t, hub)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Symbol: "", Interval: "1m"}))
	errMsg := readUntil(t, conn, "error")
	require.Contains(t, errMsg["error"], "symbol")

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Symbol: "BTCUSDT", Interval: "7m"}))
	errMsg = readUntil(t, conn, "error")
	require.Contains(t, errMsg["error"], "interval")

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "noop"}))
	errMsg = readUntil(t, conn, "error")
	require.Contains(t, errMsg["error"], "unknown action")
}

func TestNormalizeKey(t *testing.T) {
	k, err := normalizeKey(" BTCUSDT ", "1m")
	require.NoError(t, err)
	require.Equal(t, "btcusdt@kline_1m", k.String())

	_, err = normalizeKey("", "1m")
	require.Error(t, err)
	_, err = normalizeKey("BTCUSDT", "2s")
	require.Error(t, err)
}
