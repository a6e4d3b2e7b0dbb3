package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betfold/papertrade/pkg/logger"
)

const (
	upstreamHandshakeTimeout = 15 * time.Second
	upstreamReadTimeout      = 60 * time.Second
	upstreamRedialDelay      = 2 * time.Second
)

var validIntervals = map[string]bool{
	"1s": true, "1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

type streamKey struct {
	symbol   string // lower case, e.g. "btcusdt"
	interval string
}

func (k streamKey) String() string {
	return fmt.Sprintf("%s@kline_%s", k.symbol, k.interval)
}

// Hub relays candlestick streams from the upstream exchange to local
// websocket clients. One upstream connection exists per (symbol, interval)
// pair regardless of how many clients watch it; the connection is opened
// when the first client subscribes and torn down when the last one leaves.
type Hub struct {
	upstreamURL string

	mu        sync.Mutex
	upstreams map[streamKey]*upstream

	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry
}

// upstream is one refcounted exchange connection with its fan-out set.
type upstream struct {
	key     streamKey
	subs    map[*Client]bool
	cancel  context.CancelFunc
	done    chan struct{}
	connMu  sync.Mutex
	conn    *websocket.Conn
}

func NewHub(upstreamURL string) *Hub {
	if upstreamURL == "" {
		upstreamURL = "wss://stream.binance.com:9443/ws"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		upstreamURL: strings.TrimRight(upstreamURL, "/"),
		upstreams:   make(map[streamKey]*upstream),
		ctx:         ctx,
		cancel:      cancel,
		log:         logger.WithField("component", "stream"),
	}
}

// Stop tears down every upstream connection and waits for their readers.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	ups := make([]*upstream, 0, len(h.upstreams))
	for _, up := range h.upstreams {
		ups = append(ups, up)
	}
	h.upstreams = make(map[streamKey]*upstream)
	h.mu.Unlock()

	for _, up := range ups {
		up.cancel()
		up.closeConn()
		<-up.done
	}
}

func (h *Hub) subscribe(c *Client, symbol, interval string) error {
	key, err := normalizeKey(symbol, interval)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	up, ok := h.upstreams[key]
	if !ok {
		upCtx, upCancel := context.WithCancel(h.ctx)
		up = &upstream{
			key:    key,
			subs:   make(map[*Client]bool),
			cancel: upCancel,
			done:   make(chan struct{}),
		}
		h.upstreams[key] = up
		go h.runUpstream(upCtx, up)
		h.log.Infof("upstream %s opened", key)
	}
	up.subs[c] = true
	c.streams[key] = true
	return nil
}

func (h *Hub) unsubscribe(c *Client, symbol, interval string) error {
	key, err := normalizeKey(symbol, interval)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.dropSub(c, key)
	h.mu.Unlock()
	return nil
}

// dropClient removes the client from every stream it watches. Called on
// disconnect with the client's own stream set.
func (h *Hub) dropClient(c *Client) {
	h.mu.Lock()
	for key := range c.streams {
		h.dropSub(c, key)
	}
	h.mu.Unlock()
}

// dropSub must run under h.mu. Closing the last subscriber shuts the
// upstream down.
func (h *Hub) dropSub(c *Client, key streamKey) {
	delete(c.streams, key)
	up, ok := h.upstreams[key]
	if !ok {
		return
	}
	delete(up.subs, c)
	if len(up.subs) == 0 {
		delete(h.upstreams, key)
		up.cancel()
		up.closeConn()
		h.log.Infof("upstream %s closed, no subscribers left", key)
	}
}

// runUpstream dials the exchange stream and fans every frame out to the
// current subscriber set, redialing on read errors until cancelled.
func (h *Hub) runUpstream(ctx context.Context, up *upstream) {
	defer close(up.done)

	wsURL := h.upstreamURL + "/" + up.key.String()
	dialer := websocket.Dialer{HandshakeTimeout: upstreamHandshakeTimeout}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			h.log.Warnf("dial %s: %v", wsURL, err)
			select {
			case <-time.After(upstreamRedialDelay):
				continue
			case <-ctx.Done():
				return
			}
		}

		up.connMu.Lock()
		up.conn = conn
		up.connMu.Unlock()

		h.readLoop(ctx, up, conn)

		up.connMu.Lock()
		if up.conn == conn {
			up.conn = nil
		}
		up.connMu.Unlock()
		_ = conn.Close()

		select {
		case <-time.After(upstreamRedialDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, up *upstream, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(upstreamReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				h.log.Warnf("upstream %s read: %v", up.key, err)
			}
			return
		}
		h.fanOut(up, msg)
	}
}

func (h *Hub) fanOut(up *upstream, msg []byte) {
	h.mu.Lock()
	subs := make([]*Client, 0, len(up.subs))
	for c := range up.subs {
		subs = append(subs, c)
	}
	h.mu.Unlock()

	frame := relayFrame{Stream: up.key.String(), Data: json.RawMessage(msg)}
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	for _, c := range subs {
		c.enqueue(payload)
	}
}

type relayFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

func normalizeKey(symbol, interval string) (streamKey, error) {
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	interval = strings.TrimSpace(interval)
	if symbol == "" {
		return streamKey{}, fmt.Errorf("symbol is required")
	}
	if !validIntervals[interval] {
		return streamKey{}, fmt.Errorf("unknown interval %q", interval)
	}
	return streamKey{symbol: symbol, interval: interval}, nil
}

func (up *upstream) closeConn() {
	up.connMu.Lock()
	if up.conn != nil {
		_ = up.conn.Close()
		up.conn = nil
	}
	up.connMu.Unlock()
}
