package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientWriteTimeout = 10 * time.Second
	clientPongTimeout  = 60 * time.Second
	clientPingPeriod   = 50 * time.Second
	clientSendBuffer   = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect cross-origin from the web UI.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client is one local websocket consumer. It subscribes and unsubscribes
// to candlestick streams with JSON control messages and receives relayed
// frames on its send queue.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	streams map[streamKey]bool
}

type controlMessage struct {
	Action   string `json:"action"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

type ackMessage struct {
	Event    string `json:"event"`
	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ServeWS upgrades the request and runs the client's read and write pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("upgrade: %v", err)
		return
	}

	c := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, clientSendBuffer),
		done:    make(chan struct{}),
		streams: make(map[streamKey]bool),
	}
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.dropClient(c)
		close(c.done)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(clientPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(clientPongTimeout))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var ctl controlMessage
		if err := json.Unmarshal(msg, &ctl); err != nil {
			c.ack(ackMessage{Event: "error", Error: "malformed message"})
			continue
		}
		c.handle(ctl)
	}
}

func (c *Client) handle(ctl controlMessage) {
	switch ctl.Action {
	case "subscribe":
		if err := c.hub.subscribe(c, ctl.Symbol, ctl.Interval); err != nil {
			c.ack(ackMessage{Event: "error", Symbol: ctl.Symbol, Interval: ctl.Interval, Error: err.Error()})
			return
		}
		c.ack(ackMessage{Event: "subscribed", Symbol: ctl.Symbol, Interval: ctl.Interval})
	case "unsubscribe":
		if err := c.hub.unsubscribe(c, ctl.Symbol, ctl.Interval); err != nil {
			c.ack(ackMessage{Event: "error", Symbol: ctl.Symbol, Interval: ctl.Interval, Error: err.Error()})
			return
		}
		c.ack(ackMessage{Event: "unsubscribed", Symbol: ctl.Symbol, Interval: ctl.Interval})
	default:
		c.ack(ackMessage{Event: "error", Error: "unknown action"})
	}
}

func (c *Client) ack(m ackMessage) {
	if payload, err := json.Marshal(m); err == nil {
		c.enqueue(payload)
	}
}

// enqueue drops the frame if the client's queue is full or the client is
// gone; a slow consumer never backs up the upstream reader.
func (c *Client) enqueue(payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(clientPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(clientWriteTimeout))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
