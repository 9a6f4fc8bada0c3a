package swapevents

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/klingon-exchange/atomiq-core/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent is the JSON shape pushed to WebSocket clients.
type wireEvent struct {
	Kind      string      `json:"kind"`
	SwapID    string      `json:"swap_id"`
	State     int32       `json:"state"`
	Timestamp int64       `json:"timestamp"`
	Swap      interface{} `json:"swap,omitempty"`
}

// Relay re-publishes Bus events to every connected WebSocket client
// with a register/unregister/broadcast hub — this is the optional external push surface; the primary subscription
// API for in-process consumers is Bus.Subscribe, not this.
type Relay struct {
	bus *Bus
	log *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewRelay wraps a Bus with a WebSocket broadcast hub.
func NewRelay(bus *Bus) *Relay {
	return &Relay{
		bus:     bus,
		log:     logging.GetDefault().Component("swapevents-relay"),
		clients: make(map[*wsClient]struct{}),
	}
}

// Run subscribes to the bus and fans events out to connected clients until
// ctx-equivalent shutdown is signalled by closing stop.
func (r *Relay) Run(stop <-chan struct{}) {
	events, unsubscribe := r.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-stop:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			r.broadcast(evt)
		}
	}
}

func (r *Relay) broadcast(evt SwapEvent) {
	we := wireEvent{
		Kind:      evt.Kind.String(),
		Timestamp: time.Now().Unix(),
	}
	if evt.Swap != nil {
		we.SwapID = evt.Swap.ID
		we.State = evt.Swap.State
		we.Swap = evt.Swap
	}

	data, err := json.Marshal(we)
	if err != nil {
		r.log.Debug("failed to marshal swap event", "error", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams events to it
// until the connection closes.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 32)}
	r.mu.Lock()
	r.clients[client] = struct{}{}
	r.mu.Unlock()

	go r.writePump(client)
	r.readPump(client)
}

func (r *Relay) writePump(c *wsClient) {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (r *Relay) readPump(c *wsClient) {
	defer func() {
		r.mu.Lock()
		delete(r.clients, c)
		close(c.send)
		r.mu.Unlock()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
