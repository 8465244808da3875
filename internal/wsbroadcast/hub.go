// Package wsbroadcast implements the live status broadcast: a WebSocket
// fan-out of exchange status transitions and fetch completions, grounded on
// internal/websocket.Hub's register/unregister/broadcast channel pattern,
// generalized from trading-pair/balance/notification messages to
// ExchangeStatusTransition/FetchCompleted messages.
package wsbroadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"marketmanager/pkg/utils"
)

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 256))
	},
}

// Hub fans broadcast messages out to every connected WebSocket client.
// Slow clients are dropped rather than allowed to block the fan-out, since
// this feed is best-effort (the HTTP read API remains the authoritative
// source of truth).
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	dropped    atomic.Int64
}

// NewHub builds a Hub. Call Run in its own goroutine before broadcasting.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run is the Hub's main loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log := utils.L().WithComponent("wsbroadcast")
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Debug("client connected", utils.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			targets := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				targets = append(targets, client)
			}
			h.mu.RUnlock()

			var slow []*Client
			for _, client := range targets {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}

			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
				log.Warn("dropped slow websocket clients", utils.Int("count", len(slow)))
			}
		}
	}
}

// Broadcast encodes message as JSON and fans it out to every connected
// client. Non-blocking: if the internal broadcast channel is saturated the
// message is dropped and DroppedMessages is incremented, rather than
// blocking the caller (the Scheduler/Worker/Poller must never block on a
// slow or absent WebSocket consumer).
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		jsonBufferPool.Put(buf)
		utils.L().Error("wsbroadcast: failed to marshal message", utils.Err(err))
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	jsonBufferPool.Put(buf)

	select {
	case h.broadcast <- payload:
	default:
		h.dropped.Add(1)
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages returns the count of broadcasts dropped because the
// internal channel was saturated.
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
