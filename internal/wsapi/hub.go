// Package wsapi is the dashboard's real-time push channel (§6.2): a
// websocket hub that fans the operator-facing events out to every
// connected browser tab. The shape is lifted directly from the
// teacher's internal/websocket hub — sync.Pool'd JSON buffers, a
// channel-driven Run loop, and the copy-then-send-then-evict-slow-clients
// technique that keeps a stalled browser tab from blocking broadcast for
// everyone else — retargeted to this domain's four message kinds.
package wsapi

import (
	"bytes"
	"encoding/json"
	"sync"
	"sync/atomic"

	"otcbot/pkg/utils"
)

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// DealUpdateMessage reports a deal's state transition or field change.
type DealUpdateMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// GroupModeUpdateMessage reports a group switching between learning/assisted/active/paused.
type GroupModeUpdateMessage struct {
	Type     string `json:"type"`
	GroupJID string `json:"group_jid"`
	Mode     string `json:"mode"`
}

// NotificationMessage carries an operator-facing alert (auto-pause,
// recovery, suppressed-trigger summary, etc).
type NotificationMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// PriceUpdateMessage reports a fresh aggregated quote.
type PriceUpdateMessage struct {
	Type   string  `json:"type"`
	Source string  `json:"source"`
	Rate   float64 `json:"rate"`
}

// Hub fans out messages to every registered client. The zero value is
// not usable; construct with NewHub.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	dropped uint64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run drives registration, unregistration, and broadcast. Call it in
// its own goroutine: go hub.Run().
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			utils.L().Info("wsapi: client connected", utils.Source("dashboard"), utils.Int("total", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
				atomic.AddUint64(&h.dropped, uint64(len(toRemove)))
				utils.L().Warn("wsapi: evicted slow clients", utils.Int("count", len(toRemove)))
			}
		}
	}
}

// Broadcast marshals message and queues it for every connected client.
// A client whose send buffer is full is dropped rather than letting one
// slow tab stall the others.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		utils.L().Error("wsapi: marshal broadcast message", utils.Err(err))
		jsonBufferPool.Put(buf)
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.broadcast <- msgCopy
}

func (h *Hub) BroadcastDealUpdate(data interface{}) {
	h.Broadcast(&DealUpdateMessage{Type: "dealUpdate", Data: data})
}

func (h *Hub) BroadcastGroupModeUpdate(groupJID, mode string) {
	h.Broadcast(&GroupModeUpdateMessage{Type: "groupModeUpdate", GroupJID: groupJID, Mode: mode})
}

func (h *Hub) BroadcastNotification(data interface{}) {
	h.Broadcast(&NotificationMessage{Type: "notification", Data: data})
}

func (h *Hub) BroadcastPriceUpdate(source string, rate float64) {
	h.Broadcast(&PriceUpdateMessage{Type: "priceUpdate", Source: source, Rate: rate})
}

// ClientCount reports how many browser tabs are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages reports how many client evictions have happened since
// startup, due to a send buffer staying full.
func (h *Hub) DroppedMessages() uint64 {
	return atomic.LoadUint64(&h.dropped)
}
