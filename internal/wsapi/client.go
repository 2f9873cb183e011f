package wsapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"otcbot/pkg/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
	sendBufferSize = 256
)

// OriginChecker does an O(1) allowlist lookup against Origin headers.
type OriginChecker struct {
	allowed  map[string]struct{}
	allowAll bool
}

// NewOriginChecker builds a checker from the configured allowlist. An
// empty list means dev mode: every origin is accepted.
func NewOriginChecker(allowedOrigins []string) *OriginChecker {
	oc := &OriginChecker{allowed: make(map[string]struct{})}
	if len(allowedOrigins) == 0 {
		oc.allowAll = true
		return oc
	}
	for _, o := range allowedOrigins {
		if o != "" {
			oc.allowed[o] = struct{}{}
		}
	}
	return oc
}

func (oc *OriginChecker) Check(origin string) bool {
	if origin == "" {
		return true
	}
	if oc.allowAll {
		return true
	}
	_, ok := oc.allowed[origin]
	return ok
}

// clientPool recycles Client structs across connect/disconnect cycles.
var clientPool = sync.Pool{
	New: func() interface{} {
		return &Client{send: make(chan []byte, sendBufferSize)}
	},
}

// Client is one operator's browser tab. It owns a dedicated read and
// write goroutine, same as every other websocket client in this tree;
// the dashboard never expects inbound commands over this socket, so
// readPump exists only to drive the pong deadline and detect
// disconnects.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.returnToPool()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				utils.L().Debug("wsapi: client read error", utils.Err(err))
			}
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

		drainLoop:
			for {
				select {
				case msg, ok := <-c.send:
					if !ok {
						break drainLoop
					}
					w.Write([]byte{'\n'})
					w.Write(msg)
				default:
					break drainLoop
				}
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) returnToPool() {
	c.conn = nil
	c.hub = nil
	for len(c.send) > 0 {
		<-c.send
	}
	clientPool.Put(c)
}

// ServeWS upgrades an HTTP request to a websocket connection, registers
// the resulting client with hub, and starts its pumps. Wire it into the
// dashboard router behind the same auth middleware as the rest of the
// API; there is no per-connection credential beyond that.
func ServeWS(hub *Hub, originChecker *OriginChecker, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			return originChecker.Check(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.L().Warn("wsapi: upgrade failed", utils.Err(err))
		return
	}

	client := clientPool.Get().(*Client)
	client.conn = conn
	client.hub = hub
	for len(client.send) > 0 {
		<-client.send
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
