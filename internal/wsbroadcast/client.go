package wsbroadcast

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"marketmanager/pkg/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 64
)

// allowedOrigins mirrors internal/api/middleware.CORS's CORS_ALLOWED_ORIGINS
// parsing: empty means allow everything (development default).
var allowedOrigins = loadAllowedOrigins()

func loadAllowedOrigins() map[string]bool {
	origins := map[string]bool{}
	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins[o] = true
			}
		}
	}
	return origins
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowedOrigins) == 0 {
			return true
		}
		return allowedOrigins[origin]
	},
}

// Client is one WebSocket reader/consumer subscribed to a Hub's broadcasts.
// It never receives anything from the browser beyond pings: this feed is
// server-to-client only.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

// ServeWS upgrades an HTTP request to a WebSocket connection and registers
// the resulting Client with hub. Mount under e.g. /ws/status.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.L().Warn("wsbroadcast: upgrade failed", utils.Err(err))
		return
	}

	client := &Client{conn: conn, hub: hub, send: make(chan []byte, sendBufferSize)}
	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump discards any client-sent frames but keeps the read deadline and
// pong handler alive so dead connections are detected and unregistered.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump drains send and forwards each message as its own WebSocket text
// frame, pinging on idle to keep the connection alive.
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
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
