package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Path is the well-known upgrade path off the REST origin.
const Path = "/ws/updates"

// Heartbeat is the inbound keepalive payload. The server accepts it and
// replies with nothing; it only keeps intermediary proxies from closing an
// idle connection.
const Heartbeat = "ping"

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	// Same-origin policy is handled by the permissive CORS setup; the update
	// stream carries no secrets.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn adapts a gorilla connection to the hub's Conn interface. Writes are
// serialized; gorilla allows only one concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// Handler upgrades the request and keeps the connection registered until the
// client goes away. Inbound frames, heartbeats included, are drained and
// ignored; all retry intelligence lives client-side.
func Handler(hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		conn := &wsConn{ws: ws}
		hub.Register(conn)
		defer func() {
			hub.Unregister(conn)
			_ = ws.Close()
		}()

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return nil
			}
		}
	}
}
