package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fleet-backend/internal/hub"
	"fleet-backend/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Observers are dashboards on other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection and bridges it to a hub subscription.
// The connection lives until the client goes away, a write fails, or the hub
// evicts the subscriber.
func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logging.Err(err))
		return
	}

	sub := h.hub.Subscribe()
	h.log.Info("observer connected", slog.String("observer_id", sub.ID().String()))

	go h.writePump(conn, sub)
	h.readPump(conn, sub)
}

// readPump discards inbound frames and detects the peer closing. When the
// read side fails the subscription is torn down, which also stops writePump.
func (h *Handler) readPump(conn *websocket.Conn, sub *hub.Subscriber) {
	defer func() {
		h.hub.Unsubscribe(sub)
		conn.Close()
		h.log.Info("observer disconnected", slog.String("observer_id", sub.ID().String()))
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards hub events to the socket in subscription order and
// keeps the connection alive with pings.
func (h *Handler) writePump(conn *websocket.Conn, sub *hub.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Evicted by the hub or hub shutdown.
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(eventResponse(ev)); err != nil {
				h.hub.Unsubscribe(sub)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unsubscribe(sub)
				return
			}
		}
	}
}
