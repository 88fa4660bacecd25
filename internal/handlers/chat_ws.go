package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AnshRaj112/learnhub-chat/internal/models"
	"github.com/AnshRaj112/learnhub-chat/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer in front of the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsClientMessage is what the UI may send over the event stream.
type EventsClientMessage struct {
	Type     string `json:"type"` // "typing", "ping"
	IsTyping bool   `json:"isTyping,omitempty"`
}

// EventsWebSocket handles GET /ws/events
// Every connection receives the current session first, then all workspace events.
func (h *ChatHandler) EventsWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.ws.Events.Register()
	initial, err := json.Marshal(models.Event{
		Type:      models.EventSession,
		Payload:   h.ws.Session.Snapshot(),
		Timestamp: time.Now().UTC(),
	})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, initial)
	}

	go h.writePump(conn, client)
	h.readPump(conn, client)
}

func (h *ChatHandler) readPump(conn *websocket.Conn, client *services.EventClient) {
	defer func() {
		h.ws.Events.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("client_id", client.ID).Msg("event stream read error")
			}
			return
		}

		var msg EventsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "typing":
			if err := h.ws.Session.SetTyping(msg.IsTyping); err != nil {
				h.log.Debug().Err(err).Msg("typing ignored")
			}
		case "ping":
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
}

func (h *ChatHandler) writePump(conn *websocket.Conn, client *services.EventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	events := client.Events()
	for {
		select {
		case data, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
