package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/repcount/internal/app"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is the envelope written to WebSocket clients.
type Message struct {
	Type string      `json:"type"` // "snapshot" or "tick"
	Data interface{} `json:"data"`
}

// EventsHandler streams session events to WebSocket clients. Each client
// receives a snapshot on connect and then every tick.
type EventsHandler struct {
	session *app.Session
}

// NewEventsHandler creates a new EventsHandler for the session.
func NewEventsHandler(s *app.Session) *EventsHandler {
	return &EventsHandler{session: s}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.session.Subscribe()
	defer unsubscribe()

	logger := log.WithField("remote", r.RemoteAddr)
	logger.Debug("events client connected")
	defer logger.Debug("events client disconnected")

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Message{Type: "snapshot", Data: h.session.Snapshot()}); err != nil {
		return
	}

	// Reading detects when the client goes away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Message{Type: "tick", Data: ev}); err != nil {
				logger.WithError(err).Debug("events write failed")
				return
			}
		}
	}
}
