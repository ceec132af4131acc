package broadcast

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	observerWriteWait   = 10 * time.Second
	observerPingPeriod  = 30 * time.Second
	observerPongWait    = 60 * time.Second
)

// ObserverHandler upgrades HTTP connections to websockets and streams every
// Hub event to the connected client until it disconnects or the hub closes
// its channel. Observers are read-only: anything the client sends is
// discarded, it exists only to keep the connection's read deadline alive
// via pong frames.
type ObserverHandler struct {
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewObserverHandler returns an http.Handler serving the broadcast stream.
func NewObserverHandler(hub *Hub, logger *slog.Logger) *ObserverHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObserverHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *ObserverHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	clientID := uuid.NewString()
	events := h.hub.RegisterClient(clientID)

	go h.discardReads(conn, clientID)
	h.writeLoop(conn, clientID, events)
}

// discardReads drains and ignores client frames, only using them to extend
// the read deadline via the pong handler. When the client disconnects the
// read returns an error and we unregister, which in turn closes the events
// channel and unblocks writeLoop.
func (h *ObserverHandler) discardReads(conn *websocket.Conn, clientID string) {
	_ = conn.SetReadDeadline(time.Now().Add(observerPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(observerPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.UnregisterClient(clientID)
			return
		}
	}
}

func (h *ObserverHandler) writeLoop(conn *websocket.Conn, clientID string, events <-chan Envelope) {
	ticker := time.NewTicker(observerPingPeriod)
	defer func() {
		ticker.Stop()
		h.hub.UnregisterClient(clientID)
		_ = conn.Close()
	}()

	for {
		select {
		case env, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(env)
			if err != nil {
				h.logger.Error("broadcast: failed to encode envelope", "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(observerWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(observerWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
