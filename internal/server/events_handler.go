package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/domain"
	"github.com/limiquantix/addrpool/internal/repository/memory"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
	eventPongWait     = 2 * eventPingInterval
)

// EventsHandler streams profile and workload events over a WebSocket.
type EventsHandler struct {
	bus      *memory.EventBus
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(bus *memory.EventBus, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Allow all origins, the API carries no credentials
				return true
			},
		},
		logger: logger.Named("events"),
	}
}

// RegisterRoutes registers the event stream route.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/events", h.handleEvents)
}

// handleEvents handles GET /api/events?type=<prefix>&resource_id=<id>
func (h *EventsHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	typePrefix := r.URL.Query().Get("type")
	resourceID := r.URL.Query().Get("resource_id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	logger := h.logger.With(zap.String("remote_addr", r.RemoteAddr))
	logger.Info("Event stream opened", zap.String("type", typePrefix), zap.String("resource_id", resourceID))

	// The read loop only services control frames and notices the client leaving.
	done := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(eventPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			logger.Info("Event stream closed by client")
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if !matchesEvent(event, typePrefix, resourceID) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug("Failed to write event", zap.Error(err))
				return
			}
		}
	}
}

func matchesEvent(event domain.Event, typePrefix, resourceID string) bool {
	if typePrefix != "" && !strings.HasPrefix(event.Type, typePrefix) {
		return false
	}
	return resourceID == "" || event.ResourceID == resourceID
}
