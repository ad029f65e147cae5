package feed

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pricewatch/pricewatch/internal/platform/httpx"
	"github.com/pricewatch/pricewatch/internal/shared"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Handler streams change events to dashboard clients over a WebSocket.
type Handler struct {
	logger   *slog.Logger
	broker   *Broker
	upgrader websocket.Upgrader
}

// NewHandler constructs a feed Handler.
func NewHandler(logger *slog.Logger, broker *Broker) *Handler {
	return &Handler{
		logger: logger,
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// MountRoutes registers the feed endpoint. The auth middleware guarding the
// route guarantees a principal is present.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.stream)
}

// stream upgrades the connection and forwards events for the requested
// tables, e.g. GET /api/feed?tables=product,pricehist.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess == nil || sess.User() == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}

	tables := parseTables(r.URL.Query().Get("tables"))
	if len(tables) == 0 {
		tables = WatchedTables()
	}
	for _, table := range tables {
		if !IsWatched(table) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown table "+table)
			return
		}
	}

	events, err := h.broker.Subscribe(r.Context(), tables...)
	if err != nil {
		h.logger.Error("feed subscribe", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Feed Unavailable", "change feed is temporarily unavailable")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn("feed upgrade", slog.Any("error", err))
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	// Drain client frames so close and pong handling keep working.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func parseTables(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tables := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tables = append(tables, p)
		}
	}
	return tables
}
