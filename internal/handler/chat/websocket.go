package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eli-ai/eli-backend/internal/service/relay"
)

// WebSocketHandler is the connection front door: it upgrades the
// transport and hands the socket to the relay. All session and
// credential state lives inside the relay instance.
type WebSocketHandler struct {
	relaySvc *relay.Service
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler builds the front door around a relay service.
func NewWebSocketHandler(relaySvc *relay.Service, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		relaySvc: relaySvc,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket entry point.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

// handleWebSocket upgrades and runs one relay session to completion.
// Token checking happens after the upgrade so rejections arrive as a
// websocket close frame the browser can inspect, not a 4xx.
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.relaySvc.HandleConnection(r.Context(), conn, token)
}
