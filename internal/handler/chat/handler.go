package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/eli-ai/eli-backend/internal/middleware"
	chatmodel "github.com/eli-ai/eli-backend/internal/model/chat"
	"github.com/eli-ai/eli-backend/internal/store"
	"github.com/eli-ai/eli-backend/pkg/utils"
)

// Handler serves the persisted chat history.
type Handler struct {
	store store.Store
	log   zerolog.Logger
}

// New creates the history handler.
func New(st store.Store, log zerolog.Logger) *Handler {
	return &Handler{store: st, log: log}
}

// RegisterRoutes registers the history routes. The router is expected
// to already carry the auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chats", h.handleListChats)
	r.Get("/chats/{chatID}", h.handleListEvents)
	r.Get("/chats/{chatID}/analytics", h.handleAnalytics)
}

func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	chats, err := h.store.ListChats(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("list chats failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch chats")
		return
	}
	if chats == nil {
		chats = []chatmodel.Chat{}
	}

	utils.RespondJSON(w, http.StatusOK, chats)
}

// ownedChat loads the chat and enforces that the caller owns it. A
// foreign chat reads as not-found so ids cannot be probed.
func (h *Handler) ownedChat(w http.ResponseWriter, r *http.Request) (chatID string, ok bool) {
	userID, authed := middleware.UserID(r.Context())
	if !authed {
		utils.RespondError(w, http.StatusUnauthorized, "not authenticated")
		return "", false
	}

	chatID = chi.URLParam(r, "chatID")
	c, err := h.store.GetChat(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "chat not found")
			return "", false
		}
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("get chat failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch chat")
		return "", false
	}
	if c.UserID != userID {
		utils.RespondError(w, http.StatusNotFound, "chat not found")
		return "", false
	}
	return chatID, true
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.ownedChat(w, r)
	if !ok {
		return
	}

	events, err := h.store.ListEvents(r.Context(), chatID)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("list events failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch chat events")
		return
	}

	utils.RespondJSON(w, http.StatusOK, events)
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.ownedChat(w, r)
	if !ok {
		return
	}

	averages, err := h.store.EmotionAverages(r.Context(), chatID)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("emotion analytics failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to compute analytics")
		return
	}
	if averages == nil {
		averages = []store.EmotionAverage{}
	}

	utils.RespondJSON(w, http.StatusOK, averages)
}
