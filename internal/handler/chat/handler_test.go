package chat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eli-ai/eli-backend/internal/auth"
	chathandler "github.com/eli-ai/eli-backend/internal/handler/chat"
	"github.com/eli-ai/eli-backend/internal/middleware"
	chatmodel "github.com/eli-ai/eli-backend/internal/model/chat"
	"github.com/eli-ai/eli-backend/internal/store"
)

const testSecret = "handler-test-secret"

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newServer(t *testing.T, st store.Store) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.RequireAuth(auth.NewVerifier(testSecret)))
		chathandler.New(st, zerolog.Nop()).RegisterRoutes(api)
	})
	return httptest.NewServer(r)
}

func seedChat(t *testing.T, st *store.MemoryStore, userID string) *chatmodel.Chat {
	t.Helper()
	ctx := context.Background()

	group, err := st.CreateGroup(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateGroup err: %v", err)
	}
	c, err := st.CreateChat(ctx, group.ID, userID, time.Now().UTC())
	if err != nil {
		t.Fatalf("CreateChat err: %v", err)
	}

	ev := &chatmodel.Event{
		ID:              uuid.NewString(),
		ChatID:          c.ID,
		Timestamp:       time.Now().UTC(),
		Role:            chatmodel.RoleUser,
		Type:            chatmodel.EventUserMessage,
		MessageText:     "hello",
		EmotionFeatures: map[string]float64{"joy": 0.5},
	}
	if err := st.AppendEvent(ctx, ev); err != nil {
		t.Fatalf("AppendEvent err: %v", err)
	}
	return c
}

func get(t *testing.T, srv *httptest.Server, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestListChats(t *testing.T) {
	st := store.NewMemoryStore()
	seedChat(t, st, "user-1")
	seedChat(t, st, "someone-else")
	srv := newServer(t, st)
	defer srv.Close()

	resp := get(t, srv, "/api/chats", tokenFor(t, "user-1"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var chats []chatmodel.Chat
	if err := json.NewDecoder(resp.Body).Decode(&chats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(chats))
	}
	if chats[0].UserID != "user-1" {
		t.Fatalf("leaked another user's chat: %+v", chats[0])
	}
}

func TestListEventsRequiresOwnership(t *testing.T) {
	st := store.NewMemoryStore()
	c := seedChat(t, st, "owner")
	srv := newServer(t, st)
	defer srv.Close()

	resp := get(t, srv, "/api/chats/"+c.ID, tokenFor(t, "intruder"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign chat should read as not found, got %d", resp.StatusCode)
	}

	resp = get(t, srv, "/api/chats/"+c.ID, tokenFor(t, "owner"))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner read failed: %d", resp.StatusCode)
	}
	var events []chatmodel.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].MessageText != "hello" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestAnalytics(t *testing.T) {
	st := store.NewMemoryStore()
	c := seedChat(t, st, "user-1")
	srv := newServer(t, st)
	defer srv.Close()

	resp := get(t, srv, "/api/chats/"+c.ID+"/analytics", tokenFor(t, "user-1"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var averages []store.EmotionAverage
	if err := json.NewDecoder(resp.Body).Decode(&averages); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(averages) != 1 || averages[0].Emotion != "joy" || averages[0].AverageScore != 0.5 {
		t.Fatalf("unexpected analytics: %+v", averages)
	}
}

func TestHistoryRequiresToken(t *testing.T) {
	srv := newServer(t, store.NewMemoryStore())
	defer srv.Close()

	resp := get(t, srv, "/api/chats", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = get(t, srv, "/api/chats", "garbage")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 with bad token, got %d", resp.StatusCode)
	}
}
