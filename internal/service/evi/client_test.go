package evi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eli-ai/eli-backend/internal/config"
	evimodel "github.com/eli-ai/eli-backend/internal/model/evi"
	"github.com/eli-ai/eli-backend/internal/service/evi"
)

func testConfig(baseURL string) config.HumeConfig {
	return config.HumeConfig{
		APIKey:           "test-key",
		ConfigID:         "cfg-123",
		Granularity:      "word",
		BaseURL:          baseURL,
		HandshakeTimeout: 2 * time.Second,
		IdleTimeout:      2 * time.Second,
	}
}

// fakeEVI upgrades the connection, echoes one assistant message for
// every user_input frame, then closes cleanly.
func fakeEVI(t *testing.T, turns int) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("api_key"); got != "test-key" {
			t.Errorf("missing api_key query param, got %q", got)
		}
		if got := r.URL.Query().Get("granularity"); got != "word" {
			t.Errorf("missing granularity query param, got %q", got)
		}
		if got := r.URL.Query().Get("config_id"); got != "cfg-123" {
			t.Errorf("missing config_id query param, got %q", got)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		for i := 0; i < turns; i++ {
			var input evimodel.UserInput
			if err := conn.ReadJSON(&input); err != nil {
				return
			}
			if input.Type != "user_input" {
				t.Errorf("unexpected inbound type %q", input.Type)
			}
			reply := map[string]any{
				"type":    "assistant_message",
				"message": map[string]string{"role": "assistant", "content": "echo: " + input.Text},
			}
			payload, _ := json.Marshal(reply)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}

		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectSendReceive(t *testing.T) {
	srv := fakeEVI(t, 1)
	defer srv.Close()

	client := evi.NewClient(testConfig(wsURL(srv)))
	sock, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	defer sock.Close()

	if err := sock.SendInput("hello"); err != nil {
		t.Fatalf("SendInput err: %v", err)
	}

	msg, err := sock.Next()
	if err != nil {
		t.Fatalf("Next err: %v", err)
	}
	if msg.Type != evimodel.TypeAssistantMessage {
		t.Fatalf("unexpected type: %s", msg.Type)
	}
	if msg.Text() != "echo: hello" {
		t.Fatalf("unexpected text: %q", msg.Text())
	}
	if len(msg.Raw) == 0 {
		t.Fatal("raw frame missing")
	}
}

func TestNextReportsCleanCloseAsEOF(t *testing.T) {
	srv := fakeEVI(t, 0)
	defer srv.Close()

	client := evi.NewClient(testConfig(wsURL(srv)))
	sock, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	defer sock.Close()

	if _, err := sock.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestConnectRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client := evi.NewClient(testConfig(wsURL(srv)))
	if _, err := client.Connect(context.Background()); !errors.Is(err, evi.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := fakeEVI(t, 0)
	defer srv.Close()

	client := evi.NewClient(testConfig(wsURL(srv)))
	sock, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect err: %v", err)
	}

	if err := sock.Close(); err != nil {
		t.Fatalf("first Close err: %v", err)
	}
	if err := sock.Close(); err != nil {
		t.Fatalf("second Close err: %v", err)
	}
}
