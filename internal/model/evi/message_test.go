package evi_test

import (
	"testing"

	"github.com/eli-ai/eli-backend/internal/model/chat"
	"github.com/eli-ai/eli-backend/internal/model/evi"
)

func TestParseAssistantMessage(t *testing.T) {
	frame := []byte(`{"type":"assistant_message","message":{"role":"assistant","content":"hi there"},"models":{"prosody":{"scores":{"joy":0.8}}}}`)

	msg, err := evi.Parse(frame)
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}

	if msg.Type != evi.TypeAssistantMessage {
		t.Fatalf("unexpected type: %s", msg.Type)
	}
	if msg.Text() != "hi there" {
		t.Fatalf("unexpected text: %q", msg.Text())
	}
	if got := msg.EmotionScores()["joy"]; got != 0.8 {
		t.Fatalf("unexpected joy score: %v", got)
	}
	if string(msg.Raw) != string(frame) {
		t.Fatalf("raw frame not retained")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		msgType  string
		wantRole chat.Role
		wantKind chat.EventType
		wantOK   bool
	}{
		{evi.TypeUserMessage, chat.RoleUser, chat.EventUserMessage, true},
		{evi.TypeAssistantMessage, chat.RoleAgent, chat.EventAgentMessage, true},
		{evi.TypeAudioOutput, "", "", false},
		{evi.TypeChatMetadata, "", "", false},
		{evi.TypeAssistantEnd, "", "", false},
		{evi.TypeUserInterruption, "", "", false},
		{evi.TypeError, "", "", false},
		{"something_new", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.msgType, func(t *testing.T) {
			msg := &evi.Message{Type: tc.msgType}
			role, kind, ok := msg.Classify()
			if ok != tc.wantOK {
				t.Fatalf("ok: got %v want %v", ok, tc.wantOK)
			}
			if role != tc.wantRole || kind != tc.wantKind {
				t.Fatalf("got %s/%s want %s/%s", role, kind, tc.wantRole, tc.wantKind)
			}
		})
	}
}

func TestEmotionScoresDefaultsEmpty(t *testing.T) {
	msg, err := evi.Parse([]byte(`{"type":"user_message","message":{"role":"user","content":"hello"}}`))
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}

	scores := msg.EmotionScores()
	if scores == nil {
		t.Fatal("expected non-nil score map")
	}
	if len(scores) != 0 {
		t.Fatalf("expected empty score map, got %v", scores)
	}
}
