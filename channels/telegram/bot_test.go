package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	conduit "github.com/nevindra/conduit"
)

func newTestBot(t *testing.T, handler http.HandlerFunc) *Bot {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Bot{token: "TEST", httpClient: srv.Client(), baseURL: srv.URL + "/bot", logger: slog.New(slog.DiscardHandler)}
}

func TestBotSendReplySplitsLongMessages(t *testing.T) {
	var calls int
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	long := strings.Repeat("a", maxMessageLength+10)
	err := bot.SendReply(context.Background(), long, conduit.Destination{ChatID: "1"}, conduit.ChannelMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected 2 sendMessage calls for an over-limit message, got %d", calls)
	}
}

func TestBotSendReplyFallsBackToPlainText(t *testing.T) {
	var bodies []map[string]any
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		if body["parse_mode"] == "HTML" {
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"can't parse entities"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	err := bot.SendReply(context.Background(), "hello", conduit.Destination{ChatID: "1"}, conduit.ChannelMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bodies) != 2 {
		t.Fatalf("expected an HTML attempt then a plain-text fallback, got %d calls", len(bodies))
	}
	if _, hasParseMode := bodies[1]["parse_mode"]; hasParseMode {
		t.Error("fallback call should not set parse_mode")
	}
}

func TestBotAcknowledgeSendsTyping(t *testing.T) {
	var gotAction string
	bot := newTestBot(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gotAction, _ = body["action"].(string)
		w.Write([]byte(`{"ok":true}`))
	})

	if err := bot.Acknowledge(context.Background(), conduit.Destination{ChatID: "1"}, conduit.ChannelMeta{}); err != nil {
		t.Fatal(err)
	}
	if gotAction != "typing" {
		t.Errorf("expected typing action, got %q", gotAction)
	}
}

func TestNormalizeUsesTextThenCaption(t *testing.T) {
	bot := New("TEST")
	msg := &Message{MessageID: 5, Chat: Chat{ID: 42}, From: &User{ID: 7, FirstName: "Ann"}, Caption: "a photo"}
	event, ok := bot.normalize(msg)
	if !ok {
		t.Fatal("expected normalize to accept a caption-only message")
	}
	if event.Message != "a photo" {
		t.Errorf("expected caption to be used as message text, got %q", event.Message)
	}
	if event.SessionKey != "telegram-42" {
		t.Errorf("expected chat-scoped session key, got %q", event.SessionKey)
	}
}

func TestNormalizeDropsEmptyMessages(t *testing.T) {
	bot := New("TEST")
	_, ok := bot.normalize(&Message{MessageID: 1, Chat: Chat{ID: 1}})
	if ok {
		t.Error("expected a message with no text or caption to be dropped")
	}
}

func TestNormalizeFiltersByAllowedUserID(t *testing.T) {
	bot := New("TEST", WithAllowedUserID("99"))
	_, ok := bot.normalize(&Message{MessageID: 1, Chat: Chat{ID: 1}, From: &User{ID: 7}, Text: "hi"})
	if ok {
		t.Error("expected a message from a non-allowed user to be dropped")
	}

	event, ok := bot.normalize(&Message{MessageID: 2, Chat: Chat{ID: 1}, From: &User{ID: 99}, Text: "hi"})
	if !ok {
		t.Fatal("expected a message from the allowed user to pass")
	}
	if event.Sender.ID != "99" {
		t.Errorf("expected sender ID 99, got %q", event.Sender.ID)
	}
}

func TestSplitMessageShortTextUnchanged(t *testing.T) {
	chunks := splitMessage("short")
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Errorf("expected a single unchanged chunk, got %v", chunks)
	}
}
