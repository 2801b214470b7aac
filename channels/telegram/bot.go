// Package telegram implements the Telegram ChannelHandler and its
// ingest-boundary normalizer (§4.10/§6), grounded on the teacher's
// frontend/telegram Frontend implementation.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	conduit "github.com/nevindra/conduit"
)

const (
	maxMessageLength = 4096 // Telegram's own sendMessage text limit
	apiBaseURL       = "https://api.telegram.org/bot"

	// ChannelName is the value carried on MessageReceivedEvent.Channel and
	// ChannelMeta.Channel for messages normalized from Telegram.
	ChannelName = "telegram"
)

var _ conduit.ChannelHandler = (*Bot)(nil)

// Bot is both the Telegram ChannelHandler (outbound) and the channel
// normalizer (inbound, via Poll): one small adapter per channel, per §9's
// closed ChannelHandler capability set.
type Bot struct {
	token         string
	httpClient    *http.Client
	allowedUserID string // "" means unrestricted
	logger        *slog.Logger
	baseURL       string // apiBaseURL, overridable in tests
}

// Option configures a Bot.
type Option func(*Bot)

// WithAllowedUserID restricts Poll to messages from one Telegram user ID —
// this is a personal assistant, not a multi-tenant bot (TELEGRAM_ALLOWED_USER_ID).
func WithAllowedUserID(id string) Option { return func(b *Bot) { b.allowedUserID = id } }

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option { return func(b *Bot) { b.logger = l } }

// New creates a Bot for the given API token.
func New(token string, opts ...Option) *Bot {
	b := &Bot{token: token, httpClient: &http.Client{}, logger: slog.New(slog.DiscardHandler), baseURL: apiBaseURL}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SendReply implements conduit.ChannelHandler: format as markdown->HTML,
// split at Telegram's message-size limit, send each chunk. A chunk that
// Telegram rejects as malformed HTML is retried once as plain text (§6:
// "on a formatting-parse error, fall back to plain-text").
func (b *Bot) SendReply(ctx context.Context, response string, destination conduit.Destination, meta conduit.ChannelMeta) error {
	for _, chunk := range splitMessage(response) {
		body := map[string]any{
			"chat_id":    destination.ChatID,
			"text":       MarkdownToHTML(chunk),
			"parse_mode": "HTML",
		}
		if err := b.callAPI(ctx, "sendMessage", body, nil); err != nil {
			plainBody := map[string]any{"chat_id": destination.ChatID, "text": chunk}
			if err2 := b.callAPI(ctx, "sendMessage", plainBody, nil); err2 != nil {
				return fmt.Errorf("telegram: send (both HTML and plain-text fallback failed): %w", err2)
			}
		}
	}
	return nil
}

// Acknowledge implements conduit.ChannelHandler with a typing indicator.
// Failures are returned, not swallowed here — the dispatcher's Acknowledge
// wrapper is responsible for swallowing per §4.11.
func (b *Bot) Acknowledge(ctx context.Context, destination conduit.Destination, meta conduit.ChannelMeta) error {
	body := map[string]any{"chat_id": destination.ChatID, "action": "typing"}
	return b.callAPI(ctx, "sendChatAction", body, nil)
}

// Poll long-polls Telegram's getUpdates and normalizes each inbound message
// into a conduit.MessageReceivedEvent, implementing the Channel Normalizer
// of §4.10 as a standalone ingest loop rather than a sandboxed transform
// function — no substrate here defines a pure-function transform boundary,
// so the normalizer lives as ordinary Go code at the edge of the poll loop.
func (b *Bot) Poll(ctx context.Context) (<-chan conduit.MessageReceivedEvent, error) {
	ch := make(chan conduit.MessageReceivedEvent)
	go b.pollLoop(ctx, ch)
	return ch, nil
}

func (b *Bot) pollLoop(ctx context.Context, ch chan<- conduit.MessageReceivedEvent) {
	defer close(ch)
	var offset int64

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := b.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("telegram: poll error", "error", err)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			event, ok := b.normalize(u.Message)
			if !ok {
				continue
			}
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bot) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         30,
		"allowed_updates": []string{"message"},
	}
	var result []Update
	if err := b.callAPI(ctx, "getUpdates", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// normalize maps a Telegram message to the canonical MessageReceivedEvent.
// Per §4.10's per-channel sessionKey policy, Telegram is a chat-scoped DM
// channel: sessionKey is derived from chat ID alone, with no thread
// component. A message from a user other than the configured
// allowedUserID is dropped rather than normalized, since this is a
// personal assistant, not a shared bot.
func (b *Bot) normalize(m *Message) (conduit.MessageReceivedEvent, bool) {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if text == "" {
		return conduit.MessageReceivedEvent{}, false
	}

	var sender conduit.Sender
	if m.From != nil {
		sender = conduit.Sender{
			ID:       strconv.FormatInt(m.From.ID, 10),
			Name:     m.From.FirstName,
			Username: m.From.Username,
		}
		if b.allowedUserID != "" && sender.ID != b.allowedUserID {
			return conduit.MessageReceivedEvent{}, false
		}
	}

	chatID := strconv.FormatInt(m.Chat.ID, 10)
	messageID := strconv.FormatInt(m.MessageID, 10)
	raw, _ := json.Marshal(m)

	return conduit.MessageReceivedEvent{
		Message:    text,
		SessionKey: conduit.SessionKey(ChannelName + "-" + chatID),
		Channel:    ChannelName,
		Sender:     sender,
		Destination: conduit.Destination{
			ChatID:    chatID,
			MessageID: messageID,
		},
		ChannelMeta: conduit.ChannelMeta{Channel: ChannelName, Raw: raw},
		MessageID:   messageID,
	}, true
}

// callAPI posts JSON to a Telegram Bot API method and decodes the result.
func (b *Bot) callAPI(ctx context.Context, method string, reqBody, result any) error {
	url := b.baseURL + b.token + "/" + method

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("telegram: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description,omitempty"`
		ErrorCode   int             `json:"error_code,omitempty"`
		Result      json.RawMessage `json:"result,omitempty"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("telegram: decode response: %w (body: %s)", err, string(respBody))
	}
	if !envelope.OK {
		return &apiError{Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("telegram: decode result: %w", err)
		}
	}
	return nil
}

type apiError struct {
	Code        int
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram API error %d: %s", e.Code, e.Description)
}

// splitMessage splits text into chunks that fit within Telegram's message
// size limit, preferring to break on the last newline within the limit.
func splitMessage(text string) []string {
	if len(text) <= maxMessageLength {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > 0 {
		if len(remaining) <= maxMessageLength {
			chunks = append(chunks, remaining)
			break
		}
		splitAt := remaining[:maxMessageLength]
		splitPos := strings.LastIndex(splitAt, "\n")
		if splitPos == -1 {
			splitPos = maxMessageLength
		} else {
			splitPos++
		}
		chunks = append(chunks, remaining[:splitPos])
		remaining = remaining[splitPos:]
	}
	return chunks
}
