// Package telegram implements the Telegram Bot API frontend: long-polling for
// updates and sending replies, mapped to the bridge's message model.
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
	"time"

	"github.com/hverduzco/atiende"
)

const (
	maxMessageLength = 4096
	defaultBaseURL   = "https://api.telegram.org"
	pollTimeout      = 30 // seconds, long-poll hold on getUpdates
)

// Bot implements atiende.Frontend over the Telegram Bot API.
type Bot struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ atiende.Frontend = (*Bot)(nil)

// Option configures the bot.
type Option func(*Bot)

// WithBaseURL overrides the Telegram API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(b *Bot) { b.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bot) { b.httpClient = c }
}

// WithLogger sets the logger for poll-loop errors.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBot creates a Telegram bot with the given token.
func NewBot(token string, opts ...Option) *Bot {
	b := &Bot{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: (pollTimeout + 10) * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Poll starts long-polling for updates and returns a channel of incoming
// messages. The channel is closed when ctx is cancelled.
func (b *Bot) Poll(ctx context.Context) (<-chan atiende.IncomingMessage, error) {
	ch := make(chan atiende.IncomingMessage)
	go b.pollLoop(ctx, ch)
	return ch, nil
}

func (b *Bot) pollLoop(ctx context.Context, ch chan<- atiende.IncomingMessage) {
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
			b.logger.Warn("telegram poll error", "error", err)
			// Back off briefly so a broken network does not spin the loop.
			t := time.NewTimer(2 * time.Second)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			select {
			case ch <- mapToIncoming(u.Message):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bot) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         pollTimeout,
		"allowed_updates": []string{"message"},
	}
	var result []update
	if err := b.callAPI(ctx, "getUpdates", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SendReply sends a text reply. Text exceeding Telegram's 4096-char limit is
// split into multiple messages, preferring newline boundaries.
func (b *Bot) SendReply(ctx context.Context, conversationID, text string) error {
	for _, chunk := range splitMessage(text) {
		body := map[string]any{
			"chat_id": conversationID,
			"text":    chunk,
		}
		if err := b.callAPI(ctx, "sendMessage", body, nil); err != nil {
			return err
		}
	}
	return nil
}

// SendTyping shows a typing indicator.
func (b *Bot) SendTyping(ctx context.Context, conversationID string) error {
	body := map[string]any{
		"chat_id": conversationID,
		"action":  "typing",
	}
	return b.callAPI(ctx, "sendChatAction", body, nil)
}

// callAPI posts JSON to a Telegram Bot API method and decodes the result.
func (b *Bot) callAPI(ctx context.Context, method string, reqBody any, result any) error {
	url := b.baseURL + "/bot" + b.token + "/" + method

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

// apiError represents a Telegram API error response.
type apiError struct {
	Code        int
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram API error %d: %s", e.Code, e.Description)
}

// mapToIncoming converts a Telegram message to the bridge's message model.
// Group chats and bot senders are flagged so the app can filter them.
func mapToIncoming(m *tgMessage) atiende.IncomingMessage {
	msg := atiende.IncomingMessage{
		ConversationID: strconv.FormatInt(m.Chat.ID, 10),
		Text:           m.Text,
		Group:          m.Chat.Type != "private",
	}
	if msg.Text == "" {
		msg.Text = m.Caption
	}
	if m.From != nil {
		msg.SenderID = strconv.FormatInt(m.From.ID, 10)
		msg.SelfEcho = m.From.IsBot
	}
	return msg
}

// splitMessage splits text into chunks that fit within Telegram's 4096-char
// limit, splitting at the last newline before the limit when possible.
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
			splitPos++ // include the newline in the current chunk
		}

		chunks = append(chunks, remaining[:splitPos])
		remaining = remaining[splitPos:]
	}

	return chunks
}
