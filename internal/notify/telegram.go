package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	TelegramAPIBaseURL = "https://api.telegram.org"

	defaultTelegramTimeout = 15 * time.Second
)

// Broadcaster delivers a formatted message to every configured recipient.
type Broadcaster interface {
	Broadcast(ctx context.Context, message string) error
}

// TelegramConfig configures the Telegram broadcaster.
type TelegramConfig struct {
	HTTPClient *http.Client
	Token      string
	BaseURL    string
	ChatIDs    []string
}

// NewBroadcaster returns a Telegram broadcaster, or a noop one when the token
// or the chat list is missing.
func NewBroadcaster(cfg TelegramConfig, logger zerolog.Logger) Broadcaster {
	logger = logger.With().Str("component", "notify").Logger()

	token := strings.TrimSpace(cfg.Token)
	chatIDs := make([]string, 0, len(cfg.ChatIDs))
	for _, id := range cfg.ChatIDs {
		if id = strings.TrimSpace(id); id != "" {
			chatIDs = append(chatIDs, id)
		}
	}

	switch {
	case token == "":
		logger.Warn().Msg("Telegram token not set, broadcast disabled")
		return noopBroadcaster{}
	case len(chatIDs) == 0:
		logger.Warn().Msg("No target chat ids set, broadcast disabled")
		return noopBroadcaster{}
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTelegramTimeout}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = TelegramAPIBaseURL
	}

	return &telegramBroadcaster{
		client:  client,
		logger:  logger,
		baseURL: baseURL,
		token:   token,
		chatIDs: chatIDs,
	}
}

type telegramBroadcaster struct {
	client  *http.Client
	logger  zerolog.Logger
	baseURL string
	token   string
	chatIDs []string
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	Description string `json:"description"`
	OK          bool   `json:"ok"`
}

// Broadcast sends message to each chat. Per-chat failures are logged; an
// error is returned only when no chat received the message.
func (t *telegramBroadcaster) Broadcast(ctx context.Context, message string) error {
	t.logger.Info().Int("chats", len(t.chatIDs)).Msg("Broadcasting briefing")

	var errs []error
	for _, chatID := range t.chatIDs {
		if err := t.send(ctx, chatID, message); err != nil {
			t.logger.Error().Err(err).Str("chat_id", chatID).Msg("Broadcast to chat failed")
			errs = append(errs, fmt.Errorf("chat %s: %w", chatID, err))
			continue
		}
		t.logger.Info().Str("chat_id", chatID).Msg("Broadcast delivered")
	}

	if len(errs) == len(t.chatIDs) {
		return errors.Join(errs...)
	}
	return nil
}

func (t *telegramBroadcaster) send(ctx context.Context, chatID, message string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                chatID,
		Text:                  message,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of logs.
		return errors.New("send telegram request: " + redact(err.Error(), t.token))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed sendMessageResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 300 || !parsed.OK {
		desc := parsed.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, desc)
	}
	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(context.Context, string) error { return nil }
