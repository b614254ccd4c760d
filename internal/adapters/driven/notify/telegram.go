package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/ocrbox/internal/core/domain"
	"github.com/custodia-labs/ocrbox/internal/core/ports/driven"
)

// TelegramAPI is the Bot API base URL.
const TelegramAPI = "https://api.telegram.org"

// Ensure Telegram implements the interface.
var _ driven.Notifier = (*Telegram)(nil)

// Telegram sends events to a chat through a bot.
type Telegram struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegram creates a notifier for botToken and chatID.
func NewTelegram(botToken, chatID string, timeout time.Duration) *Telegram {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Telegram{
		baseURL: TelegramAPI,
		token:   botToken,
		chatID:  chatID,
		client:  &http.Client{Timeout: timeout},
	}
}

// WithBaseURL points the notifier at another Bot API host.
func (t *Telegram) WithBaseURL(u string) *Telegram {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify sends the event as an HTML message.
func (t *Telegram) Notify(ctx context.Context, e domain.Event) error {
	data := render(e)
	text := "<b>" + html.EscapeString(data.title) + "</b>\n" + html.EscapeString(data.body)

	payload, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("encode telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var out sendMessageResponse
	_ = json.Unmarshal(body, &out)
	if resp.StatusCode >= 300 || !out.OK {
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, out.Description)
	}
	return nil
}
