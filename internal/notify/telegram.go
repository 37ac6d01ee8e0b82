// internal/notify/telegram.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const DefaultTelegramURL = "https://api.telegram.org"

var errNoChat = errors.New("no chat to deliver to")

// TelegramSender delivers notifications via the Telegram Bot API. The user id
// is the private chat id; messages without a user go to the operator chat.
type TelegramSender struct {
	baseURL      string
	token        string
	operatorChat string
	client       *http.Client
	limiter      *rate.Limiter
}

func NewTelegramSender(token, operatorChat string) *TelegramSender {
	return &TelegramSender{
		baseURL:      DefaultTelegramURL,
		token:        token,
		operatorChat: operatorChat,
		client:       &http.Client{Timeout: 10 * time.Second},
		// Bot API допускает около 30 сообщений в секунду
		limiter: rate.NewLimiter(rate.Limit(25), 5),
	}
}

// WithBaseURL подменяет адрес API (для тестов и прокси).
func (t *TelegramSender) WithBaseURL(u string) *TelegramSender {
	t.baseURL = u
	return t
}

func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	chatID := t.operatorChat
	if msg.UserID != 0 {
		chatID = strconv.FormatInt(msg.UserID, 10)
	}
	if chatID == "" {
		return errNoChat
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"chat_id":    chatID,
		"text":       fmt.Sprintf("*%s*\n%s", msg.Title, msg.Body),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// url содержит токен, поэтому не пробрасываем *url.Error целиком
		return errors.New("telegram: send request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
