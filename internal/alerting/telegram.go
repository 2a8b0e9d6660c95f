package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// TelegramPrefix marks a Telegram chat as alert destination: "telegram:<chat_id>".
	TelegramPrefix = "telegram:"

	defaultTelegramAPIURL = "https://api.telegram.org/bot%s/sendMessage"
	// Bot API allows about 30 messages per second per bot.
	defaultTelegramRate = 25.0
)

// TelegramConfig holds Telegram sender configuration.
type TelegramConfig struct {
	BotToken string
	// RateLimit is messages per second. Zero uses the default.
	RateLimit float64
	Timeout   time.Duration
}

// TelegramSender sends alerts through the Telegram Bot API.
type TelegramSender struct {
	token      string
	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewTelegramSender creates a Telegram sender.
func NewTelegramSender(config TelegramConfig) (*TelegramSender, error) {
	if config.BotToken == "" {
		return nil, errors.New("telegram sender: bot token is required")
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultTelegramRate
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &TelegramSender{
		token:      config.BotToken,
		apiURL:     defaultTelegramAPIURL,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// TelegramError is a failed Bot API call.
type TelegramError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *TelegramError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram: %d %s (retry after %s)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram: %d %s", e.Code, e.Description)
}

// Permanent reports whether resending the same message cannot succeed,
// e.g. the chat does not exist or the bot was blocked.
func (e *TelegramError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests
}

// Send posts alert to the chat to.
func (s *TelegramSender) Send(ctx context.Context, to string, alert Alert) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	text := fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(alert.Subject), html.EscapeString(alert.Body))
	if alert.Link != "" {
		text += fmt.Sprintf("\n\n<a href=\"%s\">Open site</a>", html.EscapeString(alert.Link))
	}
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                strings.TrimPrefix(to, TelegramPrefix),
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(s.apiURL, s.token), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// The request URL carries the bot token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result telegramResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&result); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if result.OK {
		return nil
	}

	tgErr := &TelegramError{Code: result.ErrorCode, Description: result.Description}
	if tgErr.Code == 0 {
		tgErr.Code = resp.StatusCode
	}
	if result.Parameters != nil && result.Parameters.RetryAfter > 0 {
		tgErr.RetryAfter = time.Duration(result.Parameters.RetryAfter) * time.Second
	}
	if tgErr.Code == http.StatusUnauthorized {
		tgErr.Description = "invalid bot token"
	}
	return tgErr
}
