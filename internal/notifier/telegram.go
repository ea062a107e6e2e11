package notifier

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"kabunotify/internal/retry"
)

// Alerter notifies operators about failures that users cannot see.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// NoopAlerter discards alerts.
type NoopAlerter struct{}

func (NoopAlerter) Alert(context.Context, string) error { return nil }

// TelegramAlerter sends alerts to a Telegram chat.
type TelegramAlerter struct {
	bot        *tele.Bot
	chat       tele.ChatID
	maxRetries int
	log        zerolog.Logger
}

// NewTelegramAlerter creates an alerter with optional proxy support.
func NewTelegramAlerter(botToken string, chatID int64, proxyURL string, log zerolog.Logger) (*TelegramAlerter, error) {
	if botToken == "" || chatID == 0 {
		return nil, errors.New("telegram token and chat id are required")
	}
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   botToken,
		Offline: true,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramAlerter{
		bot:        b,
		chat:       tele.ChatID(chatID),
		maxRetries: 2,
		log:        log.With().Str("component", "alerter").Logger(),
	}, nil
}

// Alert sends text with exponential backoff retry.
func (t *TelegramAlerter) Alert(ctx context.Context, text string) error {
	attempt := 0
	_, err := retry.Do(ctx, func(context.Context) (*tele.Message, error) {
		attempt++
		m, err := t.bot.Send(t.chat, "<b>kabu-notify</b>\n"+html.EscapeString(text), tele.ModeHTML)
		if err != nil {
			t.log.Warn().Err(err).Int("attempt", attempt).Msg("telegram send failed")
		}
		return m, err
	}, retry.WithMaxRetries(t.maxRetries), retry.WithInitialDelay(time.Second))
	if err != nil {
		return fmt.Errorf("telegram alert: %w", err)
	}
	return nil
}
