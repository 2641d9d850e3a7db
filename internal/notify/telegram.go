// Package notify delivers booking summaries to managers over Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TelegramSender is the part of the bot API used here.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RetryConfig holds the waits between attempts for one chat.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  2,
		RetryDelays: []time.Duration{time.Second, 5 * time.Second},
	}
}

// Telegram sends a text to every manager chat.
type Telegram struct {
	bot     TelegramSender
	chats   []int64
	limiter *rate.Limiter
	retry   RetryConfig
	sleep   func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger
}

// NewBot connects to the bot API with token.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

// NewTelegram creates a sender for chats. Telegram allows about 30 messages
// per second per bot.
func NewTelegram(bot TelegramSender, chats []int64, logger zerolog.Logger) *Telegram {
	return &Telegram{
		bot:     bot,
		chats:   append([]int64(nil), chats...),
		limiter: rate.NewLimiter(rate.Limit(20), 30),
		retry:   DefaultRetryConfig(),
		sleep:   sleepCtx,
		logger:  logger.With().Str("component", "telegram").Logger(),
	}
}

// Send delivers text to all chats. One failing chat does not stop the others.
func (t *Telegram) Send(ctx context.Context, text string) error {
	var errs []error
	for _, chat := range t.chats {
		if err := t.sendOne(ctx, chat, text); err != nil {
			t.logger.Warn().Err(err).Int64("chat_id", chat).Msg("telegram send failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chat, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telegram) sendOne(ctx context.Context, chat int64, text string) error {
	msg := tgbotapi.NewMessage(chat, text)
	msg.DisableWebPagePreview = true

	var lastErr error
	for attempt := 0; attempt <= t.retry.MaxRetries; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		var wait time.Duration
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			switch tgErr.Code {
			case 429:
				wait = time.Duration(tgErr.RetryAfter) * time.Second
			case 400, 403:
				return err
			}
		}
		if attempt == t.retry.MaxRetries {
			break
		}
		if wait == 0 && attempt < len(t.retry.RetryDelays) {
			wait = t.retry.RetryDelays[attempt]
		}
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
