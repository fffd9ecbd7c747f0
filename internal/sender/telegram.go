package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramSink posts one summary per broadcast to an ops chat.
type TelegramSink struct {
	bot     messageSender
	chatID  int64
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*tgmodels.Message]
}

func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return newTelegramSink(b, chatID), nil
}

func newTelegramSink(s messageSender, chatID int64) *TelegramSink {
	return &TelegramSink{
		bot:     s,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(1), 3),
		breaker: gobreaker.NewCircuitBreaker[*tgmodels.Message](gobreaker.Settings{
			Name:    "telegram",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (t *TelegramSink) Name() string { return "telegram" }

func (t *TelegramSink) Deliver(ctx context.Context, b Broadcast) error {
	if len(b.Notifications) == 0 {
		return nil
	}
	text, err := RenderSummary(b)
	if err != nil {
		return err
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}
	return retry(ctx, maxSendRetries, retryDelay, func() error {
		_, err := t.breaker.Execute(func() (*tgmodels.Message, error) {
			return t.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: t.chatID, Text: text})
		})
		return err
	})
}
