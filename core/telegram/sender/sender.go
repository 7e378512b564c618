// Package sender delivers outbound Telegram calls with retries and a
// parse-mode downgrade ladder.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// Conn is the outbound surface of a bot connection. *tele.Bot satisfies it.
type Conn interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Ladder is the order of parse modes tried for formatted text.
var Ladder = []tele.ParseMode{tele.ModeHTML, tele.ModeMarkdown, tele.ModeDefault}

// Options controls retry behaviour.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxFloodWait caps how long a 429 retry_after is honoured.
	MaxFloodWait time.Duration
	// Sleep waits between attempts; it returns early with ctx.Err().
	Sleep func(ctx context.Context, d time.Duration) error
}

// Sender performs synchronous, retried deliveries.
type Sender struct {
	opts Options
}

// New returns a Sender with defaults applied to zero options.
func New(opts Options) *Sender {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxFloodWait <= 0 {
		opts.MaxFloodWait = 30 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Sender{opts: opts}
}

// Default is a Sender with two retries.
func Default() *Sender {
	return New(Options{MaxRetries: 2})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Deliver sends what to the recipient, retrying transient network failures
// and flood-control responses.
func (s *Sender) Deliver(ctx context.Context, c Conn, to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	attempts := s.opts.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := c.Send(to, what, opts...)
		if err == nil {
			if attempt > 1 {
				logger.Debug(ctx, "tg.sender", "send.retry.success", slog.Int("attempt", attempt))
			}
			return msg, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		var delay time.Duration
		var flood tele.FloodError
		switch {
		case errors.As(err, &flood):
			delay = time.Duration(flood.RetryAfter) * time.Second
			if delay > s.opts.MaxFloodWait {
				return nil, err
			}
		case netutil.ShouldRetry(err):
			delay = s.opts.RetryBackoff * time.Duration(attempt)
		default:
			return nil, err
		}
		logger.Debug(ctx, "tg.sender", "send.retry.backoff",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("err_kind", Classify(err)),
		)
		if err := s.opts.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// DeliverText sends formatted text, stepping down the parse-mode ladder when
// Telegram rejects the markup. Only bad-request answers trigger a downgrade.
func (s *Sender) DeliverText(ctx context.Context, c Conn, to tele.Recipient, text string, markup *tele.ReplyMarkup) (*tele.Message, error) {
	var lastErr error
	for i, mode := range Ladder {
		opts := &tele.SendOptions{ParseMode: mode, ReplyMarkup: markup, DisableWebPagePreview: true}
		msg, err := s.Deliver(ctx, c, to, text, opts)
		if err == nil {
			if i > 0 {
				logger.Debug(ctx, "tg.sender", "send.downgraded", slog.String("mode", modeName(mode)))
			}
			return msg, nil
		}
		lastErr = err
		if Classify(err) != KindBadRequest {
			return nil, err
		}
	}
	return nil, lastErr
}

func modeName(m tele.ParseMode) string {
	if m == tele.ModeDefault {
		return "plain"
	}
	return string(m)
}
