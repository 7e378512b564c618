package minibot

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// AllowedUpdates is the update allow-list every mini-bot subscribes to.
var AllowedUpdates = []string{"message", "callback_query"}

// Outbound is what handlers may do with a connection: talk, never
// reconfigure or close it. *tele.Bot satisfies it.
type Outbound interface {
	sender.Conn
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
	SetCommands(opts ...interface{}) error
}

// Conn is the full provider handle owned by the pool. *tele.Bot satisfies it.
type Conn interface {
	Outbound
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
	Use(middleware ...tele.MiddlewareFunc)
	Start()
	Stop()
}

// Transport is one way of reaching the Bot API.
type Transport struct {
	Name   string
	Client *http.Client
}

// Dialer opens a connection and completes the provider handshake.
type Dialer func(ctx context.Context, botID int64, token string, t Transport) (Conn, error)

// DialOptions configures TelebotDialer.
type DialOptions struct {
	PollTimeout time.Duration
	DropPending bool
}

// TelebotDialer opens real telebot connections: getMe during construction,
// then deleteWebhook so long polling can start.
func TelebotDialer(opts DialOptions) Dialer {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 10 * time.Second
	}
	return func(ctx context.Context, botID int64, token string, t Transport) (Conn, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bot, err := tele.NewBot(tele.Settings{
			Token:  token,
			Client: t.Client,
			Poller: &tele.LongPoller{
				Timeout:        opts.PollTimeout,
				AllowedUpdates: AllowedUpdates,
			},
			OnError: func(err error, c tele.Context) {
				attrs := []slog.Attr{slog.Int64("bot_id", botID), logger.Err(err)}
				if c != nil && c.Sender() != nil {
					attrs = append(attrs, slog.Int64("user_id", c.Sender().ID))
				}
				logger.Error(context.Background(), logger.CompDispatch, "bot.error", attrs...)
			},
		})
		if err != nil {
			return nil, err
		}
		if err := bot.RemoveWebhook(opts.DropPending); err != nil {
			return nil, err
		}
		return bot, nil
	}
}
