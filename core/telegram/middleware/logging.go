package middleware

import (
	"log/slog"
	"time"

	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/telegram/callbacks"
	tghelpers "github.com/TolesaD/botomics/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Logging sets the rid and update metadata for downstream handlers and logs
// one receipt line per update. botID is zero for the main bot.
func Logging(botID int64) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			upd := c.Update()
			var chatID, userID int64
			chat := c.Chat()
			if chat != nil {
				chatID = chat.ID
			}
			user := c.Sender()
			if user != nil {
				userID = user.ID
			}

			rid := logger.BuildRID(upd.ID, chatID, userID)
			c.Set("rid", rid)
			start := time.Now()
			ctx := tghelpers.BuildContext(c, botID)

			attrs := []slog.Attr{slog.String("status", "ok")}
			if chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user != nil && user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
			}
			switch {
			case upd.Callback != nil:
				key, payload := callbacks.FromCallback(upd.Callback)
				if key != "" {
					attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
				}
				if payload != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
				}
			case upd.Message != nil:
				if t := c.Text(); t != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
				}
			}
			logger.Debug(ctx, logger.CompDispatch, "update.received", attrs...)

			err := next(c)
			outcome := slog.String("outcome", "ok")
			if err != nil {
				outcome = slog.String("outcome", "error")
			}
			logger.Debug(ctx, logger.CompDispatch, "update.done", outcome, slog.Duration("duration", time.Since(start)))
			return err
		}
	}
}
