package telegram

import (
	"log/slog"
	"strings"
	"time"

	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/telegram/callbacks"
	tghelpers "github.com/TolesaD/botomics/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Binder is the handler surface of a bot. *tele.Bot satisfies it.
type Binder interface {
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
}

// Bind installs every registered command, the callback router and the
// fallbacks on b. botID is zero for the main bot.
func (r *Registry) Bind(b Binder, botID int64) {
	for name, cmd := range r.commands {
		h := r.summarize(botID, "cmd."+normalizeHandlerName(name), cmd.Handler)
		b.Handle(name, h)
		for _, alias := range cmd.Aliases {
			if !strings.HasPrefix(alias, "/") {
				alias = "/" + alias
			}
			b.Handle(alias, h)
		}
	}
	b.Handle(tele.OnCallback, r.callbackRouter(botID))
	if r.textFallback != nil {
		b.Handle(tele.OnText, r.summarize(botID, "text", r.textFallback))
	}
	if r.mediaFallback != nil {
		b.Handle(tele.OnMedia, r.summarize(botID, "media", r.mediaFallback))
	}
}

func (r *Registry) callbackRouter(botID int64) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key, _ := callbacks.FromCallback(c.Callback())
		name := "callback." + normalizeHandlerName(key)
		if r.respond != nil {
			_ = r.respond(c)
		}

		h, ok := r.GetCallback(key)
		if !ok || h == nil {
			h = r.callbackNotFound
			if h == nil {
				return nil
			}
			return r.summarize(botID, name, h, slog.String("reason", "not_found"))(c)
		}
		return r.summarize(botID, name, h, slog.String("cb_key", key))(c)
	}
}

func (r *Registry) summarize(botID int64, name string, h tele.HandlerFunc, extras ...slog.Attr) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		ctx := tghelpers.WithHandler(c, botID, name)
		err := h(c)

		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.String("outcome", "ok"),
			slog.Duration("duration", time.Since(start)),
		}
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
			attrs[0] = slog.String("status", "fail")
			attrs[1] = slog.String("outcome", "fail")
			attrs = append(attrs, slog.String("err", logger.SanitizeLimit(logger.Redact(err.Error()), 256)))
		}
		logger.Event(ctx, "tg", level, "handler.handled", append(attrs, extras...)...)
		return err
	}
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}
