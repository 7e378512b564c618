package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/TolesaD/botomics/core/logger"
	tghelpers "github.com/TolesaD/botomics/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Recover catches panics in handlers so one bad update never takes the bot
// down. The update is dropped after the panic is logged.
func Recover(botID int64) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					ctx := tghelpers.BuildContext(c, botID)
					logger.Error(ctx, logger.CompDispatch, "handler.panic",
						slog.String("err", fmt.Sprint(r)),
						slog.String("stack", string(debug.Stack())),
					)
					err = nil
				}
			}()
			return next(c)
		}
	}
}
