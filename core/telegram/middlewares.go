package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/TolesaD/botomics/core/config"
	"github.com/TolesaD/botomics/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the shared middleware chain for a bot.
// botID is zero for the main bot.
func DefaultMiddlewares(cfg *coreconfig.Config, botID int64, onLimited func(tele.Context) error) []tele.MiddlewareFunc {
	mws := []tele.MiddlewareFunc{middleware.Recover(botID)}

	if cfg != nil {
		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			mws = append(mws, middleware.RateLimit(middleware.RateLimitOptions{
				Interval:  interval,
				Exclude:   ex,
				OnLimited: onLimited,
				BotID:     botID,
			}))
		}
	}

	return append(mws, middleware.Logging(botID))
}
