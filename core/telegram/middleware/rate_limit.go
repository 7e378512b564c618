package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/TolesaD/botomics/core/logger"
	tghelpers "github.com/TolesaD/botomics/core/telegram/helpers"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

const defaultIdleTTL = 10 * time.Minute

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the minimum spacing between two updates of one user.
	Interval time.Duration
	// Burst allows short spikes above Interval; 0 means 1.
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// IdleTTL drops limiters of users that went quiet.
	IdleTTL time.Duration
	BotID   int64

	now func() time.Time
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// UpdateKind names the update for exclusion matching.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// RateLimit returns a middleware that enforces a per-user token bucket.
// Limited updates are dropped after OnLimited runs.
func RateLimit(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	var (
		mu       sync.Mutex
		limiters = make(map[int64]*limiterEntry)
		lastGC   time.Time
	)
	allow := func(userID int64, now time.Time) bool {
		mu.Lock()
		defer mu.Unlock()
		if now.Sub(lastGC) > opts.IdleTTL {
			for id, e := range limiters {
				if now.Sub(e.seen) > opts.IdleTTL {
					delete(limiters, id)
				}
			}
			lastGC = now
		}
		e, ok := limiters[userID]
		if !ok {
			e = &limiterEntry{lim: rate.NewLimiter(rate.Every(opts.Interval), opts.Burst)}
			limiters[userID] = e
		}
		e.seen = now
		return e.lim.AllowN(now, 1)
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[UpdateKind(c.Update())]; skip {
				return next(c)
			}
			if allow(user.ID, opts.now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c, opts.BotID), logger.CompDispatch, "rate_limit",
				slog.String("kind", UpdateKind(c.Update())),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
