// Package app composes the platform runtime from its stores, engines and bots.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TolesaD/botomics/core/adminapi"
	"github.com/TolesaD/botomics/core/bootstrap"
	"github.com/TolesaD/botomics/core/broadcast"
	coreconfig "github.com/TolesaD/botomics/core/config"
	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/mainbot"
	"github.com/TolesaD/botomics/core/minibot"
	"github.com/TolesaD/botomics/core/notify"
	"github.com/TolesaD/botomics/core/session"
	"github.com/TolesaD/botomics/core/store"
	coretelegram "github.com/TolesaD/botomics/core/telegram"
	"github.com/TolesaD/botomics/core/telegram/sender"
	"github.com/TolesaD/botomics/core/tokenbox"

	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"
)

const sessionSweepEvery = time.Minute

// App holds the wired runtime.
type App struct {
	cfg   *coreconfig.Config
	infra *bootstrap.Result

	Store      *store.Store
	Sessions   *session.Registry
	Pool       *minibot.Pool
	Dispatcher *minibot.Dispatcher
	MainBot    *mainbot.Bot

	bg *errgroup.Group
}

// New wires every component on top of an initialized database.
func New(cfg *coreconfig.Config, infra *bootstrap.Result) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	if infra == nil || infra.DB == nil {
		return nil, fmt.Errorf("app: database not initialized")
	}
	box, err := tokenbox.New(cfg.MiniBots.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("app: token box: %w", err)
	}
	return Wire(cfg, infra, store.New(infra.DB), box, minibot.TelebotDialer(minibot.DialOptions{
		PollTimeout: time.Duration(cfg.MiniBots.LongPollTimeoutSeconds) * time.Second,
		DropPending: cfg.MiniBots.DropPending(),
	})), nil
}

// Wire builds the runtime around st; dial opens mini-bot connections.
func Wire(cfg *coreconfig.Config, infra *bootstrap.Result, st *store.Store, box *tokenbox.Box, dial minibot.Dialer) *App {
	send := sender.Default()
	sessions := session.NewRegistry(cfg.MiniBots.SessionTTL())
	engine := broadcast.New(st, st, send, broadcast.Options{
		ProgressEvery: cfg.Broadcast.ProgressEvery,
		PauseEvery:    cfg.Broadcast.PauseEvery,
		Pause:         cfg.Broadcast.Pause(),
		RatePerSecond: cfg.Broadcast.RatePerSecond,
	})

	a := &App{cfg: cfg, infra: infra, Store: st, Sessions: sessions}

	a.Pool = minibot.NewPool(store.NewCredentials(st, box), st, dial, minibot.Options{
		StartupDelay:   cfg.MiniBots.StartupDelay(),
		StartupTimeout: cfg.MiniBots.StartupTimeout(),
		Transports: []minibot.Transport{
			{Name: "primary", Client: coretelegram.BuildHTTPClient()},
			{Name: "fallback", Client: coretelegram.BuildFallbackHTTPClient()},
		},
		OnEvict: func(botID int64) {
			if a.Dispatcher != nil {
				a.Dispatcher.ForgetBot(botID)
			}
		},
	})

	a.Dispatcher = minibot.NewDispatcher(minibot.Deps{
		Store:     st,
		Sessions:  sessions,
		Pool:      a.Pool,
		Notifier:  notify.New(st, send),
		Broadcast: engine,
		Sender:    send,
		Config:    cfg,
	}, minibot.DispatchOptions{HandlerTimeout: cfg.MiniBots.HandlerTimeout()})
	a.Pool.SetWiring(a.Dispatcher)

	a.MainBot = mainbot.New(mainbot.Deps{
		Users:     st,
		Pool:      a.Pool,
		Sessions:  sessions,
		Broadcast: engine,
		Sender:    send,
		AdminID:   cfg.Telegram.AdminID,
	})
	return a
}

// TelegramRunOptions describes how the main bot runs and what starts with it.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    a.MainBot.Registry(),
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, 0, nil),
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, bot *tele.Bot) error {
	if err := a.MainBot.OnStart(ctx, bot); err != nil {
		return err
	}
	a.bg = a.Background(ctx)
	return nil
}

// Background starts the pool sweep, the session sweeper and the admin API.
// The returned group finishes once ctx is done.
func (a *App) Background(ctx context.Context) *errgroup.Group {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.Pool.InitializeAll(gctx)
		if err != nil {
			logger.Error(gctx, logger.CompPool, "pool.init_failed", logger.Err(err))
			return nil
		}
		logger.Info(gctx, logger.CompPool, "pool.initialized", slog.Int("count", n))
		return nil
	})
	g.Go(func() error {
		a.Sessions.SweepEvery(gctx, sessionSweepEvery, func(n int) {
			logger.Debug(gctx, logger.CompDispatch, "sessions.expired", slog.Int("count", n))
		})
		return nil
	})
	if addr := a.cfg.AdminAPI.Listen; addr != "" {
		g.Go(func() error {
			if err := adminapi.Serve(gctx, addr, adminapi.NewHandler(a.Pool).Router()); err != nil {
				logger.Error(gctx, logger.CompHTTP, "server.failed", logger.Err(err))
			}
			return nil
		})
	}
	return g
}

func (a *App) onStop(ctx context.Context, _ *tele.Bot) error {
	a.Pool.Shutdown(ctx)
	a.Sessions.Clear()
	if a.bg != nil {
		return a.bg.Wait()
	}
	return nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.infra.Close()
}
