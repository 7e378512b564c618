// Package mainbot implements the platform bot: user registration, the
// owner's bot list and the platform administrator commands.
package mainbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/TolesaD/botomics/core/broadcast"
	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/minibot"
	"github.com/TolesaD/botomics/core/session"
	"github.com/TolesaD/botomics/core/store"
	"github.com/TolesaD/botomics/core/telegram"
	tghelpers "github.com/TolesaD/botomics/core/telegram/helpers"
	"github.com/TolesaD/botomics/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const (
	msgIntro = "Welcome to Botomics, %s!\n\nBotomics runs your own Telegram bots: a feedback inbox for your users, " +
		"replies from any of your bots, broadcasts and custom conversation flows.\n\n/mybots lists your bots."
	msgBanned          = "Your account has been restricted on this platform."
	msgPlatformAdmin   = "This command is available to the platform administrator only."
	msgNoBots          = "You have no bots yet."
	msgBroadcastAsk    = "Send the message to broadcast to every platform user, or /cancel."
	msgBroadcastEmpty  = "There are no platform users to broadcast to."
	msgBroadcastFailed = "The broadcast failed. Check the logs."
	msgCancelled       = "Cancelled."
	msgNothing         = "Nothing to cancel."
	msgHelp            = "/start - introduction\n/mybots - your bots\n/cancel - cancel the current action"
)

// Users is the persistence the main bot needs.
type Users interface {
	UpsertUser(ctx context.Context, u store.User) error
	IsBanned(ctx context.Context, userID int64) (bool, error)
	ListBotsByOwner(ctx context.Context, ownerID int64) ([]store.Bot, error)
}

// Pool reports live mini-bot state.
type Pool interface {
	Get(botID int64) (*minibot.Connection, bool)
	Status() minibot.Status
}

// Deps are the collaborators of the main bot.
type Deps struct {
	Users     Users
	Pool      Pool
	Sessions  *session.Registry
	Broadcast *broadcast.Engine
	Sender    *sender.Sender
	// AdminID is the platform administrator.
	AdminID int64
	// Go runs platform broadcasts off the handler goroutine.
	Go func(func())
}

// Bot is the platform bot.
type Bot struct {
	deps Deps

	mu  sync.RWMutex
	out broadcast.Conn
}

// New builds the platform bot. Attach must be called before it handles updates.
func New(deps Deps) *Bot {
	if deps.Sender == nil {
		deps.Sender = sender.Default()
	}
	if deps.Go == nil {
		deps.Go = func(fn func()) { go fn() }
	}
	return &Bot{deps: deps}
}

// Attach sets the connection replies and broadcasts go out through.
func (b *Bot) Attach(out broadcast.Conn) {
	b.mu.Lock()
	b.out = out
	b.mu.Unlock()
}

func (b *Bot) conn() broadcast.Conn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.out
}

// OnStart attaches the running bot; it matches telegram.RunOptions.OnStart.
func (b *Bot) OnStart(_ context.Context, bot *tele.Bot) error {
	b.Attach(bot)
	return nil
}

// Registry builds the command table of the platform bot.
func (b *Bot) Registry() *telegram.Registry {
	reg := telegram.NewRegistry()
	_ = reg.RegisterCommand("/start", telegram.Command{Handler: b.handle("start", b.onStart), Description: "Introduction"})
	_ = reg.RegisterCommand("/mybots", telegram.Command{Handler: b.handle("mybots", b.onMyBots), Description: "Your bots"})
	_ = reg.RegisterCommand("/cancel", telegram.Command{Handler: b.handle("cancel", b.onCancel), Description: "Cancel the current action"})
	_ = reg.RegisterCommand("/help", telegram.Command{Handler: b.handle("help", b.onHelp), Description: "Help", Aliases: []string{"/commands"}})
	_ = reg.RegisterCommand("/broadcast", telegram.Command{Handler: b.handle("broadcast", b.onBroadcast), Description: "Broadcast to all users", AdminOnly: true, Hidden: true})
	_ = reg.RegisterCommand("/status", telegram.Command{Handler: b.handle("status", b.onStatus), Description: "Pool status", AdminOnly: true, Hidden: true})
	reg.SetTextFallback(b.handle("text", b.onText))
	return reg
}

type handlerFunc func(ctx context.Context, c tele.Context, user *tele.User) error

// handle resolves the caller, rejects banned users and contains failures.
func (b *Bot) handle(name string, fn handlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		user := c.Sender()
		if user == nil {
			return nil
		}
		ctx := tghelpers.WithHandler(c, 0, name)
		banned, err := b.deps.Users.IsBanned(ctx, user.ID)
		if err != nil {
			logger.Warn(ctx, logger.CompMainBot, "ban_check.failed", logger.Err(err))
		}
		if banned {
			b.reply(ctx, c, msgBanned)
			return nil
		}
		if err := fn(ctx, c, user); err != nil {
			logger.Error(ctx, logger.CompMainBot, "handler.failed", logger.Err(err))
			b.reply(ctx, c, "Something went wrong. Please try again later.")
		}
		return nil
	}
}

func (b *Bot) admin(user *tele.User) bool {
	return b.deps.AdminID != 0 && user.ID == b.deps.AdminID
}

func (b *Bot) chatID(c tele.Context, user *tele.User) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	return user.ID
}

func (b *Bot) reply(ctx context.Context, c tele.Context, text string) {
	out := b.conn()
	if out == nil {
		logger.Warn(ctx, logger.CompMainBot, "reply.skipped", slog.String("reason", "not_attached"))
		return
	}
	var to int64
	if chat := c.Chat(); chat != nil {
		to = chat.ID
	} else if u := c.Sender(); u != nil {
		to = u.ID
	}
	if _, err := b.deps.Sender.DeliverText(ctx, out, tele.ChatID(to), text, nil); err != nil {
		logger.Warn(ctx, logger.CompMainBot, "reply.failed",
			slog.String("err_kind", sender.Classify(err)),
			logger.Err(err),
		)
	}
}

func (b *Bot) onStart(ctx context.Context, c tele.Context, user *tele.User) error {
	if err := b.deps.Users.UpsertUser(ctx, store.User{
		TelegramID: user.ID,
		Username:   user.Username,
		FirstName:  user.FirstName,
	}); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	name := user.FirstName
	if name == "" {
		name = "there"
	}
	b.reply(ctx, c, fmt.Sprintf(msgIntro, name))
	return nil
}

func (b *Bot) onHelp(ctx context.Context, c tele.Context, user *tele.User) error {
	text := msgHelp
	if b.admin(user) {
		text += "\n\n/status - pool status\n/broadcast - message every platform user"
	}
	b.reply(ctx, c, text)
	return nil
}

func (b *Bot) onMyBots(ctx context.Context, c tele.Context, user *tele.User) error {
	bots, err := b.deps.Users.ListBotsByOwner(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list bots: %w", err)
	}
	if len(bots) == 0 {
		b.reply(ctx, c, msgNoBots)
		return nil
	}
	var sb strings.Builder
	sb.WriteString("Your bots:\n")
	for _, bot := range bots {
		fmt.Fprintf(&sb, "\n%s @%s (%s) - %s", bot.Name, bot.Username, bot.Type, b.botState(bot))
	}
	b.reply(ctx, c, sb.String())
	return nil
}

func (b *Bot) botState(bot store.Bot) string {
	if !bot.IsActive {
		return "disabled"
	}
	if b.deps.Pool == nil {
		return string(minibot.StateStopped)
	}
	if c, ok := b.deps.Pool.Get(bot.ID); ok {
		return string(c.State())
	}
	return string(minibot.StateStopped)
}

func (b *Bot) onCancel(ctx context.Context, c tele.Context, user *tele.User) error {
	if b.deps.Sessions.Cancel(user.ID, 0) == 0 {
		b.reply(ctx, c, msgNothing)
		return nil
	}
	b.reply(ctx, c, msgCancelled)
	return nil
}

func (b *Bot) onStatus(ctx context.Context, c tele.Context, user *tele.User) error {
	if !b.admin(user) {
		b.reply(ctx, c, msgPlatformAdmin)
		return nil
	}
	st := b.deps.Pool.Status()
	b.reply(ctx, c, fmt.Sprintf("Pool status\n\nInitialized: %t\nActive: %d\nLaunching: %d\nSweeps: %d",
		st.Initialized, st.ActiveCount, st.Launching, st.Attempts))
	return nil
}

func (b *Bot) onBroadcast(ctx context.Context, c tele.Context, user *tele.User) error {
	if !b.admin(user) {
		b.reply(ctx, c, msgPlatformAdmin)
		return nil
	}
	ids, err := b.deps.Broadcast.Recipients(ctx, 0)
	if err != nil {
		return fmt.Errorf("load platform users: %w", err)
	}
	if len(ids) == 0 {
		b.reply(ctx, c, msgBroadcastEmpty)
		return nil
	}
	b.deps.Sessions.Cancel(user.ID, 0)
	b.deps.Sessions.Broadcast.Put(user.ID, session.Broadcast{Stage: session.AwaitingMessage, Started: time.Now()})
	b.reply(ctx, c, msgBroadcastAsk)
	return nil
}

func (b *Bot) onText(ctx context.Context, c tele.Context, user *tele.User) error {
	if _, ok := b.deps.Sessions.Broadcast.TakeIf(user.ID, session.Broadcast.Platform); ok {
		if !b.admin(user) {
			b.reply(ctx, c, msgPlatformAdmin)
			return nil
		}
		b.runBroadcast(ctx, c, user, c.Text())
		return nil
	}
	b.reply(ctx, c, msgHelp)
	return nil
}

func (b *Bot) runBroadcast(ctx context.Context, c tele.Context, user *tele.User, text string) {
	out := b.conn()
	req := broadcast.Request{SentBy: user.ID, Message: text, ReportTo: b.chatID(c, user)}
	bctx := context.WithoutCancel(ctx)
	b.deps.Go(func() {
		sum, err := b.deps.Broadcast.Run(bctx, out, req)
		switch {
		case errors.Is(err, broadcast.ErrNoRecipients):
			b.reply(bctx, c, msgBroadcastEmpty)
		case err != nil:
			logger.Error(bctx, logger.CompBroadcast, "broadcast.failed", logger.Err(err))
			b.reply(bctx, c, msgBroadcastFailed)
		default:
			logger.Info(bctx, logger.CompBroadcast, "broadcast.finished",
				slog.String("run_id", sum.RunID),
				slog.Int("total", sum.Total),
				slog.Int("sent", sum.Sent),
				slog.Int("failed", sum.Failed),
			)
		}
	})
}
