package minibot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TolesaD/botomics/core/broadcast"
	coreconfig "github.com/TolesaD/botomics/core/config"
	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/notify"
	"github.com/TolesaD/botomics/core/session"
	"github.com/TolesaD/botomics/core/store"
	"github.com/TolesaD/botomics/core/telegram"
	tghelpers "github.com/TolesaD/botomics/core/telegram/helpers"
	"github.com/TolesaD/botomics/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// DataStore is the persistence the dispatcher reads and writes.
type DataStore interface {
	IsBanned(ctx context.Context, userID int64) (bool, error)
	IsAdmin(ctx context.Context, botID, userID int64) (bool, error)
	ListAdmins(ctx context.Context, botID int64) ([]store.Admin, error)
	AddAdmin(ctx context.Context, a store.Admin) error
	RemoveAdmin(ctx context.Context, botID, userID int64) error
	TouchBotUser(ctx context.Context, u store.BotUser) error
	CountBotUsers(ctx context.Context, botID int64) (int, error)
	CountPendingFeedback(ctx context.Context, botID int64) (int, error)
	CreateFeedback(ctx context.Context, f store.Feedback) (int64, error)
	GetFeedback(ctx context.Context, id int64) (store.Feedback, error)
	MarkFeedbackReplied(ctx context.Context, id, repliedBy int64, reply string) error
	UpdateWelcomeMessage(ctx context.Context, botID int64, text string) error
}

// Connections resolves live bots; *Pool satisfies it.
type Connections interface {
	Lookup(ctx context.Context, botID int64) (*Connection, error)
	Refresh(ctx context.Context, botID int64) error
}

// Deps are the collaborators of the dispatcher.
type Deps struct {
	Store     DataStore
	Sessions  *session.Registry
	Pool      Connections
	Notifier  *notify.Notifier
	Broadcast *broadcast.Engine
	Sender    *sender.Sender
	Config    *coreconfig.Config
}

// DispatchOptions tunes the dispatcher.
type DispatchOptions struct {
	HandlerTimeout time.Duration
	// Go runs long work such as broadcasts off the handler goroutine.
	Go func(func())
}

// Dispatcher routes the events of every mini-bot.
type Dispatcher struct {
	store     DataStore
	sessions  *session.Registry
	pool      Connections
	notifier  *notify.Notifier
	broadcast *broadcast.Engine
	send      *sender.Sender
	cfg       *coreconfig.Config
	opts      DispatchOptions

	menus sync.Map
}

type handlerFunc func(ctx context.Context, req Request) error

// NewDispatcher wires the dispatcher.
func NewDispatcher(deps Deps, opts DispatchOptions) *Dispatcher {
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 90 * time.Second
	}
	if opts.Go == nil {
		opts.Go = func(fn func()) { go fn() }
	}
	if deps.Sender == nil {
		deps.Sender = sender.Default()
	}
	return &Dispatcher{
		store:     deps.Store,
		sessions:  deps.Sessions,
		pool:      deps.Pool,
		notifier:  deps.Notifier,
		broadcast: deps.Broadcast,
		send:      deps.Sender,
		cfg:       deps.Config,
		opts:      opts,
	}
}

// Wire installs the middleware chain and every handler on conn.
func (d *Dispatcher) Wire(c *Connection, conn Conn) {
	conn.Use(telegram.DefaultMiddlewares(d.cfg, c.BotID, nil)...)
	d.Registry(c).Bind(conn, c.BotID)
}

// Registry builds the command and callback table of one connection.
func (d *Dispatcher) Registry(c *Connection) *telegram.Registry {
	reg := telegram.NewRegistry()
	cmds := []struct {
		name  string
		desc  string
		admin bool
		fn    handlerFunc
	}{
		{"/start", "Start the bot", false, d.handleStart},
		{"/help", "Show help", false, d.handleHelp},
		{"/cancel", "Cancel the current action", false, d.handleCancel},
		{"/dashboard", "Admin dashboard", true, d.handleDashboard},
		{"/broadcast", "Message every user of this bot", true, d.handleBroadcast},
		{"/stats", "Bot statistics", true, d.handleStats},
		{"/admins", "Manage admins", true, d.handleAdmins},
		{"/addadmin", "Add an admin", true, d.handleAddAdmin},
		{"/removeadmin", "Remove an admin", true, d.handleRemoveAdmin},
		{"/setwelcome", "Change the welcome message", true, d.handleSetWelcome},
	}
	for _, cmd := range cmds {
		fn := cmd.fn
		if cmd.name != "/start" && cmd.name != "/cancel" {
			fn = d.triggerFirst(fn)
		}
		_ = reg.RegisterCommand(cmd.name, telegram.Command{
			Handler:     d.wrap(c, fn),
			Description: cmd.desc,
			AdminOnly:   cmd.admin,
		})
	}

	callbacks := map[string]handlerFunc{
		notify.ReplyAction: d.onReplyButton,
		ActionChoice:       d.onChoice,
		ActionDashboard:    d.onDashboardButton,
		ActionRemoveAdmin:  d.onRemoveAdminButton,
		ActionCancel:       d.handleCancel,
	}
	for key, fn := range callbacks {
		_ = reg.RegisterCallback(key, d.wrap(c, fn))
	}
	reg.SetTextFallback(d.wrap(c, d.handleText))
	reg.SetMediaFallback(d.wrap(c, d.handleMedia))
	return reg
}

// wrap builds the Request for an event and contains handler failures: they
// are logged and answered with a generic notice, never propagated.
func (d *Dispatcher) wrap(c *Connection, fn handlerFunc) tele.HandlerFunc {
	return func(tc tele.Context) error {
		user := tc.Sender()
		if user == nil {
			return nil
		}
		out := c.Outbound()
		if out == nil {
			return nil
		}
		base := tghelpers.BuildContext(tc, c.BotID)
		ctx, cancel := context.WithTimeout(base, d.opts.HandlerTimeout)
		defer cancel()

		req := Request{
			Bot:      c.Bot(),
			Flow:     c.Flow(),
			Out:      out,
			Sender:   *user,
			ChatID:   user.ID,
			Text:     tc.Text(),
			Message:  tc.Message(),
			Callback: tc.Callback(),
		}
		if chat := tc.Chat(); chat != nil {
			req.ChatID = chat.ID
		}
		return d.Serve(ctx, req, fn)
	}
}

// Serve runs fn for req after the ban check, role resolution and command
// menu setup.
func (d *Dispatcher) Serve(ctx context.Context, req Request, fn handlerFunc) error {
	if d.banned(ctx, req.Sender.ID) {
		d.reply(ctx, req, msgBanned, nil)
		return nil
	}
	req.Role = d.role(ctx, req.Bot, req.Sender.ID)
	d.ensureMenu(ctx, req)

	if err := fn(ctx, req); err != nil {
		logger.Error(ctx, logger.CompDispatch, "handler.failed",
			slog.String("role", req.Role.String()),
			logger.Err(err),
		)
		if !errors.Is(err, context.Canceled) {
			d.reply(context.WithoutCancel(ctx), req, msgFailed, nil)
		}
	}
	return nil
}

func (d *Dispatcher) banned(ctx context.Context, userID int64) bool {
	banned, err := d.store.IsBanned(ctx, userID)
	if err != nil {
		logger.Warn(ctx, logger.CompDispatch, "ban_check.failed", logger.Err(err))
		return false
	}
	return banned
}

func (d *Dispatcher) role(ctx context.Context, bot store.Bot, userID int64) Role {
	if bot.OwnerID == userID {
		return RoleOwner
	}
	ok, err := d.store.IsAdmin(ctx, bot.ID, userID)
	if err != nil {
		logger.Warn(ctx, logger.CompDispatch, "admin_check.failed", logger.Err(err))
		return RoleUser
	}
	if ok {
		return RoleAdmin
	}
	return RoleUser
}

// ensureMenu sets the chat-scoped command menu once per bot and user.
func (d *Dispatcher) ensureMenu(ctx context.Context, req Request) {
	key := fmt.Sprintf("%d:%d:%d", req.Bot.ID, req.Sender.ID, req.Role)
	if _, loaded := d.menus.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: req.ChatID}
	if err := req.Out.SetCommands(menuFor(req), scope); err != nil {
		d.menus.Delete(key)
		logger.Debug(ctx, logger.CompDispatch, "menu.set_failed", logger.Err(err))
	}
}

// ForgetBot drops per-bot dispatcher state after the bot left the pool.
func (d *Dispatcher) ForgetBot(botID int64) {
	prefix := fmt.Sprintf("%d:", botID)
	d.menus.Range(func(k, _ any) bool {
		if s, ok := k.(string); ok && len(s) > len(prefix) && s[:len(prefix)] == prefix {
			d.menus.Delete(k)
		}
		return true
	})
	if d.sessions != nil {
		d.sessions.ForgetBot(botID)
	}
}

func (d *Dispatcher) reply(ctx context.Context, req Request, text string, markup *tele.ReplyMarkup) {
	if _, err := d.send.DeliverText(ctx, req.Out, req.Chat(), text, markup); err != nil {
		logger.Warn(ctx, logger.CompDispatch, "reply.failed",
			slog.String("err_kind", sender.Classify(err)),
			logger.Err(err),
		)
	}
}
