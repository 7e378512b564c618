package minibot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/TolesaD/botomics/core/flow"
	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/session"
	"github.com/TolesaD/botomics/core/store"
	"github.com/TolesaD/botomics/core/telegram/format"
	"github.com/TolesaD/botomics/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

func (d *Dispatcher) handleStart(ctx context.Context, req Request) error {
	err := d.store.TouchBotUser(ctx, store.BotUser{
		BotID:     req.Bot.ID,
		UserID:    req.Sender.ID,
		Username:  req.Sender.Username,
		FirstName: req.Sender.FirstName,
		LastName:  req.Sender.LastName,
	})
	switch {
	case errors.Is(err, store.ErrBotMissing):
		logger.Warn(ctx, logger.CompDispatch, "bot_user.skipped", slog.String("reason", "bot_missing"))
	case err != nil:
		logger.Warn(ctx, logger.CompDispatch, "bot_user.touch_failed", logger.Err(err))
	}

	if req.Bot.Type == store.BotCustom {
		if f, ok := req.Flow.Match("/start"); ok {
			return d.startFlow(ctx, req, f)
		}
		if f, ok := req.Flow.AutoStart(); ok && !req.Admin() {
			return d.startFlow(ctx, req, f)
		}
	}
	if req.Admin() {
		return d.handleDashboard(ctx, req)
	}
	d.reply(ctx, req, welcomeText(req), nil)
	return nil
}

func welcomeText(req Request) string {
	text, ok := req.Bot.Welcome()
	if !ok {
		text = msgQuickWelcome
		if req.Bot.Type == store.BotCustom {
			text = msgCustomWelcome
			if cmds := req.Flow.Commands(); len(cmds) > 0 {
				text += "\n\nAvailable: " + strings.Join(cmds, ", ")
			}
		}
	}
	return flow.Substitute(text, map[string]string{
		"first_name": req.Sender.FirstName,
		"bot_name":   req.Bot.Name,
	})
}

func (d *Dispatcher) handleHelp(ctx context.Context, req Request) error {
	var b strings.Builder
	b.WriteString(req.Bot.Name)
	b.WriteString("\n")
	for _, cmd := range menuFor(req) {
		fmt.Fprintf(&b, "\n/%s - %s", cmd.Text, cmd.Description)
	}
	if !req.Admin() {
		b.WriteString("\n\nAny other message is forwarded to the bot team.")
	}
	d.reply(ctx, req, b.String(), nil)
	return nil
}

func (d *Dispatcher) handleCancel(ctx context.Context, req Request) error {
	if d.sessions.Cancel(req.Sender.ID, req.Bot.ID) == 0 {
		d.reply(ctx, req, msgNothing, nil)
		return nil
	}
	d.reply(ctx, req, msgCancel, nil)
	return nil
}

func (d *Dispatcher) handleDashboard(ctx context.Context, req Request) error {
	if !req.Admin() {
		d.reply(ctx, req, msgAdmin, nil)
		return nil
	}
	users, err := d.store.CountBotUsers(ctx, req.Bot.ID)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	pending, err := d.store.CountPendingFeedback(ctx, req.Bot.ID)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	text := fmt.Sprintf("%s dashboard\n\nUsers: %d\nPending messages: %d\nRole: %s",
		req.Bot.Name, users, pending, req.Role)

	rows := [][]keyboard.InlineBtn{{
		{Text: "Broadcast", Unique: ActionDashboard, Data: dashBroadcast},
		{Text: "Stats", Unique: ActionDashboard, Data: dashStats},
	}}
	if req.Owner() {
		rows = append(rows, []keyboard.InlineBtn{
			{Text: "Admins", Unique: ActionDashboard, Data: dashAdmins},
			{Text: "Welcome message", Unique: ActionDashboard, Data: dashWelcome},
		})
	}
	d.reply(ctx, req, text, keyboard.Inline(rows...))
	return nil
}

func (d *Dispatcher) handleStats(ctx context.Context, req Request) error {
	if !req.Admin() {
		d.reply(ctx, req, msgAdmin, nil)
		return nil
	}
	users, err := d.store.CountBotUsers(ctx, req.Bot.ID)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	pending, err := d.store.CountPendingFeedback(ctx, req.Bot.ID)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	admins, err := d.store.ListAdmins(ctx, req.Bot.ID)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	text := fmt.Sprintf("Stats for %s\n\nType: %s\nUsers: %d\nPending messages: %d\nAdmins: %d\nCreated: %s",
		req.Bot.Name, req.Bot.Type, users, pending, len(admins)+1, req.Bot.CreatedAt.Format("2006-01-02"))
	if n := len(req.Flow.Flows); n > 0 {
		text += fmt.Sprintf("\nFlows: %d", n)
	}
	d.reply(ctx, req, text, nil)
	return nil
}

// beginSession drops every other compose session of the caller on this bot
// so that at most one of them interprets the next message.
func (d *Dispatcher) beginSession(req Request) {
	d.sessions.Cancel(req.Sender.ID, req.Bot.ID)
}

func (d *Dispatcher) handleBroadcast(ctx context.Context, req Request) error {
	if !req.Admin() {
		d.reply(ctx, req, msgAdmin, nil)
		return nil
	}
	users, err := d.store.CountBotUsers(ctx, req.Bot.ID)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if users == 0 {
		d.reply(ctx, req, msgBroadcastEmpty, nil)
		return nil
	}
	d.beginSession(req)
	d.sessions.Broadcast.Put(req.Sender.ID, session.Broadcast{
		BotID:   req.Bot.ID,
		Stage:   session.AwaitingMessage,
		Started: time.Now(),
	})
	d.reply(ctx, req, fmt.Sprintf("%s\n\nRecipients: %d", msgBroadcastAsk, users), keyboard.Cancel(ActionCancel))
	return nil
}

func (d *Dispatcher) handleAdmins(ctx context.Context, req Request) error {
	if !req.Admin() {
		d.reply(ctx, req, msgAdmin, nil)
		return nil
	}
	admins, err := d.store.ListAdmins(ctx, req.Bot.ID)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Admins of %s\n\nOwner: %d", req.Bot.Name, req.Bot.OwnerID)
	for _, a := range admins {
		fmt.Fprintf(&b, "\n%s", format.UserLabel("", a.Username, a.UserID))
	}
	if len(admins) == 0 {
		b.WriteString("\n\nNo additional admins.")
	}
	if req.Owner() {
		b.WriteString("\n\n/addadmin to add, /removeadmin to remove.")
	}
	d.reply(ctx, req, b.String(), nil)
	return nil
}

func (d *Dispatcher) handleAddAdmin(ctx context.Context, req Request) error {
	if !req.Owner() {
		d.reply(ctx, req, msgOwner, nil)
		return nil
	}
	d.beginSession(req)
	d.sessions.AdminAdd.Put(req.Sender.ID, session.AdminAdd{BotID: req.Bot.ID, Stage: session.AwaitingAdminID})
	d.reply(ctx, req, msgAdminAsk, keyboard.Cancel(ActionCancel))
	return nil
}

// handleRemoveAdmin removes the admin named by "/removeadmin <id>", or
// lists the admins as buttons when no id is given.
func (d *Dispatcher) handleRemoveAdmin(ctx context.Context, req Request) error {
	if !req.Owner() {
		d.reply(ctx, req, msgOwner, nil)
		return nil
	}
	if args := strings.Fields(req.Text); len(args) > 1 {
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id <= 0 {
			d.reply(ctx, req, msgAdminRemoveUsage, nil)
			return nil
		}
		return d.removeAdmin(ctx, req, id)
	}
	admins, err := d.store.ListAdmins(ctx, req.Bot.ID)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	if len(admins) == 0 {
		d.reply(ctx, req, msgAdminNone, nil)
		return nil
	}
	btns := make([]keyboard.InlineBtn, 0, len(admins))
	for _, a := range admins {
		btns = append(btns, keyboard.InlineBtn{
			Text:   format.UserLabel("", a.Username, a.UserID),
			Unique: ActionRemoveAdmin,
			Data:   strconv.FormatInt(a.UserID, 10),
		})
	}
	d.reply(ctx, req, msgAdminRemoveAsk, keyboard.NPerRow(btns, 1))
	return nil
}

func (d *Dispatcher) handleSetWelcome(ctx context.Context, req Request) error {
	if !req.Owner() {
		d.reply(ctx, req, msgOwner, nil)
		return nil
	}
	current := "(default)"
	if text, ok := req.Bot.Welcome(); ok {
		current = text
	}
	d.beginSession(req)
	d.sessions.WelcomeEdit.Put(req.Sender.ID, session.WelcomeEdit{BotID: req.Bot.ID, Stage: session.AwaitingWelcome})
	d.reply(ctx, req, msgWelcomeAsk+"\n\nCurrent:\n"+current, keyboard.Cancel(ActionCancel))
	return nil
}

func (d *Dispatcher) replyPrompt(ctx context.Context, req Request, fb store.Feedback) {
	label := format.UserLabel(fb.FirstName, fb.Username, fb.UserID)
	d.reply(ctx, req, fmt.Sprintf(msgReplyAsk, label), keyboard.Cancel(ActionCancel))
}

func mediaOf(m *tele.Message) (kind, fileID, caption string, ok bool) {
	if m == nil {
		return "", "", "", false
	}
	switch {
	case m.Photo != nil:
		return "photo", m.Photo.FileID, m.Caption, true
	case m.Video != nil:
		return "video", m.Video.FileID, m.Caption, true
	case m.Document != nil:
		return "document", m.Document.FileID, m.Caption, true
	case m.Audio != nil:
		return "audio", m.Audio.FileID, m.Caption, true
	case m.Voice != nil:
		return "voice", m.Voice.FileID, m.Caption, true
	case m.Sticker != nil:
		return "sticker", "", m.Sticker.Emoji, true
	case m.Animation != nil:
		return "animation", "", m.Caption, true
	case m.VideoNote != nil:
		return "video_note", "", "", true
	}
	return "", "", "", false
}
