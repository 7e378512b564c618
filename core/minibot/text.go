package minibot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/TolesaD/botomics/core/broadcast"
	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/session"
	"github.com/TolesaD/botomics/core/store"
	"github.com/TolesaD/botomics/core/telegram/keyboard"
	"github.com/TolesaD/botomics/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

type consumer func(ctx context.Context, req Request) (bool, error)

// handleText interprets free text. Custom flows come first, then the compose
// sessions, then the admin dashboard; anything else from a user is captured
// as feedback.
func (d *Dispatcher) handleText(ctx context.Context, req Request) error {
	if req.Bot.Type == store.BotCustom {
		if ok, err := d.routeFlow(ctx, req); ok || err != nil {
			return err
		}
	}
	for _, consume := range []consumer{
		d.consumeWelcome,
		d.consumeBroadcast,
		d.consumeReply,
		d.consumeAdminAdd,
	} {
		if ok, err := consume(ctx, req); ok || err != nil {
			return err
		}
	}
	if req.Admin() {
		return d.handleDashboard(ctx, req)
	}
	if strings.HasPrefix(req.Text, "/") {
		return d.handleHelp(ctx, req)
	}
	return d.captureFeedback(ctx, req, store.Feedback{MessageType: "text", Content: req.Text})
}

func (d *Dispatcher) handleMedia(ctx context.Context, req Request) error {
	kind, fileID, caption, ok := mediaOf(req.Message)
	if !ok {
		return nil
	}
	if req.Admin() {
		d.reply(ctx, req, msgMediaAdmin, nil)
		return nil
	}
	return d.captureFeedback(ctx, req, store.Feedback{MessageType: kind, FileID: fileID, Content: caption})
}

func (d *Dispatcher) captureFeedback(ctx context.Context, req Request, fb store.Feedback) error {
	fb.BotID = req.Bot.ID
	fb.UserID = req.Sender.ID
	fb.Username = req.Sender.Username
	fb.FirstName = req.Sender.FirstName
	fb.Status = store.FeedbackPending

	id, err := d.store.CreateFeedback(ctx, fb)
	if err != nil {
		return fmt.Errorf("capture feedback: %w", err)
	}
	fb.ID = id
	rep, err := d.notifier.Feedback(ctx, req.Out, req.Bot, fb)
	if err != nil {
		logger.Warn(ctx, logger.CompNotify, "notify.resolve_failed", logger.Err(err))
	}
	logger.Info(ctx, logger.CompDispatch, "feedback.captured",
		slog.Int64("feedback_id", id),
		slog.String("kind", fb.MessageType),
		slog.Int("sent", rep.Sent),
		slog.Int("failed", rep.Failed),
	)
	d.reply(ctx, req, msgFeedbackSent, nil)
	return nil
}

func (d *Dispatcher) consumeWelcome(ctx context.Context, req Request) (bool, error) {
	s, ok := d.sessions.WelcomeEdit.Get(req.Sender.ID)
	if !ok || s.BotID != req.Bot.ID {
		return false, nil
	}
	if !req.Owner() {
		d.sessions.WelcomeEdit.Delete(req.Sender.ID)
		d.reply(ctx, req, msgOwner, nil)
		return true, nil
	}
	if _, ok := d.sessions.WelcomeEdit.TakeIf(req.Sender.ID, func(w session.WelcomeEdit) bool {
		return w.BotID == req.Bot.ID
	}); !ok {
		return false, nil
	}

	text := strings.TrimSpace(req.Text)
	reset := text == "-"
	if reset {
		text = ""
	}
	if err := d.store.UpdateWelcomeMessage(ctx, req.Bot.ID, text); err != nil {
		return true, fmt.Errorf("update welcome: %w", err)
	}
	if err := d.pool.Refresh(ctx, req.Bot.ID); err != nil {
		logger.Warn(ctx, logger.CompDispatch, "bot.refresh_failed", logger.Err(err))
	}
	if reset {
		d.reply(ctx, req, msgWelcomeReset, nil)
	} else {
		d.reply(ctx, req, msgWelcomeSaved, nil)
	}
	return true, nil
}

func (d *Dispatcher) consumeBroadcast(ctx context.Context, req Request) (bool, error) {
	if _, ok := d.sessions.Broadcast.TakeIf(req.Sender.ID, func(b session.Broadcast) bool {
		return b.BotID == req.Bot.ID
	}); !ok {
		return false, nil
	}
	if !req.Admin() {
		d.reply(ctx, req, msgAdmin, nil)
		return true, nil
	}

	run := broadcast.Request{
		BotID:    req.Bot.ID,
		SentBy:   req.Sender.ID,
		Message:  req.Text,
		ReportTo: req.ChatID,
	}
	bctx := context.WithoutCancel(ctx)
	d.opts.Go(func() {
		sum, err := d.broadcast.Run(bctx, req.Out, run)
		switch {
		case errors.Is(err, broadcast.ErrNoRecipients):
			d.reply(bctx, req, msgBroadcastEmpty, nil)
		case err != nil:
			logger.Error(bctx, logger.CompBroadcast, "broadcast.failed", logger.Err(err))
			d.reply(bctx, req, msgFailed, nil)
		default:
			logger.Info(bctx, logger.CompBroadcast, "broadcast.finished",
				slog.String("run_id", sum.RunID),
				slog.Int("total", sum.Total),
				slog.Int("sent", sum.Sent),
				slog.Int("failed", sum.Failed),
			)
		}
	})
	return true, nil
}

// consumeReply delivers an admin's answer through the bot the feedback
// arrived on, which may differ from the bot the admin is typing into.
func (d *Dispatcher) consumeReply(ctx context.Context, req Request) (bool, error) {
	s, ok := d.sessions.Reply.Take(req.Sender.ID)
	if !ok {
		return false, nil
	}
	fb, err := d.store.GetFeedback(ctx, s.FeedbackID)
	if errors.Is(err, store.ErrNotFound) {
		d.reply(ctx, req, msgReplyMissing, nil)
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("load feedback: %w", err)
	}

	target, err := d.pool.Lookup(ctx, fb.BotID)
	var out Outbound
	if err == nil {
		out = target.Outbound()
	}
	if out == nil {
		if err != nil && !errors.Is(err, ErrNotActive) {
			logger.Warn(ctx, logger.CompDispatch, "reply.lookup_failed", logger.Err(err))
		}
		d.reply(ctx, req, msgReplyInactive, nil)
		return true, nil
	}

	if _, err := d.send.DeliverText(ctx, out, tele.ChatID(fb.UserID), req.Text, nil); err != nil {
		logger.Warn(ctx, logger.CompDispatch, "reply.deliver_failed",
			slog.Int64("feedback_id", fb.ID),
			slog.String("err_kind", sender.Classify(err)),
			logger.Err(err),
		)
		d.reply(ctx, req, fmt.Sprintf(msgReplyFailed, deliveryReason(err)), nil)
		return true, nil
	}
	if err := d.store.MarkFeedbackReplied(ctx, fb.ID, req.Sender.ID, req.Text); err != nil {
		logger.Warn(ctx, logger.CompDispatch, "feedback.mark_failed", logger.Err(err))
	}
	d.reply(ctx, req, msgReplyDone, nil)
	return true, nil
}

func deliveryReason(err error) string {
	switch sender.Classify(err) {
	case sender.KindForbidden:
		return "the user blocked the bot."
	case sender.KindFlood:
		return "Telegram is rate limiting the bot, try again shortly."
	case sender.KindBadRequest:
		return "Telegram rejected the message."
	}
	return "a network error occurred."
}

func (d *Dispatcher) consumeAdminAdd(ctx context.Context, req Request) (bool, error) {
	s, ok := d.sessions.AdminAdd.Get(req.Sender.ID)
	if !ok || s.BotID != req.Bot.ID {
		return false, nil
	}
	if !req.Owner() {
		d.sessions.AdminAdd.Delete(req.Sender.ID)
		d.reply(ctx, req, msgOwner, nil)
		return true, nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(req.Text), 10, 64)
	if err != nil || id <= 0 {
		d.reply(ctx, req, msgAdminBadID, keyboard.Cancel(ActionCancel))
		return true, nil
	}
	if _, ok := d.sessions.AdminAdd.TakeIf(req.Sender.ID, func(a session.AdminAdd) bool {
		return a.BotID == req.Bot.ID
	}); !ok {
		return false, nil
	}
	if id == req.Bot.OwnerID {
		d.reply(ctx, req, msgAdminSelf, nil)
		return true, nil
	}
	if err := d.store.AddAdmin(ctx, store.Admin{BotID: req.Bot.ID, UserID: id, AddedBy: req.Sender.ID}); err != nil {
		return true, fmt.Errorf("add admin: %w", err)
	}
	logger.Info(ctx, logger.CompDispatch, "admin.added", slog.Int64("admin_id", id))
	d.reply(ctx, req, fmt.Sprintf(msgAdminAdded, id), nil)
	return true, nil
}
