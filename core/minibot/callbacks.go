package minibot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/session"
	"github.com/TolesaD/botomics/core/store"
	"github.com/TolesaD/botomics/core/telegram/callbacks"
)

func (d *Dispatcher) onReplyButton(ctx context.Context, req Request) error {
	if !req.Admin() {
		d.reply(ctx, req, msgAdmin, nil)
		return nil
	}
	_, payload := callbacks.FromCallback(req.Callback)
	id, err := callbacks.Int64(payload)
	if err != nil {
		return fmt.Errorf("reply payload %q: %w", payload, err)
	}
	fb, err := d.store.GetFeedback(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && fb.BotID != req.Bot.ID) {
		d.reply(ctx, req, msgReplyMissing, nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load feedback: %w", err)
	}
	if fb.Status == store.FeedbackReplied {
		d.reply(ctx, req, msgReplyAnswered, nil)
	}
	d.beginSession(req)
	d.sessions.Reply.Put(req.Sender.ID, session.Reply{
		FeedbackID: fb.ID,
		BotID:      fb.BotID,
		UserID:     fb.UserID,
		Stage:      session.AwaitingReply,
	})
	d.replyPrompt(ctx, req, fb)
	return nil
}

func (d *Dispatcher) onChoice(ctx context.Context, req Request) error {
	_, payload := callbacks.FromCallback(req.Callback)
	parts, err := callbacks.Parts(payload)
	if err != nil || len(parts) != 2 {
		return fmt.Errorf("choice payload %q: malformed", payload)
	}
	step, err1 := strconv.Atoi(parts[0])
	index, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return fmt.Errorf("choice payload %q: malformed", payload)
	}
	handled, err := d.advanceFlow(ctx, req, choiceInput(step, index))
	if err != nil {
		return err
	}
	if !handled {
		d.reply(ctx, req, msgFlowGone, nil)
	}
	return nil
}

func (d *Dispatcher) onDashboardButton(ctx context.Context, req Request) error {
	_, action := callbacks.FromCallback(req.Callback)
	switch action {
	case dashBroadcast:
		return d.handleBroadcast(ctx, req)
	case dashStats:
		return d.handleStats(ctx, req)
	case dashAdmins:
		return d.handleAdmins(ctx, req)
	case dashWelcome:
		return d.handleSetWelcome(ctx, req)
	}
	logger.Debug(ctx, logger.CompDispatch, "dashboard.unknown_action", slog.String("payload", action))
	return d.handleDashboard(ctx, req)
}

func (d *Dispatcher) onRemoveAdminButton(ctx context.Context, req Request) error {
	if !req.Owner() {
		d.reply(ctx, req, msgOwner, nil)
		return nil
	}
	_, payload := callbacks.FromCallback(req.Callback)
	id, err := callbacks.Int64(payload)
	if err != nil {
		return fmt.Errorf("rmadmin payload %q: %w", payload, err)
	}
	return d.removeAdmin(ctx, req, id)
}

func (d *Dispatcher) removeAdmin(ctx context.Context, req Request, id int64) error {
	if err := d.store.RemoveAdmin(ctx, req.Bot.ID, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("remove admin: %w", err)
	}
	logger.Info(ctx, logger.CompDispatch, "admin.removed", slog.Int64("admin_id", id))
	d.reply(ctx, req, fmt.Sprintf(msgAdminRemoved, id), nil)
	return nil
}
