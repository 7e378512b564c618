// Package notify fans captured user messages out to a bot's admins and owner.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/store"
	"github.com/TolesaD/botomics/core/telegram/format"
	"github.com/TolesaD/botomics/core/telegram/keyboard"
	"github.com/TolesaD/botomics/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// ReplyAction is the callback key of the reply button.
const ReplyAction = "reply"

// Directory resolves who administers a bot.
type Directory interface {
	ListAdmins(ctx context.Context, botID int64) ([]store.Admin, error)
}

// Report counts per-recipient outcomes of one fan-out.
type Report struct {
	Recipients int
	Sent       int
	Failed     int
}

// Notifier pushes notifications through the bot's own connection.
type Notifier struct {
	dir    Directory
	sender *sender.Sender
}

// New returns a Notifier. A nil sender uses sender.Default.
func New(dir Directory, s *sender.Sender) *Notifier {
	if s == nil {
		s = sender.Default()
	}
	return &Notifier{dir: dir, sender: s}
}

// Recipients returns the owner followed by every admin, without duplicates.
func (n *Notifier) Recipients(ctx context.Context, bot store.Bot) ([]int64, error) {
	admins, err := n.dir.ListAdmins(ctx, bot.ID)
	if err != nil {
		return nil, fmt.Errorf("notify: list admins: %w", err)
	}
	seen := make(map[int64]struct{}, len(admins)+1)
	out := make([]int64, 0, len(admins)+1)
	add := func(id int64) {
		if id == 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(bot.OwnerID)
	for _, a := range admins {
		add(a.UserID)
	}
	return out, nil
}

// Feedback notifies every recipient about fb. A failed recipient is logged
// and skipped. The error is non-nil only when recipients cannot be resolved.
func (n *Notifier) Feedback(ctx context.Context, conn sender.Conn, bot store.Bot, fb store.Feedback) (Report, error) {
	ids, err := n.Recipients(ctx, bot)
	if err != nil {
		return Report{}, err
	}
	header := fmt.Sprintf("New message to %s from %s", botLabel(bot), format.UserLabel(fb.FirstName, fb.Username, fb.UserID))
	return n.fanOut(ctx, conn, ids, "feedback", func() (interface{}, *tele.ReplyMarkup) {
		markup := keyboard.Single(keyboard.InlineBtn{
			Text:   "Reply",
			Unique: ReplyAction,
			Data:   strconv.FormatInt(fb.ID, 10),
		})
		return Payload(fb, header), markup
	}), nil
}

// FlowCompleted tells recipients that a user finished a custom flow.
func (n *Notifier) FlowCompleted(ctx context.Context, conn sender.Conn, bot store.Bot, user *tele.User, flowName string, fields int) (Report, error) {
	ids, err := n.Recipients(ctx, bot)
	if err != nil {
		return Report{}, err
	}
	var label string
	if user != nil {
		label = format.UserLabel(user.FirstName, user.Username, user.ID)
	}
	text := fmt.Sprintf("%s completed flow %q on %s with %d field(s) collected.", label, flowName, botLabel(bot), fields)
	return n.fanOut(ctx, conn, ids, "flow_completed", func() (interface{}, *tele.ReplyMarkup) {
		return text, nil
	}), nil
}

func (n *Notifier) fanOut(ctx context.Context, conn sender.Conn, ids []int64, kind string, build func() (interface{}, *tele.ReplyMarkup)) Report {
	rep := Report{Recipients: len(ids)}
	for _, id := range ids {
		what, markup := build()
		opts := &tele.SendOptions{ReplyMarkup: markup}
		if _, err := n.sender.Deliver(ctx, conn, tele.ChatID(id), what, opts); err != nil {
			rep.Failed++
			logger.Warn(ctx, logger.CompNotify, "notify.recipient_failed",
				slog.String("kind", kind),
				slog.Int64("recipient", id),
				slog.String("err_kind", sender.Classify(err)),
				logger.Err(err),
			)
			continue
		}
		rep.Sent++
	}
	logger.Debug(ctx, logger.CompNotify, "notify.done",
		slog.String("kind", kind),
		slog.Int("total", rep.Recipients),
		slog.Int("sent", rep.Sent),
		slog.Int("failed", rep.Failed),
	)
	return rep
}

// Payload renders fb as a native media message when it carries a file of a
// supported kind, and as text otherwise.
func Payload(fb store.Feedback, header string) interface{} {
	caption := header
	if fb.Content != "" {
		caption += "\n\n" + fb.Content
	}
	file := tele.File{FileID: fb.FileID}
	if fb.FileID != "" {
		switch fb.MessageType {
		case "photo":
			return &tele.Photo{File: file, Caption: caption}
		case "video":
			return &tele.Video{File: file, Caption: caption}
		case "document":
			return &tele.Document{File: file, Caption: caption}
		case "audio":
			return &tele.Audio{File: file, Caption: caption}
		case "voice":
			return &tele.Voice{File: file, Caption: caption}
		}
	}
	text := header + "\n\n"
	switch {
	case fb.MessageType != "" && fb.MessageType != "text" && fb.Content != "":
		text += "[" + fb.MessageType + "] " + fb.Content
	case fb.MessageType != "" && fb.MessageType != "text":
		text += "[" + fb.MessageType + "]"
	default:
		text += fb.Content
	}
	return text
}

func botLabel(b store.Bot) string {
	if b.Username != "" {
		return "@" + b.Username
	}
	return b.Name
}
