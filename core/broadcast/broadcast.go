// Package broadcast sends one message to every user of a bot, or of the
// whole platform, with pacing, progress reporting and an audit record.
package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/store"
	"github.com/TolesaD/botomics/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// ErrNoRecipients is returned when the audience is empty.
var ErrNoRecipients = errors.New("broadcast: no recipients")

// Audience lists broadcast recipients.
type Audience interface {
	ListBotUserIDs(ctx context.Context, botID int64) ([]int64, error)
	ListAllUserIDs(ctx context.Context) ([]int64, error)
}

// Recorder persists the audit row of a run.
type Recorder interface {
	RecordBroadcast(ctx context.Context, b store.Broadcast) error
}

// Conn is the connection a run sends and edits progress through.
type Conn interface {
	sender.Conn
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Options tunes pacing.
type Options struct {
	// ProgressEvery is N: the progress message is edited after every N sends.
	ProgressEvery int
	// PauseEvery is M: the run sleeps for Pause after every M sends.
	PauseEvery int
	Pause      time.Duration
	// RatePerSecond caps sends per second; zero means unlimited.
	RatePerSecond float64
	Sleep         func(ctx context.Context, d time.Duration) error
}

// Request describes one run. BotID zero targets every platform user.
type Request struct {
	BotID    int64
	SentBy   int64
	Message  string
	ReportTo int64
}

// Summary is the outcome of a run. Sent+Failed always equals Total.
type Summary struct {
	RunID    string
	Total    int
	Sent     int
	Failed   int
	Recorded bool
	Took     time.Duration
}

// Engine runs broadcasts.
type Engine struct {
	audience Audience
	recorder Recorder
	sender   *sender.Sender
	opts     Options
	limiter  *rate.Limiter
}

// New builds an Engine. A nil sender uses sender.Default.
func New(audience Audience, recorder Recorder, s *sender.Sender, opts Options) *Engine {
	if s == nil {
		s = sender.Default()
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 10
	}
	if opts.PauseEvery <= 0 {
		opts.PauseEvery = 25
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Engine{
		audience: audience,
		recorder: recorder,
		sender:   s,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Recipients loads the audience of req.
func (e *Engine) Recipients(ctx context.Context, botID int64) ([]int64, error) {
	if botID == 0 {
		return e.audience.ListAllUserIDs(ctx)
	}
	return e.audience.ListBotUserIDs(ctx, botID)
}

// Run delivers req.Message to every recipient. Per-recipient failures are
// counted, never returned; the error is non-nil only when the audience
// cannot be loaded or is empty.
func (e *Engine) Run(ctx context.Context, conn Conn, req Request) (Summary, error) {
	started := time.Now()
	sum := Summary{RunID: uuid.NewString()}
	ctx = logger.WithBotID(ctx, req.BotID)

	ids, err := e.Recipients(ctx, req.BotID)
	if err != nil {
		return sum, fmt.Errorf("broadcast: load recipients: %w", err)
	}
	if len(ids) == 0 {
		return sum, ErrNoRecipients
	}
	sum.Total = len(ids)

	logger.Info(ctx, logger.CompBroadcast, "broadcast.start",
		slog.String("run_id", sum.RunID),
		slog.Int("total", sum.Total),
		slog.Bool("platform", req.BotID == 0),
	)

	progress := e.startProgress(ctx, conn, req.ReportTo, sum.Total)

	for i, id := range ids {
		if err := e.limiter.Wait(ctx); err != nil {
			sum.Failed += len(ids) - i
			logger.Warn(ctx, logger.CompBroadcast, "broadcast.aborted",
				slog.String("run_id", sum.RunID),
				slog.Int("remaining", len(ids)-i),
				logger.Err(err),
			)
			break
		}
		if e.deliver(ctx, conn, id, req.Message) {
			sum.Sent++
		} else {
			sum.Failed++
		}

		done := i + 1
		if progress != nil && done%e.opts.ProgressEvery == 0 && done < sum.Total {
			e.edit(conn, progress, progressText(done, sum))
		}
		if done%e.opts.PauseEvery == 0 && done < sum.Total {
			if err := e.opts.Sleep(ctx, e.opts.Pause); err != nil {
				sum.Failed += sum.Total - done
				break
			}
		}
	}
	sum.Took = time.Since(started)

	audit := store.Broadcast{
		BotID:           sql.NullInt64{Int64: req.BotID, Valid: req.BotID != 0},
		SentBy:          req.SentBy,
		Message:         req.Message,
		TotalUsers:      sum.Total,
		SuccessfulSends: sum.Sent,
		FailedSends:     sum.Failed,
		BroadcastType:   store.BroadcastBot,
	}
	if req.BotID == 0 {
		audit.BroadcastType = store.BroadcastPlatform
	}
	if err := e.recorder.RecordBroadcast(context.WithoutCancel(ctx), audit); err != nil {
		logger.Error(ctx, logger.CompBroadcast, "broadcast.audit_failed",
			slog.String("run_id", sum.RunID),
			logger.Err(err),
		)
	} else {
		sum.Recorded = true
	}

	final := fmt.Sprintf("Broadcast finished.\nTotal: %d\nDelivered: %d\nFailed: %d", sum.Total, sum.Sent, sum.Failed)
	if progress != nil {
		e.edit(conn, progress, final)
	} else if req.ReportTo != 0 {
		_, _ = e.sender.Deliver(ctx, conn, tele.ChatID(req.ReportTo), final)
	}

	logger.Info(ctx, logger.CompBroadcast, "broadcast.done",
		slog.String("run_id", sum.RunID),
		slog.Int("total", sum.Total),
		slog.Int("sent", sum.Sent),
		slog.Int("failed", sum.Failed),
		slog.Duration("duration", sum.Took),
	)
	return sum, nil
}

// deliver sends to one recipient and reports success. A panic inside the
// connection counts as a failure for that recipient only.
func (e *Engine) deliver(ctx context.Context, conn Conn, id int64, text string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			logger.Error(ctx, logger.CompBroadcast, "broadcast.recipient_panic",
				slog.Int64("recipient", id),
				slog.Any("err", r),
			)
		}
	}()
	if _, err := e.sender.DeliverText(ctx, conn, tele.ChatID(id), text, nil); err != nil {
		logger.Debug(ctx, logger.CompBroadcast, "broadcast.recipient_failed",
			slog.Int64("recipient", id),
			slog.String("err_kind", sender.Classify(err)),
			logger.Err(err),
		)
		return false
	}
	return true
}

func (e *Engine) startProgress(ctx context.Context, conn Conn, chatID int64, total int) *tele.Message {
	if chatID == 0 {
		return nil
	}
	msg, err := e.sender.Deliver(ctx, conn, tele.ChatID(chatID), fmt.Sprintf("Broadcasting to %d users...", total))
	if err != nil {
		logger.Warn(ctx, logger.CompBroadcast, "broadcast.progress_failed", logger.Err(err))
		return nil
	}
	return msg
}

func (e *Engine) edit(conn Conn, msg *tele.Message, text string) {
	defer func() { _ = recover() }()
	_, _ = conn.Edit(msg, text)
}

func progressText(done int, s Summary) string {
	return fmt.Sprintf("Broadcasting... %d/%d\nDelivered: %d\nFailed: %d", done, s.Total, s.Sent, s.Failed)
}
