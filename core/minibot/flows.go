package minibot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/TolesaD/botomics/core/flow"
	"github.com/TolesaD/botomics/core/logger"
	"github.com/TolesaD/botomics/core/store"
	"github.com/TolesaD/botomics/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

const msgFlowGone = "This conversation is no longer available. Send /start to begin again."

// errStale marks input meant for a step the session already left.
var errStale = errors.New("stale flow input")

// commandName strips the @botname suffix Telegram appends in groups.
func commandName(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return text
	}
	if i := strings.IndexByte(text, '@'); i > 0 {
		text = text[:i]
	}
	if i := strings.IndexAny(text, " \n"); i > 0 {
		text = text[:i]
	}
	return text
}

// routeFlow reports whether text belonged to a custom flow. An open session
// takes every message as input, triggers included; a trigger only starts a
// flow when no session is open.
func (d *Dispatcher) routeFlow(ctx context.Context, req Request) (bool, error) {
	if _, ok := d.sessions.Flow.Get(req.flowKey()); ok {
		return d.advanceFlow(ctx, req, func(flow.Flow, flow.State) (string, error) {
			return req.Text, nil
		})
	}
	if f, ok := req.Flow.Match(commandName(req.Text)); ok {
		return true, d.startFlow(ctx, req, f)
	}
	return false, nil
}

// triggerFirst lets a custom flow claim the name of a built-in command.
func (d *Dispatcher) triggerFirst(fn handlerFunc) handlerFunc {
	return func(ctx context.Context, req Request) error {
		if req.Bot.Type == store.BotCustom {
			if _, ok := req.Flow.Match(commandName(req.Text)); ok {
				_, err := d.routeFlow(ctx, req)
				return err
			}
		}
		return fn(ctx, req)
	}
}

func (d *Dispatcher) startFlow(ctx context.Context, req Request, f flow.Flow) error {
	key := req.flowKey()
	res, err := flow.Start(f)
	if err != nil {
		d.sessions.Flow.Delete(key)
		return fmt.Errorf("start flow %s: %w", f.Name, err)
	}
	if res.Done {
		d.sessions.Flow.Delete(key)
	} else {
		d.sessions.Flow.Put(key, res.State)
	}
	logger.Info(ctx, logger.CompFlow, "flow.started", slog.String("flow", f.Name))
	return d.emitFlow(ctx, req, f, res)
}

// advanceFlow applies one input to the caller's session atomically. input
// resolves the raw text against the live state; errStale leaves the session
// untouched.
func (d *Dispatcher) advanceFlow(ctx context.Context, req Request, input func(flow.Flow, flow.State) (string, error)) (bool, error) {
	var (
		res     flow.Result
		current flow.Flow
		runErr  error
		gone    bool
	)
	found := d.sessions.Flow.Update(req.flowKey(), func(st flow.State) (flow.State, bool) {
		f, ok := req.Flow.Lookup(st.Flow)
		if !ok {
			gone = true
			return st, false
		}
		current = f
		text, err := input(f, st)
		if err != nil {
			runErr = err
			return st, true
		}
		res, runErr = flow.Advance(f, st, text)
		if runErr != nil {
			return st, false
		}
		return res.State, !res.Done
	})
	switch {
	case !found:
		return false, nil
	case gone:
		logger.Warn(ctx, logger.CompFlow, "flow.gone")
		d.reply(ctx, req, msgFlowGone, nil)
		return true, nil
	case errors.Is(runErr, errStale):
		logger.Debug(ctx, logger.CompFlow, "flow.stale_input")
		return true, nil
	case runErr != nil:
		return true, fmt.Errorf("advance flow %s: %w", current.Name, runErr)
	}
	return true, d.emitFlow(ctx, req, current, res)
}

func (d *Dispatcher) emitFlow(ctx context.Context, req Request, f flow.Flow, res flow.Result) error {
	if len(res.Skipped) > 0 {
		logger.Debug(ctx, logger.CompFlow, "flow.steps_skipped", slog.String("types", strings.Join(res.Skipped, ",")))
	}
	for _, out := range res.Outputs {
		var markup *tele.ReplyMarkup
		if len(out.Options) > 0 {
			markup = choiceKeyboard(res.State.Step, out.Options)
		}
		d.reply(ctx, req, out.Text, markup)
	}
	if !res.Done {
		return nil
	}
	if res.Completion != "" {
		d.reply(ctx, req, res.Completion, nil)
	}
	logger.Info(ctx, logger.CompFlow, "flow.completed",
		slog.String("flow", f.Name),
		slog.Int("count", len(res.State.Data)),
	)
	if _, err := d.notifier.FlowCompleted(ctx, req.Out, req.Bot, &req.Sender, f.Name, len(res.State.Data)); err != nil {
		logger.Warn(ctx, logger.CompNotify, "notify.resolve_failed", logger.Err(err))
	}
	return nil
}

// choiceKeyboard encodes options as "<step>|<index>" so a press always maps
// to the step it was rendered for.
func choiceKeyboard(step int, opts []flow.Option) *tele.ReplyMarkup {
	btns := make([]keyboard.InlineBtn, 0, len(opts))
	for i, o := range opts {
		btns = append(btns, keyboard.InlineBtn{
			Text:   o.Text,
			Unique: ActionChoice,
			Data:   strconv.Itoa(step) + "|" + strconv.Itoa(i),
		})
	}
	return keyboard.NPerRow(btns, 1)
}

// choiceInput resolves a button press against the live state.
func choiceInput(step, index int) func(flow.Flow, flow.State) (string, error) {
	return func(f flow.Flow, st flow.State) (string, error) {
		if st.Step != step || step < 0 || step >= len(f.Steps) {
			return "", errStale
		}
		mc, ok := f.Steps[step].(flow.MultipleChoice)
		if !ok || index < 0 || index >= len(mc.Options) {
			return "", errStale
		}
		return mc.Options[index].Stored(), nil
	}
}
