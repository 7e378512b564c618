package session

import (
	"context"
	"time"

	"github.com/TolesaD/botomics/core/flow"
)

// Stage discriminates the step a session waits on.
type Stage string

const (
	AwaitingMessage Stage = "awaiting_message"
	AwaitingReply   Stage = "awaiting_reply"
	AwaitingAdminID Stage = "awaiting_admin_id"
	AwaitingWelcome Stage = "awaiting_welcome"
)

// Broadcast is a broadcast-compose session. BotID zero targets every platform user.
type Broadcast struct {
	BotID   int64
	Stage   Stage
	Started time.Time
}

// Platform reports whether the broadcast targets the global user set.
func (b Broadcast) Platform() bool { return b.BotID == 0 }

// Reply is an admin reply to a captured feedback message. BotID is the bot the
// feedback arrived on, which is where the answer is delivered from.
type Reply struct {
	FeedbackID int64
	BotID      int64
	UserID     int64
	Stage      Stage
}

// AdminAdd waits for the user id of a new admin.
type AdminAdd struct {
	BotID int64
	Stage Stage
}

// WelcomeEdit waits for a new welcome message.
type WelcomeEdit struct {
	BotID int64
	Stage Stage
}

// FlowKey scopes custom flow sessions to one bot and one user.
type FlowKey struct {
	BotID  int64
	UserID int64
}

// Registry groups the session tables of every flow type.
type Registry struct {
	Broadcast   *Table[int64, Broadcast]
	Reply       *Table[int64, Reply]
	AdminAdd    *Table[int64, AdminAdd]
	WelcomeEdit *Table[int64, WelcomeEdit]
	Flow        *Table[FlowKey, flow.State]
}

// NewRegistry creates empty tables sharing one expiry.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		Broadcast:   NewTable[int64, Broadcast](ttl),
		Reply:       NewTable[int64, Reply](ttl),
		AdminAdd:    NewTable[int64, AdminAdd](ttl),
		WelcomeEdit: NewTable[int64, WelcomeEdit](ttl),
		Flow:        NewTable[FlowKey, flow.State](ttl),
	}
}

// Cancel drops every session userID holds in the context of botID and
// returns how many were removed. Reply sessions are dropped regardless of
// bot, since they are addressed through whichever bot the admin is using.
func (r *Registry) Cancel(userID, botID int64) int {
	n := 0
	if _, ok := r.Broadcast.TakeIf(userID, func(b Broadcast) bool { return b.BotID == botID }); ok {
		n++
	}
	if r.Reply.Delete(userID) {
		n++
	}
	if _, ok := r.AdminAdd.TakeIf(userID, func(a AdminAdd) bool { return a.BotID == botID }); ok {
		n++
	}
	if _, ok := r.WelcomeEdit.TakeIf(userID, func(w WelcomeEdit) bool { return w.BotID == botID }); ok {
		n++
	}
	if r.Flow.Delete(FlowKey{BotID: botID, UserID: userID}) {
		n++
	}
	return n
}

// ForgetBot drops every session bound to botID, used when a bot is stopped.
func (r *Registry) ForgetBot(botID int64) int {
	n := r.Broadcast.DeleteFunc(func(_ int64, b Broadcast) bool { return b.BotID == botID })
	n += r.Reply.DeleteFunc(func(_ int64, s Reply) bool { return s.BotID == botID })
	n += r.AdminAdd.DeleteFunc(func(_ int64, a AdminAdd) bool { return a.BotID == botID })
	n += r.WelcomeEdit.DeleteFunc(func(_ int64, w WelcomeEdit) bool { return w.BotID == botID })
	n += r.Flow.DeleteFunc(func(k FlowKey, _ flow.State) bool { return k.BotID == botID })
	return n
}

// Sweep drops expired sessions from every table.
func (r *Registry) Sweep() int {
	return r.Broadcast.Sweep() + r.Reply.Sweep() + r.AdminAdd.Sweep() + r.WelcomeEdit.Sweep() + r.Flow.Sweep()
}

// SweepEvery runs Sweep on each tick until ctx is done. onSweep, when set,
// receives the number of removed sessions of every non-empty pass.
func (r *Registry) SweepEvery(ctx context.Context, every time.Duration, onSweep func(int)) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}

// Clear empties every table.
func (r *Registry) Clear() {
	r.Broadcast.Clear()
	r.Reply.Clear()
	r.AdminAdd.Clear()
	r.WelcomeEdit.Clear()
	r.Flow.Clear()
}
