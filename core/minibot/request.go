package minibot

import (
	"github.com/TolesaD/botomics/core/flow"
	"github.com/TolesaD/botomics/core/session"
	"github.com/TolesaD/botomics/core/store"

	tele "gopkg.in/telebot.v4"
)

// Role is the caller's access level on the bot an event arrived on.
type Role int

const (
	RoleUser Role = iota
	RoleAdmin
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleAdmin:
		return "admin"
	default:
		return "user"
	}
}

// Request is the immutable context of one inbound event. It is built once
// per event from the pool's current bot record and passed by value.
type Request struct {
	Bot      store.Bot
	Flow     flow.Definition
	Out      Outbound
	Sender   tele.User
	ChatID   int64
	Text     string
	Message  *tele.Message
	Callback *tele.Callback
	Role     Role
}

// Admin reports owner or admin access.
func (r Request) Admin() bool { return r.Role >= RoleAdmin }

// Owner reports owner access.
func (r Request) Owner() bool { return r.Role == RoleOwner }

// Chat is where replies to this event go.
func (r Request) Chat() tele.Recipient { return tele.ChatID(r.ChatID) }

func (r Request) flowKey() session.FlowKey {
	return session.FlowKey{BotID: r.Bot.ID, UserID: r.Sender.ID}
}
