package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// BotType distinguishes plain feedback bots from bots running custom flows.
type BotType string

const (
	BotQuick  BotType = "quick"
	BotCustom BotType = "custom"
)

// Bot is the persisted record of one mini-bot.
type Bot struct {
	ID             int64              `db:"id" json:"id"`
	OwnerID        int64              `db:"owner_id" json:"owner_id"`
	Name           string             `db:"name" json:"name"`
	Username       string             `db:"username" json:"username"`
	EncryptedToken string             `db:"encrypted_token" json:"-"`
	Type           BotType            `db:"bot_type" json:"bot_type"`
	IsActive       bool               `db:"is_active" json:"is_active"`
	CustomFlow     types.NullJSONText `db:"custom_flow" json:"-"`
	WelcomeMessage sql.NullString     `db:"welcome_message" json:"-"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
}

// HasFlow reports whether the bot carries a custom flow definition.
func (b Bot) HasFlow() bool {
	return b.CustomFlow.Valid && len(b.CustomFlow.JSONText) > 0 && string(b.CustomFlow.JSONText) != "null"
}

// Welcome returns the override welcome text, if any.
func (b Bot) Welcome() (string, bool) {
	if !b.WelcomeMessage.Valid || b.WelcomeMessage.String == "" {
		return "", false
	}
	return b.WelcomeMessage.String, true
}

// Admin grants admin access on one bot to one user.
type Admin struct {
	ID        int64     `db:"id"`
	BotID     int64     `db:"bot_id"`
	UserID    int64     `db:"user_id"`
	Username  string    `db:"username"`
	AddedBy   int64     `db:"added_by"`
	CreatedAt time.Time `db:"created_at"`
}

// BotUser is the per-bot interaction log entry of a user.
type BotUser struct {
	BotID            int64     `db:"bot_id"`
	UserID           int64     `db:"user_id"`
	Username         string    `db:"username"`
	FirstName        string    `db:"first_name"`
	LastName         string    `db:"last_name"`
	InteractionCount int       `db:"interaction_count"`
	FirstSeen        time.Time `db:"first_seen"`
	LastSeen         time.Time `db:"last_seen"`
}

// User is a platform-level user known to the main bot.
type User struct {
	TelegramID int64     `db:"telegram_id"`
	Username   string    `db:"username"`
	FirstName  string    `db:"first_name"`
	IsBanned   bool      `db:"is_banned"`
	CreatedAt  time.Time `db:"created_at"`
}

// FeedbackStatus tracks whether an admin answered a captured message.
type FeedbackStatus string

const (
	FeedbackPending FeedbackStatus = "pending"
	FeedbackReplied FeedbackStatus = "replied"
)

// Feedback is one inbound user message captured for admin reply.
type Feedback struct {
	ID           int64          `db:"id"`
	BotID        int64          `db:"bot_id"`
	UserID       int64          `db:"user_id"`
	Username     string         `db:"username"`
	FirstName    string         `db:"first_name"`
	MessageType  string         `db:"message_type"`
	Content      string         `db:"content"`
	FileID       string         `db:"file_id"`
	Status       FeedbackStatus `db:"status"`
	ReplyContent sql.NullString `db:"reply_content"`
	RepliedBy    sql.NullInt64  `db:"replied_by"`
	CreatedAt    time.Time      `db:"created_at"`
	RepliedAt    sql.NullTime   `db:"replied_at"`
}

// Broadcast types persisted in the audit table.
const (
	BroadcastBot      = "bot"
	BroadcastPlatform = "platform"
)

// Broadcast is the audit row of one broadcast run. BotID is NULL for platform-wide runs.
type Broadcast struct {
	ID              int64         `db:"id"`
	BotID           sql.NullInt64 `db:"bot_id"`
	SentBy          int64         `db:"sent_by"`
	Message         string        `db:"message"`
	TotalUsers      int           `db:"total_users"`
	SuccessfulSends int           `db:"successful_sends"`
	FailedSends     int           `db:"failed_sends"`
	BroadcastType   string        `db:"broadcast_type"`
	CreatedAt       time.Time     `db:"created_at"`
}
