package store

import (
	"context"
)

// UpsertUser records a platform user seen by the main bot.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO users (telegram_id, username, first_name)
		 VALUES (:telegram_id, :username, :first_name)
		 ON CONFLICT (telegram_id) DO UPDATE
		 SET username = EXCLUDED.username, first_name = EXCLUDED.first_name, updated_at = NOW()`, u)
	return mapErr("upsert user", err)
}

// IsBanned reports whether the platform user is banned. Unknown users are not banned.
func (s *Store) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var banned bool
	err := s.db.GetContext(ctx, &banned,
		`SELECT COALESCE((SELECT is_banned FROM users WHERE telegram_id = $1), FALSE)`, userID)
	return banned, mapErr("is banned", err)
}

// ListAllUserIDs returns every platform user id that is not banned.
func (s *Store) ListAllUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `SELECT telegram_id FROM users WHERE NOT is_banned ORDER BY telegram_id`)
	return ids, mapErr("list all users", err)
}

// TouchBotUser upserts the interaction log of (bot, user) and bumps its counter.
// A vanished bot row surfaces as ErrBotMissing.
func (s *Store) TouchBotUser(ctx context.Context, u BotUser) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO bot_users (bot_id, user_id, username, first_name, last_name)
		 VALUES (:bot_id, :user_id, :username, :first_name, :last_name)
		 ON CONFLICT (bot_id, user_id) DO UPDATE
		 SET username = EXCLUDED.username,
		     first_name = EXCLUDED.first_name,
		     last_name = EXCLUDED.last_name,
		     interaction_count = bot_users.interaction_count + 1,
		     last_seen = NOW()`, u)
	return mapErr("touch bot user", err)
}

// CountBotUsers returns how many users interacted with botID.
func (s *Store) CountBotUsers(ctx context.Context, botID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bot_users WHERE bot_id = $1`, botID)
	return n, mapErr("count bot users", err)
}

// ListBotUserIDs returns the ids of every user known to botID.
func (s *Store) ListBotUserIDs(ctx context.Context, botID int64) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `SELECT user_id FROM bot_users WHERE bot_id = $1 ORDER BY first_seen, user_id`, botID)
	return ids, mapErr("list bot users", err)
}
