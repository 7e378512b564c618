package store

import (
	"context"
	"database/sql"
)

const botColumns = `id, owner_id, name, username, encrypted_token, bot_type, is_active, custom_flow, welcome_message, created_at`

// ListActiveBots returns every bot with the active flag set.
func (s *Store) ListActiveBots(ctx context.Context) ([]Bot, error) {
	var bots []Bot
	err := s.db.SelectContext(ctx, &bots, `SELECT `+botColumns+` FROM bots WHERE is_active ORDER BY id`)
	return bots, mapErr("list active bots", err)
}

// GetBot loads one bot by id.
func (s *Store) GetBot(ctx context.Context, id int64) (Bot, error) {
	var b Bot
	err := s.db.GetContext(ctx, &b, `SELECT `+botColumns+` FROM bots WHERE id = $1`, id)
	return b, mapErr("get bot", err)
}

// ListBotsByOwner returns all bots owned by ownerID, active or not.
func (s *Store) ListBotsByOwner(ctx context.Context, ownerID int64) ([]Bot, error) {
	var bots []Bot
	err := s.db.SelectContext(ctx, &bots, `SELECT `+botColumns+` FROM bots WHERE owner_id = $1 ORDER BY id`, ownerID)
	return bots, mapErr("list bots by owner", err)
}

// SetBotActive flips the active flag.
func (s *Store) SetBotActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE bots SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return mapErr("set bot active", err)
	}
	return mustAffect("set bot active", res)
}

// UpdateWelcomeMessage stores a welcome override; empty text resets it to the default.
func (s *Store) UpdateWelcomeMessage(ctx context.Context, id int64, text string) error {
	msg := sql.NullString{String: text, Valid: text != ""}
	res, err := s.db.ExecContext(ctx, `UPDATE bots SET welcome_message = $2, updated_at = NOW() WHERE id = $1`, id, msg)
	if err != nil {
		return mapErr("update welcome message", err)
	}
	return mustAffect("update welcome message", res)
}

func mustAffect(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(op, err)
	}
	if n == 0 {
		return mapErr(op, sql.ErrNoRows)
	}
	return nil
}
