package store

import (
	"context"
)

// IsAdmin reports whether userID holds an admin grant on botID.
func (s *Store) IsAdmin(ctx context.Context, botID, userID int64) (bool, error) {
	var ok bool
	err := s.db.GetContext(ctx, &ok,
		`SELECT EXISTS (SELECT 1 FROM bot_admins WHERE bot_id = $1 AND user_id = $2)`, botID, userID)
	return ok, mapErr("is admin", err)
}

// ListAdmins returns the admin grants of botID, oldest first.
func (s *Store) ListAdmins(ctx context.Context, botID int64) ([]Admin, error) {
	var admins []Admin
	err := s.db.SelectContext(ctx, &admins,
		`SELECT id, bot_id, user_id, username, added_by, created_at FROM bot_admins WHERE bot_id = $1 ORDER BY created_at, id`, botID)
	return admins, mapErr("list admins", err)
}

// AddAdmin grants admin access; an existing grant is left untouched.
func (s *Store) AddAdmin(ctx context.Context, a Admin) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO bot_admins (bot_id, user_id, username, added_by)
		 VALUES (:bot_id, :user_id, :username, :added_by)
		 ON CONFLICT (bot_id, user_id) DO NOTHING`, a)
	return mapErr("add admin", err)
}

// RemoveAdmin revokes a grant. Removing a missing grant yields ErrNotFound.
func (s *Store) RemoveAdmin(ctx context.Context, botID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_admins WHERE bot_id = $1 AND user_id = $2`, botID, userID)
	if err != nil {
		return mapErr("remove admin", err)
	}
	return mustAffect("remove admin", res)
}
