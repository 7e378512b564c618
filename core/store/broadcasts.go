package store

import (
	"context"
)

// RecordBroadcast appends one audit row for a finished broadcast run.
func (s *Store) RecordBroadcast(ctx context.Context, b Broadcast) error {
	if b.BroadcastType == "" {
		b.BroadcastType = BroadcastBot
		if !b.BotID.Valid {
			b.BroadcastType = BroadcastPlatform
		}
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO broadcasts (bot_id, sent_by, message, total_users, successful_sends, failed_sends, broadcast_type)
		 VALUES (:bot_id, :sent_by, :message, :total_users, :successful_sends, :failed_sends, :broadcast_type)`, b)
	return mapErr("record broadcast", err)
}
