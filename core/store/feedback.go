package store

import (
	"context"
)

// CreateFeedback persists a captured message and returns its id.
func (s *Store) CreateFeedback(ctx context.Context, f Feedback) (int64, error) {
	if f.Status == "" {
		f.Status = FeedbackPending
	}
	if f.MessageType == "" {
		f.MessageType = "text"
	}
	stmt, err := s.db.PrepareNamedContext(ctx,
		`INSERT INTO feedback (bot_id, user_id, username, first_name, message_type, content, file_id, status)
		 VALUES (:bot_id, :user_id, :username, :first_name, :message_type, :content, :file_id, :status)
		 RETURNING id`)
	if err != nil {
		return 0, mapErr("create feedback", err)
	}
	defer stmt.Close()

	var id int64
	err = stmt.GetContext(ctx, &id, f)
	return id, mapErr("create feedback", err)
}

// GetFeedback loads one feedback row.
func (s *Store) GetFeedback(ctx context.Context, id int64) (Feedback, error) {
	var f Feedback
	err := s.db.GetContext(ctx, &f,
		`SELECT id, bot_id, user_id, username, first_name, message_type, content, file_id, status,
		        reply_content, replied_by, created_at, replied_at
		 FROM feedback WHERE id = $1`, id)
	return f, mapErr("get feedback", err)
}

// MarkFeedbackReplied stores the admin answer.
func (s *Store) MarkFeedbackReplied(ctx context.Context, id, repliedBy int64, reply string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback SET status = $2, reply_content = $3, replied_by = $4, replied_at = NOW() WHERE id = $1`,
		id, FeedbackReplied, reply, repliedBy)
	if err != nil {
		return mapErr("mark feedback replied", err)
	}
	return mustAffect("mark feedback replied", res)
}

// CountPendingFeedback returns unanswered messages of botID.
func (s *Store) CountPendingFeedback(ctx context.Context, botID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM feedback WHERE bot_id = $1 AND status = $2`, botID, FeedbackPending)
	return n, mapErr("count pending feedback", err)
}
