package notification

import (
	"context"
	"database/sql"

	"liveclass/internal/apperr"
)

// Repository persists notifications in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CountUnread counts the user's unread notifications.
func (r *Repository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE
	`, userID).Scan(&n)
	return n, apperr.Backend("count unread", err)
}

// Recent returns the user's newest notifications, newest first.
func (r *Repository) Recent(ctx context.Context, userID string, limit int) ([]Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, body, kind, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, apperr.Backend("recent notifications", err)
	}
	defer rows.Close()

	res := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Kind, &n.Read, &n.CreatedAt); err != nil {
			return nil, apperr.Backend("recent notifications", err)
		}
		res = append(res, n)
	}
	return res, apperr.Backend("recent notifications", rows.Err())
}

// Create inserts n.
func (r *Repository) Create(ctx context.Context, n Notification) (Notification, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, title, body, kind, read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING created_at
	`, n.ID, n.UserID, n.Title, n.Body, n.Kind).Scan(&n.CreatedAt)
	if err != nil {
		return Notification{}, apperr.Backend("create notification", err)
	}
	n.Read = false
	return n, nil
}

// MarkRead flags one of the user's notifications read.
func (r *Repository) MarkRead(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2
	`, id, userID)
	return affectedOne(res, err, "mark notification read")
}

// MarkAllRead flags every unread notification of the user read.
func (r *Repository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE
	`, userID)
	if err != nil {
		return 0, apperr.Backend("mark all read", err)
	}
	n, err := res.RowsAffected()
	return n, apperr.Backend("mark all read", err)
}

// Delete removes one of the user's notifications.
func (r *Repository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	return affectedOne(res, err, "delete notification")
}

func affectedOne(res sql.Result, err error, op string) error {
	if err != nil {
		return apperr.Backend(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Backend(op, err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
