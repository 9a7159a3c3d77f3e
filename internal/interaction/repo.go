package interaction

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"liveclass/internal/apperr"
)

// Repository persists chat, hand raises and breakout rooms in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertMessage appends a chat message.
func (r *Repository) InsertMessage(ctx context.Context, m Message) (Message, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO session_messages (id, session_id, user_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, m.ID, m.SessionID, m.UserID, m.Body, m.CreatedAt).Scan(&m.CreatedAt)
	if err != nil {
		return Message{}, apperr.Backend("insert message", err)
	}
	return m, nil
}

// Messages lists a session's chat oldest first.
func (r *Repository) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, body, created_at
		FROM session_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, apperr.Backend("list messages", err)
	}
	defer rows.Close()

	res := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Body, &m.CreatedAt); err != nil {
			return nil, apperr.Backend("list messages", err)
		}
		res = append(res, m)
	}
	return res, apperr.Backend("list messages", rows.Err())
}

// InsertHandRaise records a pending raise.
func (r *Repository) InsertHandRaise(ctx context.Context, h HandRaise) (HandRaise, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO hand_raises (id, session_id, user_id, status, raised_at)
		VALUES ($1, $2, $3, 'pending', $4)
	`, h.ID, h.SessionID, h.UserID, h.RaisedAt)
	if err != nil {
		return HandRaise{}, apperr.Backend("raise hand", err)
	}
	h.Status = HandPending
	h.ResolvedAt = nil
	return h, nil
}

// ResolveLatest resolves the user's most recent pending raise.
func (r *Repository) ResolveLatest(ctx context.Context, sessionID, userID string, at time.Time) (HandRaise, error) {
	h := HandRaise{SessionID: sessionID, UserID: userID}
	err := r.db.QueryRowContext(ctx, `
		UPDATE hand_raises SET status = 'resolved', resolved_at = $3
		WHERE id = (
			SELECT id FROM hand_raises
			WHERE session_id = $1 AND user_id = $2 AND status = 'pending'
			ORDER BY raised_at DESC
			LIMIT 1
		)
		RETURNING id, raised_at, resolved_at
	`, sessionID, userID, at).Scan(&h.ID, &h.RaisedAt, &h.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return HandRaise{}, apperr.ErrNotFound
	}
	if err != nil {
		return HandRaise{}, apperr.Backend("lower hand", err)
	}
	h.Status = HandResolved
	return h, nil
}

// ResolveAll resolves every pending raise in the session.
func (r *Repository) ResolveAll(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE hand_raises SET status = 'resolved', resolved_at = $2
		WHERE session_id = $1 AND status = 'pending'
	`, sessionID, at)
	if err != nil {
		return 0, apperr.Backend("resolve hand raises", err)
	}
	n, err := res.RowsAffected()
	return n, apperr.Backend("resolve hand raises", err)
}

// PendingHandRaises lists pending raises oldest first.
func (r *Repository) PendingHandRaises(ctx context.Context, sessionID string) ([]HandRaise, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, status, raised_at, resolved_at
		FROM hand_raises
		WHERE session_id = $1 AND status = 'pending'
		ORDER BY raised_at ASC
	`, sessionID)
	if err != nil {
		return nil, apperr.Backend("pending hand raises", err)
	}
	defer rows.Close()

	res := []HandRaise{}
	for rows.Next() {
		var h HandRaise
		if err := rows.Scan(&h.ID, &h.SessionID, &h.UserID, &h.Status, &h.RaisedAt, &h.ResolvedAt); err != nil {
			return nil, apperr.Backend("pending hand raises", err)
		}
		res = append(res, h)
	}
	return res, apperr.Backend("pending hand raises", rows.Err())
}

// InsertBreakoutRoom creates a room in one statement.
func (r *Repository) InsertBreakoutRoom(ctx context.Context, b BreakoutRoom) (BreakoutRoom, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO breakout_rooms (id, session_id, name, max_participants, duration_minutes, created_by, created_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, b.ID, b.SessionID, b.Name, b.MaxParticipants, b.DurationMinutes, b.CreatedBy, b.CreatedAt, b.EndsAt).Scan(&b.CreatedAt)
	if err != nil {
		return BreakoutRoom{}, apperr.Backend("create breakout room", err)
	}
	return b, nil
}

// BreakoutRooms lists a session's rooms oldest first.
func (r *Repository) BreakoutRooms(ctx context.Context, sessionID string) ([]BreakoutRoom, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, name, max_participants, duration_minutes, created_by, created_at, ends_at
		FROM breakout_rooms
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, apperr.Backend("list breakout rooms", err)
	}
	defer rows.Close()

	res := []BreakoutRoom{}
	for rows.Next() {
		var b BreakoutRoom
		if err := rows.Scan(&b.ID, &b.SessionID, &b.Name, &b.MaxParticipants, &b.DurationMinutes, &b.CreatedBy, &b.CreatedAt, &b.EndsAt); err != nil {
			return nil, apperr.Backend("list breakout rooms", err)
		}
		res = append(res, b)
	}
	return res, apperr.Backend("list breakout rooms", rows.Err())
}
