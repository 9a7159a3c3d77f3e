package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"liveclass/internal/apperr"
)

// Repository persists sessions and memberships in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `id, course_id, status, start_time, duration_minutes, participants, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.CourseID, &s.Status, &s.StartTime, &s.DurationMinutes, &s.Participants, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// LiveSession returns the live session for a course, or apperr.ErrNotFound.
func (r *Repository) LiveSession(ctx context.Context, courseID string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM live_sessions
		WHERE course_id = $1 AND status = 'live'
		ORDER BY start_time DESC
		LIMIT 1
	`, courseID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.ErrNotFound
	}
	return s, apperr.Backend("live session", err)
}

// InsertLiveSession inserts s unless the course already has a live session.
// The boolean is false when a concurrent insert won.
func (r *Repository) InsertLiveSession(ctx context.Context, s Session) (Session, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO live_sessions (id, course_id, status, start_time, duration_minutes, participants)
		VALUES ($1, $2, 'live', $3, $4, 0)
		ON CONFLICT (course_id) WHERE status = 'live' DO NOTHING
		RETURNING created_at, updated_at
	`, s.ID, s.CourseID, s.StartTime, s.DurationMinutes)
	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, apperr.Backend("insert live session", err)
	}
	s.Status = StatusLive
	s.Participants = 0
	return s, true, nil
}

// SessionByID returns a single session.
func (r *Repository) SessionByID(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM live_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.ErrNotFound
	}
	return s, apperr.Backend("session by id", err)
}

// CompleteSession moves a live session to completed.
func (r *Repository) CompleteSession(ctx context.Context, id string, at time.Time) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE live_sessions
		SET status = 'completed', updated_at = $2
		WHERE id = $1 AND status = 'live'
		RETURNING `+sessionColumns, id, at)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperr.ErrNotFound
	}
	return s, apperr.Backend("complete session", err)
}

// Enrollment returns apperr.ErrNotFound when the user is not enrolled in the course.
func (r *Repository) Enrollment(ctx context.Context, courseID, userID string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM enrollments WHERE course_id = $1 AND user_id = $2
	`, courseID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return apperr.Backend("enrollment", err)
}

// JoinSession opens a membership unless the user already has an active one,
// in which case the existing row is returned with created=false. Memberships
// are only opened on live sessions; any other status yields ErrSessionNotLive.
// If the active row is closed by a concurrent leave between the conflicting
// insert and the lookup, the insert is tried once more.
func (r *Repository) JoinSession(ctx context.Context, p Participant) (Participant, bool, error) {
	candidate := p.ID
	for attempt := 0; attempt < 2; attempt++ {
		err := r.db.QueryRowContext(ctx, `
			INSERT INTO session_participants (id, session_id, user_id, joined_at)
			SELECT $1::text, $2::text, $3::text, $4::timestamptz
			WHERE EXISTS (SELECT 1 FROM live_sessions WHERE id = $2::text AND status = 'live')
			ON CONFLICT (session_id, user_id) WHERE left_at IS NULL DO NOTHING
			RETURNING id, joined_at
		`, candidate, p.SessionID, p.UserID, p.JoinedAt).Scan(&p.ID, &p.JoinedAt)
		if err == nil {
			return r.joined(ctx, p, true)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Participant{}, false, apperr.Backend("join session", err)
		}

		err = r.db.QueryRowContext(ctx, `
			SELECT id, joined_at FROM session_participants
			WHERE session_id = $1 AND user_id = $2 AND left_at IS NULL
		`, p.SessionID, p.UserID).Scan(&p.ID, &p.JoinedAt)
		if err == nil {
			return r.joined(ctx, p, false)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Participant{}, false, apperr.Backend("join session", err)
		}

		live, err := r.isLive(ctx, p.SessionID)
		if err != nil {
			return Participant{}, false, err
		}
		if !live {
			return Participant{}, false, notLive()
		}
	}
	return Participant{}, false, apperr.Backend("join session", errors.New("membership changed concurrently"))
}

func (r *Repository) joined(ctx context.Context, p Participant, created bool) (Participant, bool, error) {
	p.LeftAt = nil
	if err := r.refreshCount(ctx, p.SessionID); err != nil {
		return Participant{}, false, err
	}
	return p, created, nil
}

func (r *Repository) isLive(ctx context.Context, sessionID string) (bool, error) {
	var live bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM live_sessions WHERE id = $1 AND status = 'live')
	`, sessionID).Scan(&live)
	if err != nil {
		return false, apperr.Backend("session status", err)
	}
	return live, nil
}

// LeaveSession closes every active membership of the user in the session and
// returns how many rows were closed.
func (r *Repository) LeaveSession(ctx context.Context, sessionID, userID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE session_participants
		SET left_at = $3
		WHERE session_id = $1 AND user_id = $2 AND left_at IS NULL
	`, sessionID, userID, at)
	if err != nil {
		return 0, apperr.Backend("leave session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Backend("leave session", err)
	}
	if n > 0 {
		if err := r.refreshCount(ctx, sessionID); err != nil {
			return n, err
		}
	}
	return n, nil
}

// CloseParticipants closes every active membership in the session.
func (r *Repository) CloseParticipants(ctx context.Context, sessionID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE session_participants SET left_at = $2
		WHERE session_id = $1 AND left_at IS NULL
	`, sessionID, at)
	if err != nil {
		return 0, apperr.Backend("close participants", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Backend("close participants", err)
	}
	return n, r.refreshCount(ctx, sessionID)
}

// ActiveParticipants lists open memberships joined with profiles, oldest first.
func (r *Repository) ActiveParticipants(ctx context.Context, sessionID string) ([]ActiveParticipant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sp.id, sp.session_id, sp.user_id, sp.joined_at,
		       p.first_name, p.last_name, p.avatar_url, p.role
		FROM session_participants sp
		JOIN profiles p ON p.id = sp.user_id
		WHERE sp.session_id = $1 AND sp.left_at IS NULL
		ORDER BY sp.joined_at ASC
	`, sessionID)
	if err != nil {
		return nil, apperr.Backend("active participants", err)
	}
	defer rows.Close()

	res := []ActiveParticipant{}
	for rows.Next() {
		var ap ActiveParticipant
		if err := rows.Scan(&ap.ID, &ap.SessionID, &ap.UserID, &ap.JoinedAt,
			&ap.FirstName, &ap.LastName, &ap.AvatarURL, &ap.Role); err != nil {
			return nil, apperr.Backend("active participants", err)
		}
		res = append(res, ap)
	}
	return res, apperr.Backend("active participants", rows.Err())
}

func (r *Repository) refreshCount(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE live_sessions
		SET participants = (
			SELECT COUNT(*) FROM session_participants
			WHERE session_id = $1 AND left_at IS NULL
		), updated_at = NOW()
		WHERE id = $1
	`, sessionID)
	return apperr.Backend("refresh participant count", err)
}
