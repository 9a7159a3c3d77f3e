package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"liveclass/internal/apperr"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const upsertConflict = `
	ON CONFLICT (session_id, student_id) DO UPDATE SET
		status = EXCLUDED.status,
		notes = EXCLUDED.notes,
		marked_by = EXCLUDED.marked_by,
		updated_at = EXCLUDED.updated_at`

// Upsert writes the full record, replacing any existing one for the same
// session and student.
func (r *Repository) Upsert(ctx context.Context, rec Record) (Record, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status, notes, marked_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`+upsertConflict+`
		RETURNING created_at, updated_at
	`, rec.SessionID, rec.StudentID, rec.Status, rec.Notes, rec.MarkedBy, rec.UpdatedAt).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, apperr.Backend("upsert attendance", err)
	}
	return rec, nil
}

// UpsertMany writes every record in one statement. Either all rows are
// written or none are.
func (r *Repository) UpsertMany(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	const cols = 6
	var b strings.Builder
	b.WriteString(`INSERT INTO attendance_records (session_id, student_id, status, notes, marked_by, created_at, updated_at) VALUES `)
	args := make([]any, 0, len(recs)*cols)
	for i, rec := range recs {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * cols
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+6)
		args = append(args, rec.SessionID, rec.StudentID, rec.Status, rec.Notes, rec.MarkedBy, rec.UpdatedAt)
	}
	b.WriteString(upsertConflict)

	if _, err := r.db.ExecContext(ctx, b.String(), args...); err != nil {
		return apperr.Backend("bulk upsert attendance", err)
	}
	return nil
}

// List returns every record for a session joined with the student's profile.
func (r *Repository) List(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.session_id, a.student_id, a.status, a.notes, a.marked_by, a.created_at, a.updated_at,
		       p.first_name, p.last_name, p.avatar_url
		FROM attendance_records a
		JOIN profiles p ON p.id = a.student_id
		WHERE a.session_id = $1
		ORDER BY p.last_name, p.first_name
	`, sessionID)
	if err != nil {
		return nil, apperr.Backend("list attendance", err)
	}
	defer rows.Close()

	res := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SessionID, &rec.StudentID, &rec.Status, &rec.Notes, &rec.MarkedBy,
			&rec.CreatedAt, &rec.UpdatedAt, &rec.StudentFirstName, &rec.StudentLastName, &rec.StudentAvatarURL); err != nil {
			return nil, apperr.Backend("list attendance", err)
		}
		res = append(res, rec)
	}
	return res, apperr.Backend("list attendance", rows.Err())
}

// CountByStatus groups a session's records by status.
func (r *Repository) CountByStatus(ctx context.Context, sessionID string) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM attendance_records
		WHERE session_id = $1
		GROUP BY status
	`, sessionID)
	if err != nil {
		return nil, apperr.Backend("count attendance", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, apperr.Backend("count attendance", err)
		}
		counts[st] = n
	}
	return counts, apperr.Backend("count attendance", rows.Err())
}
