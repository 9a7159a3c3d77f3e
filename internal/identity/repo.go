package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"liveclass/internal/apperr"
	"liveclass/internal/store"
)

// Repository persists profiles in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const profileColumns = `id, email, password_hash, first_name, last_name, avatar_url, role, created_at`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.FirstName, &p.LastName, &p.AvatarURL, &p.Role, &p.CreatedAt)
	return p, err
}

// ProfileByEmail looks a profile up by its lower-cased email.
func (r *Repository) ProfileByEmail(ctx context.Context, email string) (Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE email = $1`, strings.ToLower(email))
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, apperr.ErrNotFound
	}
	return p, apperr.Backend("profile by email", err)
}

// ProfileByID returns a single profile.
func (r *Repository) ProfileByID(ctx context.Context, id string) (Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, apperr.ErrNotFound
	}
	return p, apperr.Backend("profile by id", err)
}

// CreateProfile inserts a new profile. A taken email is a validation failure.
func (r *Repository) CreateProfile(ctx context.Context, p Profile) (Profile, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO profiles (id, email, password_hash, first_name, last_name, avatar_url, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, p.ID, strings.ToLower(p.Email), p.PasswordHash, p.FirstName, p.LastName, p.AvatarURL, p.Role)
	if err := row.Scan(&p.CreatedAt); err != nil {
		if store.IsUniqueViolation(err) {
			return Profile{}, apperr.Invalid("email", "already registered")
		}
		return Profile{}, apperr.Backend("create profile", err)
	}
	return p, nil
}
