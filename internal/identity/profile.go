package identity

import (
	"time"

	"liveclass/internal/auth"
)

// Profile is a user's display and credential record.
type Profile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	AvatarURL    string    `json:"avatar_url"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal returns the role-resolved identity for the profile.
func (p Profile) Principal() auth.Principal {
	return auth.Principal{UserID: p.ID, Role: p.Role}
}
