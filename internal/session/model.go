package session

import (
	"time"

	"liveclass/internal/auth"
)

// Status is a live session's lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusCompleted Status = "completed"
)

// Session is one meeting instance for a course. At most one session per
// course is live at a time.
type Session struct {
	ID              string    `json:"id"`
	CourseID        string    `json:"course_id"`
	Status          Status    `json:"status"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Participants    int       `json:"participants"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Participant is one membership interval. LeftAt is nil while active.
type Participant struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	UserID    string     `json:"user_id"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at"`
}

// Active reports whether the membership is still open.
func (p Participant) Active() bool { return p.LeftAt == nil }

// ActiveParticipant is an open membership joined with profile data for display.
type ActiveParticipant struct {
	Participant
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	AvatarURL string    `json:"avatar_url"`
	Role      auth.Role `json:"role"`
}
