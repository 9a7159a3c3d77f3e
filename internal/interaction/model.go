package interaction

import "time"

// BreakoutDuration is how long every breakout room runs.
const BreakoutDuration = 15 * time.Minute

// Message is one chat line. Messages are never edited or deleted.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// HandStatus is a hand raise's state.
type HandStatus string

const (
	HandPending  HandStatus = "pending"
	HandResolved HandStatus = "resolved"
)

// HandRaise moves from pending to resolved exactly once.
type HandRaise struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	UserID     string     `json:"user_id"`
	Status     HandStatus `json:"status"`
	RaisedAt   time.Time  `json:"raised_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

// BreakoutRoom is a timed side room of a session.
type BreakoutRoom struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Name            string    `json:"name"`
	MaxParticipants int       `json:"max_participants"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	EndsAt          time.Time `json:"ends_at"`
}
