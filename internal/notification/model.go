package notification

import "time"

// Notification is one message addressed to a user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Kind      string    `json:"kind"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// State is what a subscriber sees: the unread counter plus the newest
// notifications, newest first.
type State struct {
	Count         int            `json:"count"`
	Notifications []Notification `json:"notifications"`
}

// DefaultLimit caps the visible list.
const DefaultLimit = 50
