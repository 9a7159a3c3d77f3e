package attendance

import "time"

// Status is an unordered attendance tag. An unmarked student has no record at
// all, which is not the same as StatusAbsent.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// Valid reports whether s is one of the known tags.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// Record is the attendance judgment for one student in one session.
type Record struct {
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes"`
	MarkedBy  string    `json:"marked_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	StudentFirstName string `json:"student_first_name,omitempty"`
	StudentLastName  string `json:"student_last_name,omitempty"`
	StudentAvatarURL string `json:"student_avatar_url,omitempty"`
}

// MarkInput is a single mark request.
type MarkInput struct {
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	Status    Status `json:"status"`
	Notes     string `json:"notes"`
	MarkedBy  string `json:"marked_by"`
}

// Entry is one row of a bulk mark.
type Entry struct {
	StudentID string `json:"student_id" binding:"required"`
	Status    Status `json:"status" binding:"required"`
	Notes     string `json:"notes" binding:"max=1000"`
}

// Summary counts marked students per status.
type Summary struct {
	SessionID string         `json:"session_id"`
	Counts    map[Status]int `json:"counts"`
	Total     int            `json:"total"`
}
