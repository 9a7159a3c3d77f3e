package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"liveclass/internal/apperr"
	"liveclass/internal/auth"
	"liveclass/internal/logging"
	"liveclass/internal/metrics"
)

const (
	// MaxNotesLength bounds a record's notes in characters.
	MaxNotesLength = 1000
	// MaxBulkRecords bounds one bulk mark so its single statement stays well
	// inside the Postgres bind parameter limit.
	MaxBulkRecords = 1000
)

// Store is the persistence the attendance service needs.
type Store interface {
	Upsert(ctx context.Context, rec Record) (Record, error)
	UpsertMany(ctx context.Context, recs []Record) error
	List(ctx context.Context, sessionID string) ([]Record, error)
	CountByStatus(ctx context.Context, sessionID string) (map[Status]int, error)
}

var notesTooLong = fmt.Sprintf("at most %d characters", MaxNotesLength)

// Service records attendance judgments. Concurrent marks of the same student
// are last-write-wins.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a service backed by store.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Mark upserts one full record. MarkedBy defaults to the acting principal.
func (s *Service) Mark(ctx context.Context, actor auth.Principal, in MarkInput) (Record, error) {
	if err := actor.Require(auth.RoleTeacher, auth.RoleAdmin); err != nil {
		return Record{}, err
	}
	if in.MarkedBy == "" {
		in.MarkedBy = actor.UserID
	}

	vErr := &apperr.ValidationError{}
	if strings.TrimSpace(in.SessionID) == "" {
		vErr.Add("session_id", "required")
	}
	if strings.TrimSpace(in.StudentID) == "" {
		vErr.Add("student_id", "required")
	}
	if !in.Status.Valid() {
		vErr.Add("status", "must be present, absent, late or excused")
	}
	if utf8.RuneCountInString(in.Notes) > MaxNotesLength {
		vErr.Add("notes", notesTooLong)
	}
	if err := vErr.OrNil(); err != nil {
		return Record{}, err
	}

	rec, err := s.store.Upsert(ctx, Record{
		SessionID: in.SessionID,
		StudentID: in.StudentID,
		Status:    in.Status,
		Notes:     in.Notes,
		MarkedBy:  in.MarkedBy,
		UpdatedAt: s.now(),
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("mark attendance failed",
			append(logging.Err(err), zap.String("session_id", in.SessionID), zap.String("student_id", in.StudentID))...)
		return Record{}, err
	}
	metrics.AttendanceMarks.WithLabelValues("single", string(rec.Status)).Inc()
	return rec, nil
}

// MarkBulk upserts every entry in a single write. The session id is checked
// before anything is sent, and a batch naming the same student twice is
// rejected because one statement cannot update a row twice.
func (s *Service) MarkBulk(ctx context.Context, actor auth.Principal, sessionID string, entries []Entry) error {
	if err := actor.Require(auth.RoleTeacher, auth.RoleAdmin); err != nil {
		return err
	}
	if strings.TrimSpace(sessionID) == "" {
		return apperr.Invalid("session_id", "required")
	}
	if len(entries) == 0 {
		return apperr.Invalid("records", "at least one record required")
	}
	if len(entries) > MaxBulkRecords {
		return apperr.Invalid("records", fmt.Sprintf("at most %d records", MaxBulkRecords))
	}

	vErr := &apperr.ValidationError{}
	seen := make(map[string]int, len(entries))
	now := s.now()
	recs := make([]Record, 0, len(entries))
	for i, e := range entries {
		field := fmt.Sprintf("records[%d]", i)
		switch {
		case strings.TrimSpace(e.StudentID) == "":
			vErr.Add(field+".student_id", "required")
		case !e.Status.Valid():
			vErr.Add(field+".status", "must be present, absent, late or excused")
		}
		if utf8.RuneCountInString(e.Notes) > MaxNotesLength {
			vErr.Add(field+".notes", notesTooLong)
		}
		if first, dup := seen[e.StudentID]; dup && e.StudentID != "" {
			vErr.Add(field+".student_id", fmt.Sprintf("duplicates records[%d]", first))
		} else {
			seen[e.StudentID] = i
		}
		recs = append(recs, Record{
			SessionID: sessionID,
			StudentID: e.StudentID,
			Status:    e.Status,
			Notes:     e.Notes,
			MarkedBy:  actor.UserID,
			UpdatedAt: now,
		})
	}
	if err := vErr.OrNil(); err != nil {
		return err
	}

	if err := s.store.UpsertMany(ctx, recs); err != nil {
		logging.FromContext(ctx, s.logger).Error("bulk mark attendance failed",
			append(logging.Err(err), zap.String("session_id", sessionID), zap.Int("records", len(recs)))...)
		return err
	}
	for _, rec := range recs {
		metrics.AttendanceMarks.WithLabelValues("bulk", string(rec.Status)).Inc()
	}
	return nil
}

// List returns the session's records with student profile data.
func (s *Service) List(ctx context.Context, sessionID string) ([]Record, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.Invalid("session_id", "required")
	}
	return s.store.List(ctx, sessionID)
}

// Summary counts the session's records per status. Unmarked students are not
// counted anywhere.
func (s *Service) Summary(ctx context.Context, sessionID string) (Summary, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Summary{}, apperr.Invalid("session_id", "required")
	}
	counts, err := s.store.CountByStatus(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{SessionID: sessionID, Counts: counts}
	for _, n := range counts {
		sum.Total += n
	}
	return sum, nil
}
