package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveclass/internal/apperr"
	"liveclass/internal/auth"
	"liveclass/internal/logging"
	"liveclass/internal/metrics"
	"liveclass/internal/queue"
)

var (
	// ErrNotEnrolled is returned when a student joins a course they are not enrolled in.
	ErrNotEnrolled = errors.New("not enrolled in course")
	// ErrSessionNotLive is returned when joining a session that is not live.
	ErrSessionNotLive = errors.New("session is not live")
)

func notLive() error { return fmt.Errorf("%w: %w", ErrSessionNotLive, apperr.ErrNotFound) }

// Store is the persistence the session service needs.
type Store interface {
	LiveSession(ctx context.Context, courseID string) (Session, error)
	InsertLiveSession(ctx context.Context, s Session) (Session, bool, error)
	SessionByID(ctx context.Context, id string) (Session, error)
	CompleteSession(ctx context.Context, id string, at time.Time) (Session, error)
	Enrollment(ctx context.Context, courseID, userID string) error
	JoinSession(ctx context.Context, p Participant) (Participant, bool, error)
	LeaveSession(ctx context.Context, sessionID, userID string, at time.Time) (int64, error)
	CloseParticipants(ctx context.Context, sessionID string, at time.Time) (int64, error)
	ActiveParticipants(ctx context.Context, sessionID string) ([]ActiveParticipant, error)
}

// Service is the session registry and membership tracker.
type Service struct {
	store           Store
	jobs            queue.Queue
	logger          *zap.Logger
	now             func() time.Time
	newID           func() string
	defaultDuration int
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDs overrides the id generator.
func WithIDs(newID func() string) Option { return func(s *Service) { s.newID = newID } }

// WithDefaultDuration sets the duration of lazily created sessions.
func WithDefaultDuration(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.defaultDuration = minutes
		}
	}
}

// NewService creates the service. jobs may be nil, in which case completion
// cleanup beyond closing memberships is skipped.
func NewService(store Store, jobs queue.Queue, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:           store,
		jobs:            jobs,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
		defaultDuration: 60,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) log(ctx context.Context, op string) *zap.Logger {
	return logging.FromContext(ctx, s.logger).With(zap.String("service", "session"), zap.String("operation", op))
}

// GetOrCreateLive returns the course's live session, creating it on the
// not-found branch. A create that loses a concurrent race returns the winner.
func (s *Service) GetOrCreateLive(ctx context.Context, courseID string) (Session, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return Session{}, apperr.Invalid("course_id", "required")
	}

	existing, err := s.store.LiveSession(ctx, courseID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		s.log(ctx, "GetOrCreateLive").Error("live session lookup failed", logging.Err(err)...)
		return Session{}, err
	}

	created, inserted, err := s.store.InsertLiveSession(ctx, Session{
		ID:              s.newID(),
		CourseID:        courseID,
		Status:          StatusLive,
		StartTime:       s.now(),
		DurationMinutes: s.defaultDuration,
	})
	if err != nil {
		s.log(ctx, "GetOrCreateLive").Error("live session insert failed", logging.Err(err)...)
		return Session{}, err
	}
	if inserted {
		metrics.SessionsCreated.Inc()
		s.log(ctx, "GetOrCreateLive").Info("live session created", zap.String("session_id", created.ID), zap.String("course_id", courseID))
		return created, nil
	}

	metrics.SessionCreateConflicts.Inc()
	winner, err := s.store.LiveSession(ctx, courseID)
	if err != nil {
		s.log(ctx, "GetOrCreateLive").Error("live session re-read failed", logging.Err(err)...)
		return Session{}, err
	}
	return winner, nil
}

// Get returns one session.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, apperr.Invalid("session_id", "required")
	}
	return s.store.SessionByID(ctx, id)
}

// Complete ends a live session, closes its open memberships and schedules the
// remaining cleanup on the job queue.
func (s *Service) Complete(ctx context.Context, actor auth.Principal, id string) (Session, error) {
	if err := actor.Require(auth.RoleTeacher, auth.RoleAdmin); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Session{}, apperr.Invalid("session_id", "required")
	}
	log := s.log(ctx, "Complete").With(zap.String("session_id", id))

	now := s.now()
	sess, err := s.store.CompleteSession(ctx, id, now)
	if err != nil {
		log.Error("complete session failed", logging.Err(err)...)
		return Session{}, err
	}
	if _, err := s.store.CloseParticipants(ctx, id, now); err != nil {
		log.Error("close participants failed", logging.Err(err)...)
		return Session{}, err
	}
	sess.Participants = 0

	if s.jobs != nil {
		if err := s.jobs.Publish(ctx, queue.Message{Type: queue.TypeSessionCompleted, Body: []byte(id)}); err != nil {
			log.Warn("enqueue completion cleanup failed", zap.Error(err))
		}
	}
	return sess, nil
}

// Join opens a membership for the principal in a live session. Joining twice
// returns the open membership. Students must be enrolled in the session's course.
func (s *Service) Join(ctx context.Context, actor auth.Principal, sessionID string) (Participant, error) {
	if actor.UserID == "" {
		return Participant{}, apperr.ErrUnauthenticated
	}
	if strings.TrimSpace(sessionID) == "" {
		return Participant{}, apperr.Invalid("session_id", "required")
	}
	sess, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return Participant{}, err
	}
	if sess.Status != StatusLive {
		return Participant{}, notLive()
	}
	if err := s.checkEnrollment(ctx, actor, sess.CourseID); err != nil {
		return Participant{}, err
	}
	return s.join(ctx, sessionID, actor.UserID)
}

func (s *Service) join(ctx context.Context, sessionID, userID string) (Participant, error) {
	p, created, err := s.store.JoinSession(ctx, Participant{
		ID:        s.newID(),
		SessionID: sessionID,
		UserID:    userID,
		JoinedAt:  s.now(),
	})
	if err != nil {
		if !errors.Is(err, ErrSessionNotLive) {
			s.log(ctx, "Join").Error("join failed", append(logging.Err(err), zap.String("session_id", sessionID))...)
		}
		return Participant{}, err
	}
	if created {
		metrics.ParticipantEvents.WithLabelValues("join").Inc()
	} else {
		metrics.ParticipantEvents.WithLabelValues("rejoin").Inc()
	}
	return p, nil
}

// checkEnrollment lets teachers and admins into any course.
func (s *Service) checkEnrollment(ctx context.Context, actor auth.Principal, courseID string) error {
	if actor.Role != auth.RoleStudent {
		return nil
	}
	err := s.store.Enrollment(ctx, courseID, actor.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotEnrolled, apperr.ErrNotFound)
	}
	return err
}

// Leave closes every active membership the user holds in the session.
func (s *Service) Leave(ctx context.Context, sessionID, userID string) error {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(userID) == "" {
		return apperr.Invalid("session_id", "session and user required")
	}
	n, err := s.store.LeaveSession(ctx, sessionID, userID, s.now())
	if err != nil {
		s.log(ctx, "Leave").Error("leave failed", append(logging.Err(err), zap.String("session_id", sessionID))...)
		return err
	}
	metrics.ParticipantEvents.WithLabelValues("leave").Add(float64(n))
	return nil
}

// ListActive returns the session's open memberships with profile data.
func (s *Service) ListActive(ctx context.Context, sessionID string) ([]ActiveParticipant, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.Invalid("session_id", "required")
	}
	return s.store.ActiveParticipants(ctx, sessionID)
}

// JoinResult is the outcome of joining a course's live session.
type JoinResult struct {
	Session     Session     `json:"session"`
	Participant Participant `json:"participant"`
}

// JoinCourse resolves (or lazily creates) the course's live session and joins
// the principal to it. Students must be enrolled; teachers and admins may
// join any course.
func (s *Service) JoinCourse(ctx context.Context, actor auth.Principal, courseID string) (JoinResult, error) {
	if actor.UserID == "" {
		return JoinResult{}, apperr.ErrUnauthenticated
	}
	if err := s.checkEnrollment(ctx, actor, courseID); err != nil {
		return JoinResult{}, err
	}

	sess, err := s.GetOrCreateLive(ctx, courseID)
	if err != nil {
		return JoinResult{}, err
	}
	p, err := s.join(ctx, sess.ID, actor.UserID)
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Session: sess, Participant: p}, nil
}
