package interaction

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveclass/internal/apperr"
	"liveclass/internal/auth"
	"liveclass/internal/logging"
	"liveclass/internal/metrics"
)

// MaxMessageLength bounds a chat message in characters.
const MaxMessageLength = 2000

// Store is the persistence the interaction service needs.
type Store interface {
	InsertMessage(ctx context.Context, m Message) (Message, error)
	Messages(ctx context.Context, sessionID string) ([]Message, error)
	InsertHandRaise(ctx context.Context, h HandRaise) (HandRaise, error)
	ResolveLatest(ctx context.Context, sessionID, userID string, at time.Time) (HandRaise, error)
	ResolveAll(ctx context.Context, sessionID string, at time.Time) (int64, error)
	PendingHandRaises(ctx context.Context, sessionID string) ([]HandRaise, error)
	InsertBreakoutRoom(ctx context.Context, b BreakoutRoom) (BreakoutRoom, error)
	BreakoutRooms(ctx context.Context, sessionID string) ([]BreakoutRoom, error)
}

// Service implements chat, hand raising and breakout rooms for a session.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewService creates the service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func required(sessionID string, actor auth.Principal) error {
	if actor.UserID == "" {
		return apperr.ErrUnauthenticated
	}
	if strings.TrimSpace(sessionID) == "" {
		return apperr.Invalid("session_id", "required")
	}
	return nil
}

// Send posts a chat message as the principal.
func (s *Service) Send(ctx context.Context, actor auth.Principal, sessionID, body string) (Message, error) {
	if err := required(sessionID, actor); err != nil {
		return Message{}, err
	}
	body = strings.TrimSpace(body)
	switch {
	case body == "":
		return Message{}, apperr.Invalid("body", "required")
	case utf8.RuneCountInString(body) > MaxMessageLength:
		return Message{}, apperr.Invalid("body", "too long")
	}

	m, err := s.store.InsertMessage(ctx, Message{
		ID:        s.newID(),
		SessionID: sessionID,
		UserID:    actor.UserID,
		Body:      body,
		CreatedAt: s.now(),
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("send message failed", append(logging.Err(err), zap.String("session_id", sessionID))...)
		return Message{}, err
	}
	metrics.InteractionEvents.WithLabelValues("message").Inc()
	return m, nil
}

// Messages returns the session's chat in send order.
func (s *Service) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.Invalid("session_id", "required")
	}
	return s.store.Messages(ctx, sessionID)
}

// Raise records a pending hand raise for the principal.
func (s *Service) Raise(ctx context.Context, actor auth.Principal, sessionID string) (HandRaise, error) {
	if err := required(sessionID, actor); err != nil {
		return HandRaise{}, err
	}
	h, err := s.store.InsertHandRaise(ctx, HandRaise{
		ID:        s.newID(),
		SessionID: sessionID,
		UserID:    actor.UserID,
		RaisedAt:  s.now(),
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("raise hand failed", append(logging.Err(err), zap.String("session_id", sessionID))...)
		return HandRaise{}, err
	}
	metrics.InteractionEvents.WithLabelValues("hand_raise").Inc()
	return h, nil
}

// Lower resolves userID's most recent pending raise. An empty userID means the
// principal's own hand; lowering someone else's hand needs a teacher or admin.
func (s *Service) Lower(ctx context.Context, actor auth.Principal, sessionID, userID string) (HandRaise, error) {
	if err := required(sessionID, actor); err != nil {
		return HandRaise{}, err
	}
	if userID == "" {
		userID = actor.UserID
	}
	if userID != actor.UserID && !actor.CanManage() {
		return HandRaise{}, apperr.ErrRoleMismatch
	}
	return s.store.ResolveLatest(ctx, sessionID, userID, s.now())
}

// Pending lists unresolved raises, oldest first.
func (s *Service) Pending(ctx context.Context, sessionID string) ([]HandRaise, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.Invalid("session_id", "required")
	}
	return s.store.PendingHandRaises(ctx, sessionID)
}

// ResolveAll resolves every pending raise in the session. It runs when a
// session completes.
func (s *Service) ResolveAll(ctx context.Context, sessionID string) (int64, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, apperr.Invalid("session_id", "required")
	}
	n, err := s.store.ResolveAll(ctx, sessionID, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.FromContext(ctx, s.logger).Info("resolved pending hand raises",
			zap.String("session_id", sessionID), zap.Int64("count", n))
	}
	return n, nil
}

// BreakoutInput describes a new breakout room.
type BreakoutInput struct {
	Name            string `json:"name" binding:"required"`
	MaxParticipants int    `json:"max_participants" binding:"required,min=1"`
}

// CreateBreakoutRoom opens a room that runs for BreakoutDuration.
func (s *Service) CreateBreakoutRoom(ctx context.Context, actor auth.Principal, sessionID string, in BreakoutInput) (BreakoutRoom, error) {
	if err := actor.Require(auth.RoleTeacher, auth.RoleAdmin); err != nil {
		return BreakoutRoom{}, err
	}
	vErr := &apperr.ValidationError{}
	if strings.TrimSpace(sessionID) == "" {
		vErr.Add("session_id", "required")
	}
	if strings.TrimSpace(in.Name) == "" {
		vErr.Add("name", "required")
	}
	if in.MaxParticipants < 1 {
		vErr.Add("max_participants", "must be at least 1")
	}
	if err := vErr.OrNil(); err != nil {
		return BreakoutRoom{}, err
	}

	now := s.now()
	room, err := s.store.InsertBreakoutRoom(ctx, BreakoutRoom{
		ID:              s.newID(),
		SessionID:       sessionID,
		Name:            strings.TrimSpace(in.Name),
		MaxParticipants: in.MaxParticipants,
		DurationMinutes: int(BreakoutDuration / time.Minute),
		CreatedBy:       actor.UserID,
		CreatedAt:       now,
		EndsAt:          now.Add(BreakoutDuration),
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("create breakout room failed", append(logging.Err(err), zap.String("session_id", sessionID))...)
		return BreakoutRoom{}, err
	}
	metrics.InteractionEvents.WithLabelValues("breakout_room").Inc()
	return room, nil
}

// BreakoutRooms lists the session's rooms.
func (s *Service) BreakoutRooms(ctx context.Context, sessionID string) ([]BreakoutRoom, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.Invalid("session_id", "required")
	}
	return s.store.BreakoutRooms(ctx, sessionID)
}
