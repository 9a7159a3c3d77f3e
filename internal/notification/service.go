package notification

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveclass/internal/apperr"
	"liveclass/internal/auth"
	"liveclass/internal/logging"
)

// Length limits, in characters, that keep a notification row inside one
// change notification payload.
const (
	MaxTitleLength = 200
	MaxBodyLength  = 800
	MaxKindLength  = 32
)

// Store is the persistence the notification service needs.
type Store interface {
	CountUnread(ctx context.Context, userID string) (int, error)
	Recent(ctx context.Context, userID string, limit int) ([]Notification, error)
	Create(ctx context.Context, n Notification) (Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
}

// Service reads and mutates a user's notifications. Mutations only touch
// rows owned by the acting principal.
type Service struct {
	store  Store
	limit  int
	logger *zap.Logger
	newID  func() string
}

// NewService creates the service. limit caps Snapshot's list.
func NewService(store Store, limit int, logger *zap.Logger) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, limit: limit, logger: logger, newID: uuid.NewString}
}

// Limit is the size of the visible list.
func (s *Service) Limit() int { return s.limit }

// Snapshot reads the authoritative unread count and the newest notifications.
func (s *Service) Snapshot(ctx context.Context, userID string) (State, error) {
	if userID == "" {
		return State{}, apperr.ErrUnauthenticated
	}
	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("count unread failed", logging.Err(err)...)
		return State{}, err
	}
	items, err := s.store.Recent(ctx, userID, s.limit)
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("recent notifications failed", logging.Err(err)...)
		return State{}, err
	}
	return State{Count: count, Notifications: items}, nil
}

// MarkRead flags one notification read.
func (s *Service) MarkRead(ctx context.Context, actor auth.Principal, id string) error {
	if actor.UserID == "" {
		return apperr.ErrUnauthenticated
	}
	if strings.TrimSpace(id) == "" {
		return apperr.Invalid("id", "required")
	}
	return s.store.MarkRead(ctx, id, actor.UserID)
}

// MarkAllRead flags all of the principal's unread notifications read.
func (s *Service) MarkAllRead(ctx context.Context, actor auth.Principal) (int64, error) {
	if actor.UserID == "" {
		return 0, apperr.ErrUnauthenticated
	}
	return s.store.MarkAllRead(ctx, actor.UserID)
}

// Delete removes one notification.
func (s *Service) Delete(ctx context.Context, actor auth.Principal, id string) error {
	if actor.UserID == "" {
		return apperr.ErrUnauthenticated
	}
	if strings.TrimSpace(id) == "" {
		return apperr.Invalid("id", "required")
	}
	return s.store.Delete(ctx, id, actor.UserID)
}

// CreateInput describes a new notification.
type CreateInput struct {
	UserID string `json:"user_id" binding:"required"`
	Title  string `json:"title" binding:"required,max=200"`
	Body   string `json:"body" binding:"max=800"`
	Kind   string `json:"kind" binding:"max=32"`
}

// Create addresses a notification to a user. Only teachers and admins may
// notify other users.
func (s *Service) Create(ctx context.Context, actor auth.Principal, in CreateInput) (Notification, error) {
	if err := actor.Require(auth.RoleTeacher, auth.RoleAdmin); err != nil {
		return Notification{}, err
	}
	vErr := &apperr.ValidationError{}
	if strings.TrimSpace(in.UserID) == "" {
		vErr.Add("user_id", "required")
	}
	switch title := strings.TrimSpace(in.Title); {
	case title == "":
		vErr.Add("title", "required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		vErr.Add("title", tooLong(MaxTitleLength))
	}
	if utf8.RuneCountInString(in.Body) > MaxBodyLength {
		vErr.Add("body", tooLong(MaxBodyLength))
	}
	if utf8.RuneCountInString(in.Kind) > MaxKindLength {
		vErr.Add("kind", tooLong(MaxKindLength))
	}
	if err := vErr.OrNil(); err != nil {
		return Notification{}, err
	}
	if in.Kind == "" {
		in.Kind = "info"
	}
	n, err := s.store.Create(ctx, Notification{
		ID:     s.newID(),
		UserID: in.UserID,
		Title:  strings.TrimSpace(in.Title),
		Body:   in.Body,
		Kind:   in.Kind,
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("create notification failed", logging.Err(err)...)
		return Notification{}, err
	}
	return n, nil
}

func tooLong(n int) string {
	return fmt.Sprintf("at most %d characters", n)
}
