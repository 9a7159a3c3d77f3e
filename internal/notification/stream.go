package notification

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"liveclass/internal/apperr"
	"liveclass/internal/auth"
	"liveclass/internal/realtime"
)

const table = "notifications"

// Frame types sent to subscribers.
const (
	FrameState = "state"
	FrameAlert = "alert"
	FrameError = "error"
)

// Frame is one server to client message.
type Frame struct {
	Type         string        `json:"type"`
	State        *State        `json:"state,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Action is one client to server message.
type Action struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

// Client actions.
const (
	ActionMarkRead    = "mark_read"
	ActionMarkAllRead = "mark_all_read"
	ActionDelete      = "delete"
)

// Stream drives one subscriber's notification feed.
type Stream struct {
	svc    *Service
	broker realtime.Broker
	logger *zap.Logger
}

// NewStream creates a stream over svc and broker.
func NewStream(svc *Service, broker realtime.Broker, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{svc: svc, broker: broker, logger: logger}
}

// Run resyncs from the store, then applies change events for the principal
// and handles client actions from in until ctx ends or in closes. Every state
// change is pushed through send.
func (s *Stream) Run(ctx context.Context, actor auth.Principal, in <-chan []byte, send func(any) error) error {
	sub, err := s.broker.Subscribe(ctx, table)
	if err != nil {
		return err
	}
	defer sub.Close()

	snap, err := s.svc.Snapshot(ctx, actor.UserID)
	if err != nil {
		return err
	}
	feed := NewFeed(s.svc.Limit())
	feed.Resync(snap.Count, snap.Notifications)
	if err := s.sendState(feed, send); err != nil {
		return err
	}

	mine := realtime.Filter{Table: table, Column: "user_id", Value: actor.UserID}
	for {
		select {
		case <-ctx.Done():
			return nil

		case c, ok := <-sub.C:
			if !ok {
				return nil
			}
			if !mine.Matches(c) {
				continue
			}
			if alert := feed.Apply(c); alert != nil {
				if err := send(Frame{Type: FrameAlert, Notification: alert}); err != nil {
					return err
				}
			}
			if err := s.sendState(feed, send); err != nil {
				return err
			}

		case raw, ok := <-in:
			if !ok {
				return nil
			}
			if err := s.handle(ctx, actor, feed, raw); err != nil {
				s.logger.Debug("notification action rejected", zap.String("user_id", actor.UserID), zap.Error(err))
				if err := send(Frame{Type: FrameError, Error: apperr.Message(err)}); err != nil {
					return err
				}
				continue
			}
			if err := s.sendState(feed, send); err != nil {
				return err
			}
		}
	}
}

// handle performs one client action. mark_all_read zeroes the counter
// optimistically; the other actions wait for their change events.
func (s *Stream) handle(ctx context.Context, actor auth.Principal, feed *Feed, raw []byte) error {
	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return apperr.Invalid("action", "malformed message")
	}
	switch a.Action {
	case ActionMarkRead:
		return s.svc.MarkRead(ctx, actor, a.ID)
	case ActionMarkAllRead:
		feed.MarkAllRead()
		_, err := s.svc.MarkAllRead(ctx, actor)
		return err
	case ActionDelete:
		return s.svc.Delete(ctx, actor, a.ID)
	default:
		return apperr.Invalid("action", "unknown action "+a.Action)
	}
}

func (s *Stream) sendState(feed *Feed, send func(any) error) error {
	st := feed.State()
	return send(Frame{Type: FrameState, State: &st})
}
