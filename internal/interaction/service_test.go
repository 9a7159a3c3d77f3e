package interaction

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveclass/internal/apperr"
	"liveclass/internal/auth"
)

type memStore struct {
	mu       sync.Mutex
	messages []Message
	raises   []HandRaise
	rooms    []BreakoutRoom
}

func (m *memStore) InsertMessage(_ context.Context, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *memStore) Messages(_ context.Context, sessionID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []Message{}
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			res = append(res, msg)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *memStore) InsertHandRaise(_ context.Context, h HandRaise) (HandRaise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.Status = HandPending
	m.raises = append(m.raises, h)
	return h, nil
}

func (m *memStore) ResolveLatest(_ context.Context, sessionID, userID string, at time.Time) (HandRaise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := -1
	for i, h := range m.raises {
		if h.SessionID == sessionID && h.UserID == userID && h.Status == HandPending {
			if latest < 0 || h.RaisedAt.After(m.raises[latest].RaisedAt) {
				latest = i
			}
		}
	}
	if latest < 0 {
		return HandRaise{}, apperr.ErrNotFound
	}
	m.raises[latest].Status = HandResolved
	m.raises[latest].ResolvedAt = &at
	return m.raises[latest], nil
}

func (m *memStore) ResolveAll(_ context.Context, sessionID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i, h := range m.raises {
		if h.SessionID == sessionID && h.Status == HandPending {
			m.raises[i].Status = HandResolved
			m.raises[i].ResolvedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memStore) PendingHandRaises(_ context.Context, sessionID string) ([]HandRaise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []HandRaise{}
	for _, h := range m.raises {
		if h.SessionID == sessionID && h.Status == HandPending {
			res = append(res, h)
		}
	}
	return res, nil
}

func (m *memStore) InsertBreakoutRoom(_ context.Context, b BreakoutRoom) (BreakoutRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms = append(m.rooms, b)
	return b, nil
}

func (m *memStore) BreakoutRooms(_ context.Context, sessionID string) ([]BreakoutRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []BreakoutRoom{}
	for _, b := range m.rooms {
		if b.SessionID == sessionID {
			res = append(res, b)
		}
	}
	return res, nil
}

var (
	t0      = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	teacher = auth.Principal{UserID: "T1", Role: auth.RoleTeacher}
	alice   = auth.Principal{UserID: "S1", Role: auth.RoleStudent}
	bob     = auth.Principal{UserID: "S2", Role: auth.RoleStudent}
)

// newTestService returns a service whose clock advances a second per call.
func newTestService(st Store) *Service {
	svc := NewService(st, nil)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return t0.Add(time.Duration(tick) * time.Second)
	}
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return svc
}

func TestChatOrderedBySendTime(t *testing.T) {
	svc := newTestService(&memStore{})
	ctx := context.Background()

	for i, who := range []auth.Principal{alice, bob, teacher} {
		_, err := svc.Send(ctx, who, "SESS1", fmt.Sprintf("  hello %d ", i))
		require.NoError(t, err)
	}
	_, err := svc.Send(ctx, alice, "SESS2", "elsewhere")
	require.NoError(t, err)

	msgs, err := svc.Messages(ctx, "SESS1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello 0", msgs[0].Body)
	assert.Equal(t, "T1", msgs[2].UserID)
	assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
}

func TestSendValidation(t *testing.T) {
	svc := newTestService(&memStore{})
	ctx := context.Background()

	_, err := svc.Send(ctx, alice, "SESS1", "   ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Send(ctx, alice, "SESS1", strings.Repeat("é", MaxMessageLength+1))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Send(ctx, alice, "SESS1", strings.Repeat("é", MaxMessageLength))
	assert.NoError(t, err)

	_, err = svc.Send(ctx, auth.Principal{}, "SESS1", "hi")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = svc.Send(ctx, alice, "", "hi")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestHandRaiseLifecycle(t *testing.T) {
	st := &memStore{}
	svc := newTestService(st)
	ctx := context.Background()

	first, err := svc.Raise(ctx, alice, "SESS1")
	require.NoError(t, err)
	second, err := svc.Raise(ctx, alice, "SESS1")
	require.NoError(t, err)
	_, err = svc.Raise(ctx, bob, "SESS1")
	require.NoError(t, err)

	pending, err := svc.Pending(ctx, "SESS1")
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	lowered, err := svc.Lower(ctx, alice, "SESS1", "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, lowered.ID, "lower resolves the most recent pending raise")
	assert.Equal(t, HandResolved, lowered.Status)
	require.NotNil(t, lowered.ResolvedAt)

	pending, err = svc.Pending(ctx, "SESS1")
	require.NoError(t, err)
	ids := []string{pending[0].ID, pending[1].ID}
	assert.Contains(t, ids, first.ID)

	_, err = svc.Lower(ctx, alice, "SESS1", "S2")
	assert.ErrorIs(t, err, apperr.ErrRoleMismatch)

	_, err = svc.Lower(ctx, teacher, "SESS1", "S2")
	require.NoError(t, err)

	_, err = svc.Lower(ctx, bob, "SESS1", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResolveAllClearsPending(t *testing.T) {
	svc := newTestService(&memStore{})
	ctx := context.Background()

	for _, who := range []auth.Principal{alice, bob} {
		_, err := svc.Raise(ctx, who, "SESS1")
		require.NoError(t, err)
	}
	_, err := svc.Raise(ctx, alice, "SESS2")
	require.NoError(t, err)

	n, err := svc.ResolveAll(ctx, "SESS1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	pending, err := svc.Pending(ctx, "SESS1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	other, err := svc.Pending(ctx, "SESS2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestCreateBreakoutRoomUsesFixedDuration(t *testing.T) {
	svc := newTestService(&memStore{})
	ctx := context.Background()

	room, err := svc.CreateBreakoutRoom(ctx, teacher, "SESS1", BreakoutInput{Name: " Group A ", MaxParticipants: 4})
	require.NoError(t, err)
	assert.Equal(t, "Group A", room.Name)
	assert.Equal(t, 15, room.DurationMinutes)
	assert.Equal(t, BreakoutDuration, room.EndsAt.Sub(room.CreatedAt))
	assert.Equal(t, "T1", room.CreatedBy)

	rooms, err := svc.BreakoutRooms(ctx, "SESS1")
	require.NoError(t, err)
	assert.Equal(t, []BreakoutRoom{room}, rooms)
}

func TestCreateBreakoutRoomRejects(t *testing.T) {
	svc := newTestService(&memStore{})
	ctx := context.Background()

	_, err := svc.CreateBreakoutRoom(ctx, alice, "SESS1", BreakoutInput{Name: "A", MaxParticipants: 2})
	assert.ErrorIs(t, err, apperr.ErrRoleMismatch)

	_, err = svc.CreateBreakoutRoom(ctx, teacher, "SESS1", BreakoutInput{Name: "", MaxParticipants: 0})
	require.Error(t, err)
	vErr, ok := err.(*apperr.ValidationError)
	require.True(t, ok)
	assert.Contains(t, vErr.Fields, "name")
	assert.Contains(t, vErr.Fields, "max_participants")
}
