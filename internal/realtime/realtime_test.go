package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func change(t *testing.T, table string, typ EventType, newRow, oldRow any) Change {
	t.Helper()
	c := Change{Table: table, Type: typ}
	if newRow != nil {
		raw, err := json.Marshal(newRow)
		require.NoError(t, err)
		c.New = raw
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		require.NoError(t, err)
		c.Old = raw
	}
	return c
}

func TestParseChange(t *testing.T) {
	c, err := ParseChange([]byte(`{"table":"notifications","type":"delete","new":null,"old":{"id":"n1","read":false}}`))
	require.NoError(t, err)
	assert.Equal(t, Delete, c.Type)
	assert.False(t, c.HasNew())
	assert.True(t, c.HasOld())

	var old struct {
		ID   string `json:"id"`
		Read bool   `json:"read"`
	}
	require.NoError(t, c.DecodeOld(&old))
	assert.Equal(t, "n1", old.ID)
	assert.Error(t, c.DecodeNew(&old))

	_, err = ParseChange([]byte(`{"type":"INSERT"}`))
	assert.Error(t, err)
	_, err = ParseChange([]byte(`not json`))
	assert.Error(t, err)
}

func TestFilterMatches(t *testing.T) {
	ins := change(t, "session_participants", Insert, map[string]any{"session_id": "s1", "user_id": "u1"}, nil)
	del := change(t, "session_participants", Delete, nil, map[string]any{"session_id": "s2"})

	assert.True(t, Filter{Table: "session_participants"}.Matches(ins))
	assert.True(t, Filter{Table: "session_participants", Type: All, Column: "session_id", Value: "s1"}.Matches(ins))
	assert.False(t, Filter{Table: "session_participants", Column: "session_id", Value: "s2"}.Matches(ins))
	assert.True(t, Filter{Table: "session_participants", Column: "session_id", Value: "s2"}.Matches(del))
	assert.False(t, Filter{Table: "session_participants", Type: Update}.Matches(ins))
	assert.False(t, Filter{Table: "attendance_records"}.Matches(ins))
	assert.False(t, Filter{Table: "session_participants", Column: "left_at", Value: ""}.Matches(ins))
}

func TestInMemoryFanOutAndClose(t *testing.T) {
	b := NewInMemory()
	ctx := context.Background()

	a, err := b.Subscribe(ctx, "session_messages")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "session_messages")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Subscribers("session_messages"))

	msg := change(t, "session_messages", Insert, map[string]any{"id": "m1"}, nil)
	require.NoError(t, b.Publish(ctx, msg))
	require.NoError(t, b.Publish(ctx, change(t, "hand_raises", Insert, map[string]any{"id": "h1"}, nil)))

	assert.Equal(t, msg, <-a.C)
	assert.Equal(t, msg, <-other.C)

	a.Close()
	a.Close()
	_, open := <-a.C
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers("session_messages"))

	other.Close()
	assert.Equal(t, 0, b.Subscribers("session_messages"))
}

func TestInMemoryClosesOnContextEnd(t *testing.T) {
	b := NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, "notifications")
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-sub.C:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
	assert.Eventually(t, func() bool { return b.Subscribers("notifications") == 0 }, time.Second, 10*time.Millisecond)
}

func TestInMemoryDropsForSlowSubscriber(t *testing.T) {
	b := NewInMemory()
	ctx := context.Background()
	sub, err := b.Subscribe(ctx, "session_messages")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, b.Publish(ctx, Change{Table: "session_messages", Type: Insert}))
	}
	assert.Len(t, sub.C, subscriberBuffer)
}

func TestRefetchEmitsSnapshotPerMatchingChange(t *testing.T) {
	b := NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	fetches := 0
	emitted := make(chan int, 8)

	done := make(chan error, 1)
	go func() {
		done <- Refetch(ctx, b, Filter{Table: "session_participants", Column: "session_id", Value: "s1"},
			func(context.Context) (int, error) {
				mu.Lock()
				defer mu.Unlock()
				fetches++
				return fetches, nil
			},
			func(n int) error {
				emitted <- n
				return nil
			})
	}()

	assert.Equal(t, 1, <-emitted)
	require.Eventually(t, func() bool { return b.Subscribers("session_participants") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(ctx, change(t, "session_participants", Insert, map[string]any{"session_id": "s2"}, nil)))
	require.NoError(t, b.Publish(ctx, change(t, "session_participants", Insert, map[string]any{"session_id": "s1"}, nil)))
	assert.Equal(t, 2, <-emitted)

	cancel()
	require.NoError(t, <-done)
	assert.Eventually(t, func() bool { return b.Subscribers("session_participants") == 0 }, time.Second, 5*time.Millisecond)
}

func TestRefetchPropagatesFetchError(t *testing.T) {
	b := NewInMemory()
	boom := errors.New("boom")
	err := Refetch(context.Background(), b, Filter{Table: "hand_raises"},
		func(context.Context) ([]string, error) { return nil, boom },
		func([]string) error { return nil })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, b.Subscribers("hand_raises"))
}

func TestServerRunsFeedAndRelaysInbox(t *testing.T) {
	srv := NewServer(nil)
	feedDone := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.Serve(w, r, "echo", func(ctx context.Context, conn *Conn) error {
			defer close(feedDone)
			if err := conn.Send(map[string]string{"hello": "world"}); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-conn.Inbox():
					if !ok {
						return nil
					}
					if err := conn.Send(map[string]string{"echo": string(msg)}); err != nil {
						return err
					}
				}
			}
		})
	})
	ts := httptest.NewServer(h)
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)

	var first map[string]string
	require.NoError(t, ws.ReadJSON(&first))
	assert.Equal(t, "world", first["hello"])

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("ping")))
	var echo map[string]string
	require.NoError(t, ws.ReadJSON(&echo))
	assert.Equal(t, "ping", echo["echo"])

	require.NoError(t, ws.Close())
	select {
	case <-feedDone:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop after client disconnect")
	}
}
