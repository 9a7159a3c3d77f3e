package notification

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveclass/internal/realtime"
)

func rowJSON(t *testing.T, n Notification) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(n)
	require.NoError(t, err)
	return b
}

func inserted(t *testing.T, n Notification) realtime.Change {
	return realtime.Change{Table: table, Type: realtime.Insert, New: rowJSON(t, n)}
}

func markedRead(t *testing.T, n Notification) realtime.Change {
	old := n
	old.Read = false
	n.Read = true
	return realtime.Change{Table: table, Type: realtime.Update, New: rowJSON(t, n), Old: rowJSON(t, old)}
}

func deleted(t *testing.T, n Notification) realtime.Change {
	return realtime.Change{Table: table, Type: realtime.Delete, Old: rowJSON(t, n)}
}

func note(i int, read bool) Notification {
	return Notification{
		ID:        fmt.Sprintf("n%d", i),
		UserID:    "U1",
		Title:     fmt.Sprintf("notice %d", i),
		Kind:      "info",
		Read:      read,
		CreatedAt: time.Date(2026, 3, 2, 9, i, 0, 0, time.UTC),
	}
}

func TestFeedCounterConservation(t *testing.T) {
	const start = 3
	f := NewFeed(DefaultLimit)
	f.Resync(start, []Notification{note(0, false)})

	var unread []Notification
	k, m := 0, 0
	for i := 1; i <= 5; i++ {
		n := note(i, false)
		alert := f.Apply(inserted(t, n))
		require.NotNil(t, alert)
		assert.Equal(t, n.ID, alert.ID)
		unread = append(unread, n)
		k++
		assert.Equal(t, start+k-m, f.Count())

		if i%2 == 0 {
			f.Apply(markedRead(t, unread[0]))
			unread = unread[1:]
			m++
			assert.Equal(t, start+k-m, f.Count())
		}
	}
	assert.Equal(t, start+5-2, f.Count())

	f.MarkAllRead()
	assert.Zero(t, f.Count())
	for _, n := range f.State().Notifications {
		assert.True(t, n.Read)
	}

	// Late read events from the bulk update never push the counter negative.
	for _, n := range unread {
		f.Apply(markedRead(t, n))
		assert.Zero(t, f.Count())
	}
}

func TestFeedInsertPrependsAndCaps(t *testing.T) {
	f := NewFeed(3)
	f.Resync(0, []Notification{note(2, true), note(1, true)})

	f.Apply(inserted(t, note(3, false)))
	f.Apply(inserted(t, note(4, false)))

	st := f.State()
	require.Len(t, st.Notifications, 3)
	assert.Equal(t, []string{"n4", "n3", "n2"}, []string{st.Notifications[0].ID, st.Notifications[1].ID, st.Notifications[2].ID})
	assert.Equal(t, 2, st.Count)
}

func TestFeedInsertReadDoesNotAlert(t *testing.T) {
	f := NewFeed(DefaultLimit)
	assert.Nil(t, f.Apply(inserted(t, note(1, true))))
	assert.Zero(t, f.Count())
	assert.Len(t, f.State().Notifications, 1)
}

func TestFeedInsertOfSnapshotItemIsNotCountedTwice(t *testing.T) {
	f := NewFeed(DefaultLimit)
	n := note(1, false)
	f.Resync(1, []Notification{note(0, true), n})

	assert.Nil(t, f.Apply(inserted(t, n)))
	st := f.State()
	assert.Equal(t, 1, st.Count)
	require.Len(t, st.Notifications, 2)
	assert.Equal(t, []string{"n0", "n1"}, []string{st.Notifications[0].ID, st.Notifications[1].ID})

	f.Apply(markedRead(t, n))
	assert.Zero(t, f.Count())
}

func TestFeedUpdateWithoutTransitionKeepsCount(t *testing.T) {
	f := NewFeed(DefaultLimit)
	n := note(1, true)
	f.Resync(2, []Notification{n})

	renamed := n
	renamed.Title = "edited"
	f.Apply(realtime.Change{Table: table, Type: realtime.Update, New: rowJSON(t, renamed), Old: rowJSON(t, n)})
	assert.Equal(t, 2, f.Count())
	assert.Equal(t, "edited", f.State().Notifications[0].Title)
}

func TestFeedDeleteAccounting(t *testing.T) {
	read, unread := note(1, true), note(2, false)

	t.Run("read row leaves counter", func(t *testing.T) {
		f := NewFeed(DefaultLimit)
		f.Resync(1, []Notification{unread, read})
		f.Apply(deleted(t, read))
		assert.Equal(t, 1, f.Count())
		assert.Len(t, f.State().Notifications, 1)
	})

	t.Run("unread row decrements by one", func(t *testing.T) {
		f := NewFeed(DefaultLimit)
		f.Resync(4, []Notification{unread, read})
		f.Apply(deleted(t, unread))
		assert.Equal(t, 3, f.Count())
		assert.Equal(t, "n1", f.State().Notifications[0].ID)
	})

	t.Run("floored at zero", func(t *testing.T) {
		f := NewFeed(DefaultLimit)
		f.Resync(0, []Notification{unread})
		f.Apply(deleted(t, unread))
		assert.Zero(t, f.Count())
	})
}

func TestFeedIgnoresUndecodableChanges(t *testing.T) {
	f := NewFeed(DefaultLimit)
	f.Resync(1, nil)
	assert.Nil(t, f.Apply(realtime.Change{Table: table, Type: realtime.Insert, New: json.RawMessage(`"oops"`)}))
	f.Apply(realtime.Change{Table: table, Type: realtime.Delete})
	assert.Equal(t, 1, f.Count())
}
