package notification

import (
	"liveclass/internal/realtime"
)

// Feed is the per-subscriber reducer over notification change events. The
// counter is a cache of the store's unread count: it is only made exact by
// Resync and is otherwise adjusted incrementally, never below zero.
type Feed struct {
	limit int
	count int
	items []Notification
}

// NewFeed creates an empty feed that keeps at most limit items.
func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Feed{limit: limit}
}

// Resync replaces the feed with authoritative state.
func (f *Feed) Resync(count int, items []Notification) {
	f.count = max(count, 0)
	f.items = append([]Notification(nil), items...)
	if len(f.items) > f.limit {
		f.items = f.items[:f.limit]
	}
}

// State returns a copy of the current state.
func (f *Feed) State() State {
	return State{Count: f.count, Notifications: append([]Notification{}, f.items...)}
}

// Count is the cached unread counter.
func (f *Feed) Count() int { return f.count }

// Apply folds one change into the feed. It returns the inserted notification
// when the change should surface an alert, and nil otherwise. Changes that do
// not decode as notifications are ignored.
func (f *Feed) Apply(c realtime.Change) *Notification {
	switch c.Type {
	case realtime.Insert:
		var n Notification
		if err := c.DecodeNew(&n); err != nil {
			return nil
		}
		// Already counted by the snapshot that raced this event.
		if i := f.index(n.ID); i >= 0 {
			f.items[i] = n
			return nil
		}
		f.prepend(n)
		if n.Read {
			return nil
		}
		f.count++
		return &n

	case realtime.Update:
		var n Notification
		if err := c.DecodeNew(&n); err != nil {
			return nil
		}
		wasUnread := true
		var old Notification
		if c.DecodeOld(&old) == nil {
			wasUnread = !old.Read
		} else if i := f.index(n.ID); i >= 0 {
			wasUnread = !f.items[i].Read
		}
		if i := f.index(n.ID); i >= 0 {
			f.items[i] = n
		}
		if n.Read && wasUnread {
			f.decrement()
		}

	case realtime.Delete:
		var old Notification
		if err := c.DecodeOld(&old); err != nil {
			return nil
		}
		f.drop(old.ID)
		if !old.Read {
			f.decrement()
		}
	}
	return nil
}

// MarkAllRead zeroes the counter and flags every visible item read.
func (f *Feed) MarkAllRead() {
	f.count = 0
	for i := range f.items {
		f.items[i].Read = true
	}
}

func (f *Feed) prepend(n Notification) {
	f.items = append([]Notification{n}, f.items...)
	if len(f.items) > f.limit {
		f.items = f.items[:f.limit]
	}
}

func (f *Feed) drop(id string) {
	if i := f.index(id); i >= 0 {
		f.items = append(f.items[:i], f.items[i+1:]...)
	}
}

func (f *Feed) index(id string) int {
	for i, n := range f.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (f *Feed) decrement() {
	if f.count > 0 {
		f.count--
	}
}
