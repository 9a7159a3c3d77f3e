// Package realtime carries row-level change events from Postgres to subscribers.
package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType tags a change the way the database trigger reports it.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
	// All matches every event type in a Filter.
	All EventType = "*"
)

// NotifyPayloadLimit is the exclusive upper bound Postgres puts on a NOTIFY
// payload, in bytes.
const NotifyPayloadLimit = 8000

// Change is one row-level event. New is absent for deletes and Old is absent for inserts.
type Change struct {
	Table string          `json:"table"`
	Type  EventType       `json:"type"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// ParseChange decodes a trigger payload.
func ParseChange(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	if c.Table == "" {
		return Change{}, fmt.Errorf("decode change: missing table")
	}
	c.Type = EventType(strings.ToUpper(string(c.Type)))
	return c, nil
}

// HasNew reports whether the event carries the post-change row.
func (c Change) HasNew() bool { return present(c.New) }

// HasOld reports whether the event carries the pre-change row.
func (c Change) HasOld() bool { return present(c.Old) }

// DecodeNew unmarshals the post-change row into v.
func (c Change) DecodeNew(v any) error {
	if !c.HasNew() {
		return fmt.Errorf("%s %s: no new row", c.Table, c.Type)
	}
	return json.Unmarshal(c.New, v)
}

// DecodeOld unmarshals the pre-change row into v.
func (c Change) DecodeOld(v any) error {
	if !c.HasOld() {
		return fmt.Errorf("%s %s: no old row", c.Table, c.Type)
	}
	return json.Unmarshal(c.Old, v)
}

// Column returns the textual value of a column, preferring the new row.
func (c Change) Column(name string) (string, bool) {
	for _, raw := range []json.RawMessage{c.New, c.Old} {
		if !present(raw) {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		if v, ok := row[name]; ok && v != nil {
			return fmt.Sprint(v), true
		}
	}
	return "", false
}

func present(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}

// Filter selects changes on one table, optionally by event type and a
// single column equality predicate such as session_id = X.
type Filter struct {
	Table  string
	Type   EventType
	Column string
	Value  string
}

// Matches reports whether c passes the filter.
func (f Filter) Matches(c Change) bool {
	if f.Table != "" && c.Table != f.Table {
		return false
	}
	if f.Type != "" && f.Type != All && c.Type != f.Type {
		return false
	}
	if f.Column != "" {
		v, ok := c.Column(f.Column)
		if !ok || v != f.Value {
			return false
		}
	}
	return true
}
