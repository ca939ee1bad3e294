// Package session provides per-conversation state.
//
// A session context is read at plan-build time and written exactly once at
// plan completion; it is never mutated mid-dispatch. Concurrency safety
// follows from that discipline rather than from locks on the context
// itself.
package session

import (
	"time"

	"github.com/richinex/tabula/model"
)

// DefaultRecentLimit bounds the recent-operation history per session.
const DefaultRecentLimit = 20

// OpRecord summarizes one completed operation for conversational context.
type OpRecord struct {
	Capability model.Capability `json:"capability"`
	Table      string           `json:"table,omitempty"`
	OK         bool             `json:"ok"`
	At         time.Time        `json:"at"`
}

// Context is the per-conversation state threaded through each turn.
type Context struct {
	SessionID    string     `json:"session_id"`
	ActiveBaseID string     `json:"active_base_id,omitempty"`
	// Recent holds completed operations, oldest first, bounded by
	// RecentLimit (oldest evicted).
	Recent          []OpRecord    `json:"recent,omitempty"`
	Schema          *model.Schema `json:"schema,omitempty"`
	SchemaFetchedAt time.Time     `json:"schema_fetched_at,omitempty"`
	RecentLimit     int           `json:"recent_limit,omitempty"`
	// Version increments on every completed turn.
	Version int `json:"version"`
}

// NewContext creates a fresh session context.
func NewContext(sessionID string) *Context {
	return &Context{
		SessionID:   sessionID,
		RecentLimit: DefaultRecentLimit,
	}
}

// SchemaFresh reports whether the cached schema was fetched within maxAge.
// The resolver uses this to decide between synthesizing a schema fetch and
// declaring a reference unresolvable.
func (c *Context) SchemaFresh(maxAge time.Duration) bool {
	if c.Schema == nil || c.SchemaFetchedAt.IsZero() {
		return false
	}
	return time.Since(c.SchemaFetchedAt) <= maxAge
}

// SetSchema replaces the cached schema wholesale.
func (c *Context) SetSchema(schema *model.Schema, at time.Time) {
	c.Schema = schema
	c.SchemaFetchedAt = at
	if schema != nil && schema.BaseID != "" {
		c.ActiveBaseID = schema.BaseID
	}
}

// RecordTurn appends the turn's operation records, evicts beyond the limit,
// and bumps the version. This is the single mutation point per turn.
func (c *Context) RecordTurn(records []OpRecord) {
	limit := c.RecentLimit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	c.Recent = append(c.Recent, records...)
	if excess := len(c.Recent) - limit; excess > 0 {
		c.Recent = append([]OpRecord(nil), c.Recent[excess:]...)
	}
	c.Version++
}

// Clone returns a deep-enough copy for safe external mutation. The schema
// pointer is shared because schemas are replaced, never edited in place.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	copied := *c
	copied.Recent = append([]OpRecord(nil), c.Recent...)
	return &copied
}
