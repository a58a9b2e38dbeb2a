package notify

import (
	"regexp"

	"github.com/tjmonk/varserverd/internal/store"
)

// Descriptor is a GET_FIRST/GET_NEXT query (spec.md §4.7): zero or
// more of a name substring/regex, an instance id, a required flag
// mask, and a required tag set. A zero-value field is "don't care".
type Descriptor struct {
	NamePattern string // compiled via store.CompileNamePattern; empty matches all
	InstanceID  uint32
	HasInstance bool
	Flags       store.Flags // every bit here must be set on the candidate
	Tags        []store.TagID
}

// Cursor is the server-side iteration context GET_FIRST opens and
// GET_NEXT advances, tied to one session (spec.md §4.7: "A query
// context lives until exhausted, CLOSE, or GC"). It walks a point-in-
// time Snapshot rather than the live store so that concurrent
// creations never shift an in-progress iteration out from under the
// requester.
type Cursor struct {
	descriptor Descriptor
	pattern    *regexp.Regexp
	order      []store.Handle
	pos        int
}

// NewCursor builds a Cursor over order (a store.Store.Snapshot)
// filtered by d. pattern, if non-nil, is d.NamePattern already
// compiled by the caller via Store.CompileNamePattern so the cache
// stays store-owned.
func NewCursor(d Descriptor, pattern *regexp.Regexp, order []store.Handle) *Cursor {
	return &Cursor{descriptor: d, pattern: pattern, order: order}
}

// matches reports whether rec satisfies the cursor's descriptor.
func (c *Cursor) matches(rec *store.Record) bool {
	if c.pattern != nil && !c.pattern.MatchString(rec.Name) {
		return false
	}
	if c.descriptor.HasInstance && rec.InstanceID != c.descriptor.InstanceID {
		return false
	}
	if c.descriptor.Flags != 0 && rec.Flags()&c.descriptor.Flags != c.descriptor.Flags {
		return false
	}
	if len(c.descriptor.Tags) > 0 {
		have := rec.Tags()
		for _, want := range c.descriptor.Tags {
			found := false
			for _, got := range have {
				if got == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// Next advances the cursor to the next matching handle, resolving
// each candidate against st, and reports whether one was found. The
// caller (GET_FIRST calls this once, GET_NEXT repeatedly) owns
// translating a false result into the wire NOT_FOUND result.
func (c *Cursor) Next(st *store.Store) (store.Handle, bool) {
	for c.pos < len(c.order) {
		h := c.order[c.pos]
		c.pos++
		rec, err := st.Record(h)
		if err != nil {
			continue // reaped between Snapshot and resolution
		}
		if c.matches(rec) {
			return h, true
		}
	}
	return store.InvalidHandle, false
}
