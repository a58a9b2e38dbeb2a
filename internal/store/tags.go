package store

import (
	"fmt"
	"strings"
)

// TagID is a 16-bit interned tag identifier (spec.md §3, §4.2).
type TagID uint16

// TagRegistry interns short tag names into stable ids, insertion
// ordered starting at 1. Store holds one (Store.Tags), but Store's
// lock does not cover it and it has no lock of its own: callers
// serialize access themselves.
type TagRegistry struct {
	maxTags int
	byName  map[string]TagID
	byID    map[TagID]string
	next    TagID
}

func newTagRegistry(maxTags int) *TagRegistry {
	return &TagRegistry{
		maxTags: maxTags,
		byName:  make(map[string]TagID),
		byID:    make(map[TagID]string),
		next:    1,
	}
}

// Intern assigns name a stable id, or returns its existing one. It
// fails once maxTags distinct names have been interned; already
// interned names keep resolving (spec.md §8: "Tag cap reached:
// further intern fails; existing tags still resolve").
func (r *TagRegistry) Intern(name string) (TagID, error) {
	if id, ok := r.byName[name]; ok {
		return id, nil
	}
	if len(r.byName) >= r.maxTags {
		return 0, fmt.Errorf("store: tag registry full (max %d)", r.maxTags)
	}
	id := r.next
	r.next++
	r.byName[name] = id
	r.byID[id] = name
	return id, nil
}

// Name resolves an interned id back to its string, or "" if unknown.
func (r *TagRegistry) Name(id TagID) (string, bool) {
	n, ok := r.byID[id]
	return n, ok
}

// ParseTagSpec splits a comma-separated tag-name list and interns
// each, returning an ordered, de-duplicated id set. The wire request
// handlers do not call it.
func (r *TagRegistry) ParseTagSpec(spec string, maxPerVariable int) ([]TagID, error) {
	if spec == "" {
		return nil, nil
	}
	seen := make(map[TagID]bool)
	var ids []TagID
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := r.Intern(part)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if len(ids) > maxPerVariable {
			return nil, fmt.Errorf("store: tag-spec %q exceeds %d tags per variable", spec, maxPerVariable)
		}
	}
	return ids, nil
}

// FormatTagSpec is ParseTagSpec's inverse: renders an id set back to
// its comma-separated name form (spec.md §8 round-trip law).
func (r *TagRegistry) FormatTagSpec(ids []TagID) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := r.byID[id]; ok {
			names = append(names, n)
		}
	}
	return strings.Join(names, ",")
}

// MatchAll reports whether every id in required is present in have,
// the "required tag set" half of a GET_FIRST/GET_NEXT query (spec.md §4.7).
func MatchAll(have []TagID, required []TagID) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[TagID]bool, len(have))
	for _, id := range have {
		set[id] = true
	}
	for _, id := range required {
		if !set[id] {
			return false
		}
	}
	return true
}
