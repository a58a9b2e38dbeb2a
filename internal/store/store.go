// Package store implements the variable store (spec.md C1) and the
// tag registry (C2), which has no lock of its own. It owns three views
// over the record table — handle index, name index, insertion order —
// exactly as spec.md §4.1 describes, behind one coarse-grained lock:
// the contention profile here is notification fan-out, not store
// throughput, so a single RWMutex is the right tool (same call the
// teacher's ASDU codec makes by keeping one byte buffer per PDU rather
// than fine-grained per-field locking).
package store

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNameExists is returned by Create/Alias on a name collision.
var ErrNameExists = errors.New("store: name already exists")

// ErrNotFound is returned when a handle or name has no record.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidType is returned by Create for an unrecognised type.
var ErrInvalidType = errors.New("store: invalid type")

// ErrValueTooLarge is returned by Set when a String/Blob value would
// exceed its declared capacity.
var ErrValueTooLarge = errors.New("store: value exceeds declared capacity")

// ErrReadOnly is returned by Set when a READONLY variable is written
// by anyone other than its creator (spec.md §3).
var ErrReadOnly = errors.New("store: variable is read-only")

// ErrAliasOfAlias is returned by Alias when the target handle is
// itself an alias (spec.md §3: "aliases cannot themselves be aliased").
var ErrAliasOfAlias = errors.New("store: cannot alias an alias")

const regexCacheSize = 128

// Store owns the variable table, the shared tag registry, and a
// bounded cache of compiled name-pattern regexes for GET_FIRST/GET_NEXT.
type Store struct {
	mu sync.RWMutex

	byHandle map[Handle]*Record
	byName   map[string]*Record
	order    []Handle // insertion order, for linear query (spec.md §4.7)
	next     Handle

	Tags *TagRegistry

	maxTagsPerVariable int
	regexCache         *lru.Cache[string, *regexp.Regexp]
}

// New builds an empty Store. maxTags and maxTagsPerVariable come from
// Config (spec.md §6 build-time limits, overridable).
func New(maxTags, maxTagsPerVariable int) *Store {
	cache, _ := lru.New[string, *regexp.Regexp](regexCacheSize)
	return &Store{
		byHandle:            make(map[Handle]*Record),
		byName:              make(map[string]*Record),
		Tags:                newTagRegistry(maxTags),
		maxTagsPerVariable:  maxTagsPerVariable,
		regexCache:          cache,
		next:                1,
	}
}

// Create inserts a new primary variable record and returns its handle.
func (s *Store) Create(info Info) (Handle, error) {
	if len(info.Name) == 0 || len(info.Name) > MaxNameLength {
		return InvalidHandle, fmt.Errorf("store: name length must be 1..%d", MaxNameLength)
	}
	if info.Type == TypeInvalid {
		return InvalidHandle, ErrInvalidType
	}
	if len(info.Tags) > s.maxTagsPerVariable {
		return InvalidHandle, fmt.Errorf("store: %d tags exceeds per-variable max %d", len(info.Tags), s.maxTagsPerVariable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[info.Name]; exists {
		return InvalidHandle, ErrNameExists
	}

	h := s.next
	s.next++

	data := &varData{
		value:       ZeroValue(info.Type, info.Cap),
		flags:       info.Flags,
		tags:        append([]TagID(nil), info.Tags...),
		format:      info.Format,
		permissions: info.Permissions,
	}
	rec := &Record{
		Handle:     h,
		Name:       info.Name,
		InstanceID: info.InstanceID,
		GUID:       info.GUID,
		data:       data,
	}
	s.byHandle[h] = rec
	s.byName[info.Name] = rec
	s.order = append(s.order, h)
	return h, nil
}

// CreateWithCreator is Create plus recording the owning uid, used by
// the dispatcher so READONLY enforcement (spec.md §3) has a subject.
func (s *Store) CreateWithCreator(info Info, creatorUID uint32) (Handle, error) {
	h, err := s.Create(info)
	if err != nil {
		return h, err
	}
	s.mu.Lock()
	s.byHandle[h].data.creatorUID = creatorUID
	s.mu.Unlock()
	return h, nil
}

// Find resolves a name (primary or alias) to its handle.
func (s *Store) Find(name string) (Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byName[name]
	if !ok {
		return InvalidHandle, ErrNotFound
	}
	return rec.Handle, nil
}

// record looks up a handle without copying; caller must hold s.mu.
func (s *Store) record(h Handle) (*Record, error) {
	rec, ok := s.byHandle[h]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Record returns the stored record for h itself, not a copy.
// The returned *Record shares the underlying varData pointer, so
// Value()/Flags() reflect later mutations — callers that need a
// frozen view should copy Value() immediately after the call.
func (s *Store) Record(h Handle) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record(h)
}

// Get returns the current value for handle h.
func (s *Store) Get(h Handle) (Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.record(h)
	if err != nil {
		return Value{}, err
	}
	return rec.data.value, nil
}

// Set writes a new value for handle h. callerUID identifies the
// caller for the READONLY-except-creator rule; every callerUID,
// zero included, is subject to that check.
func (s *Store) Set(h Handle, v Value, callerUID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(h)
	if err != nil {
		return err
	}
	if rec.data.flags.Has(FlagReadOnly) && callerUID != rec.data.creatorUID {
		return ErrReadOnly
	}
	if !fitsCapacity(rec.data.value.Cap, v) {
		return ErrValueTooLarge
	}
	v.Cap = rec.data.value.Cap
	rec.data.value = v
	rec.data.flags |= FlagDirty
	return nil
}

// SetFlags ORs mask into h's flag bitmap.
func (s *Store) SetFlags(h Handle, mask Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(h)
	if err != nil {
		return err
	}
	rec.data.flags |= mask
	return nil
}

// ClearFlags ANDs the complement of mask into h's flag bitmap.
func (s *Store) ClearFlags(h Handle, mask Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.record(h)
	if err != nil {
		return err
	}
	rec.data.flags &^= mask
	return nil
}

// Alias binds a new name to the same underlying data as h, returning
// the alias's own handle. h must name a primary record.
func (s *Store) Alias(h Handle, newName string, guid, instanceID uint32) (Handle, error) {
	if len(newName) == 0 || len(newName) > MaxNameLength {
		return InvalidHandle, fmt.Errorf("store: name length must be 1..%d", MaxNameLength)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	primary, err := s.record(h)
	if err != nil {
		return InvalidHandle, err
	}
	if primary.isAlias {
		return InvalidHandle, ErrAliasOfAlias
	}
	if _, exists := s.byName[newName]; exists {
		return InvalidHandle, ErrNameExists
	}

	ah := s.next
	s.next++
	alias := &Record{
		Handle:     ah,
		Name:       newName,
		InstanceID: instanceID,
		GUID:       guid,
		data:       primary.data,
		isAlias:    true,
		primary:    h,
	}
	s.byHandle[ah] = alias
	s.byName[newName] = alias
	s.order = append(s.order, ah)
	primary.data.aliasHandles = append(primary.data.aliasHandles, ah)
	return ah, nil
}

// CompileNamePattern compiles (or retrieves from cache) a regular
// expression for a GET_FIRST/GET_NEXT name filter.
func (s *Store) CompileNamePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := s.regexCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	s.regexCache.Add(pattern, re)
	return re, nil
}

// Snapshot is an iteration-order copy of every record handle, used by
// the query cursor in internal/notify to walk the store without
// holding its lock across a whole GET_FIRST/GET_NEXT session.
func (s *Store) Snapshot() []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Handle, len(s.order))
	copy(out, s.order)
	return out
}
