package notify

import (
	"sync"

	"github.com/tjmonk/varserverd/internal/session"
	"github.com/tjmonk/varserverd/internal/store"
)

type key struct {
	handle store.Handle
	kind   Kind
}

// Registry is the notification registry (spec.md C7): who gets told
// when a variable changes, and who is the sole CALC/VALIDATE/PRINT
// handler for it. It does not deliver notifications itself — C5/C6
// call FanoutTargets/Exclusive and do the actual signal/Enqueue, since
// delivery mechanics differ by kind (block list vs. queue vs. PRINT
// transfer).
type Registry struct {
	mu sync.Mutex

	exclusive map[key]session.ID
	fanout    map[key]map[session.ID]bool

	// bySession indexes every key a session is currently subscribed to,
	// so RemoveSession (CLOSE, GC reap) doesn't need a full table scan.
	bySession map[session.ID]map[key]bool
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		exclusive: make(map[key]session.ID),
		fanout:    make(map[key]map[session.ID]bool),
		bySession: make(map[session.ID]map[key]bool),
	}
}

// Subscribe registers sid for notifications of kind on handle. For an
// exclusive kind (CALC/VALIDATE/PRINT), a second subscribe replaces
// the current subscriber rather than failing — spec.md §4.7: "a
// second subscribe replaces the current subscriber and emits a
// warning in the audit channel." replaced reports the session that
// was bumped, if any, so the caller can emit that warning.
func (r *Registry) Subscribe(sid session.ID, handle store.Handle, kind Kind) (replaced session.ID, wasReplaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{handle, kind}
	if kind.Exclusive() {
		if existing, ok := r.exclusive[k]; ok && existing != sid {
			replaced, wasReplaced = existing, true
			r.remove(existing, k)
		}
		r.exclusive[k] = sid
	} else {
		set, ok := r.fanout[k]
		if !ok {
			set = make(map[session.ID]bool)
			r.fanout[k] = set
		}
		set[sid] = true
	}
	subs, ok := r.bySession[sid]
	if !ok {
		subs = make(map[key]bool)
		r.bySession[sid] = subs
	}
	subs[k] = true
	return replaced, wasReplaced
}

// Cancel removes sid's subscription to (handle, kind), if any.
func (r *Registry) Cancel(sid session.ID, handle store.Handle, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{handle, kind}
	r.remove(sid, k)
}

func (r *Registry) remove(sid session.ID, k key) {
	if kind := k.kind; kind.Exclusive() {
		if r.exclusive[k] == sid {
			delete(r.exclusive, k)
		}
	} else if set, ok := r.fanout[k]; ok {
		delete(set, sid)
		if len(set) == 0 {
			delete(r.fanout, k)
		}
	}
	if subs, ok := r.bySession[sid]; ok {
		delete(subs, k)
		if len(subs) == 0 {
			delete(r.bySession, sid)
		}
	}
}

// RemoveSession drops every subscription sid holds, on CLOSE or GC
// reap, and returns the (handle, kind) pairs it held for the caller
// to log or re-offer to the next subscriber.
func (r *Registry) RemoveSession(sid session.ID) []struct {
	Handle store.Handle
	Kind   Kind
} {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.bySession[sid]
	if !ok {
		return nil
	}
	out := make([]struct {
		Handle store.Handle
		Kind   Kind
	}, 0, len(subs))
	for k := range subs {
		out = append(out, struct {
			Handle store.Handle
			Kind   Kind
		}{k.handle, k.kind})
		r.remove(sid, k)
	}
	return out
}

// Exclusive returns the sole subscriber for an exclusive kind on
// handle, if any.
func (r *Registry) Exclusive(handle store.Handle, kind Kind) (session.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.exclusive[key{handle, kind}]
	return sid, ok
}

// FanoutTargets returns every session subscribed to a fan-out kind on
// handle.
func (r *Registry) FanoutTargets(handle store.Handle, kind Kind) []session.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.fanout[key{handle, kind}]
	if !ok {
		return nil
	}
	out := make([]session.ID, 0, len(set))
	for sid := range set {
		out = append(out, sid)
	}
	return out
}
