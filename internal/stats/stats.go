// Package stats implements the statistics and audit component
// (spec.md C13): counters for requests by kind, notifications, drops,
// GC reaps, validation failures, and slow requests. Seed publishes
// five of them (notifications, queue drops, GC reaps, validation
// failures, slow requests) as read-only variables in the normal store
// namespace; requests by kind are not published as variables and are
// read through RequestsByKind. Every counter except validation
// failures also has a Prometheus counter for the optional admin HTTP
// surface (SPEC_FULL.md §4.1–4.13).
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tjmonk/varserverd/internal/store"
)

// Stats holds every counter the daemon tracks. Scalar counters are
// atomic so handlers never need a lock just to bump one; the
// per-kind breakdown and slow-request log use a small mutex since
// they're read far less often than they're written.
type Stats struct {
	NotificationsSent  uint64
	QueueDrops         uint64
	GCReaps            uint64
	ValidationFailures uint64
	SlowRequests       uint64

	SlowRequestThreshold time.Duration

	mu           sync.Mutex
	requestsByKind map[string]uint64
	slowLog        []SlowRequest

	promRequests     *prometheus.CounterVec
	promNotify       prometheus.Counter
	promQueueDrops   prometheus.Counter
	promGCReaps      prometheus.Counter
	promSlowRequests prometheus.Counter

	// store/creatorUID/vars back the namespace variables Seed creates;
	// vars holds InvalidHandle for every field until Seed is called, so
	// Record* methods are safe to call before the store exists (e.g. in
	// tests that never seed).
	st         *store.Store
	creatorUID uint32
	vars       statVars
}

// statVars holds the handle of each C13 counter's namespace variable.
type statVars struct {
	notificationsSent  store.Handle
	queueDrops         store.Handle
	gcReaps            store.Handle
	validationFailures store.Handle
	slowRequests       store.Handle
}

// SlowRequest records one handler call that exceeded the configured
// budget, for the slow-request log spec.md §4.13 calls for.
type SlowRequest struct {
	Kind     string
	Duration time.Duration
	At       time.Time
}

// New builds a Stats instance and registers its Prometheus
// collectors. Registration failures (e.g. duplicate registration in
// tests) are swallowed — the read-only namespace variables remain the
// source of truth, per SPEC_FULL.md §4.13.
func New(threshold time.Duration) *Stats {
	s := &Stats{
		SlowRequestThreshold: threshold,
		requestsByKind:       make(map[string]uint64),
		promRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "varserverd_requests_total",
			Help: "Total requests dispatched, labeled by kind.",
		}, []string{"kind"}),
		promNotify: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "varserverd_notifications_delivered_total",
			Help: "Total notifications delivered to subscribers.",
		}),
		promQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "varserverd_queue_drops_total",
			Help: "Total MODIFIED_QUEUE deliveries dropped for a full queue.",
		}),
		promGCReaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "varserverd_gc_reaps_total",
			Help: "Total sessions reclaimed by the garbage collector.",
		}),
		promSlowRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "varserverd_slow_requests_total",
			Help: "Total requests that exceeded the slow-request threshold.",
		}),
	}
	_ = prometheus.Register(s.promRequests)
	_ = prometheus.Register(s.promNotify)
	_ = prometheus.Register(s.promQueueDrops)
	_ = prometheus.Register(s.promGCReaps)
	_ = prometheus.Register(s.promSlowRequests)
	return s
}

// Seed creates the C13 counters other than requests by kind as
// READONLY variables in st's normal namespace under
// /sys/varserver/stats, so an ordinary client can read them with
// GET/FIND like any other variable — the admin HTTP surface and
// Prometheus counters are supplemental views onto the same numbers,
// not the source of truth (SPEC_FULL.md §4.1–4.13). creatorUID is the
// daemon's own uid, the only identity Store.Set will accept writes
// from once a variable is flagged READONLY.
func (s *Stats) Seed(st *store.Store, creatorUID uint32) error {
	s.st = st
	s.creatorUID = creatorUID

	var err error
	if s.vars.notificationsSent, err = s.seedVar(st, creatorUID, "/sys/varserver/stats/notifications_sent"); err != nil {
		return err
	}
	if s.vars.queueDrops, err = s.seedVar(st, creatorUID, "/sys/varserver/stats/queue_drops"); err != nil {
		return err
	}
	if s.vars.gcReaps, err = s.seedVar(st, creatorUID, "/sys/varserver/stats/gc_reaps"); err != nil {
		return err
	}
	if s.vars.validationFailures, err = s.seedVar(st, creatorUID, "/sys/varserver/stats/validation_failures"); err != nil {
		return err
	}
	if s.vars.slowRequests, err = s.seedVar(st, creatorUID, "/sys/varserver/stats/slow_requests"); err != nil {
		return err
	}
	return nil
}

func (s *Stats) seedVar(st *store.Store, creatorUID uint32, name string) (store.Handle, error) {
	return st.CreateWithCreator(store.Info{
		Name:   name,
		Type:   store.TypeUint64,
		Flags:  store.FlagReadOnly,
		Format: "%d",
	}, creatorUID)
}

// publish writes v to h's store variable, if Seed has run. Called only
// from the dispatch goroutine (every Record* call site is), the same
// single-writer the rest of the store's mutators rely on.
func (s *Stats) publish(h store.Handle, v uint64) {
	if s.st == nil || h == store.InvalidHandle {
		return
	}
	_ = s.st.Set(h, store.NewUint64(v), s.creatorUID)
}

// RecordRequest bumps the per-kind request counter and, if elapsed
// exceeds the configured threshold, appends to the slow-request log.
func (s *Stats) RecordRequest(kind string, elapsed time.Duration) {
	s.promRequests.WithLabelValues(kind).Inc()

	s.mu.Lock()
	s.requestsByKind[kind]++
	s.mu.Unlock()

	if s.SlowRequestThreshold > 0 && elapsed > s.SlowRequestThreshold {
		v := atomic.AddUint64(&s.SlowRequests, 1)
		s.promSlowRequests.Inc()
		s.publish(s.vars.slowRequests, v)
		s.mu.Lock()
		s.slowLog = append(s.slowLog, SlowRequest{Kind: kind, Duration: elapsed, At: time.Now()})
		s.mu.Unlock()
	}
}

// RecordNotification bumps the delivered-notification counter.
func (s *Stats) RecordNotification() {
	v := atomic.AddUint64(&s.NotificationsSent, 1)
	s.promNotify.Inc()
	s.publish(s.vars.notificationsSent, v)
}

// RecordQueueDrop bumps the dropped-queue-message counter.
func (s *Stats) RecordQueueDrop() {
	v := atomic.AddUint64(&s.QueueDrops, 1)
	s.promQueueDrops.Inc()
	s.publish(s.vars.queueDrops, v)
}

// RecordGCReap bumps the GC-reaped-session counter.
func (s *Stats) RecordGCReap() {
	v := atomic.AddUint64(&s.GCReaps, 1)
	s.promGCReaps.Inc()
	s.publish(s.vars.gcReaps, v)
}

// RecordValidationFailure bumps the rejected-validation counter.
func (s *Stats) RecordValidationFailure() {
	v := atomic.AddUint64(&s.ValidationFailures, 1)
	s.publish(s.vars.validationFailures, v)
}

// RequestsByKind returns a copy of the per-kind request breakdown.
func (s *Stats) RequestsByKind() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.requestsByKind))
	for k, v := range s.requestsByKind {
		out[k] = v
	}
	return out
}

// SlowRequestLog returns a copy of the slow-request log.
func (s *Stats) SlowRequestLog() []SlowRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SlowRequest, len(s.slowLog))
	copy(out, s.slowLog)
	return out
}

// Snapshot is a point-in-time copy of the scalar counters, for
// exposing as read-only store variables or over the admin HTTP API.
type Snapshot struct {
	NotificationsSent  uint64
	QueueDrops         uint64
	GCReaps            uint64
	ValidationFailures uint64
	SlowRequests       uint64
}

// Snapshot reads every scalar counter atomically.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		NotificationsSent:  atomic.LoadUint64(&s.NotificationsSent),
		QueueDrops:         atomic.LoadUint64(&s.QueueDrops),
		GCReaps:            atomic.LoadUint64(&s.GCReaps),
		ValidationFailures: atomic.LoadUint64(&s.ValidationFailures),
		SlowRequests:       atomic.LoadUint64(&s.SlowRequests),
	}
}
