package stats

import (
	"testing"
	"time"

	"github.com/tjmonk/varserverd/internal/store"
)

func TestRecordRequestTracksSlowLog(t *testing.T) {
	s := New(10 * time.Millisecond)
	s.RecordRequest("GET", 1*time.Millisecond)
	s.RecordRequest("SET", 50*time.Millisecond)

	byKind := s.RequestsByKind()
	if byKind["GET"] != 1 || byKind["SET"] != 1 {
		t.Fatalf("unexpected breakdown: %+v", byKind)
	}
	if s.SlowRequests != 1 {
		t.Fatalf("expected 1 slow request, got %d", s.SlowRequests)
	}
	log := s.SlowRequestLog()
	if len(log) != 1 || log[0].Kind != "SET" {
		t.Fatalf("unexpected slow log: %+v", log)
	}
}

func TestSnapshotReflectsCounters(t *testing.T) {
	s := New(0)
	s.RecordNotification()
	s.RecordQueueDrop()
	s.RecordGCReap()
	s.RecordValidationFailure()

	snap := s.Snapshot()
	if snap.NotificationsSent != 1 || snap.QueueDrops != 1 || snap.GCReaps != 1 || snap.ValidationFailures != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSeedExposesCountersAsReadOnlyVariables(t *testing.T) {
	st := store.New(16, 4)
	s := New(0)
	if err := s.Seed(st, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s.RecordGCReap()

	h, err := st.Find("/sys/varserver/stats/gc_reaps")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	rec, err := st.Record(h)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !rec.Flags().Has(store.FlagReadOnly) {
		t.Fatal("stats variable should be READONLY")
	}
	if got := rec.Value().Uint64(); got != 1 {
		t.Fatalf("expected gc_reaps=1, got %d", got)
	}

	if err := st.Set(h, store.NewUint64(99), 1234); err == nil {
		t.Fatal("expected non-creator write to a READONLY variable to fail")
	}
}
