package session

import "testing"

func TestAllocateLowestFreeSlot(t *testing.T) {
	tbl := NewTable(4)
	s1, err := tbl.Allocate()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if s1.ID != 1 {
		t.Fatalf("first allocation should be slot 1, got %d", s1.ID)
	}
	s2, _ := tbl.Allocate()
	if s2.ID != 2 {
		t.Fatalf("second allocation should be slot 2, got %d", s2.ID)
	}
	tbl.Free(s1.ID)
	s3, _ := tbl.Allocate()
	if s3.ID != 1 {
		t.Fatalf("freed slot 1 should be reused first, got %d", s3.ID)
	}
}

func TestTableFull(t *testing.T) {
	tbl := NewTable(1)
	if _, err := tbl.Allocate(); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := tbl.Allocate(); err != ErrTableFull {
		t.Fatalf("expected ErrTableFull, got %v", err)
	}
}

func TestGetUnknownSession(t *testing.T) {
	tbl := NewTable(4)
	if _, err := tbl.Get(0); err != ErrNoSuchSession {
		t.Fatalf("slot 0 must never resolve, got %v", err)
	}
	if _, err := tbl.Get(99); err != ErrNoSuchSession {
		t.Fatalf("out-of-range id should error, got %v", err)
	}
}

func TestLiveSessions(t *testing.T) {
	tbl := NewTable(4)
	s1, _ := tbl.Allocate()
	s2, _ := tbl.Allocate()
	live := tbl.Live()
	if len(live) != 2 {
		t.Fatalf("expected 2 live sessions, got %d", len(live))
	}
	tbl.Free(s1.ID)
	tbl.Free(s2.ID)
	if len(tbl.Live()) != 0 {
		t.Fatal("expected 0 live sessions after freeing all")
	}
}
