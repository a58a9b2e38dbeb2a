package store

import "testing"

func newTestStore() *Store {
	return New(256, 8)
}

func TestCreateFindGet(t *testing.T) {
	s := newTestStore()
	h, err := s.Create(Info{Name: "/a", Type: TypeUint16})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	found, err := s.Find("/a")
	if err != nil || found != h {
		t.Fatalf("find: got %v,%v want %v,nil", found, err, h)
	}
	v, err := s.Get(h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Uint16() != 0 {
		t.Fatalf("zero value should be 0, got %d", v.Uint16())
	}
}

func TestCreateDuplicateNameFails(t *testing.T) {
	s := newTestStore()
	if _, err := s.Create(Info{Name: "/a", Type: TypeUint16}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(Info{Name: "/a", Type: TypeUint16}); err != ErrNameExists {
		t.Fatalf("expected ErrNameExists, got %v", err)
	}
}

func TestSetGetOrdering(t *testing.T) {
	s := newTestStore()
	h, _ := s.Create(Info{Name: "/a", Type: TypeUint16})
	if err := s.Set(h, NewUint16(15), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, _ := s.Get(h)
	if v.Uint16() != 15 {
		t.Fatalf("got %d want 15", v.Uint16())
	}
}

func TestSetValueTooLarge(t *testing.T) {
	s := newTestStore()
	h, _ := s.Create(Info{Name: "/s", Type: TypeString, Cap: 4})
	if err := s.Set(h, NewString("1234", 4), 0); err != nil {
		t.Fatalf("set at capacity should succeed: %v", err)
	}
	if err := s.Set(h, NewString("12345", 4), 0); err != ErrValueTooLarge {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}
}

func TestReadOnlyRejectsNonCreator(t *testing.T) {
	s := newTestStore()
	h, err := s.CreateWithCreator(Info{Name: "/r", Type: TypeUint16, Flags: FlagReadOnly}, 1000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Set(h, NewUint16(1), 1000); err != nil {
		t.Fatalf("creator should be able to set: %v", err)
	}
	if err := s.Set(h, NewUint16(2), 2000); err != ErrReadOnly {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestAliasSharesData(t *testing.T) {
	s := newTestStore()
	h, _ := s.Create(Info{Name: "/a", Type: TypeUint16})
	ah, err := s.Alias(h, "/b", 1, 1)
	if err != nil {
		t.Fatalf("alias: %v", err)
	}
	if err := s.Set(h, NewUint16(7), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := s.Get(ah)
	if err != nil || v.Uint16() != 7 {
		t.Fatalf("alias did not observe write: %v, %v", v, err)
	}
}

func TestAliasOfAliasRejected(t *testing.T) {
	s := newTestStore()
	h, _ := s.Create(Info{Name: "/a", Type: TypeUint16})
	ah, _ := s.Alias(h, "/b", 1, 1)
	if _, err := s.Alias(ah, "/c", 1, 1); err != ErrAliasOfAlias {
		t.Fatalf("expected ErrAliasOfAlias, got %v", err)
	}
}

func TestFlagRoundTrip(t *testing.T) {
	all := FlagVolatile | FlagReadOnly | FlagHidden | FlagDirty | FlagPublic | FlagTrigger | FlagAudit | FlagPassword
	for _, subset := range []Flags{0, FlagVolatile, FlagReadOnly | FlagHidden, all} {
		s := subset.String()
		got := ParseFlags(s)
		if got != subset {
			t.Fatalf("round trip failed for %v: string=%q parsed=%v", subset, s, got)
		}
	}
}

func TestTypeNameRoundTrip(t *testing.T) {
	for _, ty := range []Type{TypeUint16, TypeInt16, TypeUint32, TypeInt32, TypeUint64, TypeInt64, TypeFloat, TypeString, TypeBlob} {
		name := ty.String()
		got, err := TypeByName(name)
		if err != nil || got != ty {
			t.Fatalf("round trip failed for %v: name=%q got=%v err=%v", ty, name, got, err)
		}
	}
}

func TestTagInternAndCap(t *testing.T) {
	reg := newTagRegistry(2)
	id1, err := reg.Intern("a")
	if err != nil {
		t.Fatalf("intern: %v", err)
	}
	id2, _ := reg.Intern("b")
	if id1 == id2 {
		t.Fatal("distinct names must get distinct ids")
	}
	if _, err := reg.Intern("c"); err == nil {
		t.Fatal("expected cap error")
	}
	// existing tags still resolve once the cap is hit.
	if _, err := reg.Intern("a"); err != nil {
		t.Fatalf("existing tag should still resolve: %v", err)
	}
	if name, ok := reg.Name(id1); !ok || name != "a" {
		t.Fatalf("Name(%v) = %q, %v", id1, name, ok)
	}
}

func TestTagSpecRoundTrip(t *testing.T) {
	reg := newTagRegistry(256)
	ids, err := reg.ParseTagSpec("x,y,z", 8)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	spec := reg.FormatTagSpec(ids)
	ids2, err := reg.ParseTagSpec(spec, 8)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(ids) != len(ids2) {
		t.Fatalf("round trip length mismatch: %v vs %v", ids, ids2)
	}
	for i := range ids {
		if ids[i] != ids2[i] {
			t.Fatalf("round trip mismatch at %d: %v vs %v", i, ids[i], ids2[i])
		}
	}
}

func TestMatchAll(t *testing.T) {
	have := []TagID{1, 2, 3}
	if !MatchAll(have, []TagID{1, 3}) {
		t.Fatal("expected match")
	}
	if MatchAll(have, []TagID{1, 4}) {
		t.Fatal("expected no match")
	}
	if !MatchAll(have, nil) {
		t.Fatal("empty required set should always match")
	}
}
