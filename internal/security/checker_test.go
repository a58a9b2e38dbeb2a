package security

import "testing"

func TestAllowServerOwner(t *testing.T) {
	c := NewChecker(0)
	caller := Credentials{UID: 0, GID: 999}
	acl := ACL{ReadGIDs: []uint32{1}, WriteGIDs: []uint32{1}}
	if !c.CanRead(caller, acl) || !c.CanWrite(caller, acl) {
		t.Fatal("server owner must always be allowed")
	}
}

func TestAllowOpenACL(t *testing.T) {
	c := NewChecker(0)
	caller := Credentials{UID: 500, GID: 999}
	if !c.CanRead(caller, ACL{}) {
		t.Fatal("empty ACL should be open")
	}
}

func TestAllowMatchingGID(t *testing.T) {
	c := NewChecker(0)
	caller := Credentials{UID: 500, GID: 20, SupplementaryGID: []uint32{30, 40}}
	acl := ACL{ReadGIDs: []uint32{40}}
	if !c.CanRead(caller, acl) {
		t.Fatal("matching supplementary gid should allow")
	}
}

func TestDenyNonMatchingGID(t *testing.T) {
	c := NewChecker(0)
	caller := Credentials{UID: 500, GID: 20}
	acl := ACL{WriteGIDs: []uint32{999}}
	if c.CanWrite(caller, acl) {
		t.Fatal("non-matching gid should be denied")
	}
}
