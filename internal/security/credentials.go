// Package security implements the permission checker (spec.md C3):
// given a caller's credential set and a variable's ACL, decide
// read/write access, and extract real kernel credentials from a local
// socket peer the way the server is required to (spec.md §9: "the
// server trusts the peer-reported uid/gid only after verifying with
// kernel-provided credentials on the local transport").
package security

// Credentials identifies a connected client for ACL decisions.
type Credentials struct {
	UID              uint32
	GID              uint32
	SupplementaryGID []uint32
}

// MaxSupplementaryGIDs bounds Credentials.SupplementaryGID, per
// spec.md §6 (default 20, a build-time constant; the config field of
// the same name does not change it).
const MaxSupplementaryGIDs = 20

// hasGID reports whether gid is the caller's primary gid or among
// its supplementary gids.
func (c Credentials) hasGID(gid uint32) bool {
	if c.GID == gid {
		return true
	}
	for _, g := range c.SupplementaryGID {
		if g == gid {
			return true
		}
	}
	return false
}
