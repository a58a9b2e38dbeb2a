package security

import (
	"os/user"
	"strconv"
)

// SupplementaryGroups resolves the supplementary gid list for uid from
// the host's user/group database, truncated to max entries (spec.md
// §3: "supplementary gid set (≤ 20)"). Used once at OPEN time on the
// local transport, after PeerCredentials has supplied the kernel-
// verified uid/gid.
func SupplementaryGroups(uid uint32, max int) ([]uint32, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil, err
	}
	gidStrings, err := u.GroupIds()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(gidStrings))
	for _, s := range gidStrings {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(n))
		if len(out) >= max {
			break
		}
	}
	return out, nil
}
