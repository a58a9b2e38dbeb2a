package varserver

import (
	"fmt"
	"os/user"
	"strconv"
)

// lookupGroup resolves a group name or numeric gid string to a gid.
// An empty name resolves to -1, meaning "leave group ownership as the
// process's own" (net.Listen's default).
func lookupGroup(name string) (int, error) {
	if name == "" {
		return -1, nil
	}
	if gid, err := strconv.Atoi(name); err == nil {
		return gid, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return -1, err
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return -1, err
	}
	return gid, nil
}

func tcpAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
