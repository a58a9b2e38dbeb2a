// Package gc implements the liveness sweep spec.md C12 calls for:
// periodically checking whether each session's owning process is
// still alive and, for any that aren't, handing the session back to
// the dispatcher for cleanup. Liveness itself is checked the way
// other examples in this codebase check a recorded PID against the
// live process table — os.FindProcess followed by a signal-0 probe,
// not anything varserver-specific.
package gc

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/tjmonk/varserverd/internal/logging"
	"github.com/tjmonk/varserverd/internal/session"
)

// reaper is the single-goroutine sink a Reaper hands dead sessions to.
// Dispatcher satisfies this by draining its own channel on the
// dispatch goroutine, so cleanup never races the request loop.
type reaper interface {
	Reap(session.ID)
}

// Reaper periodically sweeps the client table for sessions whose
// owning process has died without sending CLOSE.
type Reaper struct {
	Sessions *session.Table
	Target   reaper
	Log      logging.Log
	Interval time.Duration

	// isAlive is swapped out in tests, the same pattern the pack's
	// other process-lifecycle code uses to avoid depending on real
	// PIDs in unit tests.
	isAlive func(pid int32) bool
}

// NewReaper builds a Reaper that sweeps sessions every interval.
func NewReaper(sessions *session.Table, target reaper, log logging.Log, interval time.Duration) *Reaper {
	return &Reaper{
		Sessions: sessions,
		Target:   target,
		Log:      log,
		Interval: interval,
		isAlive:  isProcessAlive,
	}
}

// Run blocks, sweeping every r.Interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	for _, sess := range r.Sessions.Live() {
		if sess.PID <= 0 {
			continue // no recorded owning process (e.g. TCP) to probe
		}
		if r.isAlive(sess.PID) {
			continue
		}
		r.Log.Warn("reaping session %d: owning process %d is no longer alive", sess.ID, sess.PID)
		r.Target.Reap(sess.ID)
	}
}

// isProcessAlive reports whether pid names a live process, probed via
// a signal-0 send: FindProcess always succeeds on Unix, so the real
// check is whether Signal returns an error.
func isProcessAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
