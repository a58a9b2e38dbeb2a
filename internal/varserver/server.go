// Package varserver wires the thirteen components under internal/
// into a single supervised daemon lifecycle: the local and (optional)
// TCP transports, the liveness-sweep reaper, and the optional admin
// HTTP surface are started and torn down together under one errgroup
// the way a process with several concurrent responsibilities and a
// single exit path should be. The dispatcher's processing goroutine
// is started beside that group, not in it.
package varserver

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/tjmonk/varserverd/internal/adminhttp"
	"github.com/tjmonk/varserverd/internal/config"
	"github.com/tjmonk/varserverd/internal/dispatch"
	"github.com/tjmonk/varserverd/internal/gc"
	"github.com/tjmonk/varserverd/internal/logging"
	"github.com/tjmonk/varserverd/internal/security"
	"github.com/tjmonk/varserverd/internal/session"
	"github.com/tjmonk/varserverd/internal/stats"
	"github.com/tjmonk/varserverd/internal/store"
	"github.com/tjmonk/varserverd/internal/transport"
)

// Server owns every long-lived component and runs them until ctx is
// cancelled or one of them fails.
type Server struct {
	Config config.Config
	Log    logging.Log

	Store      *store.Store
	Sessions   *session.Table
	Dispatcher *dispatch.Dispatcher
	Mux        *transport.Multiplexer
	Reaper     *gc.Reaper
	Stats      *stats.Stats
}

// New builds a Server from cfg, constructing every component it owns.
// The server's own uid (os.Getuid) is the ACL bypass identity spec.md
// §4.3 calls the "server uid" rule.
func New(cfg config.Config, log logging.Log) *Server {
	st := store.New(cfg.MaxTags, cfg.MaxTagsPerVariable)
	sessions := session.NewTable(cfg.MaxClients)
	checker := security.NewChecker(uint32(os.Getuid()))
	d := dispatch.New(st, checker, sessions, log.With("component", "dispatch"))
	d.DefaultWorkingBufferSize = cfg.DefaultWorkingBufferSize
	d.MaxWorkingBufferSize = cfg.MaxWorkingBufferSize
	d.MaxTagsPerVariable = cfg.MaxTagsPerVariable
	d.TrustTCPCredentials = cfg.TrustTCPCredentials
	d.Stats = stats.New(cfg.SlowRequestThreshold)
	if err := d.Stats.Seed(st, checker.ServerUID); err != nil {
		log.Fatal("seeding stats namespace variables: %v", err)
	}

	mux := transport.NewMultiplexer(cfg.MaxClients, log.With("component", "transport"))
	reaper := gc.NewReaper(sessions, d, log.With("component", "gc"), cfg.GCInterval)

	return &Server{
		Config:     cfg,
		Log:        log,
		Store:      st,
		Sessions:   sessions,
		Dispatcher: d,
		Mux:        mux,
		Reaper:     reaper,
		Stats:      d.Stats,
	}
}

// Run starts every component and blocks until ctx is cancelled or one
// of them returns an error, at which point the rest are cancelled via
// the errgroup-derived context and Run waits for them to unwind.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// The dispatch loop drains Multiplexer.Requests, which the
	// multiplexer never closes on shutdown (an in-flight reader
	// goroutine could still be feeding it); it runs detached from the
	// errgroup so a cancelled ctx unblocks Wait via the listeners
	// below instead of hanging on a loop with no exit signal of its
	// own. It is safe to let it outlive Run: the process exits right
	// after.
	go s.Dispatcher.Attach(s.Mux)()

	if s.Config.LocalSocketPath != "" {
		g.Go(func() error {
			group, err := lookupGroup(s.Config.LocalSocketGroup)
			if err != nil {
				s.Log.Warn("local socket group %q not resolved, leaving group ownership unchanged: %v", s.Config.LocalSocketGroup, err)
				group = -1
			}
			return s.Mux.ServeLocal(ctx, s.Config.LocalSocketPath, 0660, group)
		})
	}

	if s.Config.TCPAddress != "" && s.Config.TCPPort != 0 {
		addr := tcpAddr(s.Config.TCPAddress, s.Config.TCPPort)
		g.Go(func() error {
			return s.Mux.ServeTCP(ctx, addr)
		})
	}

	g.Go(func() error {
		s.Reaper.Run(ctx)
		return nil
	})

	if s.Config.AdminHTTPAddress != "" {
		admin := adminhttp.New(s.Store, s.Stats, checkerUID(s.Dispatcher), s.Log.With("component", "adminhttp"))
		s.Dispatcher.OnModified = admin.Broadcast
		g.Go(func() error {
			return admin.Run(ctx, s.Config.AdminHTTPAddress)
		})
	}

	return g.Wait()
}

func checkerUID(d *dispatch.Dispatcher) uint32 {
	return d.Checker.ServerUID
}
