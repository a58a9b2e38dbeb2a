// Package adminhttp implements the optional, loopback-only HTTP
// surface SPEC_FULL.md §4.14 adds alongside the wire protocol: health
// and Prometheus metrics for operators, plus a JSON variable dump and
// a live MODIFIED stream for debugging without a wire client. It is
// entirely inert unless Config.AdminHTTPAddress is set — the daemon's
// actual protocol surface never depends on it.
package adminhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tjmonk/varserverd/internal/logging"
	"github.com/tjmonk/varserverd/internal/stats"
	"github.com/tjmonk/varserverd/internal/store"
)

// Server serves the admin HTTP API.
type Server struct {
	store    *store.Store
	stats    *stats.Stats
	ownerUID uint32
	log      logging.Log

	upgrader websocket.Upgrader

	mu        sync.Mutex
	streamers map[*streamer]struct{}
}

// streamer is one open /vars/stream websocket connection's outbound
// queue, written to from Dispatcher.OnModified and drained by its own
// writer goroutine so a slow browser never blocks SET.
type streamer struct {
	out chan []byte
}

// New builds a Server. ownerUID is the daemon's own uid, reported by
// /healthz so an operator can confirm which account's ACL bypass rule
// (spec.md §4.3) is in effect. The admin surface has no caller
// identity of its own — it's loopback-only, not uid-gated — so every
// /vars response excludes HIDDEN variables regardless of who asks.
func New(st *store.Store, stt *stats.Stats, ownerUID uint32, log logging.Log) *Server {
	return &Server{
		store:     st,
		stats:     stt,
		ownerUID:  ownerUID,
		log:       log,
		streamers: make(map[*streamer]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // loopback-only by bind address, not origin
		},
	}
}

// Broadcast feeds h's new value to every open /vars/stream connection.
// Wired as Dispatcher.OnModified; called from the dispatch goroutine,
// so it must never block — each streamer has its own bounded queue and
// a full one just drops the update, the same back-pressure stance
// spec.md §4.11 takes for MODIFIED_QUEUE.
func (s *Server) Broadcast(h store.Handle) {
	rec, err := s.store.Record(h)
	if err != nil {
		return
	}
	msg, err := json.Marshal(varView(rec, s.store.Tags))
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for st := range s.streamers {
		select {
		case st.out <- msg:
		default:
		}
	}
}

// Run serves the admin API on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/vars", s.handleVars)
	r.Get("/vars/stream", s.handleVarsStream)

	srv := &http.Server{Addr: addr, Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// healthzBody reports liveness plus a cheap activity snapshot, so an
// operator curling /healthz doesn't need a separate call to tell a
// quiet daemon from a stuck one.
type healthzBody struct {
	Status   string         `json:"status"`
	OwnerUID uint32         `json:"ownerUid"`
	Stats    stats.Snapshot `json:"stats"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthzBody{Status: "ok", OwnerUID: s.ownerUID, Stats: s.stats.Snapshot()})
}

// varEntry is the JSON shape for one variable in /vars and /vars/stream.
type varEntry struct {
	Handle     uint32 `json:"handle"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Flags      string `json:"flags,omitempty"`
	Format     string `json:"format,omitempty"`
	Value      string `json:"value"`
	CreatorUID uint32 `json:"creatorUid"`
}

func varView(rec *store.Record, tags *store.TagRegistry) varEntry {
	return varEntry{
		Handle:     uint32(rec.Handle),
		Name:       rec.Name,
		Type:       rec.Value().Type.String(),
		Flags:      rec.Flags().String(),
		Format:     rec.Format(),
		Value:      renderValue(rec.Value()),
		CreatorUID: rec.CreatorUID(),
	}
}

// renderValue stringifies v for the JSON dump, one case per type;
// Blob's preview avoids dumping arbitrary binary into JSON text.
func renderValue(v store.Value) string {
	switch v.Type {
	case store.TypeString:
		return v.String2()
	case store.TypeBlob:
		return fmt.Sprintf("<%d bytes>", len(v.Bytes()))
	case store.TypeFloat:
		return fmt.Sprintf("%g", v.Float32())
	case store.TypeInt16:
		return fmt.Sprintf("%d", v.Int16())
	case store.TypeInt32:
		return fmt.Sprintf("%d", v.Int32())
	case store.TypeInt64:
		return fmt.Sprintf("%d", v.Int64())
	case store.TypeUint16:
		return fmt.Sprintf("%d", v.Uint16())
	case store.TypeUint32:
		return fmt.Sprintf("%d", v.Uint32())
	default:
		return fmt.Sprintf("%d", v.Uint64())
	}
}

// handleVars dumps every non-HIDDEN variable as JSON.
func (s *Server) handleVars(w http.ResponseWriter, r *http.Request) {
	var out []varEntry
	for _, h := range s.store.Snapshot() {
		rec, err := s.store.Record(h)
		if err != nil {
			continue
		}
		if rec.Flags().Has(store.FlagHidden) {
			continue
		}
		out = append(out, varView(rec, s.store.Tags))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handleVarsStream upgrades to a websocket and pushes one JSON message
// per MODIFIED variable, sourced from Dispatcher.OnModified via
// Broadcast rather than the wire protocol's own subscriber mechanism
// (an admin viewer is not a session.Session and never will be).
func (s *Server) handleVarsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("admin websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	log := s.log.With("streamConn", connID)
	log.Info("admin variable stream opened")
	defer log.Info("admin variable stream closed")

	st := &streamer{out: make(chan []byte, 32)}
	s.mu.Lock()
	s.streamers[st] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.streamers, st)
		s.mu.Unlock()
	}()

	// Detect client disconnects: gorilla's Conn has no standalone
	// "closed" signal, so a cheap reader goroutine discarding whatever
	// it gets is the idiomatic way to notice a closed socket.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg := <-st.out:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
