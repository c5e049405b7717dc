package live

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loom-ui/loom/pkg/snapshot"
	"github.com/loom-ui/loom/pkg/view"
	"github.com/loom-ui/loom/pkg/wire"
)

// Server serves a component template over HTTP and WebSocket.
type Server struct {
	config   *Config
	root     view.Template
	metrics  *metrics
	upgrader websocket.Upgrader
	router   chi.Router

	httpServer *http.Server

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a server around the root template.
func New(root view.Template, opts ...Option) *Server {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	s := &Server{
		config:  config,
		root:    root,
		metrics: newMetrics(config.Registry),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     config.CheckOrigin,
		},
		sessions: make(map[string]*Session),
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(tracing(config.TracerName))
		r.Get("/", s.handleIndex)
		r.Get("/healthz", s.handleHealth)
		r.Handle("/metrics", promhttp.HandlerFor(config.Registry, promhttp.HandlerOpts{}))
	})
	// The upgrade path needs the raw ResponseWriter for hijacking, so
	// it stays outside the tracing group.
	r.Get("/ws", s.handleWebSocket)
	s.router = r

	return s
}

// Handler returns the server's router for mounting elsewhere.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on the configured address until SIGINT/SIGTERM, then
// shuts down gracefully.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info("server starting", "address", s.config.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-shutdown:
		s.config.Logger.Info("shutting down")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes all sessions and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range open {
		if err := sess.Close(ctx, s.config.Store); err != nil {
			s.config.Logger.Warn("session close", "session", sess.ID(), "error", err)
		}
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}

	s.config.Logger.Info("server shutdown complete")
	return nil
}

// Broadcast runs fn as an update pass on every connected session, one
// session at a time. Shared cells written by fn propagate to every
// subscribed tree; each session then flushes its own mutations.
func (s *Server) Broadcast(fn func()) {
	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		if err := sess.Call(fn); err != nil && !errors.Is(err, ErrSessionClosed) {
			s.config.Logger.Warn("broadcast", "session", sess.ID(), "error", err)
		}
	}
}

// Session returns the live session with the given ID, if connected.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// handleIndex renders the template once and returns the serialized
// tree.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := newSession(newSessionID(), s.root, nil, s.config.Logger, s.metrics)
	data, err := sess.Snapshot()
	closeErr := sess.Close(r.Context(), nil)
	if err != nil || closeErr != nil {
		s.config.Logger.Error("render failed", "error", errors.Join(err, closeErr))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleWebSocket upgrades the connection and streams patch frames for
// a dedicated session until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.config.Logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id := r.URL.Query().Get("session")
	var prior []byte
	if id != "" && s.config.Store != nil {
		if data, err := s.config.Store.Load(r.Context(), id); err == nil {
			prior = data
		} else if !errors.Is(err, snapshot.ErrNotFound) {
			s.config.Logger.Warn("snapshot load", "session", id, "error", err)
		}
	}
	if id == "" {
		id = newSessionID()
	}

	sess := newSession(id, s.root, prior, s.config.Logger, s.metrics)
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.metrics.activeSessions.Inc()

	defer func() {
		s.mu.Lock()
		_, open := s.sessions[id]
		delete(s.sessions, id)
		s.mu.Unlock()
		if open {
			if err := sess.Close(context.Background(), s.config.Store); err != nil {
				s.config.Logger.Warn("session close", "session", id, "error", err)
			}
		}
		s.metrics.activeSessions.Dec()
	}()

	// Hello carries the session ID so the client can resume later,
	// then a full snapshot establishes the baseline the patch stream
	// applies to. Subscribing inside the same update pass guarantees
	// no patch falls between the snapshot and the stream.
	var snap []byte
	var frames <-chan []byte
	var unsubscribe func()
	err = sess.Call(func() {
		snap = snapshot.Encode(sess.doc.Root())
		frames, unsubscribe = sess.Subscribe()
	})
	if err != nil {
		return
	}
	defer unsubscribe()

	helloEnc := wire.NewEncoder()
	helloEnc.WriteString(id)
	if err := s.writeFrame(conn, wire.NewFrame(wire.FrameHello, helloEnc.Bytes())); err != nil {
		return
	}
	if len(snap) > wire.MaxPayloadSize {
		s.config.Logger.Error("snapshot exceeds frame limit", "session", id, "bytes", len(snap))
		s.writeFrame(conn, wire.NewFrame(wire.FrameError, []byte("snapshot too large")))
		return
	}
	if err := s.writeFrame(conn, wire.NewFrame(wire.FrameSnapshot, snap)); err != nil {
		return
	}

	// Reader goroutine: drains control frames and signals disconnect.
	// All writes stay on this goroutine; gorilla connections do not
	// allow concurrent writers.
	readErr := make(chan error, 1)
	pings := make(chan struct{}, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if f, err := wire.DecodeFrame(msg); err == nil && f.Type == wire.FramePing {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	for {
		select {
		case <-pings:
			if err := s.writeFrame(conn, wire.NewFrame(wire.FramePong, nil)); err != nil {
				return
			}
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				s.config.Logger.Debug("write failed", "session", id, "error", err)
				return
			}
		case err := <-readErr:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.config.Logger.Debug("read failed", "session", id, "error", err)
			}
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, f *wire.Frame) error {
	return conn.WriteMessage(websocket.BinaryMessage, f.Encode())
}
