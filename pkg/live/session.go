package live

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loom-ui/loom/pkg/cell"
	"github.com/loom-ui/loom/pkg/dom"
	"github.com/loom-ui/loom/pkg/hydrate"
	"github.com/loom-ui/loom/pkg/snapshot"
	"github.com/loom-ui/loom/pkg/view"
	"github.com/loom-ui/loom/pkg/wire"
)

// ErrSessionClosed is returned for work queued on a closed session.
var ErrSessionClosed = errors.New("live: session closed")

// subscriberBuffer is the frame backlog a subscriber may accumulate
// before frames are dropped.
const subscriberBuffer = 16

// Session owns one mounted component tree. All document and cell state
// belongs to the session's loop goroutine; callers reach it through Do
// and Call, and the loop flushes the document after every queued
// function, streaming the resulting patch set to subscribers.
type Session struct {
	id       string
	doc      *dom.Document
	scope    *cell.Scope
	registry *view.Registry
	log      *slog.Logger
	metrics  *metrics

	updates chan func()
	done    chan struct{}

	mu    sync.Mutex
	subs  map[chan []byte]struct{}
	batch []dom.Mutation
	seq   uint64
}

// newSession mounts tpl into a fresh document and starts the loop. If
// prior holds a stored snapshot, the template hydrates against it and
// replaced subtrees are counted as mismatches.
func newSession(id string, tpl view.Template, prior []byte, log *slog.Logger, m *metrics) *Session {
	s := &Session{
		id:      id,
		log:     log.With("session", id),
		metrics: m,
		updates: make(chan func(), 64),
		done:    make(chan struct{}),
		subs:    make(map[chan []byte]struct{}),
	}

	go s.loop()

	s.Call(func() {
		s.doc = dom.NewDocument(nil)
		s.scope = cell.NewScope(nil)
		s.registry = view.RegistryFor(s.doc)
		s.doc.Observe(func(muts []dom.Mutation) {
			s.batch = append(s.batch, muts...)
		})

		var root *dom.Node
		cell.WithScope(s.scope, func() {
			if prior != nil {
				if existing, err := snapshot.Decode(prior); err == nil {
					// Stored trees are rooted at the document group;
					// the template renders the single mounted child.
					if existing.Kind() == dom.KindGroup && len(existing.Children()) == 1 {
						existing = existing.Children()[0]
					}
					var report *hydrate.Report
					root, report, err = hydrate.Bind(existing, tpl, hydrate.WithLogger(s.log))
					if err == nil {
						if report.Replaced > 0 {
							s.metrics.hydrationMismatches.Add(float64(report.Replaced))
						}
						s.log.Info("session hydrated",
							"matched", report.Matched, "replaced", report.Replaced)
					}
				} else {
					s.log.Warn("stored snapshot unreadable", "error", err)
				}
			}
			if root == nil {
				root = tpl()
			}
		})
		if root != nil {
			s.doc.Root().AppendChild(root)
		}
	})

	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Do queues fn on the session loop. The loop runs fn, checkpoints
// relocatable instances, and flushes the document.
func (s *Session) Do(fn func()) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	case s.updates <- fn:
		return nil
	}
}

// Call runs fn on the session loop and waits for its update pass to
// complete.
func (s *Session) Call(fn func()) error {
	ack := make(chan struct{})
	if err := s.Do(func() {
		defer close(ack)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-ack:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Snapshot returns the encoded current tree.
func (s *Session) Snapshot() ([]byte, error) {
	var data []byte
	err := s.Call(func() {
		data = snapshot.Encode(s.doc.Root())
	})
	return data, err
}

// Subscribe registers a frame receiver. Slow receivers that fall more
// than subscriberBuffer frames behind lose frames.
func (s *Session) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
}

// Close disposes the mounted tree and stops the loop. If store is set
// the final tree is persisted under the session ID.
func (s *Session) Close(ctx context.Context, store snapshot.Store) error {
	var saveErr error
	err := s.Call(func() {
		if store != nil {
			saveErr = snapshot.SaveTree(ctx, store, s.id, s.doc.Root())
		}
		s.scope.Dispose()
		if err := s.scope.Err(); err != nil {
			s.log.Warn("session teardown", "error", err)
		}
		s.registry.Close()
	})
	if err != nil {
		return err
	}

	close(s.done)

	s.mu.Lock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()

	return saveErr
}

func (s *Session) loop() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.updates:
			start := time.Now()
			fn()
			s.registry.Checkpoint()
			s.flush()
			s.metrics.waves.Inc()
			s.metrics.flushDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// flush drains pending mutations into one patch frame and delivers it
// to every subscriber.
func (s *Session) flush() {
	if !s.doc.HasPending() {
		s.doc.Flush()
		return
	}

	s.batch = s.batch[:0]
	s.doc.Flush()
	patches := wire.FromMutations(s.batch)
	if len(patches) == 0 {
		return
	}

	s.seq++
	payload := wire.EncodePatchSet(&wire.PatchSet{Seq: s.seq, Patches: patches})
	frame := wire.NewFrame(wire.FramePatches, payload).Encode()

	s.metrics.patchesSent.Add(float64(len(patches)))
	s.metrics.patchBytes.Add(float64(len(payload)))

	s.mu.Lock()
	for ch := range s.subs {
		select {
		case ch <- frame:
		default:
			s.log.Warn("subscriber behind, dropping frame", "seq", s.seq)
		}
	}
	s.mu.Unlock()
}

// newSessionID returns a random 128-bit hex identifier.
func newSessionID() string {
	b := make([]byte, 16)
	rand.Read(b) // never fails; crypto/rand panics on a broken source
	return hex.EncodeToString(b)
}
