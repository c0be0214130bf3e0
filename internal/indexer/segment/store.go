// Package segment holds the served index generation and its on-disk
// snapshot format.
//
// The Store keeps exactly one current generation behind an atomic pointer.
// Readers take a reference with Acquire and give it back with Release; a
// publish swaps the pointer without waiting for them, and the replaced
// generation is reclaimed when its last reader releases it.
package segment

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/index"
)

// DiscardFunc observes generations as they are reclaimed.
type DiscardFunc func(id uint64, lifetime time.Duration)

type Store struct {
	current   atomic.Pointer[index.Generation]
	nextID    atomic.Uint64
	published atomic.Uint64
	live      atomic.Int64

	mu        sync.Mutex
	onDiscard []DiscardFunc
	logger    *slog.Logger
}

func NewStore() *Store {
	return &Store{
		logger: slog.Default().With("component", "segment-store"),
	}
}

// NextGenerationID reserves the id for the next generation. Ids increase
// monotonically for the lifetime of the process.
func (s *Store) NextGenerationID() uint64 {
	return s.nextID.Add(1)
}

// OnDiscard registers fn to run whenever a generation is reclaimed.
func (s *Store) OnDiscard(fn DiscardFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDiscard = append(s.onDiscard, fn)
}

// Acquire returns the current generation with a reference held, or nil when
// nothing has been published. The caller must Release it.
func (s *Store) Acquire() *index.Generation {
	for {
		g := s.current.Load()
		if g == nil {
			return nil
		}
		if g.TryRetain() {
			return g
		}
		// g lost its last reference between the load and the retain, which
		// only happens after a newer generation was installed.
	}
}

// Current returns the current generation without taking a reference. It is
// only safe for reading identity and counters.
func (s *Store) Current() *index.Generation {
	return s.current.Load()
}

// Publish makes g the current generation. The previous generation is marked
// superseded and the store's reference to it is dropped; readers that still
// hold it are unaffected.
func (s *Store) Publish(g *index.Generation) error {
	if g == nil {
		return errors.New("publishing nil generation")
	}
	g.OnDiscard(s.discarded)
	if err := g.Activate(); err != nil {
		return err
	}
	s.live.Add(1)

	var old *index.Generation
	for {
		old = s.current.Load()
		if s.current.CompareAndSwap(old, g) {
			break
		}
	}
	s.published.Add(1)

	if old != nil {
		old.Supersede()
		old.Release()
	}
	s.logger.Info("generation published",
		"generation", g.ID(),
		"build_id", g.BuildID(),
		"docs", g.DocCount(),
		"terms", g.TermCount(),
	)
	return nil
}

func (s *Store) discarded(g *index.Generation) {
	s.live.Add(-1)
	lifetime := time.Since(g.CreatedAt())
	s.logger.Debug("generation discarded", "generation", g.ID(), "lifetime", lifetime)

	s.mu.Lock()
	hooks := append([]DiscardFunc(nil), s.onDiscard...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(g.ID(), lifetime)
	}
}

// Stats describes the store and its current generation.
type Stats struct {
	Ready        bool      `json:"ready"`
	GenerationID uint64    `json:"generation_id,omitempty"`
	BuildID      string    `json:"build_id,omitempty"`
	DocCount     int       `json:"doc_count"`
	TermCount    int       `json:"term_count"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	Readers      int64     `json:"readers"`
	// Live counts published generations that have not been reclaimed,
	// including superseded ones still held by readers.
	Live      int64  `json:"live_generations"`
	Published uint64 `json:"published"`
}

func (s *Store) Stats() Stats {
	st := Stats{
		Live:      s.live.Load(),
		Published: s.published.Load(),
	}
	g := s.Acquire()
	if g == nil {
		return st
	}
	defer g.Release()
	st.Ready = true
	st.GenerationID = g.ID()
	st.BuildID = g.BuildID()
	st.DocCount = g.DocCount()
	st.TermCount = g.TermCount()
	st.CreatedAt = g.CreatedAt()
	// Exclude the store's own reference and the one taken here.
	if r := g.Refs() - 2; r > 0 {
		st.Readers = r
	}
	return st
}
