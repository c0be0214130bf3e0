package index

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/indexer/suggest"
)

// State is the lifecycle phase of a Generation.
type State int32

const (
	StateBuilding State = iota
	StateReady
	StateSuperseded
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateSuperseded:
		return "superseded"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Generation is an immutable, complete index over one batch of products.
// Readers obtain it from the segment store with a reference that they must
// Release; the data is dropped when the last reference goes away after the
// generation has been superseded.
type Generation struct {
	id        uint64
	buildID   string
	createdAt time.Time
	docCount  int
	termCount int

	dicts     map[Field]*Dictionary
	docs      []catalog.Product
	suggester *suggest.Suggester

	refs      atomic.Int64
	state     atomic.Int32
	onDiscard func(*Generation)
}

// NewGeneration wraps merged build output. The generation starts in
// StateBuilding and is invisible to readers until published.
func NewGeneration(id uint64, buildID string, merged *Merged, suggester *suggest.Suggester) *Generation {
	terms := 0
	for _, d := range merged.Dictionaries {
		terms += d.Len()
	}
	g := &Generation{
		id:        id,
		buildID:   buildID,
		createdAt: time.Now().UTC(),
		docCount:  len(merged.Documents),
		termCount: terms,
		dicts:     merged.Dictionaries,
		docs:      merged.Documents,
		suggester: suggester,
	}
	g.state.Store(int32(StateBuilding))
	return g
}

func (g *Generation) ID() uint64           { return g.id }
func (g *Generation) BuildID() string      { return g.buildID }
func (g *Generation) CreatedAt() time.Time { return g.createdAt }
func (g *Generation) DocCount() int        { return g.docCount }
func (g *Generation) TermCount() int       { return g.termCount }
func (g *Generation) State() State         { return State(g.state.Load()) }
func (g *Generation) Refs() int64          { return g.refs.Load() }

// Dictionary returns the dictionary of f, or nil for an unknown field.
func (g *Generation) Dictionary(f Field) *Dictionary {
	return g.dicts[f]
}

// Document returns the stored product for docID.
func (g *Generation) Document(docID uint32) (catalog.Product, bool) {
	if int(docID) >= len(g.docs) {
		return catalog.Product{}, false
	}
	return g.docs[docID], true
}

func (g *Generation) Suggester() *suggest.Suggester {
	return g.suggester
}

// OnDiscard registers fn to run once when the generation is discarded.
func (g *Generation) OnDiscard(fn func(*Generation)) {
	g.onDiscard = fn
}

// Activate moves a building generation to ready and gives the publisher
// the first reference.
func (g *Generation) Activate() error {
	if !g.state.CompareAndSwap(int32(StateBuilding), int32(StateReady)) {
		return fmt.Errorf("generation %d cannot be activated from state %s", g.id, g.State())
	}
	g.refs.Store(1)
	return nil
}

// Supersede marks a ready generation as replaced. Readers holding it keep a
// consistent view until they release.
func (g *Generation) Supersede() {
	g.state.CompareAndSwap(int32(StateReady), int32(StateSuperseded))
}

// Abandon discards a generation that never became ready.
func (g *Generation) Abandon() {
	if g.state.CompareAndSwap(int32(StateBuilding), int32(StateDiscarded)) {
		g.drop()
	}
}

// TryRetain adds a reference unless the generation is already unreferenced.
func (g *Generation) TryRetain() bool {
	for {
		n := g.refs.Load()
		if n <= 0 {
			return false
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference. The last release of a superseded generation
// discards it.
func (g *Generation) Release() {
	if g.refs.Add(-1) != 0 {
		return
	}
	g.state.Store(int32(StateDiscarded))
	g.drop()
	if g.onDiscard != nil {
		g.onDiscard(g)
	}
}

func (g *Generation) drop() {
	g.dicts = nil
	g.docs = nil
	g.suggester = nil
}
