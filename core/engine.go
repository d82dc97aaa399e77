package core

import (
	"fmt"
	"sort"

	"github.com/beevik/etree"
	"github.com/bits-and-blooms/bitset"

	"github.com/statechart/scxml/chart"
)

// StepResult reports what one Step call did.
type StepResult int

//go:generate stringer -type=StepResult

const (
	// Initialized: the index was built; no micro-step was taken.
	Initialized StepResult = iota

	// Microstepped: one transition-firing cycle ran.
	Microstepped

	// Macrostepped: no spontaneous transition fired; the
	// configuration is stable with respect to internal events.
	Macrostepped

	// Idle: nothing to do and no external event available.
	Idle

	// Cancelled: cancellation was observed; the next Step unwinds.
	Cancelled

	// Finished: a top-level final state was reached (terminal).
	Finished
)

// Engine flags, directly mirroring the interpreter context flags of
// the phase machine.
type engineFlags uint8

const (
	flagPristine        engineFlags = 0x00
	flagSpontaneous     engineFlags = 0x01
	flagInitialized     engineFlags = 0x02
	flagTopLevelFinal   engineFlags = 0x04
	flagTransitionFound engineFlags = 0x08
	flagFinished        engineFlags = 0x10
	flagStable          engineFlags = 0x20 // only needed to signal onStable once
)

// Engine evolves one chart, one micro-step per Step call.
//
// Not safe for concurrent use; see the package comment.
type Engine struct {
	doc *chart.Document
	idx *Index
	cb  Callbacks

	flags engineFlags

	configuration   *bitset.BitSet
	history         *bitset.BitSet
	initializedData *bitset.BitSet
	invocations     *bitset.BitSet

	// event is the event being processed, nil while spontaneous.
	event *Event

	cancelled bool

	// seen records configurations observed since the last stable
	// point, to warn about micro-step cycles.
	seen map[string]bool
}

// NewEngine makes an engine for the given document and callbacks.
// The index is built lazily by the first Step (or eagerly by Init).
func NewEngine(doc *chart.Document, cb Callbacks) *Engine {
	return &Engine{
		doc: doc,
		cb:  cb,
	}
}

// Init builds the index.  Idempotent after the first success.
func (e *Engine) Init() error {
	if e.idx != nil {
		return nil
	}
	idx, err := NewIndex(e.doc)
	if err != nil {
		return err
	}
	e.idx = idx

	n := uint(len(idx.States))
	e.configuration = bitset.New(n)
	e.history = bitset.New(n)
	e.initializedData = bitset.New(n)
	e.invocations = bitset.New(n)
	e.seen = make(map[string]bool)

	if mon := e.monitor(); mon != nil {
		for _, issue := range idx.Issues {
			mon.ReportIssue(issue)
		}
	}

	return nil
}

// Index returns the engine's index (nil before Init).
func (e *Engine) Index() *Index {
	return e.idx
}

// Reset returns the engine to pristine: configuration, history,
// initialized data, invocations, and flags are all cleared.  The
// index is kept.
func (e *Engine) Reset() {
	e.cancelled = false
	e.flags = flagPristine
	e.event = nil
	if e.idx == nil {
		return
	}
	e.configuration.ClearAll()
	e.history.ClearAll()
	e.initializedData.ClearAll()
	e.invocations.ClearAll()
	e.seen = make(map[string]bool)
}

// Cancel marks the engine for graceful shutdown.  The flag is
// observed at the external-dequeue point; in-flight micro-steps
// complete normally.
func (e *Engine) Cancel() {
	e.cancelled = true
}

// IsInState reports whether the state with the given id is active.
func (e *Engine) IsInState(stateID string) bool {
	if e.idx == nil {
		return false
	}
	i, have := e.idx.StateIDs[stateID]
	if !have {
		return false
	}
	return e.configuration.Test(uint(i))
}

// Configuration returns the active states' elements in document
// order.
func (e *Engine) Configuration() []*etree.Element {
	if e.idx == nil {
		return nil
	}
	var acc []*etree.Element
	for i, ok := e.configuration.NextSet(0); ok; i, ok = e.configuration.NextSet(i + 1) {
		acc = append(acc, e.idx.States[i].Element)
	}
	return acc
}

// ConfigurationIDs returns the ids of the active states in document
// order.  States without ids are skipped.
func (e *Engine) ConfigurationIDs() []string {
	if e.idx == nil {
		return nil
	}
	var acc []string
	for i, ok := e.configuration.NextSet(0); ok; i, ok = e.configuration.NextSet(i + 1) {
		if id := e.idx.States[i].ID(); id != "" {
			acc = append(acc, id)
		}
	}
	return acc
}

// ActiveAtomicIDs returns the ids of the active atomic and final
// states, sorted.  Convenient for tests.
func (e *Engine) ActiveAtomicIDs() []string {
	if e.idx == nil {
		return nil
	}
	var acc []string
	for i, ok := e.configuration.NextSet(0); ok; i, ok = e.configuration.NextSet(i + 1) {
		s := e.idx.States[i]
		if s.Kind == Atomic || s.Kind == Final {
			if id := s.ID(); id != "" {
				acc = append(acc, id)
			}
		}
	}
	sort.Strings(acc)
	return acc
}

func (e *Engine) monitor() Monitor {
	if e.cb == nil {
		return nil
	}
	return e.cb.Monitor()
}

// configKey renders the configuration for the micro-step cycle
// check.
func configKey(b *bitset.BitSet) string {
	return fmt.Sprint(b.Bytes())
}
