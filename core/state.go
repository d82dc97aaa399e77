package core

import (
	"github.com/beevik/etree"
	"github.com/bits-and-blooms/bitset"

	"github.com/statechart/scxml/chart"
)

// StateKind classifies a state record.
//
// Initial and the two history kinds are pseudo-states: they get
// indices like any other state but never appear in a configuration.
type StateKind int

const (
	Atomic StateKind = iota
	Parallel
	Compound // also the <scxml> root
	Final
	HistoryDeep
	HistoryShallow
	Initial
)

var stateKindNames = map[StateKind]string{
	Atomic:         "atomic",
	Parallel:       "parallel",
	Compound:       "compound",
	Final:          "final",
	HistoryDeep:    "historyDeep",
	HistoryShallow: "historyShallow",
	Initial:        "initial",
}

func (k StateKind) String() string {
	if s, have := stateKindNames[k]; have {
		return s
	}
	return "unknown"
}

// History reports whether the kind is one of the history
// pseudo-states.
func (k StateKind) History() bool {
	return k == HistoryDeep || k == HistoryShallow
}

// Pseudo reports whether the kind never occurs in a configuration.
func (k StateKind) Pseudo() bool {
	return k.History() || k == Initial
}

// State is one state record in the index.
//
// All bit-sets are indexed by document order and are strict: a state
// is neither its own ancestor nor its own descendant.
type State struct {
	// DocumentOrder is this state's dense index.  The <scxml> root
	// is always 0.
	DocumentOrder int

	// Kind is the state's classification.  The original keeps a
	// high "has history" bit in the same byte; here that bit is
	// the separate HasHistoryChild field.
	Kind StateKind

	// HasHistoryChild is set on a state with a direct history
	// child, and on a history pseudo-state whose region contains
	// further (nested) history pseudo-states.
	HasHistoryChild bool

	// Parent is the index of the enclosing state.  The root is its
	// own parent.
	Parent int

	// Ancestors holds the indices of all proper ancestors.
	Ancestors *bitset.BitSet

	// Children holds the indices of all proper descendants.
	Children *bitset.BitSet

	// Completion holds the default entry set: the states entered
	// when this state is entered without an explicit target.
	Completion *bitset.BitSet

	// Element is the underlying document element.
	Element *etree.Element

	// OnEntry and OnExit are the executable-content containers run
	// on entry and exit, in document order.  For the root, OnEntry
	// holds the chart's global <script> elements.
	OnEntry []*etree.Element
	OnExit  []*etree.Element

	// Invoke holds the state's <invoke> declarations.
	Invoke []*etree.Element

	// Data holds the state's <data> elements.  Under early binding
	// the whole chart's data is attached to the root.
	Data []*etree.Element

	// DoneData is the state's <donedata> template (if any).
	DoneData *etree.Element
}

// ID returns the state's id attribute (possibly empty).
func (s *State) ID() string {
	return chart.ID(s.Element)
}
