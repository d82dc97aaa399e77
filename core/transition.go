package core

import (
	"github.com/beevik/etree"
	"github.com/bits-and-blooms/bitset"
)

// TransFlags describe a transition record.
type TransFlags uint8

const (
	// TransSpontaneous marks a transition with no event attribute;
	// it is enabled only against the null event.
	TransSpontaneous TransFlags = 1 << iota

	// TransTargetless marks a transition with no target attribute;
	// taking it exits and enters nothing.
	TransTargetless

	// TransInternal marks type="internal".
	TransInternal

	// TransHistory marks a history state's default transition.
	TransHistory

	// TransInitial marks an <initial> element's transition.
	TransInitial
)

// Transition is one transition record in the index.
//
// Transitions are numbered in post-order: a transition deeper in the
// hierarchy gets a lower index than any transition of an enclosing
// state, so ascending iteration follows document priority.
type Transition struct {
	// Index is this transition's dense (post-order) number.
	Index int

	// Source is the index of the owning state.
	Source int

	// Target holds the indices of the target states (empty for a
	// targetless transition).
	Target *bitset.BitSet

	// ExitSet holds every state that could be exited were this
	// transition to fire.  At runtime it is intersected with the
	// configuration.
	ExitSet *bitset.BitSet

	// Conflicts holds the transitions preempted when this one is
	// selected (its own bit included).
	Conflicts *bitset.BitSet

	// Event is the event descriptor ("" for spontaneous).
	Event string

	// Cond is the guard expression ("" for always enabled).
	Cond string

	// Flags classify the transition.
	Flags TransFlags

	// OnTrans is the transition element itself when it carries
	// executable content, else nil.
	OnTrans *etree.Element

	// Element is the underlying document element.
	Element *etree.Element
}
