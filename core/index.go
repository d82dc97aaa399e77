package core

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/bits-and-blooms/bitset"

	"github.com/statechart/scxml/chart"
)

// Index is the precomputed structure of one chart: dense state and
// transition arrays with all relations as bit-sets.  An Index is
// built once and is immutable afterwards; several engines could share
// one, though an engine normally builds its own.
type Index struct {
	// Doc is the source document (borrowed, read-only after the
	// build).
	Doc *chart.Document

	// States holds the state records in document order, root
	// first.
	States []*State

	// Transitions holds the transition records in post-order.
	Transitions []*Transition

	// StateIDs maps id attributes to state indices.
	StateIDs map[string]int

	// Issues collects chart problems found during the build
	// (multiple history defaults, unresolved targets, duplicate
	// ids).  The engine forwards them to the monitor on init.
	Issues []Issue

	stateOf map[*etree.Element]int
}

// NewIndex builds the index for the given document.
//
// The build reorders each element's children (initials first, then
// deep histories, then shallow histories) before numbering; the
// reorder is structural only and makes the document-order index visit
// entry points before their siblings.
func NewIndex(doc *chart.Document) (*Index, error) {
	if doc == nil {
		return nil, NoDocument
	}

	x := &Index{
		Doc:      doc,
		StateIDs: make(map[string]int),
		stateOf:  make(map[*etree.Element]int),
	}

	resortChildren(doc, doc.Root)

	els := doc.InDocumentOrder("state", "parallel", "scxml", "initial", "final", "history")
	if len(els) == 0 {
		return nil, NoStates
	}

	n := uint(len(els))
	x.States = make([]*State, len(els))
	for i, el := range els {
		s := &State{
			DocumentOrder: i,
			Element:       el,
			Ancestors:     bitset.New(n),
			Children:      bitset.New(n),
			Completion:    bitset.New(n),
		}
		x.States[i] = s
		x.stateOf[el] = i
	}

	for i, s := range x.States {
		if id := s.ID(); id != "" {
			if prev, have := x.StateIDs[id]; have {
				x.warn("duplicate state id \""+id+"\"", x.States[prev], nil)
			}
			x.StateIDs[id] = i
		}
	}

	x.collectContent()

	for _, s := range x.States {
		x.classify(s)
	}

	for _, s := range x.States {
		x.complete(s)
		x.relate(s)
	}

	x.collectTransitions()

	return x, nil
}

// NumStates returns the number of state records.
func (x *Index) NumStates() int { return len(x.States) }

// NumTransitions returns the number of transition records.
func (x *Index) NumTransitions() int { return len(x.Transitions) }

// StateByElement returns the state record for a document element.
func (x *Index) StateByElement(el *etree.Element) (*State, bool) {
	i, have := x.stateOf[el]
	if !have {
		return nil, false
	}
	return x.States[i], true
}

func (x *Index) warn(msg string, s *State, t *Transition) {
	x.Issues = append(x.Issues, Issue{
		Kind:       IssueWarning,
		Message:    msg,
		State:      s,
		Transition: t,
	})
}

// resortChildren recursively reorders every element's children to
// place, at the front and in this order: initial elements, deep
// histories, shallow histories.  Everything else keeps its relative
// order.
func resortChildren(doc *chart.Document, el *etree.Element) {
	for _, c := range el.ChildElements() {
		resortChildren(doc, c)
	}

	var initials, deeps, shallows []*etree.Element
	for _, c := range el.ChildElements() {
		switch {
		case doc.IsInitial(c):
			initials = append(initials, c)
		case doc.IsDeepHistory(c):
			deeps = append(deeps, c)
		case doc.IsHistory(c):
			shallows = append(shallows, c)
		}
	}
	if len(initials) == 0 && len(deeps) == 0 && len(shallows) == 0 {
		return
	}

	chart.MoveToFront(el, shallows)
	chart.MoveToFront(el, deeps)
	chart.MoveToFront(el, initials)
}

// collectContent gathers each state's executable content, invokes,
// data, and done-data.
func (x *Index) collectContent() {
	doc := x.Doc

	for i, s := range x.States {
		s.OnEntry = doc.ChildElements(s.Element, "onentry")
		s.OnExit = doc.ChildElements(s.Element, "onexit")
		s.Invoke = doc.ChildElements(s.Element, "invoke")

		if i == 0 {
			// Global scripts act as onentry of <scxml>.
			s.OnEntry = doc.ChildElements(s.Element, "script")
		}

		if dds := doc.ChildElements(s.Element, "donedata"); 0 < len(dds) {
			s.DoneData = dds[0]
		}

		if doc.Binding == chart.BindingLate {
			for _, dm := range doc.ChildElements(s.Element, "datamodel") {
				s.Data = append(s.Data, doc.ChildElements(dm, "data")...)
			}
		}
	}

	if doc.Binding == chart.BindingEarly {
		// All data elements belong to the root state.
		root := x.States[0]
		var gather func(el *etree.Element)
		gather = func(el *etree.Element) {
			if doc.Is(el, "datamodel") && !doc.InEmbeddedDocument(el) {
				root.Data = append(root.Data, doc.ChildElements(el, "data")...)
				return
			}
			for _, c := range el.ChildElements() {
				gather(c)
			}
		}
		gather(doc.Root)
	}
}

// classify assigns the state's kind and, for container states, the
// has-history flag.
func (x *Index) classify(s *State) {
	doc := x.Doc
	el := s.Element

	switch {
	case doc.IsInitial(el):
		s.Kind = Initial
	case doc.IsFinal(el):
		s.Kind = Final
	case doc.IsDeepHistory(el):
		s.Kind = HistoryDeep
	case doc.IsHistory(el):
		s.Kind = HistoryShallow
	case doc.IsParallel(el):
		s.Kind = Parallel
	case doc.IsAtomic(el):
		s.Kind = Atomic
	default:
		// Compound states and the <scxml> root.
		s.Kind = Compound
	}
}

// complete establishes the state's completion set and has-history
// flag.
func (x *Index) complete(s *State) {
	doc := x.Doc
	el := s.Element

	switch {
	case s.Kind.History():
		parent := el.Parent()
		deep := s.Kind == HistoryDeep
		for j, other := range x.States {
			if other == s {
				continue
			}
			within := chart.IsDescendant(other.Element, parent)
			if within && other.Kind.History() {
				// A nested history in this history's
				// region.
				s.HasHistoryChild = true
			}
			if other.Kind.History() {
				continue
			}
			if deep {
				if within {
					s.Completion.Set(uint(j))
				}
			} else if other.Element.Parent() == parent {
				s.Completion.Set(uint(j))
			}
		}

	case s.Kind == Parallel:
		for _, c := range doc.ChildStates(el) {
			s.Completion.Set(uint(x.stateOf[c]))
		}

	case chart.HasAttr(el, "initial"):
		for _, id := range strings.Fields(chart.Attr(el, "initial")) {
			if j, have := x.StateIDs[id]; have {
				s.Completion.Set(uint(j))
			} else {
				x.warn("initial attribute names unknown state \""+id+"\"", s, nil)
			}
		}

	default:
		if inits := doc.ChildElements(el, "initial"); 0 < len(inits) {
			s.Completion.Set(uint(x.stateOf[inits[0]]))
		} else if kids := doc.ChildStates(el); 0 < len(kids) {
			s.Completion.Set(uint(x.stateOf[kids[0]]))
		}
	}

	if !s.Kind.Pseudo() {
		for _, c := range el.ChildElements() {
			if doc.IsHistory(c) {
				s.HasHistoryChild = true
				break
			}
		}
	}
}

// relate establishes the state's parent, ancestors, and descendants.
func (x *Index) relate(s *State) {
	i := s.DocumentOrder
	s.Parent = i // the root is its own parent

	first := true
	for p := s.Element.Parent(); p != nil; p = p.Parent() {
		j, have := x.stateOf[p]
		if !have {
			break
		}
		if first {
			s.Parent = j
			first = false
		}
		s.Ancestors.Set(uint(j))
		x.States[j].Children.Set(uint(i))
	}
}

// collectTransitions numbers the transitions in post-order and
// computes their targets, exit sets, conflicts, and flags.
func (x *Index) collectTransitions() {
	doc := x.Doc

	els := doc.InPostOrder("transition")
	n := uint(len(x.States))
	tn := uint(len(els))

	x.Transitions = make([]*Transition, len(els))
	for i, el := range els {
		t := &Transition{
			Index:     i,
			Element:   el,
			Target:    bitset.New(n),
			ExitSet:   bitset.New(n),
			Conflicts: bitset.New(tn),
		}
		x.Transitions[i] = t

		if src, have := x.stateOf[el.Parent()]; have {
			t.Source = src
		}

		if !chart.HasAttr(el, "target") {
			t.Flags |= TransTargetless
		}
		for _, id := range strings.Fields(chart.Attr(el, "target")) {
			if j, have := x.StateIDs[id]; have {
				t.Target.Set(uint(j))
			} else {
				x.warn((&UnknownTransitionTarget{t, id}).Error(), nil, t)
			}
		}

		if strings.EqualFold(chart.Attr(el, "type"), "internal") {
			t.Flags |= TransInternal
		}
		if !chart.HasAttr(el, "event") {
			t.Flags |= TransSpontaneous
		}
		if doc.IsHistory(el.Parent()) {
			t.Flags |= TransHistory
		}
		if doc.IsInitial(el.Parent()) {
			t.Flags |= TransInitial
		}

		t.Event = chart.Attr(el, "event")
		t.Cond = chart.Attr(el, "cond")

		if 0 < len(el.ChildElements()) {
			t.OnTrans = el
		}
	}

	for _, t := range x.Transitions {
		x.computeExitSet(t)
	}

	for _, t := range x.Transitions {
		for j, u := range x.Transitions {
			if x.conflicts(t, u) {
				t.Conflicts.Set(uint(j))
			}
		}
	}

	// SCXML mandates exactly one transition per history state.
	for i, s := range x.States {
		if !s.Kind.History() {
			continue
		}
		count := 0
		for _, t := range x.Transitions {
			if t.Source == i {
				count++
			}
		}
		switch count {
		case 1:
		case 0:
			x.warn("history state has no default transition", s, nil)
		default:
			x.warn("history state has multiple default transitions; first in document order wins", s, nil)
		}
	}
}

// computeExitSet fills in the transition's static exit set: every
// descendant of the transition's domain.  The runtime intersects it
// with the configuration.
func (x *Index) computeExitSet(t *Transition) {
	if t.Target.None() {
		return
	}
	domain := x.transitionDomain(t)
	t.ExitSet.InPlaceUnion(x.States[domain].Children)
}

// transitionDomain returns the index of the transition's domain: the
// source itself for an internal transition whose targets all lie
// within the compound source, otherwise the least common compound
// ancestor of source and targets.
func (x *Index) transitionDomain(t *Transition) int {
	src := x.States[t.Source]

	if t.Flags&TransInternal != 0 && src.Kind == Compound && src.Children.IsSuperSet(t.Target) {
		return t.Source
	}

	common := src.Ancestors.Clone()
	for j, ok := t.Target.NextSet(0); ok; j, ok = t.Target.NextSet(j + 1) {
		common.InPlaceIntersection(x.States[j].Ancestors)
	}

	// The deepest common ancestor that is a compound state (the
	// root counts).  Ancestors form a chain, so the highest index
	// wins.
	for i := len(x.States) - 1; 0 <= i; i-- {
		if common.Test(uint(i)) && x.States[i].Kind == Compound {
			return i
		}
	}
	return 0
}

// conflicts reports whether two transitions cannot fire in the same
// micro-step: their exit sets overlap, or one's source is the other's
// source or its descendant.
func (x *Index) conflicts(t, u *Transition) bool {
	if t.Source == u.Source {
		return true
	}
	if x.States[t.Source].Ancestors.Test(uint(u.Source)) {
		return true
	}
	if x.States[u.Source].Ancestors.Test(uint(t.Source)) {
		return true
	}
	return 0 < t.ExitSet.IntersectionCardinality(u.ExitSet)
}
