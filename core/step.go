package core

import (
	"context"

	"github.com/bits-and-blooms/bitset"
)

// Step advances the chart by at most one micro-step.
//
// Each call performs exactly one of: build the index (Initialized),
// unwind after a top-level final (Finished), bootstrap the initial
// configuration or fire one set of non-conflicting transitions
// (Microstepped), observe that no spontaneous transition remains
// (Macrostepped), wait for an external event (Idle), or observe
// cancellation (Cancelled).
//
// blocking controls only the external dequeue: with blocking true the
// call waits there for an event.
//
// The phase structure (and in particular the ordering of monitor
// hooks) is a public contract: select, record history, close the
// entry set, exit in reverse document order, take transitions, enter
// in document order.
func (e *Engine) Step(ctx context.Context, blocking bool) (StepResult, error) {
	if e.idx == nil {
		if err := e.Init(); err != nil {
			return Initialized, err
		}
		return Initialized, nil
	}

	nStates := uint(len(e.idx.States))
	nTrans := uint(len(e.idx.Transitions))

	var (
		exitSet   = bitset.New(nStates)
		entrySet  = bitset.New(nStates)
		targetSet = bitset.New(nStates)
		tmpStates = bitset.New(nStates)

		conflicts = bitset.New(nTrans)
		transSet  = bitset.New(nTrans)

		mon = e.monitor()
	)

	if e.flags&flagFinished != 0 {
		return Finished, nil
	}

	if e.flags&flagTopLevelFinal != 0 {
		return e.unwind(mon), nil
	}

	pristine := e.flags == flagPristine
	if pristine {
		// Entry bootstrap: enter the root's completion.
		targetSet.InPlaceUnion(e.idx.States[0].Completion)
		e.flags |= flagSpontaneous | flagInitialized
		if mon != nil {
			mon.BeforeMicroStep()
		}
	} else {
		switch res := e.nextEvent(ctx, blocking, mon); res {
		case Cancelled, Idle:
			return res, nil
		}

		// Select transitions.  We read an event (or run on the
		// null event), so stability must be signalled again
		// later.
		e.flags &^= flagStable

		for i, t := range e.idx.Transitions {
			// Never select history or initial transitions
			// automatically.
			if t.Flags&(TransHistory|TransInitial) != 0 {
				continue
			}
			if !e.configuration.Test(uint(t.Source)) {
				continue
			}
			if conflicts.Test(uint(i)) {
				continue
			}
			// Spontaneous transitions run only on the null
			// event, triggered ones only on a real event.
			if (t.Event == "") != (e.event == nil) {
				continue
			}
			if e.event != nil && !e.cb.IsMatched(e.event, t.Event) {
				continue
			}
			if t.Cond != "" && !e.cb.IsTrue(t.Cond) {
				continue
			}

			e.flags |= flagTransitionFound
			conflicts.InPlaceUnion(t.Conflicts)
			targetSet.InPlaceUnion(t.Target)
			exitSet.InPlaceUnion(t.ExitSet)
			transSet.Set(uint(i))
		}

		exitSet.InPlaceIntersection(e.configuration)

		if e.flags&flagTransitionFound != 0 {
			// Keep going: more spontaneous transitions may
			// be enabled after this micro-step.
			e.flags |= flagSpontaneous
			e.flags &^= flagTransitionFound
		} else {
			e.flags &^= flagSpontaneous
			return Macrostepped, nil
		}

		if mon != nil {
			mon.BeforeMicroStep()
		}

		// Record history for each history state whose parent is
		// about to be exited.
		for _, s := range e.idx.States {
			if !s.Kind.History() {
				continue
			}
			if !exitSet.Test(uint(s.Parent)) {
				continue
			}
			tmpStates.ClearAll()
			tmpStates.InPlaceUnion(s.Completion)
			tmpStates.InPlaceIntersection(e.configuration)
			e.history.InPlaceDifference(s.Completion)
			e.history.InPlaceUnion(tmpStates)
		}
	}

	e.establishEntrySet(entrySet, targetSet, exitSet, transSet)
	e.exitStates(exitSet, mon)
	e.takeTransitions(transSet, mon)
	e.enterStates(entrySet, transSet, tmpStates, mon)

	if mon != nil {
		mon.AfterMicroStep()
	}

	key := configKey(e.configuration)
	if e.seen[key] && mon != nil {
		mon.ReportIssue(Issue{
			Kind:    IssueWarning,
			Message: "Reentering same configuration during microstep - possible endless loop",
		})
	}
	e.seen[key] = true

	return Microstepped, nil
}

// unwind runs the terminal phase after a top-level final state was
// entered: onExit of every active state in reverse document order,
// then cancellation of every live invocation.  The configuration is
// left intact so that it can still be inspected after Finished.
func (e *Engine) unwind(mon Monitor) StepResult {
	if mon != nil {
		mon.BeforeCompletion()
	}

	for i := len(e.idx.States) - 1; 0 <= i; i-- {
		s := e.idx.States[i]
		if e.configuration.Test(uint(i)) {
			for _, block := range s.OnExit {
				// Discard failures; the Callbacks
				// implementation raises error.execution
				// if the chart should hear about it, but
				// nobody is listening anymore.
				_ = e.cb.Process(block)
			}
		}
		if e.invocations.Test(uint(i)) {
			for _, inv := range s.Invoke {
				_ = e.cb.Uninvoke(inv)
			}
			e.invocations.Clear(uint(i))
		}
	}

	e.flags |= flagFinished

	if mon != nil {
		mon.AfterCompletion()
	}

	return Finished
}

// nextEvent determines what the coming selection runs on: the null
// event while spontaneous transitions remain, else an internal event,
// else (after syncing invocations and signalling stability) an
// external event.  Returns Microstepped to proceed to selection,
// Cancelled, or Idle.
func (e *Engine) nextEvent(ctx context.Context, blocking bool, mon Monitor) StepResult {
	if e.flags&flagSpontaneous != 0 {
		e.event = nil
		return Microstepped
	}

	if ev := e.cb.DequeueInternal(); ev != nil {
		e.event = ev
		if mon != nil {
			mon.BeforeProcessingEvent(ev)
		}
		return Microstepped
	}

	// Manage invocations only here: the macro-step is over, so
	// invokers are not torn down mid-run.
	for i, s := range e.idx.States {
		active := e.configuration.Test(uint(i))
		invoked := e.invocations.Test(uint(i))
		if !active && invoked {
			for _, inv := range s.Invoke {
				_ = e.cb.Uninvoke(inv)
			}
			e.invocations.Clear(uint(i))
		}
		if active && !invoked {
			for _, inv := range s.Invoke {
				// Invoker trouble is the host's concern.
				_ = e.cb.Invoke(inv)
			}
			e.invocations.Set(uint(i))
		}
	}

	// All internal events are gone: signal the stable
	// configuration once.
	if e.flags&flagStable == 0 {
		if mon != nil {
			mon.OnStableConfiguration()
		}
		e.seen = make(map[string]bool)
		e.flags |= flagStable
	}

	if ev := e.cb.DequeueExternal(ctx, blocking); ev != nil {
		e.event = ev
		if mon != nil {
			mon.BeforeProcessingEvent(ev)
		}
		return Microstepped
	}

	if e.cancelled {
		// Finalize on the next step.
		e.flags |= flagTopLevelFinal
		return Cancelled
	}

	return Idle
}

// establishEntrySet closes the target set into the full entry set:
// first every target's ancestors, then, walking by ascending index
// (children always follow parents), each state's required
// descendants.
func (e *Engine) establishEntrySet(entrySet, targetSet, exitSet, transSet *bitset.BitSet) {
	entrySet.InPlaceUnion(targetSet)

	for i, ok := entrySet.NextSet(0); ok; i, ok = entrySet.NextSet(i + 1) {
		entrySet.InPlaceUnion(e.idx.States[i].Ancestors)
	}

	for i, ok := entrySet.NextSet(0); ok; i, ok = entrySet.NextSet(i + 1) {
		s := e.idx.States[i]

		switch s.Kind {
		case Atomic, Final:
			// Nothing below.

		case Parallel:
			entrySet.InPlaceUnion(s.Completion)

		case HistoryShallow, HistoryDeep:
			e.enterHistory(s, entrySet, transSet)

		case Initial:
			// The initial transition stands in for the
			// pseudo-state.
			for j, t := range e.idx.Transitions {
				if t.Source != int(i) {
					continue
				}
				transSet.Set(uint(j))
				entrySet.Clear(i)
				entrySet.InPlaceUnion(t.Target)
				for k, ok2 := t.Target.NextSet(0); ok2; k, ok2 = t.Target.NextSet(k + 1) {
					entrySet.InPlaceUnion(e.idx.States[k].Ancestors)
				}
			}

		case Compound:
			// Complete only when no child is coming in
			// already and no child stays active.
			if 0 < entrySet.IntersectionCardinality(s.Children) {
				break
			}
			active := 0 < e.configuration.IntersectionCardinality(s.Children)
			leaving := 0 < exitSet.IntersectionCardinality(s.Children)
			if active && !leaving {
				break
			}
			entrySet.InPlaceUnion(s.Completion)

			// A completion that names a deep descendant
			// needs the chain of states in between.
			if j, ok2 := s.Completion.NextSet(0); ok2 && e.idx.States[j].Parent != int(i) {
				entrySet.InPlaceUnion(e.idx.States[j].Ancestors)
			}
		}
	}
}

// enterHistory expands a history pseudo-state in the entry set:
// either replay the stored history for its region or, with nothing
// stored and the parent inactive, fire the history's default
// transition.
func (e *Engine) enterHistory(s *State, entrySet, transSet *bitset.BitSet) {
	i := uint(s.DocumentOrder)

	stored := 0 < s.Completion.IntersectionCardinality(e.history)

	if !stored && !e.configuration.Test(uint(s.Parent)) {
		// SCXML mandates every history to have a default
		// transition; the index warned if not.
		for j, t := range e.idx.Transitions {
			if t.Source != s.DocumentOrder {
				continue
			}
			entrySet.InPlaceUnion(t.Target)
			if s.Kind == HistoryDeep && s.Children.IntersectionCardinality(t.Target) == 0 {
				// Deep defaults may point outside the
				// history's direct region.
				for k, ok := t.Target.NextSet(0); ok; k, ok = t.Target.NextSet(k + 1) {
					entrySet.InPlaceUnion(e.idx.States[k].Ancestors)
				}
			}
			transSet.Set(uint(j))
			break
		}
		return
	}

	replay := s.Completion.Intersection(e.history)
	entrySet.InPlaceUnion(replay)

	if s.Kind == HistoryDeep && s.HasHistoryChild {
		// A deep history whose region contains nested history
		// states: those must replay as well.
		n := uint(len(e.idx.States))
		for j := i + 1; j < n; j++ {
			if !s.Completion.Test(j) || !entrySet.Test(j) {
				continue
			}
			nested := e.idx.States[j]
			if !nested.HasHistoryChild {
				continue
			}
			for k := j + 1; k < n; k++ {
				if e.idx.States[k].Kind.History() && nested.Children.Test(k) {
					entrySet.Set(k)
				}
			}
		}
	}
}

// exitStates runs the exit phase in reverse document order.
func (e *Engine) exitStates(exitSet *bitset.BitSet, mon Monitor) {
	for i := len(e.idx.States) - 1; 0 <= i; i-- {
		if !exitSet.Test(uint(i)) || !e.configuration.Test(uint(i)) {
			continue
		}
		s := e.idx.States[i]

		if mon != nil {
			mon.BeforeExitingState(s)
		}
		for _, block := range s.OnExit {
			_ = e.cb.Process(block)
		}
		e.configuration.Clear(uint(i))
		if mon != nil {
			mon.AfterExitingState(s)
		}
	}
}

// takeTransitions runs the executable content of the selected
// transitions, in ascending (priority) order.  History and initial
// transitions run later, during entry of their parent.
func (e *Engine) takeTransitions(transSet *bitset.BitSet, mon Monitor) {
	for i, ok := transSet.NextSet(0); ok; i, ok = transSet.NextSet(i + 1) {
		t := e.idx.Transitions[i]
		if t.Flags&(TransHistory|TransInitial) != 0 {
			continue
		}
		if mon != nil {
			mon.BeforeTakingTransition(t)
		}
		if t.OnTrans != nil {
			_ = e.cb.Process(t.OnTrans)
		}
		if mon != nil {
			mon.AfterTakingTransition(t)
		}
	}
}

// enterStates runs the entry phase in document order: set the
// configuration bit, initialize data once, run onEntry, run any
// history/initial transition content owned by the state, and handle
// final-state completion.
func (e *Engine) enterStates(entrySet, transSet, tmpStates *bitset.BitSet, mon Monitor) {
	for i, ok := entrySet.NextSet(0); ok; i, ok = entrySet.NextSet(i + 1) {
		if e.configuration.Test(i) {
			continue
		}
		s := e.idx.States[i]
		if s.Kind.Pseudo() {
			continue
		}

		if mon != nil {
			mon.BeforeEnteringState(s)
		}

		e.configuration.Set(i)

		if !e.initializedData.Test(i) {
			for _, data := range s.Data {
				_ = e.cb.InitData(data)
			}
			e.initializedData.Set(i)
		}

		for _, block := range s.OnEntry {
			_ = e.cb.Process(block)
		}

		if mon != nil {
			mon.AfterEnteringState(s)
		}

		// History and initial transitions fire inside their
		// parent's entry.
		for j, t := range e.idx.Transitions {
			if !transSet.Test(uint(j)) {
				continue
			}
			if t.Flags&(TransHistory|TransInitial) == 0 {
				continue
			}
			if e.idx.States[t.Source].Parent != int(i) {
				continue
			}
			if mon != nil {
				mon.BeforeTakingTransition(t)
			}
			if t.OnTrans != nil {
				_ = e.cb.Process(t.OnTrans)
			}
			if mon != nil {
				mon.AfterTakingTransition(t)
			}
		}

		if s.Kind == Final {
			e.enterFinal(s, tmpStates)
		}
	}
}

// enterFinal handles completion semantics when a final state is
// entered: either the whole chart is done (a final child of the
// root), or the parent hears done.state.PARENT, and every ancestor
// parallel whose regions have all reached a final child hears its own
// done event.
func (e *Engine) enterFinal(s *State, tmpStates *bitset.BitSet) {
	if s.Ancestors.Count() == 1 && s.Ancestors.Test(0) {
		// Only the root above us.
		e.flags |= flagTopLevelFinal
	} else {
		parent := e.idx.States[s.Parent]
		e.cb.RaiseDone(parent.Element, s.DoneData)
	}

	for j, p := range e.idx.States {
		if p.Kind != Parallel || !s.Ancestors.Test(uint(j)) {
			continue
		}

		// Among the parallel's active descendants, fold each
		// final's ancestor chain below the parallel with
		// symmetric difference and OR in every non-final.  An
		// empty result means every region bottomed out in a
		// final state: a final's chain cancels exactly the
		// non-final containers above it.
		tmpStates.ClearAll()
		for k, ok := e.configuration.NextSet(0); ok; k, ok = e.configuration.NextSet(k + 1) {
			d := e.idx.States[k]
			if !d.Ancestors.Test(uint(j)) {
				continue
			}
			if d.Kind == Final {
				tmpStates.InPlaceSymmetricDifference(d.Ancestors.Intersection(p.Children))
			} else {
				tmpStates.Set(k)
			}
		}
		if tmpStates.None() {
			e.cb.RaiseDone(p.Element, p.DoneData)
		}
	}
}
