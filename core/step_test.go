package core

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"github.com/statechart/scxml/chart"
	"github.com/statechart/scxml/match"
)

// testCallbacks is a minimal host: slice queues, literal guards, and
// a record of everything the engine asked for.
type testCallbacks struct {
	internal []*Event
	external []*Event

	// conds maps guard expressions to values; a missing guard is
	// false.
	conds map[string]bool

	// processed records executed blocks as "tag" or "tag:id".
	processed []string

	// dones records raised done events as "done.state.ID".
	dones []string

	mon Monitor
}

func (cb *testCallbacks) DequeueInternal() *Event {
	if len(cb.internal) == 0 {
		return nil
	}
	ev := cb.internal[0]
	cb.internal = cb.internal[1:]
	return ev
}

func (cb *testCallbacks) DequeueExternal(ctx context.Context, blocking bool) *Event {
	if len(cb.external) == 0 {
		return nil
	}
	ev := cb.external[0]
	cb.external = cb.external[1:]
	return ev
}

func (cb *testCallbacks) IsMatched(ev *Event, descriptor string) bool {
	return match.Match(ev.Name, descriptor)
}

func (cb *testCallbacks) IsTrue(expr string) bool {
	return cb.conds[expr]
}

func (cb *testCallbacks) Process(block *etree.Element) error {
	name := block.Tag
	if p := block.Parent(); p != nil {
		if id := chart.ID(p); id != "" {
			name += ":" + id
		}
	}
	cb.processed = append(cb.processed, name)
	return nil
}

func (cb *testCallbacks) InitData(data *etree.Element) error { return nil }

func (cb *testCallbacks) Invoke(inv *etree.Element) error   { return nil }
func (cb *testCallbacks) Uninvoke(inv *etree.Element) error { return nil }

func (cb *testCallbacks) RaiseDone(state *etree.Element, doneData *etree.Element) {
	name := "done.state." + chart.ID(state)
	cb.dones = append(cb.dones, name)
	cb.internal = append(cb.internal, &Event{Name: name})
}

func (cb *testCallbacks) Monitor() Monitor { return cb.mon }

func (cb *testCallbacks) send(name string) {
	cb.external = append(cb.external, &Event{Name: name})
}

// newTestEngine parses the chart, builds the engine, and consumes the
// Initialized step.
func newTestEngine(t *testing.T, src string) (*Engine, *testCallbacks) {
	t.Helper()

	doc, err := chart.Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}

	cb := &testCallbacks{
		conds: make(map[string]bool),
	}
	e := NewEngine(doc, cb)

	res, err := e.Step(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if res != Initialized {
		t.Fatalf("got %s, wanted Initialized", res)
	}

	return e, cb
}

// drain steps without blocking until the engine idles, finishes, or
// is cancelled, checking configuration legality at every step.
func drain(t *testing.T, e *Engine) StepResult {
	t.Helper()

	last := Initialized
	for i := 0; i < 100; i++ {
		res, err := e.Step(context.Background(), false)
		if err != nil {
			t.Fatal(err)
		}
		if err := e.LegalConfiguration(); err != nil && res != Finished && res != Cancelled {
			t.Fatal(err)
		}
		switch res {
		case Idle, Finished, Cancelled:
			return res
		}
		last = res
	}
	t.Fatalf("no fixpoint after 100 steps (last %s)", last)
	return last
}

func wantAtomic(t *testing.T, e *Engine, ids ...string) {
	t.Helper()
	got := e.ActiveAtomicIDs()
	if fmt.Sprint(got) != fmt.Sprint(ids) {
		t.Fatalf("configuration == %v, wanted %v (full: %v)", got, ids, e.ConfigurationIDs())
	}
}

func TestFlatToggle(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml initial="a">
  <state id="a">
    <transition event="t" target="b"/>
  </state>
  <state id="b"/>
</scxml>`)

	ctx := context.Background()

	if res, _ := e.Step(ctx, false); res != Microstepped {
		t.Fatalf("got %s, wanted Microstepped", res)
	}
	wantAtomic(t, e, "a")
	if res, _ := e.Step(ctx, false); res != Macrostepped {
		t.Fatalf("got %s, wanted Macrostepped", res)
	}

	cb.send("t")
	if res := drain(t, e); res != Idle {
		t.Fatalf("got %s, wanted Idle", res)
	}
	wantAtomic(t, e, "b")

	if !e.IsInState("b") || e.IsInState("a") {
		t.Fatal("IsInState disagrees with the configuration")
	}

	// An unmatched event consumes a macro-step but changes
	// nothing.
	cb.send("nobody.cares")
	drain(t, e)
	wantAtomic(t, e, "b")
}

func TestCompoundInitialAttribute(t *testing.T) {
	e, _ := newTestEngine(t, `
<scxml initial="p">
  <state id="p" initial="p2">
    <state id="p1"/>
    <state id="p2"/>
  </state>
</scxml>`)

	drain(t, e)
	wantAtomic(t, e, "p2")
	if !e.IsInState("p") {
		t.Fatal("p should be active")
	}
}

func TestInitialElement(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml>
  <state id="p">
    <initial>
      <transition target="p2"/>
    </initial>
    <state id="p1"/>
    <state id="p2"/>
  </state>
</scxml>`)

	drain(t, e)
	wantAtomic(t, e, "p2")

	// The initial pseudo-state itself must never be active.
	for _, el := range e.Configuration() {
		if e.idx.Doc.IsInitial(el) {
			t.Fatal("initial pseudo-state in configuration")
		}
	}
	_ = cb
}

func TestParallelDone(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml>
  <parallel id="P">
    <state id="A" initial="a1">
      <state id="a1">
        <transition event="e" target="Af"/>
      </state>
      <final id="Af"/>
    </state>
  </parallel>
</scxml>`)

	drain(t, e)
	wantAtomic(t, e, "a1")

	cb.send("e")
	drain(t, e)
	wantAtomic(t, e, "Af")

	want := []string{"done.state.A", "done.state.P"}
	if fmt.Sprint(cb.dones) != fmt.Sprint(want) {
		t.Fatalf("dones == %v, wanted %v", cb.dones, want)
	}
}

func TestParallelDoneTwoRegions(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml>
  <parallel id="P">
    <state id="A">
      <state id="a1">
        <transition event="ea" target="af"/>
      </state>
      <final id="af"/>
    </state>
    <state id="B">
      <state id="b1">
        <transition event="eb" target="bf"/>
      </state>
      <final id="bf"/>
    </state>
  </parallel>
</scxml>`)

	drain(t, e)
	wantAtomic(t, e, "a1", "b1")

	cb.send("ea")
	drain(t, e)
	wantAtomic(t, e, "af", "b1")

	// Only one region is final: no done for P yet.
	for _, d := range cb.dones {
		if d == "done.state.P" {
			t.Fatal("premature done.state.P")
		}
	}

	cb.send("eb")
	drain(t, e)
	wantAtomic(t, e, "af", "bf")

	count := 0
	for _, d := range cb.dones {
		if d == "done.state.P" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("done.state.P raised %d times, wanted exactly once (%v)", count, cb.dones)
	}
}

func TestTopLevelFinal(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml initial="a">
  <state id="a">
    <transition event="quit" target="end"/>
    <onexit><log label="bye"/></onexit>
  </state>
  <final id="end"/>
</scxml>`)

	drain(t, e)
	cb.send("quit")

	if res := drain(t, e); res != Finished {
		t.Fatalf("got %s, wanted Finished", res)
	}

	// Entering a final child of the root raises no done event.
	if 0 < len(cb.dones) {
		t.Fatalf("unexpected dones %v", cb.dones)
	}

	// After Finished, Step keeps answering Finished.
	for i := 0; i < 3; i++ {
		if res, _ := e.Step(context.Background(), false); res != Finished {
			t.Fatalf("got %s, wanted Finished", res)
		}
	}

	// The exit phase ran a's onexit handler on the way out.
	found := false
	for _, p := range cb.processed {
		if p == "onexit:a" {
			found = true
		}
	}
	if !found {
		t.Fatalf("onexit not processed: %v", cb.processed)
	}
}

func TestShallowHistory(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml initial="C">
  <state id="C" initial="c1">
    <history id="h">
      <transition target="c1"/>
    </history>
    <state id="c1">
      <transition event="next" target="c2"/>
    </state>
    <state id="c2"/>
    <transition event="out" target="elsewhere"/>
  </state>
  <state id="elsewhere">
    <transition event="back" target="h"/>
  </state>
</scxml>`)

	drain(t, e)
	wantAtomic(t, e, "c1")

	cb.send("next")
	drain(t, e)
	wantAtomic(t, e, "c2")

	cb.send("out")
	drain(t, e)
	wantAtomic(t, e, "elsewhere")

	cb.send("back")
	drain(t, e)
	wantAtomic(t, e, "c2")
}

func TestHistoryDefault(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml initial="start">
  <state id="start">
    <transition event="go" target="h"/>
  </state>
  <state id="C" initial="c1">
    <history id="h">
      <transition target="c2"/>
    </history>
    <state id="c1"/>
    <state id="c2"/>
  </state>
</scxml>`)

	drain(t, e)
	wantAtomic(t, e, "start")

	// Nothing recorded yet: the history's default transition
	// applies (targeting c2, not C's initial c1).
	cb.send("go")
	drain(t, e)
	wantAtomic(t, e, "c2")
}

func TestDeepHistory(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml initial="C">
  <state id="C" initial="c1">
    <history id="h" type="deep">
      <transition target="c1"/>
    </history>
    <state id="c1">
      <transition event="dive" target="c2"/>
    </state>
    <state id="c2" initial="x1">
      <state id="x1">
        <transition event="next" target="x2"/>
      </state>
      <state id="x2"/>
    </state>
    <transition event="out" target="elsewhere"/>
  </state>
  <state id="elsewhere">
    <transition event="back" target="h"/>
  </state>
</scxml>`)

	drain(t, e)
	cb.send("dive")
	drain(t, e)
	wantAtomic(t, e, "x1")

	cb.send("next")
	drain(t, e)
	wantAtomic(t, e, "x2")

	cb.send("out")
	drain(t, e)
	wantAtomic(t, e, "elsewhere")

	// Deep history restores the whole nested configuration.
	cb.send("back")
	drain(t, e)
	wantAtomic(t, e, "x2")
	if !e.IsInState("C") || !e.IsInState("c2") {
		t.Fatalf("got %v, wanted C and c2 restored", e.ConfigurationIDs())
	}
}

func TestConflictTiebreak(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml>
  <parallel id="P">
    <state id="A">
      <state id="a1">
        <transition event="e" target="winner"/>
      </state>
    </state>
    <state id="B">
      <state id="b1">
        <transition event="e" target="loser"/>
      </state>
    </state>
  </parallel>
  <state id="winner"/>
  <state id="loser"/>
</scxml>`)

	drain(t, e)
	wantAtomic(t, e, "a1", "b1")

	// Both transitions are enabled on "e" and conflict (their
	// exit sets overlap at P).  The one declared earlier wins.
	cb.send("e")
	drain(t, e)
	wantAtomic(t, e, "winner")
}

func TestDocumentOrderPriorityWithinState(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml initial="a">
  <state id="a">
    <transition event="e" target="first"/>
    <transition event="e" target="second"/>
  </state>
  <state id="first"/>
  <state id="second"/>
</scxml>`)

	drain(t, e)
	cb.send("e")
	drain(t, e)
	wantAtomic(t, e, "first")
}

func TestChildPriorityOverAncestor(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml initial="outer">
  <state id="outer" initial="inner">
    <transition event="e" target="viaOuter"/>
    <state id="inner">
      <transition event="e" target="viaInner"/>
    </state>
  </state>
  <state id="viaOuter"/>
  <state id="viaInner"/>
</scxml>`)

	drain(t, e)
	cb.send("e")
	drain(t, e)

	// Post-order numbering gives the nested transition the lower
	// index, so the child preempts its ancestor.
	wantAtomic(t, e, "viaInner")
}

func TestGuards(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml initial="a">
  <state id="a">
    <transition event="e" cond="no" target="b"/>
    <transition event="e" cond="yes" target="c"/>
  </state>
  <state id="b"/>
  <state id="c"/>
</scxml>`)

	cb.conds["yes"] = true

	drain(t, e)
	cb.send("e")
	drain(t, e)
	wantAtomic(t, e, "c")
}

func TestSpontaneousChain(t *testing.T) {
	e, _ := newTestEngine(t, `
<scxml initial="a">
  <state id="a">
    <transition target="b"/>
  </state>
  <state id="b">
    <transition target="c"/>
  </state>
  <state id="c"/>
</scxml>`)

	drain(t, e)
	wantAtomic(t, e, "c")
}

func TestTargetlessTransition(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml initial="a">
  <state id="a">
    <transition event="ping">
      <log label="pong"/>
    </transition>
  </state>
</scxml>`)

	drain(t, e)
	cb.send("ping")
	drain(t, e)

	// The transition ran its content but exited and entered
	// nothing.
	wantAtomic(t, e, "a")
	found := false
	for _, p := range cb.processed {
		if strings.HasPrefix(p, "transition") {
			found = true
		}
	}
	if !found {
		t.Fatalf("transition content not processed: %v", cb.processed)
	}
}

func TestInternalTransition(t *testing.T) {
	src := `
<scxml initial="C">
  <state id="C" initial="c1">
    <onexit><log label="leaving"/></onexit>
    <transition event="e" type="%s" target="c2"/>
    <state id="c1"/>
    <state id="c2"/>
  </state>
</scxml>`

	// An internal transition must not exit its compound source.
	e, cb := newTestEngine(t, fmt.Sprintf(src, "internal"))
	drain(t, e)
	cb.send("e")
	drain(t, e)
	wantAtomic(t, e, "c2")
	for _, p := range cb.processed {
		if p == "onexit:C" {
			t.Fatalf("internal transition exited its source: %v", cb.processed)
		}
	}

	// The same transition, external: the source exits.
	e, cb = newTestEngine(t, fmt.Sprintf(src, "external"))
	drain(t, e)
	cb.send("e")
	drain(t, e)
	wantAtomic(t, e, "c2")
	found := false
	for _, p := range cb.processed {
		if p == "onexit:C" {
			found = true
		}
	}
	if !found {
		t.Fatalf("external transition kept its source: %v", cb.processed)
	}
}

func TestDeterminism(t *testing.T) {
	src := `
<scxml initial="a">
  <state id="a">
    <transition event="x" target="b"/>
    <transition event="y" target="c"/>
  </state>
  <state id="b">
    <transition event="x" target="c"/>
  </state>
  <state id="c">
    <transition event="y" target="a"/>
  </state>
</scxml>`
	events := []string{"x", "y", "x", "x", "y", "y", "x"}

	run := func() []string {
		e, cb := newTestEngine(t, src)
		drain(t, e)
		var trace []string
		for _, ev := range events {
			cb.send(ev)
			drain(t, e)
			trace = append(trace, fmt.Sprint(e.ConfigurationIDs()))
		}
		return trace
	}

	a, b := run(), run()
	if fmt.Sprint(a) != fmt.Sprint(b) {
		t.Fatalf("traces differ:\n%v\n%v", a, b)
	}
}

func TestResetReproducesTrace(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml initial="a">
  <state id="a">
    <transition event="t" target="b"/>
  </state>
  <state id="b">
    <transition event="t" target="a"/>
  </state>
</scxml>`)

	run := func() []string {
		var trace []string
		drain(t, e)
		for _, ev := range []string{"t", "t", "t"} {
			cb.send(ev)
			drain(t, e)
			trace = append(trace, fmt.Sprint(e.ConfigurationIDs()))
		}
		return trace
	}

	first := run()
	e.Reset()
	second := run()

	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Fatalf("traces differ after reset:\n%v\n%v", first, second)
	}
}

func TestCancel(t *testing.T) {
	e, _ := newTestEngine(t, `
<scxml initial="a">
  <state id="a"/>
</scxml>`)

	drain(t, e)
	e.Cancel()

	ctx := context.Background()

	// Cancellation is observed at the external-dequeue point.
	res, err := e.Step(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res != Cancelled {
		t.Fatalf("got %s, wanted Cancelled", res)
	}

	// The next step unwinds.
	if res, _ = e.Step(ctx, false); res != Finished {
		t.Fatalf("got %s, wanted Finished", res)
	}
}

func TestDoneEventTriggers(t *testing.T) {
	// A done.state event raised for a compound's final child can
	// itself trigger a transition.
	e, cb := newTestEngine(t, `
<scxml initial="C">
  <state id="C" initial="c1">
    <state id="c1">
      <transition event="finish" target="cf"/>
    </state>
    <final id="cf"/>
    <transition event="done.state.C" target="after"/>
  </state>
  <state id="after"/>
</scxml>`)

	drain(t, e)
	cb.send("finish")
	drain(t, e)
	wantAtomic(t, e, "after")
}

func TestDataInitializedOnce(t *testing.T) {
	e, cb := newTestEngine(t, `
<scxml binding="late" initial="a">
  <state id="a">
    <datamodel><data id="x" expr="1"/></datamodel>
    <transition event="t" target="b"/>
  </state>
  <state id="b">
    <transition event="t" target="a"/>
  </state>
</scxml>`)

	drain(t, e)
	if !e.initializedData.Test(uint(e.idx.StateIDs["a"])) {
		t.Fatal("a's data not initialized")
	}
	before := e.initializedData.Count()

	cb.send("t")
	drain(t, e)
	cb.send("t")
	drain(t, e)
	wantAtomic(t, e, "a")

	after := e.initializedData.Count()
	if after < before {
		t.Fatal("initializedData must be monotonic")
	}
}

func TestStaticExitSetContainment(t *testing.T) {
	e, _ := newTestEngine(t, `
<scxml initial="C">
  <state id="C" initial="c1">
    <state id="c1">
      <transition event="e" target="c2"/>
    </state>
    <state id="c2"/>
    <transition event="out" target="D"/>
  </state>
  <state id="D"/>
</scxml>`)

	// A transition's exit set stays within the descendants of the
	// source's ancestors.
	for _, tr := range e.idx.Transitions {
		src := e.idx.States[tr.Source]
		allowed := src.Ancestors.Clone()
		for a, ok := src.Ancestors.NextSet(0); ok; a, ok = src.Ancestors.NextSet(a + 1) {
			allowed.InPlaceUnion(e.idx.States[a].Children)
		}
		if !allowed.IsSuperSet(tr.ExitSet) {
			t.Fatalf("exit set of transition %d escapes its source's ancestry", tr.Index)
		}
	}
}
