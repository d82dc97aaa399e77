package core

import (
	"context"

	"github.com/beevik/etree"
)

// Callbacks is the contract between the engine and its environment:
// event queues, the datamodel, executable content, and invokers.
//
// Every method is expected to return promptly.  The only call that
// may block is DequeueExternal with blocking true.  Errors returned
// by Process, InitData, and Invoke are discarded by the engine; the
// implementation is expected to raise an "error.execution" event on
// the internal queue itself if the chart should see the failure.
type Callbacks interface {
	// DequeueInternal returns the next internal event or nil.
	DequeueInternal() *Event

	// DequeueExternal returns the next external event or nil.
	// With blocking true it waits for an event; it may still
	// return nil to unblock (cancellation, queue kick).
	DequeueExternal(ctx context.Context, blocking bool) *Event

	// IsMatched reports whether the event matches the transition's
	// event descriptor(s).
	IsMatched(ev *Event, descriptor string) bool

	// IsTrue evaluates a guard expression.  An evaluation failure
	// is a false guard.
	IsTrue(expr string) bool

	// Process executes an executable-content container (onentry,
	// onexit, transition, script).
	Process(block *etree.Element) error

	// InitData evaluates one <data> element.
	InitData(data *etree.Element) error

	// Invoke starts the given <invoke>.
	Invoke(inv *etree.Element) error

	// Uninvoke cancels the given <invoke>.
	Uninvoke(inv *etree.Element) error

	// RaiseDone enqueues a done.state.ID event for the given state
	// internally.  doneData may be nil.
	RaiseDone(state *etree.Element, doneData *etree.Element)

	// Monitor returns the observation sink, which may be nil.
	Monitor() Monitor
}
