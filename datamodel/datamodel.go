// Package datamodel defines the contract between an engine's host
// and the expression language of a chart: guard evaluation, data
// initialization, and executable content.
//
// Implementations register themselves in DefaultMakers (see the goja
// and null subpackages), keyed by the name a chart would use in its
// datamodel attribute.
package datamodel

import (
	"errors"

	"github.com/beevik/etree"

	"github.com/statechart/scxml/chart"
	"github.com/statechart/scxml/core"
)

// Host is what a datamodel needs from its surroundings to give
// executable content (raise, send, log) somewhere to go.
type Host interface {
	// RaiseInternal enqueues an event on the internal queue.
	RaiseInternal(ev *core.Event)

	// SendExternal enqueues an event on the external queue (or
	// routes it to an external receiver).
	SendExternal(ev *core.Event)

	// Schedule arranges for the event to be sent later.  The spec
	// is either a duration ("5s", "1500ms") or a cron expression
	// for a repeating send.  external selects the destination
	// queue.
	Schedule(id string, spec string, ev *core.Event, external bool) error

	// Unschedule cancels a scheduled send by id.
	Unschedule(id string)

	// InState reports whether the state with the given id is
	// active, which backs the chart's In() predicate.
	InState(id string) bool

	// Logf reports <log> output and datamodel diagnostics.
	Logf(format string, args ...interface{})
}

// Datamodel evaluates a chart's expressions and executes its
// executable content.
//
// A Datamodel is used from the engine's goroutine only.
type Datamodel interface {
	// EvalBool evaluates a guard expression.
	EvalBool(expr string) (bool, error)

	// InitData evaluates one <data> element and binds its id.
	InitData(data *etree.Element) error

	// Execute runs an executable-content container (onentry,
	// onexit, transition, script).
	Execute(block *etree.Element) error

	// EvalDone evaluates a <donedata> template into an event
	// payload.  doneData may be nil.
	EvalDone(doneData *etree.Element) (interface{}, error)

	// SetEvent binds _event (or the implementation's equivalent)
	// to the event being processed.
	SetEvent(ev *core.Event)
}

// Maker builds a datamodel for one chart.
type Maker func(doc *chart.Document, host Host) (Datamodel, error)

// DefaultMakers is the registry of available datamodels.
// Subpackages add themselves via their init functions.
var DefaultMakers = make(map[string]Maker)

// DatamodelNotFound occurs when Make is asked for an unregistered
// datamodel name.
var DatamodelNotFound = errors.New("datamodel not found")

// Register adds a maker to DefaultMakers.
func Register(name string, m Maker) {
	DefaultMakers[name] = m
}

// Make builds the named datamodel.  The empty name means
// "ecmascript" if registered, else "null".
func Make(name string, doc *chart.Document, host Host) (Datamodel, error) {
	if name == "" {
		if _, have := DefaultMakers["ecmascript"]; have {
			name = "ecmascript"
		} else {
			name = "null"
		}
	}
	m, have := DefaultMakers[name]
	if !have {
		return nil, DatamodelNotFound
	}
	return m(doc, host)
}
