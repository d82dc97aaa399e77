/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sio couples engines to the outside world: queues, a
// datamodel, timers, invokers, and transports (stdio, WebSockets,
// MQTT).
package sio

import (
	"context"
	"log"

	"github.com/beevik/etree"

	"github.com/statechart/scxml/chart"
	"github.com/statechart/scxml/core"
	"github.com/statechart/scxml/datamodel"
	"github.com/statechart/scxml/match"
	"github.com/statechart/scxml/queue"
)

// Invoker starts and cancels one kind of <invoke>.
type Invoker interface {
	Invoke(ctx context.Context, c *Coupler, inv *etree.Element) error
	Uninvoke(c *Coupler, inv *etree.Element) error
}

// Coupler owns one engine and everything the engine consumes through
// its callbacks: the two queues, the datamodel, timers, and invokers.
//
// A Coupler implements both core.Callbacks and datamodel.Host.
type Coupler struct {
	Doc    *chart.Document
	Engine *core.Engine
	DM     datamodel.Datamodel

	// Mon is the optional monitor handed to the engine.
	Mon core.Monitor

	// Internal and External are the event queues.
	Internal queue.Events
	External *queue.External

	// Timers schedules delayed and repeating sends.
	Timers *Timers

	// Invokers maps <invoke> type attributes to implementations.
	Invokers map[string]Invoker

	// Emitter, if set, receives external sends whose target names
	// somewhere other than this chart.  Without an Emitter such
	// sends land on this chart's own external queue.
	Emitter func(ev *core.Event)

	// Verbose turns on step-by-step logging.
	Verbose bool

	ctx context.Context
}

// NewCoupler builds a coupler for the document with the named
// datamodel ("" picks ecmascript when linked in, else null).
func NewCoupler(doc *chart.Document, datamodelName string, mon core.Monitor) (*Coupler, error) {
	c := &Coupler{
		Doc:      doc,
		Mon:      mon,
		External: queue.NewExternal(),
		Invokers: make(map[string]Invoker),
		ctx:      context.Background(),
	}

	dm, err := datamodel.Make(datamodelName, doc, c)
	if err != nil {
		return nil, err
	}
	c.DM = dm

	c.Timers = NewTimers(func(ev *core.Event, external bool) {
		if external {
			c.External.Enqueue(ev)
		} else {
			c.Internal.Enqueue(ev)
		}
	})

	c.Engine = core.NewEngine(doc, c)

	return c, nil
}

// In hands an external event to the chart.  Safe from any goroutine.
func (c *Coupler) In(ev *core.Event) {
	c.External.Enqueue(ev)
}

// Cancel asks the engine to shut down gracefully and unblocks it if
// it is waiting for an external event.
func (c *Coupler) Cancel() {
	c.Engine.Cancel()
	c.External.Kick()
}

// Run drives the engine until it finishes or the context is done.
func (c *Coupler) Run(ctx context.Context) error {
	c.ctx = ctx

	go func() {
		<-ctx.Done()
		c.Cancel()
	}()

	for {
		res, err := c.Engine.Step(ctx, true)
		if err != nil {
			return err
		}
		c.Logv("step %s config %v", res, c.Engine.ConfigurationIDs())
		switch res {
		case core.Finished:
			c.Timers.StopAll()
			return nil
		}
	}
}

// Drain steps without blocking until the configuration is stable (or
// the engine terminates), and reports the last result.  Useful for
// hosts that interleave their own work with the chart's.
func (c *Coupler) Drain(ctx context.Context) (core.StepResult, error) {
	for {
		res, err := c.Engine.Step(ctx, false)
		if err != nil {
			return res, err
		}
		switch res {
		case core.Idle, core.Macrostepped, core.Finished, core.Cancelled:
			if res == core.Macrostepped {
				// One more step to sync invocations and
				// hear about stability.
				continue
			}
			return res, nil
		}
	}
}

// raiseError reports executable-content trouble to the chart, which
// is the SCXML way: the engine itself swallows the error.
func (c *Coupler) raiseError(name string, err error) {
	c.Internal.Enqueue(&core.Event{
		Name: name,
		Data: err.Error(),
	})
}

// Callbacks

func (c *Coupler) DequeueInternal() *core.Event {
	ev := c.Internal.Dequeue()
	if ev != nil {
		c.DM.SetEvent(ev)
	}
	return ev
}

func (c *Coupler) DequeueExternal(ctx context.Context, blocking bool) *core.Event {
	ev := c.External.Dequeue(ctx, blocking)
	if ev != nil {
		c.DM.SetEvent(ev)
	}
	return ev
}

func (c *Coupler) IsMatched(ev *core.Event, descriptor string) bool {
	return match.Match(ev.Name, descriptor)
}

func (c *Coupler) IsTrue(expr string) bool {
	ok, err := c.DM.EvalBool(expr)
	if err != nil {
		// A guard that fails to evaluate is a false guard.
		c.raiseError("error.execution", err)
		return false
	}
	return ok
}

func (c *Coupler) Process(block *etree.Element) error {
	if err := c.DM.Execute(block); err != nil {
		c.raiseError("error.execution", err)
		return err
	}
	return nil
}

func (c *Coupler) InitData(data *etree.Element) error {
	if err := c.DM.InitData(data); err != nil {
		c.raiseError("error.execution", err)
		return err
	}
	return nil
}

func (c *Coupler) Invoke(inv *etree.Element) error {
	kind := chart.Attr(inv, "type")
	invoker, have := c.Invokers[kind]
	if !have {
		err := &NoInvoker{Type: kind}
		c.raiseError("error.communication", err)
		return err
	}
	if err := invoker.Invoke(c.ctx, c, inv); err != nil {
		c.raiseError("error.communication", err)
		return err
	}
	return nil
}

func (c *Coupler) Uninvoke(inv *etree.Element) error {
	kind := chart.Attr(inv, "type")
	invoker, have := c.Invokers[kind]
	if !have {
		return &NoInvoker{Type: kind}
	}
	return invoker.Uninvoke(c, inv)
}

func (c *Coupler) RaiseDone(state *etree.Element, doneData *etree.Element) {
	data, err := c.DM.EvalDone(doneData)
	if err != nil {
		c.raiseError("error.execution", err)
		data = nil
	}
	c.Internal.Enqueue(&core.Event{
		Name: "done.state." + chart.ID(state),
		Data: data,
	})
}

func (c *Coupler) Monitor() core.Monitor {
	return c.Mon
}

// datamodel.Host

func (c *Coupler) RaiseInternal(ev *core.Event) {
	c.Internal.Enqueue(ev)
}

func (c *Coupler) SendExternal(ev *core.Event) {
	if c.Emitter != nil && ev.Origin != "" && ev.Origin != "#_scxml_self" {
		c.Emitter(ev)
		return
	}
	c.External.Enqueue(ev)
}

func (c *Coupler) Schedule(id string, spec string, ev *core.Event, external bool) error {
	return c.Timers.Schedule(c.ctx, id, spec, ev, external)
}

func (c *Coupler) Unschedule(id string) {
	c.Timers.Cancel(id)
}

func (c *Coupler) InState(id string) bool {
	return c.Engine.IsInState(id)
}

func (c *Coupler) Logf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// Logv logs only when Verbose is set.
func (c *Coupler) Logv(format string, args ...interface{}) {
	if c.Verbose {
		log.Printf(format, args...)
	}
}

// NoInvoker occurs when a chart invokes a type nobody registered.
type NoInvoker struct {
	Type string
}

func (e *NoInvoker) Error() string {
	return `no invoker for type "` + e.Type + `"`
}
