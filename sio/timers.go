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

package sio

// ToDo: Timers.Suspend, Timers.Resume

import (
	"sync"
	"time"

	"context"

	"github.com/gorhill/cronexpr"

	"github.com/statechart/scxml/core"
)

// TimerEntry represents one pending (or repeating) scheduled send.
type TimerEntry struct {
	Id string

	// Spec is either a duration ("5s", "1500ms") or a cron
	// expression, in which case the send repeats.
	Spec string

	Ev       *core.Event
	External bool

	Ctl chan bool `json:"-"`

	timers *Timers
}

// Timers represents pending scheduled sends.
//
// Delayed <send>s, <cancel>s, and the datamodel's setTimer all end up
// here.
type Timers struct {
	Map     map[string]*TimerEntry
	Emitter func(ev *core.Event, external bool) `json:"-"`

	sync.Mutex
}

// NewTimers creates a Timers with the given function that fired
// entries will use to emit their events.
func NewTimers(emitter func(ev *core.Event, external bool)) *Timers {
	return &Timers{
		Map:     make(map[string]*TimerEntry, 8),
		Emitter: emitter,
	}
}

// Schedule adds a timer and starts it.
//
// A duration spec fires once; a cron spec fires at every matching
// time until cancelled.  Scheduling an id that is already pending
// replaces the old entry.
func (ts *Timers) Schedule(ctx context.Context, id, spec string, ev *core.Event, external bool) error {
	d, derr := time.ParseDuration(spec)
	var cron *cronexpr.Expression
	if derr != nil {
		var err error
		if cron, err = cronexpr.Parse(spec); err != nil {
			return &BadTimerSpec{Spec: spec}
		}
	}

	te := &TimerEntry{
		Id:       id,
		Spec:     spec,
		Ev:       ev,
		External: external,
		Ctl:      make(chan bool),
		timers:   ts,
	}

	ts.Lock()
	if old, have := ts.Map[id]; have {
		close(old.Ctl)
	}
	ts.Map[id] = te
	ts.Unlock()

	go te.run(ctx, d, cron)

	return nil
}

// Cancel stops the pending timer with the given id (if any).
func (ts *Timers) Cancel(id string) {
	ts.Lock()
	defer ts.Unlock()
	if te, have := ts.Map[id]; have {
		close(te.Ctl)
		delete(ts.Map, id)
	}
}

// StopAll cancels all pending timers.
func (ts *Timers) StopAll() {
	ts.Lock()
	defer ts.Unlock()
	for id, te := range ts.Map {
		close(te.Ctl)
		delete(ts.Map, id)
	}
}

// Pending returns the number of scheduled entries.
func (ts *Timers) Pending() int {
	ts.Lock()
	defer ts.Unlock()
	return len(ts.Map)
}

func (te *TimerEntry) run(ctx context.Context, d time.Duration, cron *cronexpr.Expression) {
	for {
		wait := d
		if cron != nil {
			next := cron.Next(time.Now())
			if next.IsZero() {
				te.remove()
				return
			}
			wait = time.Until(next)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			te.remove()
			return
		case <-te.Ctl:
			timer.Stop()
			return
		case <-timer.C:
			te.timers.Emitter(te.Ev, te.External)
		}

		if cron == nil {
			te.remove()
			return
		}
	}
}

func (te *TimerEntry) remove() {
	te.timers.Lock()
	defer te.timers.Unlock()
	if cur, have := te.timers.Map[te.Id]; have && cur == te {
		delete(te.timers.Map, te.Id)
	}
}

// BadTimerSpec occurs when a schedule spec is neither a duration nor
// a cron expression.
type BadTimerSpec struct {
	Spec string
}

func (e *BadTimerSpec) Error() string {
	return `bad timer spec "` + e.Spec + `"`
}
