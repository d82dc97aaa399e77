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

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/statechart/scxml/chart"
	"github.com/statechart/scxml/core"
	_ "github.com/statechart/scxml/datamodel/null"
)

func newTestCoupler(t *testing.T, src string) *Coupler {
	t.Helper()
	doc, err := chart.Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewCoupler(doc, "null", nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCouplerDrain(t *testing.T) {
	c := newTestCoupler(t, `
<scxml initial="a">
  <state id="a">
    <onentry><raise event="go"/></onentry>
    <transition event="go" target="b"/>
  </state>
  <state id="b"/>
</scxml>`)

	res, err := c.Drain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res != core.Idle {
		t.Fatalf("got %s, wanted Idle", res)
	}

	// The raised event was consumed during the drain.
	if !c.Engine.IsInState("b") {
		t.Fatalf("configuration %v", c.Engine.ConfigurationIDs())
	}
}

func TestCouplerInAndFinish(t *testing.T) {
	c := newTestCoupler(t, `
<scxml initial="a">
  <state id="a">
    <transition event="quit" target="end"/>
  </state>
  <final id="end"/>
</scxml>`)

	if _, err := c.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.In(&core.Event{Name: "quit"})

	res, err := c.Drain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res != core.Finished {
		t.Fatalf("got %s, wanted Finished", res)
	}
}

func TestCouplerRun(t *testing.T) {
	c := newTestCoupler(t, `
<scxml initial="a">
  <state id="a">
    <transition event="quit" target="end"/>
  </state>
  <final id="end"/>
</scxml>`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	// Let the chart start, then finish it from outside.
	time.Sleep(20 * time.Millisecond)
	c.In(&core.Event{Name: "quit"})

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run never returned")
	}

	if !c.Engine.IsInState("end") {
		t.Fatalf("configuration %v", c.Engine.ConfigurationIDs())
	}
}

func TestCouplerCancel(t *testing.T) {
	c := newTestCoupler(t, `
<scxml initial="a">
  <state id="a"/>
</scxml>`)

	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	c.Cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run never returned after Cancel")
	}
}

func TestCouplerGuardFailureIsFalse(t *testing.T) {
	// The null datamodel cannot evaluate "x == 1", so the guard
	// fails, the transition stays unselected, and the chart hears
	// error.execution.
	c := newTestCoupler(t, `
<scxml initial="a">
  <state id="a">
    <transition event="t" cond="x == 1" target="b"/>
    <transition event="error.execution" target="handled"/>
  </state>
  <state id="b"/>
  <state id="handled"/>
</scxml>`)

	if _, err := c.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.In(&core.Event{Name: "t"})
	if _, err := c.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}

	if c.Engine.IsInState("b") {
		t.Fatal("a failing guard must not select its transition")
	}
	if !c.Engine.IsInState("handled") {
		t.Fatalf("configuration %v, wanted error.execution handled",
			c.Engine.ConfigurationIDs())
	}
}

func TestCouplerDoneData(t *testing.T) {
	c := newTestCoupler(t, `
<scxml initial="C">
  <state id="C" initial="c1">
    <state id="c1">
      <transition event="finish" target="cf"/>
    </state>
    <final id="cf">
      <donedata><content>all done</content></donedata>
    </final>
    <transition event="done.state.C" target="after"/>
  </state>
  <state id="after"/>
</scxml>`)

	var data interface{}
	c.Mon = doneWatcher{data: &data}

	if _, err := c.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.In(&core.Event{Name: "finish"})
	if _, err := c.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !c.Engine.IsInState("after") {
		t.Fatalf("configuration %v", c.Engine.ConfigurationIDs())
	}
	if fmt.Sprint(data) != "all done" {
		t.Fatalf("done data %v", data)
	}
}

// doneWatcher grabs the first non-nil event payload the engine
// processes; in TestCouplerDoneData that is the done.state.C event's.
type doneWatcher struct {
	core.NopMonitor
	data *interface{}
}

func (w doneWatcher) BeforeProcessingEvent(ev *core.Event) {
	if *w.data == nil && ev.Data != nil {
		*w.data = ev.Data
	}
}
