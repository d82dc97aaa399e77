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

// End-to-end: engine + coupler + the ECMAScript datamodel.

import (
	"context"
	"testing"

	"github.com/statechart/scxml/chart"
	"github.com/statechart/scxml/core"
	_ "github.com/statechart/scxml/datamodel/goja"
)

func newGojaCoupler(t *testing.T, src string) *Coupler {
	t.Helper()
	doc, err := chart.Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewCoupler(doc, "ecmascript", nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGojaCounter(t *testing.T) {
	// A chart that counts events and leaves when the count
	// reaches three.
	c := newGojaCoupler(t, `
<scxml initial="counting">
  <datamodel>
    <data id="count" expr="0"/>
  </datamodel>
  <state id="counting">
    <transition event="tick" cond="count &lt; 2">
      <assign location="count" expr="count + 1"/>
    </transition>
    <transition event="tick" cond="count == 2" target="end"/>
  </state>
  <final id="end"/>
</scxml>`)

	ctx := context.Background()
	if _, err := c.Drain(ctx); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		c.In(&core.Event{Name: "tick"})
		if _, err := c.Drain(ctx); err != nil {
			t.Fatal(err)
		}
		if !c.Engine.IsInState("counting") {
			t.Fatalf("left early at tick %d: %v", i, c.Engine.ConfigurationIDs())
		}
	}

	c.In(&core.Event{Name: "tick"})
	res, err := c.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res != core.Finished {
		t.Fatalf("got %s, wanted Finished", res)
	}
	if !c.Engine.IsInState("end") {
		t.Fatalf("configuration %v", c.Engine.ConfigurationIDs())
	}
}

func TestGojaEventData(t *testing.T) {
	c := newGojaCoupler(t, `
<scxml initial="waiting">
  <state id="waiting">
    <transition event="msg" cond="_event.data.level == 'high'" target="alerted"/>
    <transition event="msg" target="waiting"/>
  </state>
  <state id="alerted"/>
</scxml>`)

	ctx := context.Background()
	if _, err := c.Drain(ctx); err != nil {
		t.Fatal(err)
	}

	c.In(&core.Event{Name: "msg", Data: map[string]interface{}{"level": "low"}})
	if _, err := c.Drain(ctx); err != nil {
		t.Fatal(err)
	}
	if !c.Engine.IsInState("waiting") {
		t.Fatalf("configuration %v", c.Engine.ConfigurationIDs())
	}

	c.In(&core.Event{Name: "msg", Data: map[string]interface{}{"level": "high"}})
	if _, err := c.Drain(ctx); err != nil {
		t.Fatal(err)
	}
	if !c.Engine.IsInState("alerted") {
		t.Fatalf("configuration %v", c.Engine.ConfigurationIDs())
	}
}

func TestGojaOnEntryRaise(t *testing.T) {
	// onentry content raises an event that drives the next
	// micro-step; In() predicate guards it.
	c := newGojaCoupler(t, `
<scxml initial="a">
  <state id="a">
    <onentry><raise event="advance"/></onentry>
    <transition event="advance" cond="In('a')" target="b"/>
  </state>
  <state id="b"/>
</scxml>`)

	if _, err := c.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.Engine.IsInState("b") {
		t.Fatalf("configuration %v", c.Engine.ConfigurationIDs())
	}
}
