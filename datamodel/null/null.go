// Package null provides the trivial datamodel: no variables, no
// expressions.  Guards are the literals "true" and "false", and the
// only executable content it honors is <raise>, <send> (without
// expressions), <cancel>, and <log>.
//
// Useful for purely structural charts and for tests that should not
// drag in an ECMAScript runtime.
package null

import (
	"errors"

	"github.com/beevik/etree"

	"github.com/statechart/scxml/chart"
	"github.com/statechart/scxml/core"
	"github.com/statechart/scxml/datamodel"
)

// init adds the Datamodel to datamodel.DefaultMakers.
func init() {
	datamodel.Register("null", func(doc *chart.Document, host datamodel.Host) (datamodel.Datamodel, error) {
		return &Datamodel{doc: doc, host: host}, nil
	})
}

// BadExpression occurs when a guard is anything but "true", "false",
// or "In(...)"-free emptiness.
var BadExpression = errors.New("null datamodel cannot evaluate expressions")

// Datamodel implements datamodel.Datamodel with no expression
// language at all.
type Datamodel struct {
	doc  *chart.Document
	host datamodel.Host
}

func (d *Datamodel) EvalBool(expr string) (bool, error) {
	switch expr {
	case "", "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, BadExpression
}

func (d *Datamodel) InitData(data *etree.Element) error {
	// Nothing to bind data to.
	return nil
}

func (d *Datamodel) SetEvent(ev *core.Event) {}

func (d *Datamodel) EvalDone(doneData *etree.Element) (interface{}, error) {
	if doneData == nil {
		return nil, nil
	}
	for _, c := range d.doc.ChildElements(doneData, "content") {
		if chart.HasAttr(c, "expr") {
			return nil, BadExpression
		}
		return c.Text(), nil
	}
	return nil, nil
}

func (d *Datamodel) Execute(block *etree.Element) error {
	for _, el := range block.ChildElements() {
		switch {
		case d.doc.Is(el, "raise"):
			d.host.RaiseInternal(&core.Event{Name: chart.Attr(el, "event")})

		case d.doc.Is(el, "send"):
			if chart.HasAttr(el, "eventexpr") || chart.HasAttr(el, "delayexpr") {
				return BadExpression
			}
			ev := &core.Event{
				Name:   chart.Attr(el, "event"),
				SendID: chart.Attr(el, "id"),
			}
			if delay := chart.Attr(el, "delay"); delay != "" {
				if err := d.host.Schedule(ev.SendID, delay, ev, true); err != nil {
					return err
				}
			} else if chart.Attr(el, "target") == "#_internal" {
				d.host.RaiseInternal(ev)
			} else {
				d.host.SendExternal(ev)
			}

		case d.doc.Is(el, "cancel"):
			d.host.Unschedule(chart.Attr(el, "sendid"))

		case d.doc.Is(el, "log"):
			d.host.Logf("%s", chart.Attr(el, "label"))

		default:
			return errors.New("null datamodel cannot execute <" + el.Tag + ">")
		}
	}
	return nil
}
