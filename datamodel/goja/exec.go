package goja

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/beevik/etree"

	"github.com/statechart/scxml/chart"
	"github.com/statechart/scxml/core"
	"github.com/statechart/scxml/util"
)

// Execute runs an executable-content container: onentry, onexit, a
// transition, or a bare <script> (the root's global scripts arrive
// that way).
//
// Execution stops at the first failing element; the caller (usually
// the coupler) turns the error into an error.execution event.
func (d *Datamodel) Execute(block *etree.Element) error {
	if d.doc.Is(block, "script") {
		return d.script(block)
	}
	for _, el := range block.ChildElements() {
		if err := d.execute(el); err != nil {
			return err
		}
	}
	return nil
}

func (d *Datamodel) execute(el *etree.Element) error {
	doc := d.doc

	switch {
	case doc.Is(el, "raise"):
		d.host.RaiseInternal(&core.Event{Name: chart.Attr(el, "event")})
		return nil

	case doc.Is(el, "assign"):
		return d.assign(el)

	case doc.Is(el, "script"):
		return d.script(el)

	case doc.Is(el, "log"):
		return d.log(el)

	case doc.Is(el, "if"):
		return d.branch(el)

	case doc.Is(el, "foreach"):
		return d.foreach(el)

	case doc.Is(el, "send"):
		return d.send(el)

	case doc.Is(el, "cancel"):
		return d.cancel(el)

	default:
		return errors.New("unknown executable content <" + el.Tag + ">")
	}
}

func (d *Datamodel) assign(el *etree.Element) error {
	location := chart.Attr(el, "location")
	if location == "" {
		return errors.New("assign without location")
	}
	expr := chart.Attr(el, "expr")
	if expr == "" {
		// Inline value.
		js, err := toJS(parseLiteral(el.Text()))
		if err != nil {
			return err
		}
		expr = js
	}
	_, err := d.eval(location + " = (" + expr + ");")
	return err
}

func (d *Datamodel) script(el *etree.Element) error {
	src := el.Text()
	if chart.HasAttr(el, "src") {
		bs, err := os.ReadFile(chart.Attr(el, "src"))
		if err != nil {
			return err
		}
		src = string(bs)
	}
	_, err := d.eval(src)
	return err
}

func (d *Datamodel) log(el *etree.Element) error {
	label := chart.Attr(el, "label")
	if expr := chart.Attr(el, "expr"); expr != "" {
		v, err := d.eval(expr)
		if err != nil {
			return err
		}
		if label == "" {
			d.host.Logf("%v", v.Export())
		} else {
			d.host.Logf("%s: %v", label, v.Export())
		}
		return nil
	}
	d.host.Logf("%s", label)
	return nil
}

// branch runs an <if>: its children are executed in order, switching
// segments at <elseif> and <else> markers, with only the first
// segment whose condition holds actually executing.
func (d *Datamodel) branch(el *etree.Element) error {
	enabled, err := d.EvalBool(chart.Attr(el, "cond"))
	if err != nil {
		return err
	}
	taken := false

	for _, c := range el.ChildElements() {
		switch {
		case d.doc.Is(c, "elseif"):
			if enabled {
				return nil // executed the matching segment
			}
			if taken {
				enabled = false
				continue
			}
			if enabled, err = d.EvalBool(chart.Attr(c, "cond")); err != nil {
				return err
			}
		case d.doc.Is(c, "else"):
			if enabled {
				return nil
			}
			enabled = !taken
		default:
			if !enabled {
				continue
			}
			taken = true
			if err := d.execute(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Datamodel) foreach(el *etree.Element) error {
	v, err := d.eval(chart.Attr(el, "array"))
	if err != nil {
		return err
	}
	items, is := v.Export().([]interface{})
	if !is {
		return errors.New("foreach array is not an array")
	}

	item := chart.Attr(el, "item")
	if item == "" {
		return errors.New("foreach without item")
	}
	index := chart.Attr(el, "index")

	for i, x := range items {
		d.vm.Set(item, x)
		if index != "" {
			d.vm.Set(index, i)
		}
		for _, c := range el.ChildElements() {
			if err := d.execute(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Datamodel) send(el *etree.Element) error {
	name := chart.Attr(el, "event")
	if expr := chart.Attr(el, "eventexpr"); expr != "" {
		v, err := d.eval(expr)
		if err != nil {
			return err
		}
		name = v.String()
	}

	target := chart.Attr(el, "target")
	if expr := chart.Attr(el, "targetexpr"); expr != "" {
		v, err := d.eval(expr)
		if err != nil {
			return err
		}
		target = v.String()
	}

	delay := chart.Attr(el, "delay")
	if expr := chart.Attr(el, "delayexpr"); expr != "" {
		v, err := d.eval(expr)
		if err != nil {
			return err
		}
		delay = v.String()
	}

	sendID := chart.Attr(el, "id")
	if sendID == "" {
		sendID = util.Gensym(32)
	}
	if location := chart.Attr(el, "idlocation"); location != "" {
		js, err := toJS(sendID)
		if err != nil {
			return err
		}
		if _, err := d.eval(location + " = " + js + ";"); err != nil {
			return err
		}
	}

	data, err := d.sendData(el)
	if err != nil {
		return err
	}

	ev := &core.Event{
		Name:   name,
		Data:   data,
		SendID: sendID,
		Origin: target,
	}

	if delay != "" {
		return d.host.Schedule(sendID, delay, ev, target != "#_internal")
	}
	if target == "#_internal" {
		d.host.RaiseInternal(ev)
	} else {
		d.host.SendExternal(ev)
	}
	return nil
}

// sendData assembles a send's payload from namelist, <param>, and
// <content>.
func (d *Datamodel) sendData(el *etree.Element) (interface{}, error) {
	for _, c := range d.doc.ChildElements(el, "content") {
		if expr := chart.Attr(c, "expr"); expr != "" {
			v, err := d.eval(expr)
			if err != nil {
				return nil, err
			}
			return v.Export(), nil
		}
		return parseLiteral(c.Text()), nil
	}

	payload, err := d.params(el)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}

func (d *Datamodel) cancel(el *etree.Element) error {
	sendID := chart.Attr(el, "sendid")
	if expr := chart.Attr(el, "sendidexpr"); expr != "" {
		v, err := d.eval(expr)
		if err != nil {
			return err
		}
		sendID = v.String()
	}
	if sendID == "" {
		return errors.New("cancel without sendid")
	}
	d.host.Unschedule(sendID)
	return nil
}

// toJS renders a Go value as a JavaScript literal.
func toJS(x interface{}) (string, error) {
	js, err := json.Marshal(x)
	if err != nil {
		return "", fmt.Errorf("cannot render %T as a literal: %w", x, err)
	}
	return string(js), nil
}
