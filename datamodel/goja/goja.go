// Package goja provides the ECMAScript datamodel using Goja, which
// is a Go implementation of ECMAScript 5.1+.
//
// See https://github.com/dop251/goja.
//
// Chart variables are globals in one persistent Goja runtime per
// chart.  The event being processed is visible as _event, and In()
// answers state-occupancy questions.  A few host utilities are
// available at _ (setTimer, clearTimer, log, gensym).
package goja

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/beevik/etree"
	"github.com/dop251/goja"

	"github.com/statechart/scxml/chart"
	"github.com/statechart/scxml/core"
	"github.com/statechart/scxml/datamodel"
	"github.com/statechart/scxml/util"
)

// init adds the Datamodel to datamodel.DefaultMakers.
func init() {
	datamodel.Register("ecmascript", func(doc *chart.Document, host datamodel.Host) (datamodel.Datamodel, error) {
		return NewDatamodel(doc, host)
	})
}

// Datamodel implements datamodel.Datamodel with a persistent Goja
// runtime.
type Datamodel struct {
	doc  *chart.Document
	host datamodel.Host
	vm   *goja.Runtime
}

// NewDatamodel makes a Datamodel with a fresh runtime.
func NewDatamodel(doc *chart.Document, host datamodel.Host) (*Datamodel, error) {
	d := &Datamodel{
		doc:  doc,
		host: host,
		vm:   goja.New(),
	}

	d.vm.Set("In", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		return d.vm.ToValue(host.InState(id))
	})

	env := map[string]interface{}{}

	env["gensym"] = func() interface{} {
		return util.Gensym(32)
	}

	env["log"] = func(x interface{}) interface{} {
		switch vv := x.(type) {
		case goja.Value:
			x = vv.Export()
		}
		js, err := json.Marshal(&x)
		if err != nil {
			host.Logf("goja.log (can't marshal: %s)", err.Error())
		} else {
			host.Logf("%s", js)
		}
		return x
	}

	env["setTimer"] = func(id, spec, name string, data interface{}) interface{} {
		switch vv := data.(type) {
		case goja.Value:
			data = vv.Export()
		}
		ev := &core.Event{Name: name, Data: data, SendID: id}
		if err := host.Schedule(id, spec, ev, true); err != nil {
			panic(d.vm.ToValue(err.Error()))
		}
		return id
	}

	env["clearTimer"] = func(id string) interface{} {
		host.Unschedule(id)
		return id
	}

	d.vm.Set("_", env)

	return d, nil
}

// SetEvent binds _event in the runtime.
func (d *Datamodel) SetEvent(ev *core.Event) {
	if ev == nil {
		d.vm.Set("_event", goja.Undefined())
		return
	}
	d.vm.Set("_event", map[string]interface{}{
		"name":   ev.Name,
		"data":   ev.Data,
		"sendid": ev.SendID,
		"origin": ev.Origin,
	})
}

// EvalBool evaluates a guard expression.
func (d *Datamodel) EvalBool(expr string) (bool, error) {
	v, err := d.eval(expr)
	if err != nil {
		return false, err
	}
	return v.ToBoolean(), nil
}

// InitData evaluates one <data> element and binds its id as a
// global.
//
// The value comes from the expr attribute, the src attribute (a
// file), or the element's text (parsed as JSON when possible).
func (d *Datamodel) InitData(data *etree.Element) error {
	id := chart.ID(data)
	if id == "" {
		return errors.New("data element without id")
	}

	switch {
	case chart.HasAttr(data, "expr"):
		v, err := d.eval(chart.Attr(data, "expr"))
		if err != nil {
			return err
		}
		d.vm.Set(id, v)
	case chart.HasAttr(data, "src"):
		bs, err := os.ReadFile(chart.Attr(data, "src"))
		if err != nil {
			return err
		}
		d.vm.Set(id, parseLiteral(string(bs)))
	default:
		d.vm.Set(id, parseLiteral(data.Text()))
	}

	return nil
}

// EvalDone evaluates a <donedata> template.
func (d *Datamodel) EvalDone(doneData *etree.Element) (interface{}, error) {
	if doneData == nil {
		return nil, nil
	}

	for _, c := range d.doc.ChildElements(doneData, "content") {
		if chart.HasAttr(c, "expr") {
			v, err := d.eval(chart.Attr(c, "expr"))
			if err != nil {
				return nil, err
			}
			return v.Export(), nil
		}
		return parseLiteral(c.Text()), nil
	}

	payload, err := d.params(doneData)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}

func (d *Datamodel) eval(expr string) (v goja.Value, err error) {
	defer func() {
		// Goja reports some trouble by panicking.
		if x := recover(); x != nil {
			err = fmt.Errorf("goja: %v", x)
		}
	}()
	return d.vm.RunString(expr)
}

// params evaluates an element's <param> children (and namelist
// attribute) into a payload map.
func (d *Datamodel) params(el *etree.Element) (map[string]interface{}, error) {
	acc := make(map[string]interface{})

	for _, name := range strings.Fields(chart.Attr(el, "namelist")) {
		v, err := d.eval(name)
		if err != nil {
			return nil, err
		}
		acc[name] = v.Export()
	}

	for _, p := range d.doc.ChildElements(el, "param") {
		name := chart.Attr(p, "name")
		if name == "" {
			return nil, errors.New("param element without name")
		}
		expr := chart.Attr(p, "expr")
		if expr == "" {
			expr = chart.Attr(p, "location")
		}
		v, err := d.eval(expr)
		if err != nil {
			return nil, err
		}
		acc[name] = v.Export()
	}

	return acc, nil
}

// parseLiteral interprets inline chart text: JSON when it parses,
// else the trimmed string itself.
func parseLiteral(s string) interface{} {
	var x interface{}
	if err := json.Unmarshal([]byte(s), &x); err == nil {
		return x
	}
	return strings.TrimSpace(s)
}
