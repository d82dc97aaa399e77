/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

// Package chart provides the parsed SCXML document model.
//
// A Document wraps an XML tree and answers the structural questions
// that the core index asks: tag identity under the chart's namespace
// prefix, document-order and post-order element enumeration, and
// ancestry.  The tree is mutable only during the index's child-resort
// step; afterwards it is effectively read-only.
package chart

import (
	"errors"
	"os"
	"strings"

	"github.com/beevik/etree"
)

// Binding is the <scxml> 'binding' attribute: when data elements are
// evaluated.
type Binding int

const (
	// BindingEarly evaluates all data elements when the chart
	// starts.
	BindingEarly Binding = iota

	// BindingLate evaluates a state's data elements when the state
	// is first entered.
	BindingLate
)

// NotSCXML occurs when the root element of a parsed document isn't
// <scxml>.
var NotSCXML = errors.New("root element is not scxml")

// Document is a parsed SCXML document.
type Document struct {
	// Root is the <scxml> element.
	Root *etree.Element

	// Prefix is the namespace prefix of the root element
	// (including the trailing colon) or empty.  All chart elements
	// are expected to carry the same prefix.
	Prefix string

	// Binding is the data binding mode (early unless binding="late").
	Binding Binding

	tree *etree.Document
}

// Parse reads an SCXML document from bytes.
func Parse(bs []byte) (*Document, error) {
	tree := etree.NewDocument()
	if err := tree.ReadFromBytes(bs); err != nil {
		return nil, err
	}
	root := tree.Root()
	if root == nil || root.Tag != "scxml" {
		return nil, NotSCXML
	}

	d := &Document{
		Root: root,
		tree: tree,
	}

	if root.Space != "" {
		d.Prefix = root.Space + ":"
	}

	if strings.EqualFold(Attr(root, "binding"), "late") {
		d.Binding = BindingLate
	}

	return d, nil
}

// ParseFile reads an SCXML document from the file at the given path.
func ParseFile(path string) (*Document, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bs)
}

// Attr returns the value of the element's attribute or "" if absent.
func Attr(el *etree.Element, name string) string {
	if el == nil {
		return ""
	}
	if a := el.SelectAttr(name); a != nil {
		return a.Value
	}
	return ""
}

// HasAttr reports whether the element carries the attribute at all,
// which is not the same as carrying it with an empty value.
func HasAttr(el *etree.Element, name string) bool {
	return el != nil && el.SelectAttr(name) != nil
}

// ID returns the element's id attribute.
func ID(el *etree.Element) string {
	return Attr(el, "id")
}

// Is reports whether the element has the given local tag under the
// document's prefix.
func (d *Document) Is(el *etree.Element, local string) bool {
	if el == nil {
		return false
	}
	if d.Prefix == "" {
		return el.Space == "" && el.Tag == local
	}
	return el.Space+":" == d.Prefix && el.Tag == local
}

// IsState reports whether the element is a proper state: state,
// parallel, final, or the scxml root.  Pseudo-states (initial,
// history) are not proper states.
func (d *Document) IsState(el *etree.Element) bool {
	return d.Is(el, "state") || d.Is(el, "parallel") || d.Is(el, "final") || d.Is(el, "scxml")
}

// IsHistory reports whether the element is a history pseudo-state.
func (d *Document) IsHistory(el *etree.Element) bool {
	return d.Is(el, "history")
}

// IsDeepHistory reports whether the element is a history
// pseudo-state with type="deep".
func (d *Document) IsDeepHistory(el *etree.Element) bool {
	return d.Is(el, "history") && strings.EqualFold(Attr(el, "type"), "deep")
}

// IsFinal reports whether the element is a final state.
func (d *Document) IsFinal(el *etree.Element) bool {
	return d.Is(el, "final")
}

// IsParallel reports whether the element is a parallel state.
func (d *Document) IsParallel(el *etree.Element) bool {
	return d.Is(el, "parallel")
}

// IsInitial reports whether the element is an initial pseudo-state.
func (d *Document) IsInitial(el *etree.Element) bool {
	return d.Is(el, "initial")
}

// IsAtomic reports whether the element is a state with no child
// states.
func (d *Document) IsAtomic(el *etree.Element) bool {
	if !d.Is(el, "state") {
		return false
	}
	for _, c := range el.ChildElements() {
		if d.IsState(c) || d.IsHistory(c) || d.IsInitial(c) {
			return false
		}
	}
	return true
}

// IsCompound reports whether the element is a state with at least one
// child state.
func (d *Document) IsCompound(el *etree.Element) bool {
	if !d.Is(el, "state") && !d.Is(el, "scxml") {
		return false
	}
	return !d.IsAtomic(el) || d.Is(el, "scxml")
}

// ChildElements returns the element's direct children with the given
// local tag, in document order.
func (d *Document) ChildElements(el *etree.Element, local string) []*etree.Element {
	var acc []*etree.Element
	for _, c := range el.ChildElements() {
		if d.Is(c, local) {
			acc = append(acc, c)
		}
	}
	return acc
}

// ChildStates returns the element's direct children that are proper
// states, in document order.
func (d *Document) ChildStates(el *etree.Element) []*etree.Element {
	var acc []*etree.Element
	for _, c := range el.ChildElements() {
		if d.IsState(c) {
			acc = append(acc, c)
		}
	}
	return acc
}

// InDocumentOrder returns all elements (root included) whose local
// tag is in the given set, in document order.
func (d *Document) InDocumentOrder(locals ...string) []*etree.Element {
	var acc []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, local := range locals {
			if d.Is(el, local) {
				acc = append(acc, el)
				break
			}
		}
		for _, c := range el.ChildElements() {
			walk(c)
		}
	}
	walk(d.Root)
	return acc
}

// InPostOrder returns matching elements so that an element's
// descendants always precede the element itself.  Transitions are
// collected this way: deeper transitions get lower indices, which
// makes ascending iteration follow document priority.
func (d *Document) InPostOrder(locals ...string) []*etree.Element {
	var acc []*etree.Element
	match := func(el *etree.Element) bool {
		for _, local := range locals {
			if d.Is(el, local) {
				return true
			}
		}
		return false
	}
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, c := range el.ChildElements() {
			walk(c)
		}
		for _, c := range el.ChildElements() {
			if match(c) {
				acc = append(acc, c)
			}
		}
	}
	walk(d.Root)
	if match(d.Root) {
		acc = append(acc, d.Root)
	}
	return acc
}

// IsDescendant reports whether el is a proper descendant of ancestor.
func IsDescendant(el, ancestor *etree.Element) bool {
	if el == nil || ancestor == nil {
		return false
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		if p == ancestor {
			return true
		}
	}
	return false
}

// InEmbeddedDocument reports whether the element lives inside a
// <content> element and therefore belongs to an embedded document
// rather than to the chart itself.
func (d *Document) InEmbeddedDocument(el *etree.Element) bool {
	for p := el.Parent(); p != nil; p = p.Parent() {
		if d.Is(p, "content") {
			return true
		}
	}
	return false
}

// MoveToFront moves the given children (kept in their given order) to
// the front of the parent's child list.  Used by the index's
// child-resort step.
func MoveToFront(parent *etree.Element, children []*etree.Element) {
	for i := len(children) - 1; 0 <= i; i-- {
		c := children[i]
		parent.RemoveChild(c)
		parent.InsertChildAt(0, c)
	}
}
