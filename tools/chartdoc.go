/* Copyright 2018 Comcast Cable Communications Management, LLC
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

// Package tools renders chart documentation for human review.
package tools

import (
	"fmt"
	"io"
	"strings"

	md "github.com/russross/blackfriday/v2"

	"github.com/statechart/scxml/core"
)

// RenderChartMarkdown writes a Markdown description of a chart's
// structure: the state tree and every transition.
func RenderChartMarkdown(x *core.Index, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	title := x.States[0].ID()
	if title == "" {
		title = "chart"
	}
	f("# %s", title)
	f("")
	f("%d states, %d transitions.", len(x.States), len(x.Transitions))
	f("")

	f("## States")
	f("")
	for _, s := range x.States[1:] {
		depth := int(s.Ancestors.Count())
		indent := strings.Repeat("    ", depth-1)
		name := s.ID()
		if name == "" {
			name = fmt.Sprintf("(state %d)", s.DocumentOrder)
		}
		f("%s- **%s** (%s)%s", indent, name, s.Kind, stateNotes(s))
	}
	f("")

	if 0 < len(x.Transitions) {
		f("## Transitions")
		f("")
		for _, tr := range x.Transitions {
			f("- %s", describeTransition(x, tr))
		}
		f("")
	}

	if 0 < len(x.Issues) {
		f("## Issues")
		f("")
		for _, issue := range x.Issues {
			f("- %s: %s", issue.Kind, issue.Message)
		}
		f("")
	}

	return nil
}

func stateNotes(s *core.State) string {
	var notes []string
	if 0 < len(s.OnEntry) {
		notes = append(notes, "onentry")
	}
	if 0 < len(s.OnExit) {
		notes = append(notes, "onexit")
	}
	if 0 < len(s.Invoke) {
		notes = append(notes, "invoke")
	}
	if 0 < len(s.Data) {
		notes = append(notes, "data")
	}
	if s.DoneData != nil {
		notes = append(notes, "donedata")
	}
	if len(notes) == 0 {
		return ""
	}
	return " — " + strings.Join(notes, ", ")
}

func describeTransition(x *core.Index, tr *core.Transition) string {
	src := x.States[tr.Source].ID()
	if src == "" {
		src = fmt.Sprintf("(state %d)", tr.Source)
	}

	var targets []string
	for i, ok := tr.Target.NextSet(0); ok; i, ok = tr.Target.NextSet(i + 1) {
		if id := x.States[i].ID(); id != "" {
			targets = append(targets, id)
		}
	}

	desc := "`" + src + "`"
	if tr.Event != "" {
		desc += " on `" + tr.Event + "`"
	} else {
		desc += " (spontaneous)"
	}
	if tr.Cond != "" {
		desc += " if `" + tr.Cond + "`"
	}
	if 0 < len(targets) {
		desc += " → `" + strings.Join(targets, "`, `") + "`"
	} else {
		desc += " (targetless)"
	}
	if tr.Flags&core.TransInternal != 0 {
		desc += " [internal]"
	}
	return desc
}

// RenderChartHTML renders the Markdown description as an HTML
// fragment.
func RenderChartHTML(x *core.Index, out io.Writer) error {
	var buf strings.Builder
	if err := RenderChartMarkdown(x, &buf); err != nil {
		return err
	}
	_, err := out.Write(md.Run([]byte(buf.String())))
	return err
}

// RenderChartPage renders a complete HTML page.
func RenderChartPage(x *core.Index, out io.Writer, cssFiles []string) error {
	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
`)
	for _, css := range cssFiles {
		fmt.Fprintf(out, `    <link rel="stylesheet" href="%s">`+"\n", css)
	}
	fmt.Fprintf(out, `  </head>
  <body>
`)
	if err := RenderChartHTML(x, out); err != nil {
		return err
	}
	fmt.Fprintf(out, `  </body>
</html>
`)
	return nil
}
