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

package sio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"

	"github.com/statechart/scxml/core"
)

// Stdio couples a chart to line-oriented JSON streams: one event per
// input line, one emitted event per output line.
//
// An input line is either a JSON object ({"name":"t","data":...}) or
// a bare event name.
type Stdio struct {
	In  io.Reader
	Out io.Writer

	// EchoConfigurations is not read by Stdio: it never writes
	// configurations, only emitted events.
	EchoConfigurations bool

	c *Coupler
}

// NewStdio makes a coupling between the coupler and the given
// streams.
func NewStdio(c *Coupler, in io.Reader, out io.Writer) *Stdio {
	s := &Stdio{
		In:  in,
		Out: out,
		c:   c,
	}
	c.Emitter = func(ev *core.Event) {
		s.emit(ev)
	}
	return s
}

// Start consumes input lines until EOF (or the context is done),
// handing each event to the chart.  It runs in its own goroutine.
func (s *Stdio) Start(ctx context.Context) {
	go func() {
		in := bufio.NewScanner(s.In)
		for in.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := strings.TrimSpace(in.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			ev, err := ParseEvent(line)
			if err != nil {
				log.Printf("stdio can't parse %q: %s", line, err)
				continue
			}
			s.c.In(ev)
		}
		// No more input: let the chart wind down.
		s.c.Cancel()
	}()
}

func (s *Stdio) emit(ev *core.Event) {
	js, err := json.Marshal(ev)
	if err != nil {
		log.Printf("stdio can't marshal %v: %s", ev, err)
		return
	}
	if _, err := s.Out.Write(append(js, '\n')); err != nil {
		log.Printf("stdio write: %s", err)
	}
}

// ParseEvent reads an event from a line: a JSON object or a bare
// event name.
func ParseEvent(line string) (*core.Event, error) {
	if !strings.HasPrefix(line, "{") {
		return &core.Event{Name: line}, nil
	}
	var ev core.Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
