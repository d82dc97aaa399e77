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

// Package queue provides the two event queues an engine needs: a
// plain internal FIFO and a thread-safe external FIFO that can block.
package queue

import (
	"context"
	"sync"

	"github.com/statechart/scxml/core"
)

// Events is an unbounded FIFO of events.  It is used as the internal
// queue, which only the engine's goroutine touches, so there is no
// locking.
type Events struct {
	events []*core.Event
}

// Enqueue appends an event.
func (q *Events) Enqueue(ev *core.Event) {
	q.events = append(q.events, ev)
}

// Dequeue removes and returns the oldest event or nil.
func (q *Events) Dequeue() *core.Event {
	if len(q.events) == 0 {
		return nil
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev
}

// Len returns the number of queued events.
func (q *Events) Len() int {
	return len(q.events)
}

// External is a thread-safe FIFO of events.  This queue is the one
// boundary where other goroutines may hand events to an engine.
type External struct {
	sync.Mutex

	cond   *sync.Cond
	events []*core.Event
	kicked bool
	closed bool
}

// NewExternal makes an empty external queue.
func NewExternal() *External {
	q := &External{}
	q.cond = sync.NewCond(&q.Mutex)
	return q
}

// Enqueue appends an event and wakes any blocked Dequeue.  Enqueueing
// to a closed queue drops the event.
func (q *External) Enqueue(ev *core.Event) {
	q.Lock()
	if !q.closed {
		q.events = append(q.events, ev)
	}
	q.Unlock()
	q.cond.Broadcast()
}

// Dequeue removes and returns the oldest event.
//
// With blocking false, an empty queue yields nil immediately.  With
// blocking true, the call waits until an event arrives, the queue is
// kicked or closed, or the context is done.  A nil return from a
// blocking call means "no event" (the empty sentinel), not an error.
func (q *External) Dequeue(ctx context.Context, blocking bool) *core.Event {
	if blocking && ctx != nil {
		// A context cancellation must unblock the wait.
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				q.Kick()
			case <-done:
			}
		}()
	}

	q.Lock()
	defer q.Unlock()

	for {
		if 0 < len(q.events) {
			ev := q.events[0]
			q.events = q.events[1:]
			return ev
		}
		if !blocking || q.closed || q.kicked {
			q.kicked = false
			return nil
		}
		if ctx != nil && ctx.Err() != nil {
			return nil
		}
		q.cond.Wait()
	}
}

// Kick wakes one blocked Dequeue with no event.  Use it to make a
// blocked engine observe cancellation.
func (q *External) Kick() {
	q.Lock()
	q.kicked = true
	q.Unlock()
	q.cond.Broadcast()
}

// Close shuts the queue: pending events remain dequeueable, new ones
// are dropped, and blocked Dequeues return nil.
func (q *External) Close() {
	q.Lock()
	q.closed = true
	q.Unlock()
	q.cond.Broadcast()
}

// Len returns the number of queued events.
func (q *External) Len() int {
	q.Lock()
	defer q.Unlock()
	return len(q.events)
}
