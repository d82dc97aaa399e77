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
	"context"
	"encoding/json"
	"log"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/statechart/scxml/core"
)

// WebSocketCoupling connects a chart to a WebSocket server: incoming
// JSON messages become external events, and emitted events are
// written back out.
type WebSocketCoupling struct {
	URL string

	c    *Coupler
	conn *websocket.Conn
	out  chan *core.Event
}

// NewWebSocketCoupling makes a coupling for the given coupler.
func NewWebSocketCoupling(c *Coupler, rawURL string) *WebSocketCoupling {
	w := &WebSocketCoupling{
		URL: rawURL,
		c:   c,
		out: make(chan *core.Event, 16),
	}
	c.Emitter = func(ev *core.Event) {
		w.out <- ev
	}
	return w
}

// Start creates the WebSocket session and starts processing it.
func (w *WebSocketCoupling) Start(ctx context.Context) error {

	u, err := url.Parse(w.URL)
	if err != nil {
		return err
	}

	log.Println("wsconnect", u.String())
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	w.conn = conn

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, bs, err := conn.ReadMessage()
			if err != nil {
				log.Println("ws ReadMessage", err)
				w.c.Cancel()
				return
			}
			if len(bs) == 0 {
				continue
			}

			var ev core.Event
			if err = json.Unmarshal(bs, &ev); err != nil {
				log.Println("ws Unmarshal", err, string(bs))
				continue
			}
			w.c.In(&ev)
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case ev := <-w.out:
				js, err := json.Marshal(ev)
				if err != nil {
					log.Println("ws Marshal", err)
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, js); err != nil {
					log.Println("ws WriteMessage", err)
					return
				}
			}
		}
	}()

	return nil
}
