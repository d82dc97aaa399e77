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

package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/statechart/scxml/chart"
	"github.com/statechart/scxml/core"
	"github.com/statechart/scxml/sio"
)

// Service hosts running charts and exposes them over HTTP and
// WebSockets.
//
//	GET    /charts             list chart ids
//	PUT    /charts/ID          store + start the chart in the body
//	DELETE /charts/ID          stop + remove the chart
//	WS     /events/ID          events in, emitted events out
type Service struct {
	sync.Mutex

	storage *Storage
	sender  *HTTPSender

	couplers map[string]*sio.Coupler
	cancels  map[string]context.CancelFunc
	conns    map[string]map[*websocket.Conn]bool

	upgrader websocket.Upgrader

	ctx context.Context
}

func NewService(ctx context.Context, storage *Storage) (*Service, error) {
	sender, err := NewHTTPSender()
	if err != nil {
		return nil, err
	}
	return &Service{
		storage:  storage,
		sender:   sender,
		couplers: make(map[string]*sio.Coupler),
		cancels:  make(map[string]context.CancelFunc),
		conns:    make(map[string]map[*websocket.Conn]bool),
		ctx:      ctx,
	}, nil
}

// StartStored starts every chart in the library.
func (s *Service) StartStored() error {
	recs, err := s.storage.LoadAll()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := s.Start(rec); err != nil {
			log.Printf("chart %s won't start: %s", rec.Id, err)
		}
	}
	return nil
}

// Start builds and runs one chart.
func (s *Service) Start(rec *ChartRecord) error {
	doc, err := chart.Parse([]byte(rec.Source))
	if err != nil {
		return err
	}

	c, err := sio.NewCoupler(doc, rec.Datamodel, nil)
	if err != nil {
		return err
	}

	c.Emitter = func(ev *core.Event) {
		if s.sender.CanSend(ev) {
			s.sender.Send(s.ctx, ev)
			return
		}
		s.broadcast(rec.Id, ev)
	}

	ctx, cancel := context.WithCancel(s.ctx)

	s.Lock()
	if old, have := s.cancels[rec.Id]; have {
		old()
	}
	s.couplers[rec.Id] = c
	s.cancels[rec.Id] = cancel
	s.Unlock()

	go func() {
		if err := c.Run(ctx); err != nil {
			log.Printf("chart %s: %s", rec.Id, err)
		}
	}()

	return nil
}

// Stop cancels a running chart.
func (s *Service) Stop(id string) {
	s.Lock()
	defer s.Unlock()
	if cancel, have := s.cancels[id]; have {
		cancel()
		delete(s.cancels, id)
		delete(s.couplers, id)
	}
}

func (s *Service) coupler(id string) *sio.Coupler {
	s.Lock()
	defer s.Unlock()
	return s.couplers[id]
}

func (s *Service) broadcast(id string, ev *core.Event) {
	js, err := json.Marshal(ev)
	if err != nil {
		log.Printf("broadcast can't marshal %v: %s", ev, err)
		return
	}
	s.Lock()
	defer s.Unlock()
	for conn := range s.conns[id] {
		if err := conn.WriteMessage(websocket.TextMessage, js); err != nil {
			conn.Close()
			delete(s.conns[id], conn)
		}
	}
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/charts" && r.Method == http.MethodGet:
		s.listCharts(w, r)
	case strings.HasPrefix(r.URL.Path, "/charts/"):
		s.chartOp(w, r, strings.TrimPrefix(r.URL.Path, "/charts/"))
	case strings.HasPrefix(r.URL.Path, "/events/"):
		s.events(w, r, strings.TrimPrefix(r.URL.Path, "/events/"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Service) listCharts(w http.ResponseWriter, r *http.Request) {
	recs, err := s.storage.LoadAll()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.Id)
	}
	json.NewEncoder(w).Encode(ids)
}

func (s *Service) chartOp(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodPut:
		bs, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec := &ChartRecord{
			Id:        id,
			Source:    string(bs),
			Datamodel: r.URL.Query().Get("datamodel"),
		}
		if err := s.storage.Save(rec); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := s.Start(rec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)

	case http.MethodDelete:
		s.Stop(id)
		if err := s.storage.Remove(id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) events(w http.ResponseWriter, r *http.Request, id string) {
	c := s.coupler(id)
	if c == nil {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade: %s", err)
		return
	}

	s.Lock()
	if s.conns[id] == nil {
		s.conns[id] = make(map[*websocket.Conn]bool)
	}
	s.conns[id][conn] = true
	s.Unlock()

	go func() {
		defer func() {
			s.Lock()
			delete(s.conns[id], conn)
			s.Unlock()
			conn.Close()
		}()

		for {
			_, bs, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ev, err := sio.ParseEvent(strings.TrimSpace(string(bs)))
			if err != nil {
				log.Printf("events %s can't parse %q: %s", id, bs, err)
				continue
			}
			c.In(ev)
		}
	}()
}
