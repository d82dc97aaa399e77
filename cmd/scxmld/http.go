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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/statechart/scxml/core"
)

// Jar wraps a cookie jar for the outbound event sender.
type Jar struct {
	*cookiejar.Jar
}

func NewJar() (*Jar, error) {
	cookieJar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Jar{Jar: cookieJar}, nil
}

// HTTPSender posts emitted events to http(s) send targets: the
// event, as JSON, is the request body.
type HTTPSender struct {
	// Timeout bounds one POST.
	Timeout time.Duration

	jar    *Jar
	client *http.Client
}

func NewHTTPSender() (*HTTPSender, error) {
	jar, err := NewJar()
	if err != nil {
		return nil, err
	}
	return &HTTPSender{
		Timeout: 10 * time.Second,
		jar:     jar,
		client: &http.Client{
			Jar: jar.Jar,
		},
	}, nil
}

// CanSend reports whether the event's target is one this sender
// handles.
func (s *HTTPSender) CanSend(ev *core.Event) bool {
	u, err := url.Parse(ev.Origin)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Send posts the event.  The response body is discarded; a non-2xx
// status is only logged, since nobody is waiting.
func (s *HTTPSender) Send(ctx context.Context, ev *core.Event) {
	js, err := json.Marshal(ev)
	if err != nil {
		log.Printf("httpsender can't marshal %v: %s", ev, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", ev.Origin, bytes.NewReader(js))
	if err != nil {
		log.Printf("httpsender bad target %q: %s", ev.Origin, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("httpsender POST %s: %s", ev.Origin, err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		log.Printf("httpsender POST %s: %s", ev.Origin, resp.Status)
	}
}
