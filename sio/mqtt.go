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

package sio

import (
	"context"
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/statechart/scxml/core"
)

// MQTTCoupling connects a chart to an MQTT broker: messages on the
// subscribed topics become external events, and emitted events are
// published.
type MQTTCoupling struct {
	// Broker is the broker address ("tcp://localhost:1883").
	Broker string

	// ClientID is the MQTT client id.
	ClientID string

	// SubTopic is the subscription topic (possibly with
	// wildcards).
	SubTopic string

	// PubTopic is where emitted events go.
	PubTopic string

	// QoS for both directions.
	QoS byte

	// Quiesce is the disconnection quiescence in milliseconds.
	Quiesce uint

	client mqtt.Client
	c      *Coupler
}

// NewMQTTCoupling makes a coupling for the given coupler.
func NewMQTTCoupling(c *Coupler, broker, clientID, subTopic, pubTopic string) *MQTTCoupling {
	m := &MQTTCoupling{
		Broker:   broker,
		ClientID: clientID,
		SubTopic: subTopic,
		PubTopic: pubTopic,
		Quiesce:  100,
		c:        c,
	}
	c.Emitter = func(ev *core.Event) {
		m.publish(ev)
	}
	return m
}

// Start connects, subscribes, and starts routing messages.
func (m *MQTTCoupling) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.Broker)
	opts.SetClientID(m.ClientID)
	opts.SetKeepAlive(10 * time.Second)

	m.client = mqtt.NewClient(opts)
	if t := m.client.Connect(); t.Wait() && t.Error() != nil {
		return t.Error()
	}

	handler := func(client mqtt.Client, msg mqtt.Message) {
		bs := msg.Payload()
		var ev core.Event
		if err := json.Unmarshal(bs, &ev); err != nil {
			log.Println("mqtt Unmarshal", err, string(bs))
			return
		}
		m.c.In(&ev)
	}

	if t := m.client.Subscribe(m.SubTopic, m.QoS, handler); t.Wait() && t.Error() != nil {
		return t.Error()
	}

	go func() {
		<-ctx.Done()
		m.client.Disconnect(m.Quiesce)
	}()

	return nil
}

func (m *MQTTCoupling) publish(ev *core.Event) {
	js, err := json.Marshal(ev)
	if err != nil {
		log.Println("mqtt Marshal", err)
		return
	}
	topic := m.PubTopic
	if ev.Origin != "" && ev.Origin != "#_scxml_self" {
		// A send target names the topic directly.
		topic = ev.Origin
	}
	if t := m.client.Publish(topic, m.QoS, false, js); t.Wait() && t.Error() != nil {
		log.Println("mqtt Publish", t.Error())
	}
}
