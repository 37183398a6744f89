// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package outbound

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/openspc/openspc/pkg/nats"
)

// BrokerSender is the minimal publish capability an outbound broker
// backend must provide. MQTT and NATS brokers each get a thin adapter
// satisfying it below.
type BrokerSender interface {
	Publish(topic string, payload []byte) error
}

// mqttSender adapts a connected paho client to BrokerSender.
type mqttSender struct {
	client paho.Client
	qos    byte
}

// NewMQTTSender wraps an already-connected paho client for outbound
// publishing at the given QoS.
func NewMQTTSender(client paho.Client, qos byte) BrokerSender {
	return &mqttSender{client: client, qos: qos}
}

func (s *mqttSender) Publish(topic string, payload []byte) error {
	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish to %q timed out", topic)
	}
	return token.Error()
}

// natsSender adapts a connected nats.Client to BrokerSender.
type natsSender struct {
	client *nats.Client
}

// NewNATSSender wraps an already-connected NATS client for outbound
// publishing.
func NewNATSSender(client *nats.Client) BrokerSender {
	return &natsSender{client: client}
}

func (s *natsSender) Publish(topic string, payload []byte) error {
	return s.client.Publish(topic, payload)
}
