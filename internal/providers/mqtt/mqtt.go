// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mqtt is the tag-based ingress provider: one broker
// connection serving every characteristic bound to it through an MQTT
// data source. Its connection/reconnect bookkeeping generalises the
// pkg/nats.Client pattern from one subscription to N topic and N
// trigger-tag subscriptions.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/schema"
)

// Config mirrors the NATS client's connection-config shape, generalised
// to MQTT's broker/port/credential fields.
type Config struct {
	BrokerID          int64
	Address           string
	Username          string
	Password          string
	ClientID          string
	MaxReconnectDelay time.Duration
	ConnectTimeout    time.Duration
}

// Pusher is the subgroup buffer this provider feeds each decoded
// reading into, keyed by the characteristic it targets.
type Pusher interface {
	Push(charID int64, value float64, ctx schema.SampleContext)
}

// binding is one characteristic's claim on a topic: which metric name
// (for Sparkplug fan-out) it selects, or nil for a plain-float topic
// where every char on the topic receives the value.
type binding struct {
	characteristicID int64
	metricName       *string
}

// Provider is one MQTT broker connection serving every bound
// characteristic's data source.
type Provider struct {
	cfg     Config
	pusher  Pusher
	decoder SparkplugDecoder
	logger  *log.ComponentLogger

	mu           sync.Mutex
	client       paho.Client
	topicBinds   map[string][]binding
	triggerBinds map[string][]int64 // trigger_tag -> characteristic ids using on_trigger
	triggerFn    func(charID int64)
}

// New builds an unconnected provider. triggerFn is invoked when a
// trigger_tag message arrives for an on_trigger-bound characteristic.
func New(cfg Config, pusher Pusher, triggerFn func(charID int64)) *Provider {
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = 2 * time.Minute
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &Provider{
		cfg:          cfg,
		pusher:       pusher,
		decoder:      jsonMetricSetDecoder{},
		logger:       log.Component("MQTT"),
		topicBinds:   map[string][]binding{},
		triggerBinds: map[string][]int64{},
		triggerFn:    triggerFn,
	}
}

// WithDecoder overrides the default Sparkplug decoder, e.g. with a real
// protobuf-backed one.
func (p *Provider) WithDecoder(d SparkplugDecoder) *Provider {
	p.decoder = d
	return p
}

// Bind registers one characteristic's MQTT data source before Connect
// is called, or while connected to add/restore a subscription.
func (p *Provider) Bind(spec schema.MqttSourceSpec, charID int64, strategy schema.TriggerStrategy) {
	p.mu.Lock()
	p.topicBinds[spec.Topic] = append(p.topicBinds[spec.Topic], binding{
		characteristicID: charID,
		metricName:       spec.MetricName,
	})
	if strategy == schema.OnTrigger && spec.TriggerTag != nil {
		p.triggerBinds[*spec.TriggerTag] = append(p.triggerBinds[*spec.TriggerTag], charID)
	}
	connected := p.client != nil && p.client.IsConnected()
	p.mu.Unlock()

	if connected {
		p.subscribeTopic(spec.Topic)
		if spec.TriggerTag != nil {
			p.subscribeTopic(*spec.TriggerTag)
		}
	}
}

// Connect dials the broker and subscribes to every topic and
// trigger_tag bound so far. paho's own exponential backoff (capped by
// MaxReconnectDelay) handles reconnection; OnConnect re-subscribes
// everything, restoring state after a broker bounce.
func (p *Provider) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(p.cfg.Address).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(p.cfg.MaxReconnectDelay).
		SetConnectTimeout(p.cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warnf("broker %d disconnected: %v", p.cfg.BrokerID, err)
		}).
		SetOnConnectHandler(func(c paho.Client) {
			p.logger.Infof("broker %d connected, restoring subscriptions", p.cfg.BrokerID)
			p.resubscribeAll()
		})

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(p.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt broker %d: connect timed out", p.cfg.BrokerID)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt broker %d: %w", p.cfg.BrokerID, err)
	}
	return nil
}

// Disconnect closes the broker connection, waiting up to 250ms to drain
// in-flight acks.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	c := p.client
	p.mu.Unlock()
	if c != nil {
		c.Disconnect(250)
	}
}

func (p *Provider) resubscribeAll() {
	p.mu.Lock()
	topics := make([]string, 0, len(p.topicBinds))
	for t := range p.topicBinds {
		topics = append(topics, t)
	}
	tags := make([]string, 0, len(p.triggerBinds))
	for t := range p.triggerBinds {
		tags = append(tags, t)
	}
	p.mu.Unlock()

	for _, t := range topics {
		p.subscribeTopic(t)
	}
	for _, t := range tags {
		p.subscribeTopic(t)
	}
}

func (p *Provider) subscribeTopic(topic string) {
	p.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		p.onMessage(msg.Topic(), msg.Payload())
	})
	p.logger.Infof("subscribed to %q", topic)
}

// onMessage decodes one broker message and dispatches it to every
// characteristic bound to it. Unparseable payloads are dropped with a
// warning rather than propagated as errors, since there is no caller to
// return them to.
func (p *Provider) onMessage(topic string, payload []byte) {
	p.mu.Lock()
	charIDsForTag, isTag := p.triggerBinds[topic]
	binds := p.topicBinds[topic]
	p.mu.Unlock()

	if isTag {
		for _, id := range charIDsForTag {
			if p.triggerFn != nil {
				p.triggerFn(id)
			}
		}
		return
	}

	ctx := schema.SampleContext{Source: schema.SampleSourceTag}

	if isSparkplugTopic(topic) {
		metrics, err := p.decoder.Decode(payload)
		if err != nil {
			p.logger.Warnf("topic %q: sparkplug decode failed: %v", topic, err)
			return
		}
		for _, m := range metrics {
			for _, b := range binds {
				if b.metricName != nil && *b.metricName == m.Name {
					p.pusher.Push(b.characteristicID, m.Value, ctx)
				}
			}
		}
		return
	}

	value, err := parsePlainPayload(payload)
	if err != nil {
		p.logger.Warnf("topic %q: %v", topic, err)
		return
	}
	for _, b := range binds {
		p.pusher.Push(b.characteristicID, value, ctx)
	}
}
