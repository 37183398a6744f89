// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package outbound

import (
	"context"
	"time"

	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/schema"
)

// TopicResolver supplies the plant name, hierarchy path segments and
// characteristic name a given characteristic id belongs to, so the
// publisher can build its Unified Namespace topic without owning a
// database connection itself.
type TopicResolver interface {
	TopicPath(ctx context.Context, charID int64) (plant string, hierarchyPath []string, charName string, err error)
}

// BrokerConfig is one outbound-enabled broker registration.
type BrokerConfig struct {
	BrokerID     int64
	TopicPrefix  string
	Format       Format
	MinInterval  time.Duration
	Sender       BrokerSender
}

// Publisher is the second eventbus sink: it re-publishes the four
// canonical events to every registered outbound broker under the
// Unified Namespace topic pattern, rate-limited per (broker,
// characteristic).
type Publisher struct {
	resolver TopicResolver
	brokers  map[int64]BrokerConfig
	gate     *rateGate
	logger   *log.ComponentLogger
}

// New builds an empty publisher. Register brokers with AddBroker
// before events start flowing.
func New(resolver TopicResolver) *Publisher {
	return &Publisher{
		resolver: resolver,
		brokers:  map[int64]BrokerConfig{},
		gate:     newRateGate(),
		logger:   log.Component("OUTBOUND"),
	}
}

// AddBroker registers (or replaces) an outbound broker.
func (p *Publisher) AddBroker(cfg BrokerConfig) {
	p.brokers[cfg.BrokerID] = cfg
	p.gate.setMinInterval(cfg.BrokerID, cfg.MinInterval)
}

// Dispatch implements the eventbus.Handler shape, fanning one event
// out to every registered broker.
func (p *Publisher) Dispatch(e schema.Event) error {
	ctx := context.Background()

	charID, eventName, numeric, metricName, ok := describe(e)
	if !ok {
		return nil
	}

	plant, path, charName, err := p.resolver.TopicPath(ctx, charID)
	if err != nil {
		p.logger.Warnf("topic resolution failed for characteristic %d: %v", charID, err)
		return err
	}

	var firstErr error
	for _, broker := range p.brokers {
		if !p.gate.allow(broker.BrokerID, charID) {
			continue
		}
		topic := buildTopic(broker.TopicPrefix, plant, path, charName, eventName)
		payload, err := encodePayload(broker.Format, eventName, e, numeric, metricName)
		if err != nil {
			p.logger.Warnf("encode failed for broker %d: %v", broker.BrokerID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := broker.Sender.Publish(topic, payload); err != nil {
			p.logger.Warnf("publish to broker %d on %q failed: %v", broker.BrokerID, topic, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// describe extracts the topic-relevant fields from one of the four
// event classes. ok is false for any event class not meant to leave
// the bus outbound.
func describe(e schema.Event) (charID int64, eventName string, numeric float64, metricName string, ok bool) {
	switch evt := e.(type) {
	case schema.SampleProcessedEvent:
		return evt.CharacteristicID, "sample", evt.Mean, "mean", true
	case schema.ControlLimitsUpdatedEvent:
		return evt.CharacteristicID, "limits", evt.CenterLine, "center_line", true
	case schema.ViolationCreatedEvent:
		return evt.Violation.CharacteristicID, "violation", float64(evt.Violation.RuleID), "rule_id", true
	case schema.ViolationAcknowledgedEvent:
		return evt.Violation.CharacteristicID, "ack", float64(evt.Violation.RuleID), "rule_id", true
	}
	return 0, "", 0, "", false
}

// RunPruneLoop periodically drops rate-limit entries idle for longer
// than maxAge, so a characteristic that stops publishing doesn't keep
// its token bucket alive forever. It runs until ctx is cancelled.
func (p *Publisher) RunPruneLoop(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.gate.pruneStale(maxAge); n > 0 {
				p.logger.Debugf("pruned %d stale rate-limit entries", n)
			}
		}
	}
}
