// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package opcua is the node-based ingress provider: one client
// connection per configured server, one monitored item per bound
// characteristic. Unlike the MQTT provider there is no fan-out by
// name — a node id identifies exactly one characteristic.
//
// Connect dials the server once, bounded by ConnectTimeout. There is
// no reconnect loop: a lost session is not re-established, its
// monitored items are not restored, and MaxReconnectDelay is not used
// beyond being defaulted in New.
package opcua

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/monitor"

	"github.com/openspc/openspc/pkg/apperrors"
	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/schema"
)

// Config is one OPC-UA server's connection parameters.
type Config struct {
	ServerID                int64
	Endpoint                string
	SecurityPolicy          string
	SecurityMode            string
	Username                string
	Password                string
	SessionTimeout          time.Duration
	PublishingInterval      time.Duration
	DefaultSamplingInterval time.Duration
	MaxReconnectDelay       time.Duration
	ConnectTimeout          time.Duration
}

// Pusher is the subgroup buffer this provider feeds decoded DataValues
// into.
type Pusher interface {
	Push(charID int64, value float64, ctx schema.SampleContext)
}

type nodeBinding struct {
	characteristicID int64
	nodeID           string
	samplingInterval time.Duration
}

// Provider is one OPC-UA server connection.
type Provider struct {
	cfg    Config
	pusher Pusher
	logger *log.ComponentLogger

	mu    sync.Mutex
	nodes map[int64]nodeBinding

	client *opcua.Client
	mon    *monitor.NodeMonitor
	subs   []*monitor.Subscription
}

// New builds an unconnected provider for one OPC-UA server.
func New(cfg Config, pusher Pusher) *Provider {
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = 2 * time.Minute
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.DefaultSamplingInterval <= 0 {
		cfg.DefaultSamplingInterval = time.Second
	}
	return &Provider{
		cfg:    cfg,
		pusher: pusher,
		logger: log.Component("OPCUA"),
		nodes:  map[int64]nodeBinding{},
	}
}

// Bind registers one characteristic's OPC-UA node. on_trigger is
// refused: the data source is skipped with a warning rather than bound,
// since nothing in the OPC-UA model corresponds to a push trigger.
func (p *Provider) Bind(spec schema.OpcUaSourceSpec, charID int64, strategy schema.TriggerStrategy) error {
	if strategy == schema.OnTrigger {
		p.logger.Warnf("characteristic %d: on_trigger unsupported on OPC-UA source, skipping", charID)
		return apperrors.Wrap(fmt.Sprintf("characteristic %d", charID), apperrors.ErrTriggerStrategyMismatch)
	}

	interval := p.cfg.DefaultSamplingInterval
	if spec.SamplingInterval != nil {
		interval = time.Duration(*spec.SamplingInterval) * time.Millisecond
	}

	p.mu.Lock()
	p.nodes[charID] = nodeBinding{characteristicID: charID, nodeID: spec.NodeID, samplingInterval: interval}
	p.mu.Unlock()
	return nil
}

// Connect dials the server and creates one monitored-item subscription
// per bound node, each at its own sampling interval.
func (p *Provider) Connect(ctx context.Context) error {
	opts := []opcua.Option{
		opcua.SecurityPolicy(p.cfg.SecurityPolicy),
		opcua.SecurityModeString(p.cfg.SecurityMode),
	}
	if p.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(p.cfg.Username, p.cfg.Password))
	}
	if p.cfg.SessionTimeout > 0 {
		opts = append(opts, opcua.SessionTimeout(p.cfg.SessionTimeout))
	}

	client, err := opcua.NewClient(p.cfg.Endpoint, opts...)
	if err != nil {
		return fmt.Errorf("opcua server %d: build client: %w", p.cfg.ServerID, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		return fmt.Errorf("opcua server %d: connect: %w", p.cfg.ServerID, err)
	}

	mon, err := monitor.NewNodeMonitor(client)
	if err != nil {
		return fmt.Errorf("opcua server %d: node monitor: %w", p.cfg.ServerID, err)
	}

	p.mu.Lock()
	p.client = client
	p.mon = mon
	p.mu.Unlock()

	return p.subscribeAll(ctx)
}

// subscribeAll creates one subscription per bound node, grouped by
// identical sampling interval to keep the subscription count bounded.
func (p *Provider) subscribeAll(ctx context.Context) error {
	p.mu.Lock()
	byInterval := map[time.Duration][]nodeBinding{}
	for _, b := range p.nodes {
		byInterval[b.samplingInterval] = append(byInterval[b.samplingInterval], b)
	}
	p.mu.Unlock()

	for interval, binds := range byInterval {
		if err := p.subscribeGroup(ctx, interval, binds); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) subscribeGroup(ctx context.Context, interval time.Duration, binds []nodeBinding) error {
	nodeIDs := make([]string, len(binds))
	byNodeID := make(map[string]int64, len(binds))
	for i, b := range binds {
		nodeIDs[i] = b.nodeID
		byNodeID[b.nodeID] = b.characteristicID
	}

	ch := make(chan *monitor.DataChangeMessage, 16)
	sub, err := p.mon.ChanSubscribe(ctx, &opcua.SubscriptionParameters{Interval: interval}, ch, nodeIDs...)
	if err != nil {
		return fmt.Errorf("opcua server %d: subscribe: %w", p.cfg.ServerID, err)
	}

	p.mu.Lock()
	p.subs = append(p.subs, sub)
	p.mu.Unlock()

	go p.drain(ch, byNodeID)
	return nil
}

// drain reads DataChangeMessages off one subscription's channel until
// it is closed by Disconnect/Unsubscribe. Non-numeric DataValues are
// dropped.
func (p *Provider) drain(ch chan *monitor.DataChangeMessage, byNodeID map[string]int64) {
	for msg := range ch {
		if msg.Error != nil {
			p.logger.Warnf("node %s: %v", msg.NodeID, msg.Error)
			continue
		}
		charID, ok := byNodeID[msg.NodeID.String()]
		if !ok {
			continue
		}
		value, ok := asFloat(msg.Value.Value())
		if !ok {
			p.logger.Warnf("node %s: non-numeric DataValue dropped", msg.NodeID)
			continue
		}
		p.pusher.Push(charID, value, schema.SampleContext{Source: schema.SampleSourceOpcUa})
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Disconnect tears down every subscription and closes the connection.
func (p *Provider) Disconnect(ctx context.Context) {
	p.mu.Lock()
	subs := p.subs
	client := p.client
	p.subs = nil
	p.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
}
