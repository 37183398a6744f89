// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package eventbus is a process-local, class-keyed publish/subscribe
// bus for the four canonical domain events. It is a non-blocking
// broadcast bus: Publish spawns one goroutine per handler and returns;
// PublishAndWait additionally joins on all of them and collects
// per-handler errors/panics without propagating them to the caller.
package eventbus

import (
	"fmt"
	"sync"

	"github.com/openspc/openspc/pkg/log"
	"github.com/openspc/openspc/pkg/schema"
)

// Handler processes one published event. A returned error or a panic
// is logged and isolated: it never reaches other handlers or the
// publisher.
type Handler func(schema.Event) error

// Bus dispatches events to handlers subscribed to their EventClass.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	wg       sync.WaitGroup

	logger *log.ComponentLogger
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   log.Component("EVENTBUS"),
	}
}

// Subscribe registers h to be invoked for every future event whose
// EventClass() == class.
func (b *Bus) Subscribe(class string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[class] = append(b.handlers[class], h)
}

func (b *Bus) handlersFor(e schema.Event) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := b.handlers[e.EventClass()]
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

// Publish dispatches e to every subscribed handler in its own
// goroutine and returns immediately; the publisher never waits for a
// handler to complete.
func (b *Bus) Publish(e schema.Event) {
	for _, h := range b.handlersFor(e) {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			b.runIsolated(e, h)
		}(h)
	}
}

// PublishAndWait dispatches e to every subscribed handler concurrently
// and blocks until all have returned, collecting the errors (if any)
// that each handler produced. An empty slice means every handler
// succeeded.
func (b *Bus) PublishAndWait(e schema.Event) []error {
	handlers := b.handlersFor(e)
	errs := make([]error, len(handlers))

	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for i, h := range handlers {
		go func(i int, h Handler) {
			defer wg.Done()
			errs[i] = b.runIsolatedErr(e, h)
		}(i, h)
	}
	wg.Wait()

	out := errs[:0]
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// Shutdown waits for all outstanding fire-and-forget Publish handler
// goroutines to drain.
func (b *Bus) Shutdown() {
	b.wg.Wait()
}

func (b *Bus) runIsolated(e schema.Event, h Handler) {
	if err := b.runIsolatedErr(e, h); err != nil {
		b.logger.Errorf("handler error for %s: %v", e.EventClass(), err)
	}
}

// runIsolatedErr recovers a handler panic into an error so a single
// misbehaving handler never takes down the publishing goroutine or
// blocks its siblings.
func (b *Bus) runIsolatedErr(e schema.Event, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(e)
}
