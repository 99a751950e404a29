// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"sync"
)

// recorder keeps the lifecycle calls of several services in call order
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.list() {
		if e == event {
			n++
		}
	}
	return n
}

// fakeService records "<name>:<call>" for every lifecycle call. The
// wrapper types below pick which lifecycle interfaces it exposes.
type fakeService struct {
	name        string
	rec         *recorder
	initErr     error
	shutdownErr error
	runFn       func(ctx context.Context) error
}

func (f *fakeService) Name() string {
	return f.name
}

func (f *fakeService) init() error {
	f.rec.add(f.name + ":init")
	return f.initErr
}

func (f *fakeService) run(ctx context.Context) error {
	f.rec.add(f.name + ":run")
	if f.runFn == nil {
		return nil
	}
	return f.runFn(ctx)
}

func (f *fakeService) shutdown() error {
	f.rec.add(f.name + ":shutdown")
	return f.shutdownErr
}

type initOnly struct{ *fakeService }

func (s initOnly) Init() error { return s.init() }

type initShutdown struct{ *fakeService }

func (s initShutdown) Init() error     { return s.init() }
func (s initShutdown) Shutdown() error { return s.shutdown() }

type runOnly struct{ *fakeService }

func (s runOnly) Run(ctx context.Context) error { return s.run(ctx) }

type runShutdown struct{ *fakeService }

func (s runShutdown) Run(ctx context.Context) error { return s.run(ctx) }
func (s runShutdown) Shutdown() error               { return s.shutdown() }

// untilCancelled blocks until ctx is done and records that it was
func untilCancelled(rec *recorder, name string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		<-ctx.Done()
		rec.add(name + ":cancelled")
		return ctx.Err()
	}
}
