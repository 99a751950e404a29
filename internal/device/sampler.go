// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// counterSource is a backend whose counters wrap and must therefore be
// sampled periodically while a measurement is running.
type counterSource interface {
	Name() string
	// Init probes the hardware. It is called at most once.
	Init() error
	Snapshot() (Reading, error)
	// Delta returns the wrap corrected energy consumed between two snapshots
	Delta(prev, curr Reading) Energy
	Close() error
}

type sessionState int

const (
	stateIdle sessionState = iota
	stateRunning
	stateStopped
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateStopped:
		return "stopped"
	}
	return "unknown"
}

// sampledMeter turns a counterSource into an EnergyMeter by accumulating
// deltas on a timer that fires more often than the counters can wrap.
type sampledMeter struct {
	logger   *slog.Logger
	clock    clock.WithTicker
	interval time.Duration
	source   counterSource

	initOnce sync.Once
	initErr  error

	mu       sync.Mutex
	state    sessionState
	previous Reading
	total    Energy
	err      error
	ticks    int
	closed   bool

	cancel chan struct{}
	done   chan struct{}
}

var _ EnergyMeter = (*sampledMeter)(nil)

func newSampledMeter(source counterSource, interval time.Duration, c clock.WithTicker, logger *slog.Logger) *sampledMeter {
	return &sampledMeter{
		logger:   logger.With("service", "sampler", "backend", source.Name()),
		clock:    c,
		interval: interval,
		source:   source,
	}
}

func (s *sampledMeter) Name() string {
	return s.source.Name()
}

func (s *sampledMeter) Init() error {
	if s.isClosed() {
		return ErrClosed
	}
	s.initOnce.Do(func() {
		s.initErr = s.source.Init()
		if s.initErr != nil {
			s.logger.Debug("Backend not supported", "error", s.initErr)
		}
	})
	return s.initErr
}

func (s *sampledMeter) IsSupported() bool {
	return s.Init() == nil
}

// Start takes the initial snapshot and schedules periodic sampling
func (s *sampledMeter) Start() error {
	if err := s.Init(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.state == stateRunning {
		return ErrAlreadyStarted
	}

	initial, err := s.source.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to take initial snapshot: %w", counterReadError(err))
	}

	s.previous = initial
	s.total = 0
	s.err = nil
	s.ticks = 0
	s.state = stateRunning
	s.cancel = make(chan struct{})
	s.done = make(chan struct{})

	timer := s.clock.NewTimer(s.interval)
	go s.run(timer, s.cancel, s.done)

	s.logger.Debug("Energy measurement started", "interval", s.interval)
	return nil
}

func (s *sampledMeter) run(timer clock.Timer, cancel <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer timer.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-timer.C():
			if !s.tick() {
				return
			}
			timer.Reset(s.interval)
		}
	}
}

// tick accumulates one sample and reports whether sampling should continue
func (s *sampledMeter) tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateRunning || s.err != nil {
		return false
	}
	if err := s.measure(); err != nil {
		s.logger.Error("Sampling stopped after counter read failure", "error", err)
		return false
	}
	s.ticks++
	return true
}

// measure must be called with mu held
func (s *sampledMeter) measure() error {
	curr, err := s.source.Snapshot()
	if err != nil {
		s.err = counterReadError(err)
		return s.err
	}
	d := s.source.Delta(s.previous, curr)
	s.total += d
	s.previous = curr
	s.logger.Debug("Energy sample", "delta", d, "total", s.total)
	return nil
}

// Stop takes the final sample and waits for the sampling goroutine to exit
func (s *sampledMeter) Stop() error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}

	close(s.cancel)
	if s.err == nil {
		_ = s.measure()
	}
	s.previous = nil
	s.state = stateStopped
	err := s.err
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Debug("Energy measurement stopped", "energy", s.total, "error", err)
	return err
}

// Energy returns the energy of the last completed session
func (s *sampledMeter) Energy() (Energy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateIdle:
		return 0, ErrNoSession
	case stateRunning:
		return 0, ErrSessionRunning
	}
	if s.err != nil {
		return 0, s.err
	}
	return s.total, nil
}

// Close ends a running session and releases the source. The meter cannot
// be started again; the energy of the last session stays readable.
func (s *sampledMeter) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	running := s.state == stateRunning
	s.mu.Unlock()

	if running {
		if err := s.Stop(); err != nil {
			s.logger.Warn("Energy measurement failed while closing", "error", err)
		}
	}
	return s.source.Close()
}

func counterReadError(err error) error {
	if errors.Is(err, ErrCounterRead) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCounterRead, err)
}

func (s *sampledMeter) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *sampledMeter) tickCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}
