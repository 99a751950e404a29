// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package measure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hep-benchmarks/hepscore-energy/internal/device"
	"github.com/hep-benchmarks/hepscore-energy/internal/service"
	"k8s.io/utils/clock"
)

// Session measures the energy used by one workload: the energy meter is
// started right before the workload is launched and stopped right after
// it exits. Energy measurement never fails the workload; an unsupported
// machine simply yields a result without energy.
type Session struct {
	logger    *slog.Logger
	clock     clock.PassiveClock
	meters    []device.EnergyMeter
	launcher  Launcher
	command   []string
	reporters []Reporter

	// runMu is held for the whole of Run so Shutdown cannot close the
	// meter underneath a running measurement
	runMu sync.Mutex
	meter device.EnergyMeter

	mu     sync.Mutex
	result *Result
}

var (
	_ service.Initializer = (*Session)(nil)
	_ service.Runner      = (*Session)(nil)
	_ service.Shutdowner  = (*Session)(nil)
)

type Opts struct {
	logger    *slog.Logger
	clock     clock.PassiveClock
	launcher  Launcher
	reporters []Reporter
}

// DefaultOpts returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		clock:  clock.RealClock{},
		launcher: &ExecLauncher{
			Stdout:      os.Stdout,
			Stderr:      os.Stderr,
			GracePeriod: 10 * time.Second,
		},
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithClock(c clock.PassiveClock) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

func WithLauncher(l Launcher) OptionFn {
	return func(o *Opts) {
		o.launcher = l
	}
}

// WithReporters adds reporters that receive the result once the run ends
func WithReporters(r ...Reporter) OptionFn {
	return func(o *Opts) {
		o.reporters = append(o.reporters, r...)
	}
}

// NewSession returns a session running command. meters are candidate
// backends in order of preference; the first supported one is used.
func NewSession(command []string, meters []device.EnergyMeter, applyOpts ...OptionFn) *Session {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Session{
		logger:    opts.logger.With("service", "measure"),
		clock:     opts.clock,
		meters:    meters,
		launcher:  opts.launcher,
		command:   command,
		reporters: opts.reporters,
	}
}

func (s *Session) Name() string {
	return "measure"
}

// Init selects the energy backend. No supported backend is not an error.
func (s *Session) Init() error {
	if len(s.command) == 0 {
		return errors.New("no workload command given")
	}

	meter, err := device.SelectEnergyMeter(s.logger, s.meters...)
	switch {
	case err == nil:
		s.meter = meter
	case errors.Is(err, device.ErrUnsupported):
		s.logger.Warn("Energy measurement not supported; the workload runs without it", "reason", err)
	default:
		return fmt.Errorf("failed to select energy backend: %w", err)
	}
	return nil
}

// Run measures one run of the workload and hands the result to every
// reporter. It returns an error only when the workload could not be
// launched or a reporter failed.
func (s *Session) Run(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	res := Result{Command: s.command}
	if s.meter != nil {
		res.Backend = s.meter.Name()
	}

	metering := false
	if s.meter != nil {
		if err := s.meter.Start(); err != nil {
			s.logger.Error("Failed to start energy measurement", "backend", res.Backend, "error", err)
			res.EnergyErr = err
		} else {
			metering = true
		}
	}

	res.StartedAt = s.clock.Now()
	s.logger.Info("Launching workload", "command", res.CommandLine())
	exitCode, launchErr := s.launcher.Launch(ctx, s.command)
	res.Duration = s.clock.Since(res.StartedAt)
	res.ExitCode = exitCode

	if metering {
		res.Energy, res.EnergyErr = s.stopMeter()
	}

	if launchErr != nil {
		s.logger.Error("Workload could not be run", "error", launchErr)
		s.setResult(res)
		return launchErr
	}

	s.logger.Info("Workload finished", "exit_code", res.ExitCode, "duration", res.Duration,
		"backend", res.Backend, "energy", res.Energy, "energy_error", res.EnergyErr)
	s.setResult(res)

	var errs []error
	for _, r := range s.reporters {
		if err := r.Report(res); err != nil {
			s.logger.Error("Failed to report result", "reporter", r.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) stopMeter() (device.Energy, error) {
	if err := s.meter.Stop(); err != nil {
		s.logger.Error("Energy measurement failed", "backend", s.meter.Name(), "error", err)
		return 0, err
	}
	e, err := s.meter.Energy()
	if err != nil {
		s.logger.Error("Energy measurement failed", "backend", s.meter.Name(), "error", err)
		return 0, err
	}
	return e, nil
}

func (s *Session) setResult(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = &r
}

// Result returns the result of the last run, false before any run ended
func (s *Session) Result() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Result{}, false
	}
	return *s.result, true
}

// Shutdown waits for a running measurement to end and releases the
// energy backend. Cancel the context given to Run to end it early.
func (s *Session) Shutdown() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.meter == nil {
		return nil
	}
	err := s.meter.Close()
	s.meter = nil
	return err
}
