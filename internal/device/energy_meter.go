// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"k8s.io/utils/clock"
)

// EnergyMeter measures the energy consumed by the machine between Start
// and Stop.
type EnergyMeter interface {
	// Name returns the backend name: perf, powercap or msr
	Name() string

	// Init probes the backend once. The result is cached; an error
	// wrapping ErrUnsupported means the backend cannot be used here.
	Init() error

	// IsSupported reports whether Init succeeded
	IsSupported() bool

	// Start begins a measurement session, discarding any previous result
	Start() error

	// Stop ends the session. Energy is valid once Stop returns.
	Stop() error

	// Energy returns the energy consumed by the last stopped session
	Energy() (Energy, error)

	// Close releases all hardware handles, stopping a running session
	Close() error
}

const (
	BackendPerf     = "perf"
	BackendPowercap = "powercap"
	BackendMSR      = "msr"

	// sampling periods well below the ~60s it takes a 32 bit package
	// counter to wrap under sustained load
	DefaultMSRInterval      = 10 * time.Second
	DefaultPowercapInterval = 30 * time.Second
)

// DefaultBackends is the order in which backends are preferred
var DefaultBackends = []string{BackendPerf, BackendPowercap, BackendMSR}

type Opts struct {
	logger        *slog.Logger
	clock         clock.WithTicker
	procfsPath    string
	sysfsPath     string
	msrDevicePath string
	interval      time.Duration
	perfOpener    perfEventOpener
}

// DefaultOpts returns the options used by every constructor. A zero
// interval selects the backend's own default.
func DefaultOpts() Opts {
	return Opts{
		logger:        slog.Default(),
		clock:         clock.RealClock{},
		procfsPath:    "/proc",
		sysfsPath:     "/sys",
		msrDevicePath: "/dev/cpu/%d/msr",
		perfOpener:    syscallPerfOpener{},
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock driving the sampling timers
func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

func WithProcFSPath(path string) OptionFn {
	return func(o *Opts) {
		o.procfsPath = path
	}
}

func WithSysFSPath(path string) OptionFn {
	return func(o *Opts) {
		o.sysfsPath = path
	}
}

// WithMSRDevicePath sets the printf template of the per-CPU MSR device
func WithMSRDevicePath(path string) OptionFn {
	return func(o *Opts) {
		o.msrDevicePath = path
	}
}

// WithInterval sets the sampling period of the msr and powercap backends
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = d
	}
}

func withPerfOpener(op perfEventOpener) OptionFn {
	return func(o *Opts) {
		o.perfOpener = op
	}
}

func buildOpts(applyOpts []OptionFn) Opts {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}
	return opts
}

func intervalOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// NewMSRMeter returns a meter reading RAPL model specific registers.
// It needs the msr kernel module and read access to /dev/cpu/*/msr.
func NewMSRMeter(applyOpts ...OptionFn) EnergyMeter {
	opts := buildOpts(applyOpts)
	src := newMSRReader(opts.msrDevicePath, opts.procfsPath, opts.sysfsPath, opts.logger)
	return newSampledMeter(src, intervalOr(opts.interval, DefaultMSRInterval), opts.clock, opts.logger)
}

// NewPowercapMeter returns a meter reading the powercap intel-rapl zones
func NewPowercapMeter(applyOpts ...OptionFn) EnergyMeter {
	opts := buildOpts(applyOpts)
	src := newPowercapReader(opts.sysfsPath, opts.logger)
	return newSampledMeter(src, intervalOr(opts.interval, DefaultPowercapInterval), opts.clock, opts.logger)
}

// NewPerfMeter returns a meter using the perf power PMU
func NewPerfMeter(applyOpts ...OptionFn) EnergyMeter {
	opts := buildOpts(applyOpts)
	return newPerfMeter(opts.sysfsPath, opts.perfOpener, opts.logger)
}

// NewEnergyMeters builds meters for the named backends in the given order.
// An empty list selects DefaultBackends. Intervals apply per backend.
func NewEnergyMeters(backends []string, msrInterval, powercapInterval time.Duration, applyOpts ...OptionFn) ([]EnergyMeter, error) {
	if len(backends) == 0 {
		backends = DefaultBackends
	}

	meters := make([]EnergyMeter, 0, len(backends))
	for _, b := range backends {
		switch strings.ToLower(strings.TrimSpace(b)) {
		case BackendPerf:
			meters = append(meters, NewPerfMeter(applyOpts...))
		case BackendPowercap:
			meters = append(meters, NewPowercapMeter(append(applyOpts, WithInterval(powercapInterval))...))
		case BackendMSR:
			meters = append(meters, NewMSRMeter(append(applyOpts, WithInterval(msrInterval))...))
		default:
			return nil, fmt.Errorf("unknown energy backend %q", b)
		}
	}
	return meters, nil
}

// SelectEnergyMeter returns the first supported meter and closes all others.
// It returns an error wrapping ErrUnsupported if none is supported.
func SelectEnergyMeter(logger *slog.Logger, meters ...EnergyMeter) (EnergyMeter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var selected EnergyMeter
	var tried []string
	for _, m := range meters {
		if selected == nil {
			err := m.Init()
			if err == nil {
				selected = m
				logger.Info("Selected energy backend", "backend", m.Name())
				continue
			}
			logger.Info("Energy backend not supported", "backend", m.Name(), "reason", err)
			tried = append(tried, m.Name())
		}
		if err := m.Close(); err != nil {
			logger.Warn("Failed to close energy backend", "backend", m.Name(), "error", err)
		}
	}

	if selected == nil {
		return nil, fmt.Errorf("%w: no usable backend among [%s]", ErrUnsupported, strings.Join(tried, ", "))
	}
	return selected, nil
}
