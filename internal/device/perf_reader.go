// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const (
	powerPMUPath   = "bus/event_source/devices/power"
	powerPMUJoules = "Joules"
)

var perfCandidateDomains = allDomains

// event names of the power PMU
var perfEventNames = map[Domain]string{
	DomainPackage:  "energy-pkg",
	DomainCores:    "energy-cores",
	DomainGPU:      "energy-gpu",
	DomainDRAM:     "energy-ram",
	DomainPlatform: "energy-psys",
}

// perfEvent is a RAPL event of the power PMU as described in sysfs
type perfEvent struct {
	config uint64
	scale  float64 // Joules per count
}

type openPerfCounter struct {
	counter Counter
	scale   float64
	pc      perfCounter
}

// perfMeter measures energy through the perf "power" PMU. The kernel keeps
// 64 bit accumulating counters, so no background sampling is needed.
type perfMeter struct {
	logger    *slog.Logger
	sysfsPath string
	opener    perfEventOpener

	initOnce sync.Once
	initErr  error
	pmuType  uint32
	events   map[Domain]perfEvent
	selected []Domain
	packages []packageCPU

	mu    sync.Mutex
	state sessionState
	open  []openPerfCounter
	total  Energy
	err    error
	closed bool
}

var _ EnergyMeter = (*perfMeter)(nil)

func newPerfMeter(sysfsPath string, opener perfEventOpener, logger *slog.Logger) *perfMeter {
	return &perfMeter{
		logger:    logger.With("service", "perf-reader"),
		sysfsPath: sysfsPath,
		opener:    opener,
	}
}

func (p *perfMeter) Name() string {
	return "perf"
}

func (p *perfMeter) Init() error {
	if p.isClosed() {
		return ErrClosed
	}
	p.initOnce.Do(func() {
		p.initErr = p.init()
		if p.initErr != nil {
			p.logger.Debug("Backend not supported", "error", p.initErr)
		}
	})
	return p.initErr
}

func (p *perfMeter) IsSupported() bool {
	return p.Init() == nil
}

func (p *perfMeter) init() error {
	pmuDir := filepath.Join(p.sysfsPath, powerPMUPath)

	typ, err := readSysfsString(filepath.Join(pmuDir, "type"))
	if err != nil {
		return unsupported("power PMU not available", err)
	}
	pmuType, err := strconv.ParseUint(typ, 10, 32)
	if err != nil {
		return unsupported(fmt.Sprintf("invalid power PMU type %q", typ), nil)
	}
	p.pmuType = uint32(pmuType)

	p.events = make(map[Domain]perfEvent)
	for _, d := range perfCandidateDomains {
		ev, err := readPerfEvent(filepath.Join(pmuDir, "events"), d)
		if err != nil {
			p.logger.Debug("Skipping perf domain", "domain", d, "error", err)
			continue
		}
		p.events[d] = ev
		p.logger.Debug("Found perf domain", "domain", d, "config", fmt.Sprintf("0x%x", ev.config), "scale", ev.scale)
	}

	p.selected = selectPerfDomains(p.events)
	if len(p.selected) == 0 {
		return unsupported("power PMU exposes no usable energy-pkg or energy-psys event", nil)
	}

	pkgs, err := packageCPUs(p.sysfsPath)
	if err != nil {
		p.logger.Debug("CPU topology unavailable, using CPU 0 only", "error", err)
		pkgs = []packageCPU{{Package: 0, CPU: 0}}
	}
	p.packages = pkgs

	// sysfs does not tell whether perf_event_paranoid lets us open the events
	counters, err := p.openAll()
	if err != nil {
		return unsupported("perf event probe failed", err)
	}
	if err := closeAll(counters); err != nil {
		p.logger.Warn("Failed to close probe perf events", "error", err)
	}

	p.logger.Info("Perf reader initialized", "pmu_type", p.pmuType, "domains", p.selected, "packages", len(p.packages))
	return nil
}

// selectPerfDomains picks the platform domain alone when present, otherwise
// package plus DRAM when the latter is available.
func selectPerfDomains(events map[Domain]perfEvent) []Domain {
	if _, ok := events[DomainPlatform]; ok {
		return []Domain{DomainPlatform}
	}
	if _, ok := events[DomainPackage]; !ok {
		return nil
	}
	domains := []Domain{DomainPackage}
	if _, ok := events[DomainDRAM]; ok {
		domains = append(domains, DomainDRAM)
	}
	return domains
}

func readPerfEvent(eventsDir string, d Domain) (perfEvent, error) {
	name := perfEventNames[d]

	unit, err := readSysfsString(filepath.Join(eventsDir, name+".unit"))
	if err != nil {
		return perfEvent{}, err
	}
	if unit != powerPMUJoules {
		return perfEvent{}, fmt.Errorf("unit %q is not %s", unit, powerPMUJoules)
	}

	desc, err := readSysfsString(filepath.Join(eventsDir, name))
	if err != nil {
		return perfEvent{}, err
	}
	config, err := parseEventConfig(desc)
	if err != nil {
		return perfEvent{}, err
	}

	s, err := readSysfsString(filepath.Join(eventsDir, name+".scale"))
	if err != nil {
		return perfEvent{}, err
	}
	scale, err := strconv.ParseFloat(s, 64)
	if err != nil || scale <= 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		return perfEvent{}, fmt.Errorf("invalid scale %q", s)
	}

	return perfEvent{config: config, scale: scale}, nil
}

// parseEventConfig extracts the event code from a term list such as "event=0x02"
func parseEventConfig(desc string) (uint64, error) {
	for _, term := range strings.Split(desc, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(term), "=")
		if !found || key != "event" {
			continue
		}
		config, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid event code %q: %w", value, err)
		}
		return config, nil
	}
	return 0, fmt.Errorf("no event term in %q", desc)
}

func readSysfsString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// openAll opens one event per (package, domain). The platform event spans
// the SoC and is opened on the first package only.
func (p *perfMeter) openAll() ([]openPerfCounter, error) {
	var counters []openPerfCounter
	for i, pkg := range p.packages {
		for _, d := range p.selected {
			if d == DomainPlatform && i > 0 {
				continue
			}
			ev := p.events[d]
			pc, err := p.opener.Open(p.pmuType, ev.config, pkg.CPU)
			if err != nil {
				if closeErr := closeAll(counters); closeErr != nil {
					p.logger.Warn("Failed to close perf events", "error", closeErr)
				}
				return nil, err
			}
			counters = append(counters, openPerfCounter{
				counter: Counter{Domain: d, Package: pkg.Package},
				scale:   ev.scale,
				pc:      pc,
			})
		}
	}
	return counters, nil
}

func closeAll(counters []openPerfCounter) error {
	var errs []error
	for _, c := range counters {
		if err := c.pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.counter, err))
		}
	}
	return errors.Join(errs...)
}

// Start opens the perf events; the kernel starts counting from zero
func (p *perfMeter) Start() error {
	if err := p.Init(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.state == stateRunning {
		return ErrAlreadyStarted
	}

	counters, err := p.openAll()
	if err != nil {
		return fmt.Errorf("failed to open perf events: %w", err)
	}
	p.open = counters
	p.total = 0
	p.err = nil
	p.state = stateRunning
	p.logger.Debug("Energy measurement started", "events", len(counters))
	return nil
}

// Stop reads and closes every event
func (p *perfMeter) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateRunning {
		return ErrNotStarted
	}

	var total Energy
	var readErr error
	for _, c := range p.open {
		raw, err := c.pc.Read()
		if err != nil {
			readErr = errors.Join(readErr, fmt.Errorf("%s: %w", c.counter, err))
			continue
		}
		e := EnergyFromJoules(float64(raw) * c.scale)
		p.logger.Debug("Perf counter", "counter", c.counter.String(), "raw", raw, "energy", e)
		total += e
	}
	if err := closeAll(p.open); err != nil {
		p.logger.Warn("Failed to close perf events", "error", err)
	}
	p.open = nil
	p.state = stateStopped

	if readErr != nil {
		p.err = fmt.Errorf("%w: %w", ErrCounterRead, readErr)
		return p.err
	}
	p.total = total
	p.logger.Debug("Energy measurement stopped", "energy", total)
	return nil
}

func (p *perfMeter) Energy() (Energy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateIdle:
		return 0, ErrNoSession
	case stateRunning:
		return 0, ErrSessionRunning
	}
	if p.err != nil {
		return 0, p.err
	}
	return p.total, nil
}

func (p *perfMeter) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	running := p.state == stateRunning
	p.mu.Unlock()

	if running {
		if err := p.Stop(); err != nil {
			p.logger.Warn("Energy measurement failed while closing", "error", err)
		}
	}
	return nil
}

func (p *perfMeter) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
