// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Intel RAPL model specific registers
const (
	MSRPowerUnit           = 0x606
	MSRPkgEnergyStatus     = 0x611
	MSRPP0EnergyStatus     = 0x639
	MSRPP1EnergyStatus     = 0x641
	MSRDRAMEnergyStatus    = 0x619
	MSRPlatformEnergyCount = 0x64D

	// energy status registers are 32 bit counters
	msrEnergyStatusMax = 0xFFFFFFFF
)

var msrDomainOffsets = map[Domain]int64{
	DomainPackage:  MSRPkgEnergyStatus,
	DomainCores:    MSRPP0EnergyStatus,
	DomainGPU:      MSRPP1EnergyStatus,
	DomainDRAM:     MSRDRAMEnergyStatus,
	DomainPlatform: MSRPlatformEnergyCount,
}

type msrPackage struct {
	pkg  int
	cpu  int
	file *os.File
}

// msrReader reads RAPL energy counters directly from /dev/cpu/<n>/msr
type msrReader struct {
	logger     *slog.Logger
	procfsPath string
	sysfsPath  string
	devicePath string // printf template, e.g. /dev/cpu/%d/msr

	cpu      CPUIdentity
	domains  RaplDomainConfig
	units    EnergyUnits
	packages []msrPackage
	ceilings map[Counter]Energy
}

var _ counterSource = (*msrReader)(nil)

func newMSRReader(devicePath, procfsPath, sysfsPath string, logger *slog.Logger) *msrReader {
	return &msrReader{
		logger:     logger.With("service", "msr-reader"),
		procfsPath: procfsPath,
		sysfsPath:  sysfsPath,
		devicePath: devicePath,
	}
}

func (m *msrReader) Name() string {
	return "msr"
}

// Init identifies the CPU, and only if its model has a known domain table
// opens the MSR devices and decodes the unit register.
func (m *msrReader) Init() error {
	cpu, err := DetectCPU(m.procfsPath)
	if err != nil {
		return err
	}
	m.cpu = cpu

	domains, err := LookupRaplDomains(cpu)
	if err != nil {
		return err
	}
	m.domains = domains
	m.logger.Debug("CPU model supported", "cpu", cpu.String(), "name", CPUModelName(cpu.Model),
		"cores", domains.CoresAvailable, "gpu", domains.GPUAvailable,
		"dram", domains.DRAMAvailable, "psys", domains.PlatformAvailable)

	pkgs, err := packageCPUs(m.sysfsPath)
	if err != nil {
		m.logger.Debug("CPU topology unavailable, reading CPU 0 only", "error", err)
		pkgs = []packageCPU{{Package: 0, CPU: 0}}
	}

	for _, p := range pkgs {
		path := fmt.Sprintf(m.devicePath, p.CPU)
		f, err := os.Open(path)
		if err != nil {
			m.closeFiles()
			if errors.Is(err, os.ErrPermission) {
				m.logger.Warn("No permission to read MSR device", "path", path)
			}
			return unsupported("failed to open "+path, err)
		}
		m.packages = append(m.packages, msrPackage{pkg: p.Package, cpu: p.CPU, file: f})
	}

	raw, err := readMSR(m.packages[0].file, MSRPowerUnit)
	if err != nil {
		m.closeFiles()
		return unsupported("failed to read power unit register", err)
	}
	m.units = DecodeEnergyUnits(raw, domains)
	m.logger.Debug("Decoded RAPL units",
		"power_w", m.units.PowerUnit, "energy_j", m.units.CPUEnergyUnit,
		"dram_energy_j", m.units.DRAMEnergyUnit, "time_s", m.units.TimeUnit)

	m.ceilings = make(map[Counter]Energy)
	for _, c := range m.counters() {
		m.ceilings[c] = EnergyFromJoules(msrEnergyStatusMax * m.unitFor(c.Domain))
	}

	if _, err := m.Snapshot(); err != nil {
		m.closeFiles()
		return unsupported("trial counter read failed", err)
	}

	m.logger.Info("MSR reader initialized", "packages", len(m.packages), "counters", len(m.ceilings))
	return nil
}

// counters lists every counter the CPU model exposes. The platform counter
// covers the whole SoC and is read from the first package only.
func (m *msrReader) counters() []Counter {
	var out []Counter
	for i, p := range m.packages {
		out = append(out, Counter{Domain: DomainPackage, Package: p.pkg})
		if m.domains.CoresAvailable {
			out = append(out, Counter{Domain: DomainCores, Package: p.pkg})
		}
		if m.domains.GPUAvailable {
			out = append(out, Counter{Domain: DomainGPU, Package: p.pkg})
		}
		if m.domains.DRAMAvailable {
			out = append(out, Counter{Domain: DomainDRAM, Package: p.pkg})
		}
		if m.domains.PlatformAvailable && i == 0 {
			out = append(out, Counter{Domain: DomainPlatform, Package: p.pkg})
		}
	}
	return out
}

func (m *msrReader) unitFor(d Domain) float64 {
	if d == DomainDRAM {
		return m.units.DRAMEnergyUnit
	}
	return m.units.CPUEnergyUnit
}

// Snapshot reads every available counter once
func (m *msrReader) Snapshot() (Reading, error) {
	files := make(map[int]*os.File, len(m.packages))
	for _, p := range m.packages {
		files[p.pkg] = p.file
	}

	r := make(Reading, len(m.ceilings))
	for _, c := range m.counters() {
		raw, err := readMSR(files[c.Package], msrDomainOffsets[c.Domain])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCounterRead, c, err)
		}
		r[c] = EnergyFromJoules(float64(uint32(raw)) * m.unitFor(c.Domain))
	}
	return r, nil
}

// Delta returns the energy consumed between two snapshots. The platform
// counter already includes package and DRAM energy so it is used alone
// when present.
func (m *msrReader) Delta(prev, curr Reading) Energy {
	var total Energy
	for c, now := range curr {
		if !m.accounted(c.Domain) {
			continue
		}
		before, ok := prev[c]
		if !ok {
			continue
		}
		d := counterDelta(before, now, m.ceilings[c])
		m.logger.Debug("Counter delta", "counter", c.String(), "prev", before, "curr", now, "delta", d)
		total += d
	}
	return total
}

func (m *msrReader) accounted(d Domain) bool {
	if m.domains.PlatformAvailable {
		return d == DomainPlatform
	}
	return d == DomainPackage || (d == DomainDRAM && m.domains.DRAMAvailable)
}

func (m *msrReader) Close() error {
	return m.closeFiles()
}

func (m *msrReader) closeFiles() error {
	var errs []error
	for _, p := range m.packages {
		if err := p.file.Close(); err != nil {
			m.logger.Warn("Failed to close MSR file", "cpu", p.cpu, "error", err)
			errs = append(errs, err)
		}
	}
	m.packages = nil
	return errors.Join(errs...)
}

// readMSR performs an 8 byte positioned read of the register at offset
func readMSR(f *os.File, offset int64) (uint64, error) {
	if f == nil {
		return 0, fmt.Errorf("msr device not open")
	}
	buf := make([]byte, 8)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return 0, fmt.Errorf("failed to read MSR 0x%x: %w", offset, err)
	}
	return binary.LittleEndian.Uint64(buf), nil
}
