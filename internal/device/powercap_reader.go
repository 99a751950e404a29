// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/prometheus/procfs/sysfs"
)

// only top-level zones; sub-zones (intel-rapl:0:0) are already part of their parent
var topLevelZone = regexp.MustCompile(`^intel-rapl:\d+$`)

var powercapDomains = map[string]Domain{
	"package": DomainPackage,
	"core":    DomainCores,
	"uncore":  DomainGPU,
	"dram":    DomainDRAM,
	"psys":    DomainPlatform,
}

type powercapZone struct {
	zone    sysfs.RaplZone
	counter Counter
}

// powercapReader reads RAPL energy through the Linux powercap sysfs class
type powercapReader struct {
	logger    *slog.Logger
	sysfsPath string

	zones       []powercapZone
	ceilings    map[Counter]Energy
	hasPlatform bool
}

var _ counterSource = (*powercapReader)(nil)

func newPowercapReader(sysfsPath string, logger *slog.Logger) *powercapReader {
	return &powercapReader{
		logger:    logger.With("service", "powercap-reader"),
		sysfsPath: sysfsPath,
	}
}

func (p *powercapReader) Name() string {
	return "powercap"
}

// Init enumerates the top-level RAPL zones and trial reads each of them
func (p *powercapReader) Init() error {
	fs, err := sysfs.NewFS(p.sysfsPath)
	if err != nil {
		return unsupported("failed to open sysfs", err)
	}

	raplZones, err := sysfs.GetRaplZones(fs)
	if err != nil {
		return unsupported("failed to read powercap zones", err)
	}

	p.zones = nil
	p.ceilings = make(map[Counter]Energy)
	p.hasPlatform = false

	for _, z := range raplZones {
		base := filepath.Base(z.Path)
		if !topLevelZone.MatchString(base) {
			p.logger.Debug("Skipping powercap sub-zone", "zone", base, "name", z.Name)
			continue
		}

		domain, known := powercapDomains[z.Name]
		if !known {
			p.logger.Debug("Skipping powercap zone with unknown name", "zone", base, "name", z.Name)
			continue
		}
		counter := Counter{Domain: domain, Package: z.Index}
		if _, dup := p.ceilings[counter]; dup {
			p.logger.Warn("Duplicate powercap zone, skipping", "zone", base, "counter", counter.String())
			continue
		}

		if _, err := z.GetEnergyMicrojoules(); err != nil {
			return unsupported(fmt.Sprintf("trial read of zone %s failed", base), err)
		}

		p.zones = append(p.zones, powercapZone{zone: z, counter: counter})
		p.ceilings[counter] = Energy(z.MaxMicrojoules)
		if counter.Domain == DomainPlatform {
			p.hasPlatform = true
		}
		p.logger.Debug("Found powercap zone", "zone", base, "counter", counter.String(),
			"max_energy_uj", z.MaxMicrojoules)
	}

	if len(p.zones) == 0 {
		return unsupported("no intel-rapl powercap zones found", nil)
	}

	p.logger.Info("Powercap reader initialized", "zones", len(p.zones), "psys", p.hasPlatform)
	return nil
}

func (p *powercapReader) Snapshot() (Reading, error) {
	r := make(Reading, len(p.zones))
	for _, z := range p.zones {
		uj, err := z.zone.GetEnergyMicrojoules()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrCounterRead, z.counter, err)
		}
		r[z.counter] = Energy(uj)
	}
	return r, nil
}

// Delta uses the platform zone alone when present, otherwise the sum of
// all top-level zones, each corrected against its own wrap ceiling.
func (p *powercapReader) Delta(prev, curr Reading) Energy {
	var total Energy
	for c, now := range curr {
		if p.hasPlatform && c.Domain != DomainPlatform {
			continue
		}
		before, ok := prev[c]
		if !ok {
			continue
		}
		d := counterDelta(before, now, p.ceilings[c])
		p.logger.Debug("Zone delta", "counter", c.String(), "prev", before, "curr", now, "delta", d)
		total += d
	}
	return total
}

func (p *powercapReader) Close() error {
	p.zones = nil
	return nil
}
