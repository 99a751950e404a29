// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/procfs/sysfs"
)

// packageCPU is the representative (lowest numbered) CPU of a physical package
type packageCPU struct {
	Package int
	CPU     int
}

// packageCPUs lists one CPU per physical package, ordered by package id.
// RAPL counters are package scoped, so reading a single CPU per package is
// enough to cover the whole machine.
func packageCPUs(sysfsPath string) ([]packageCPU, error) {
	fs, err := sysfs.NewFS(sysfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs: %w", err)
	}

	cpus, err := fs.CPUs()
	if err != nil {
		return nil, fmt.Errorf("failed to list cpus: %w", err)
	}

	first := make(map[int]int)
	for _, cpu := range cpus {
		num, err := strconv.Atoi(cpu.Number())
		if err != nil {
			continue
		}
		topo, err := cpu.Topology()
		if err != nil {
			// offline cpus have no topology directory
			continue
		}
		pkg, err := strconv.Atoi(strings.TrimSpace(topo.PhysicalPackageID))
		if err != nil || pkg < 0 {
			continue
		}
		if prev, ok := first[pkg]; !ok || num < prev {
			first[pkg] = num
		}
	}

	if len(first) == 0 {
		return nil, fmt.Errorf("no cpu topology found under %s", sysfsPath)
	}

	out := make([]packageCPU, 0, len(first))
	for pkg, cpu := range first {
		out = append(out, packageCPU{Package: pkg, CPU: cpu})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Package < out[j].Package })
	return out, nil
}
