// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// writeCPUInfo creates <procDir>/cpuinfo describing n identical processors
func writeCPUInfo(t *testing.T, procDir, vendor string, family, model, n int) {
	t.Helper()
	var content string
	for i := 0; i < n; i++ {
		content += fmt.Sprintf(`processor	: %d
vendor_id	: %s
cpu family	: %d
model		: %d
model name	: Test CPU
stepping	: 7
cpu MHz		: 2400.000
cache size	: 8192 KB
physical id	: 0
siblings	: %d
core id		: %d
cpu cores	: %d
flags		: fpu vme de pse tsc msr

`, i, vendor, family, model, n, i, n)
	}
	writeFile(t, filepath.Join(procDir, "cpuinfo"), content)
}

// writeTopology creates the sysfs topology directory of one cpu
func writeTopology(t *testing.T, sysDir string, cpu, pkg int) {
	t.Helper()
	dir := filepath.Join(sysDir, "devices", "system", "cpu", fmt.Sprintf("cpu%d", cpu), "topology")
	writeFile(t, filepath.Join(dir, "physical_package_id"), fmt.Sprintf("%d\n", pkg))
	writeFile(t, filepath.Join(dir, "core_id"), fmt.Sprintf("%d\n", cpu))
	writeFile(t, filepath.Join(dir, "core_siblings_list"), fmt.Sprintf("%d\n", cpu))
	writeFile(t, filepath.Join(dir, "thread_siblings_list"), fmt.Sprintf("%d\n", cpu))
}

// writeMSR stores 8 byte little endian register values at their offsets,
// the way /dev/cpu/<n>/msr exposes them to pread.
func writeMSR(t *testing.T, path string, regs map[int64]uint64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	for offset, value := range regs {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, value)
		_, err := f.WriteAt(buf, offset)
		require.NoError(t, err)
	}
}

// writeRaplZone creates class/powercap/<dir> with the files read by procfs
func writeRaplZone(t *testing.T, sysDir, dir, name string, energy, maxEnergy uint64) {
	t.Helper()
	zone := filepath.Join(sysDir, "class", "powercap", dir)
	writeFile(t, filepath.Join(zone, "name"), name+"\n")
	writeFile(t, filepath.Join(zone, "energy_uj"), fmt.Sprintf("%d\n", energy))
	writeFile(t, filepath.Join(zone, "max_energy_range_uj"), fmt.Sprintf("%d\n", maxEnergy))
}

func setZoneEnergy(t *testing.T, sysDir, dir string, energy uint64) {
	t.Helper()
	writeFile(t, filepath.Join(sysDir, "class", "powercap", dir, "energy_uj"), fmt.Sprintf("%d\n", energy))
}

// writePerfEvent creates a power PMU event description
func writePerfEvent(t *testing.T, sysDir string, d Domain, event, scale, unit string) {
	t.Helper()
	events := filepath.Join(sysDir, powerPMUPath, "events")
	name := perfEventNames[d]
	writeFile(t, filepath.Join(events, name), event+"\n")
	writeFile(t, filepath.Join(events, name+".scale"), scale+"\n")
	writeFile(t, filepath.Join(events, name+".unit"), unit+"\n")
}
