// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupRaplDomains(t *testing.T) {
	intel := func(model int) CPUIdentity {
		return CPUIdentity{Vendor: "GenuineIntel", Family: 6, Model: model}
	}

	tests := []struct {
		name string
		cpu  CPUIdentity
		want RaplDomainConfig
	}{
		{"Sandybridge has no dram", intel(42), RaplDomainConfig{CoresAvailable: true, GPUAvailable: true}},
		{"Ivybridge-EP", intel(62), RaplDomainConfig{CoresAvailable: true, DRAMAvailable: true}},
		{"Haswell-EP fixed dram unit", intel(63), RaplDomainConfig{CoresAvailable: true, DRAMAvailable: true, DRAMUsesDistinctScale: true}},
		{"Skylake-X fixed dram unit", intel(85), RaplDomainConfig{CoresAvailable: true, DRAMAvailable: true, DRAMUsesDistinctScale: true}},
		{"Knights Landing", intel(87), RaplDomainConfig{DRAMAvailable: true, DRAMUsesDistinctScale: true}},
		{"Knights Mill", intel(133), RaplDomainConfig{DRAMAvailable: true, DRAMUsesDistinctScale: true}},
		{"Haswell client", intel(60), RaplDomainConfig{CoresAvailable: true, GPUAvailable: true, DRAMAvailable: true}},
		{"Atom Denverton", intel(95), RaplDomainConfig{CoresAvailable: true, GPUAvailable: true, DRAMAvailable: true}},
		{"Skylake psys", intel(78), RaplDomainConfig{CoresAvailable: true, GPUAvailable: true, DRAMAvailable: true, PlatformAvailable: true}},
		{"Kaby Lake psys", intel(158), RaplDomainConfig{CoresAvailable: true, GPUAvailable: true, DRAMAvailable: true, PlatformAvailable: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LookupRaplDomains(tt.cpu)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupRaplDomains_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		cpu  CPUIdentity
	}{
		{"amd", CPUIdentity{Vendor: "AuthenticAMD", Family: 6, Model: 42}},
		{"wrong family", CPUIdentity{Vendor: "GenuineIntel", Family: 15, Model: 42}},
		{"unknown model", CPUIdentity{Vendor: "GenuineIntel", Family: 6, Model: 143}},
		{"known model without rapl table", CPUIdentity{Vendor: "GenuineIntel", Family: 6, Model: 86}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LookupRaplDomains(tt.cpu)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestRaplModelTableCoverage(t *testing.T) {
	assert.Len(t, raplModels, 21)
	for model, m := range raplModels {
		assert.NotEmpty(t, m.name, "model %d", model)
		// xeon phi parts have no cores domain but every table entry reports some domain
		assert.True(t, m.domains.CoresAvailable || m.domains.DRAMAvailable, "model %d", model)
	}
}

func TestCPUModelName(t *testing.T) {
	assert.Equal(t, "Sandybridge", CPUModelName(42))
	assert.Equal(t, "Kaby Lake Mobile", CPUModelName(142))
	assert.Equal(t, "Broadwell-DE", CPUModelName(86))
	assert.Equal(t, "Atom Silvermont", CPUModelName(55))
	assert.Equal(t, "unknown", CPUModelName(1))
}

func TestDecodeEnergyUnits(t *testing.T) {
	// a typical client value: power 1/8 W, energy 1/2^14 J, time 1/2^10 s
	const raw = 0x000A0E03

	t.Run("dram shares cpu energy unit", func(t *testing.T) {
		units := DecodeEnergyUnits(raw, RaplDomainConfig{DRAMAvailable: true})
		assert.Equal(t, 0.125, units.PowerUnit)
		assert.Equal(t, 1.0/16384, units.CPUEnergyUnit)
		assert.Equal(t, units.CPUEnergyUnit, units.DRAMEnergyUnit)
		assert.Equal(t, 1.0/1024, units.TimeUnit)
	})

	t.Run("fixed dram unit", func(t *testing.T) {
		units := DecodeEnergyUnits(raw, RaplDomainConfig{DRAMAvailable: true, DRAMUsesDistinctScale: true})
		assert.Equal(t, 1.0/16384, units.CPUEnergyUnit)
		assert.Equal(t, 1.0/65536, units.DRAMEnergyUnit)
	})

	t.Run("zero register decodes to unit scale", func(t *testing.T) {
		units := DecodeEnergyUnits(0, RaplDomainConfig{})
		assert.Equal(t, EnergyUnits{PowerUnit: 1, CPUEnergyUnit: 1, DRAMEnergyUnit: 1, TimeUnit: 1}, units)
	})

	t.Run("reserved bits are ignored", func(t *testing.T) {
		withReserved := uint64(raw) | 0xFFFF_FFFF_FFF0_E0F0
		assert.Equal(t, DecodeEnergyUnits(raw, RaplDomainConfig{}), DecodeEnergyUnits(withReserved, RaplDomainConfig{}))
	})
}

func TestDomainNames(t *testing.T) {
	assert.Equal(t, []Domain{"energy-package", "energy-cores", "energy-gpu", "energy-dram", "energy-psys"}, allDomains)

	// the perf PMU spells package and dram differently
	for _, d := range allDomains {
		assert.Contains(t, perfEventNames, d)
	}
	assert.Equal(t, "energy-pkg", perfEventNames[DomainPackage])
	assert.Equal(t, "energy-ram", perfEventNames[DomainDRAM])

	for name, d := range powercapDomains {
		assert.Contains(t, allDomains, d, "powercap zone %q", name)
	}
}
