// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
)

// Domain names a RAPL energy counter. The set is closed; every backend
// maps its own naming onto these values.
type Domain string

const (
	DomainPackage  Domain = "energy-package"
	DomainCores    Domain = "energy-cores"
	DomainGPU      Domain = "energy-gpu"
	DomainDRAM     Domain = "energy-dram"
	DomainPlatform Domain = "energy-psys"
)

var allDomains = []Domain{DomainPackage, DomainCores, DomainGPU, DomainDRAM, DomainPlatform}

// Counter identifies one hardware counter: a domain on a physical package.
type Counter struct {
	Domain  Domain
	Package int
}

func (c Counter) String() string {
	return fmt.Sprintf("%s/package-%d", c.Domain, c.Package)
}

// Reading is a snapshot of counter values taken at one instant
type Reading map[Counter]Energy

// RaplDomainConfig records which RAPL domains an Intel CPU model exposes.
// The package domain is always available on supported models.
type RaplDomainConfig struct {
	CoresAvailable        bool
	GPUAvailable          bool
	DRAMAvailable         bool
	DRAMUsesDistinctScale bool
	PlatformAvailable     bool
}

const (
	intelVendor = "GenuineIntel"
	intelFamily = 6
)

var (
	raplClientNoDRAM = RaplDomainConfig{CoresAvailable: true, GPUAvailable: true}
	raplServer       = RaplDomainConfig{CoresAvailable: true, DRAMAvailable: true}
	raplServerFixed  = RaplDomainConfig{CoresAvailable: true, DRAMAvailable: true, DRAMUsesDistinctScale: true}
	raplXeonPhi      = RaplDomainConfig{DRAMAvailable: true, DRAMUsesDistinctScale: true}
	raplClient       = RaplDomainConfig{CoresAvailable: true, GPUAvailable: true, DRAMAvailable: true}
	raplClientPsys   = RaplDomainConfig{CoresAvailable: true, GPUAvailable: true, DRAMAvailable: true, PlatformAvailable: true}
)

type cpuModel struct {
	name    string
	domains RaplDomainConfig
}

var raplModels = map[int]cpuModel{
	42:  {"Sandybridge", raplClientNoDRAM},
	45:  {"Sandybridge-EP", raplServer},
	58:  {"Ivybridge", raplClientNoDRAM},
	62:  {"Ivybridge-EP", raplServer},
	60:  {"Haswell", raplClient},
	63:  {"Haswell-EP", raplServerFixed},
	69:  {"Haswell-ULT", raplClient},
	70:  {"Haswell-GT3E", raplClient},
	61:  {"Broadwell", raplClient},
	71:  {"Broadwell-GT3E", raplClient},
	79:  {"Broadwell-EP", raplServerFixed},
	78:  {"Skylake", raplClientPsys},
	94:  {"Skylake-HS", raplClientPsys},
	85:  {"Skylake-X", raplServerFixed},
	87:  {"Knights Landing", raplXeonPhi},
	133: {"Knights Mill", raplXeonPhi},
	142: {"Kaby Lake Mobile", raplClientPsys},
	158: {"Kaby Lake", raplClientPsys},
	92:  {"Atom Goldmont", raplClient},
	122: {"Atom Gemini Lake", raplClient},
	95:  {"Atom Denverton", raplClient},
}

// known models without a RAPL entry, used only for diagnostics
var otherModelNames = map[int]string{
	86: "Broadwell-DE",
	55: "Atom Silvermont",
	76: "Atom Airmont",
	74: "Atom Merrifield",
	90: "Atom Moorefield",
}

// LookupRaplDomains returns the domain configuration of an Intel family 6
// CPU. Any other vendor, family or unknown model is unsupported.
func LookupRaplDomains(id CPUIdentity) (RaplDomainConfig, error) {
	if id.Vendor != intelVendor {
		return RaplDomainConfig{}, unsupported(fmt.Sprintf("vendor %q has no RAPL domain table", id.Vendor), nil)
	}
	if id.Family != intelFamily {
		return RaplDomainConfig{}, unsupported(fmt.Sprintf("cpu family %d has no RAPL domain table", id.Family), nil)
	}
	m, ok := raplModels[id.Model]
	if !ok {
		return RaplDomainConfig{}, unsupported(fmt.Sprintf("cpu model %d (%s) has no RAPL domain table",
			id.Model, CPUModelName(id.Model)), nil)
	}
	return m.domains, nil
}

// CPUModelName returns the microarchitecture name of an Intel family 6 model
func CPUModelName(model int) string {
	if m, ok := raplModels[model]; ok {
		return m.name
	}
	if name, ok := otherModelNames[model]; ok {
		return name
	}
	return "unknown"
}
