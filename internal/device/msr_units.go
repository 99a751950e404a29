// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "math"

// EnergyUnits are the scale factors decoded from MSR_RAPL_POWER_UNIT.
// Power is in Watts, energy in Joules and time in seconds per counter LSB.
type EnergyUnits struct {
	PowerUnit      float64
	CPUEnergyUnit  float64
	DRAMEnergyUnit float64
	TimeUnit       float64
}

// server parts with DRAMUsesDistinctScale count DRAM energy in fixed 15.3µJ steps
const fixedDRAMEnergyBits = 16

// DecodeEnergyUnits decodes the raw unit register
//
//	bits 3:0   power units  (1/2^n W)
//	bits 12:8  energy units (1/2^n J)
//	bits 19:16 time units   (1/2^n s)
func DecodeEnergyUnits(raw uint64, cfg RaplDomainConfig) EnergyUnits {
	units := EnergyUnits{
		PowerUnit:     math.Pow(0.5, float64(raw&0xF)),
		CPUEnergyUnit: math.Pow(0.5, float64((raw>>8)&0x1F)),
		TimeUnit:      math.Pow(0.5, float64((raw>>16)&0xF)),
	}
	units.DRAMEnergyUnit = units.CPUEnergyUnit
	if cfg.DRAMUsesDistinctScale {
		units.DRAMEnergyUnit = math.Pow(0.5, fixedDRAMEnergyBits)
	}
	return units
}
