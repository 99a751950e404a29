// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package measure

import (
	"strings"
	"time"

	"github.com/hep-benchmarks/hepscore-energy/internal/device"
)

// Result is the outcome of one measured workload run
type Result struct {
	Command   []string
	StartedAt time.Time
	Duration  time.Duration
	ExitCode  int

	// Backend is empty when no energy backend is supported
	Backend string
	Energy  device.Energy

	// EnergyErr is set when a supported backend failed during the run.
	// Energy is zero in that case and must not be reported.
	EnergyErr error
}

// EnergySupported reports whether an energy backend was available
func (r Result) EnergySupported() bool {
	return r.Backend != ""
}

// HasEnergy reports whether Energy holds a valid measurement
func (r Result) HasEnergy() bool {
	return r.EnergySupported() && r.EnergyErr == nil
}

// AveragePower is the mean power over the run, zero without a valid measurement
func (r Result) AveragePower() device.Power {
	if !r.HasEnergy() {
		return 0
	}
	return device.AveragePower(r.Energy, r.Duration)
}

func (r Result) CommandLine() string {
	return strings.Join(r.Command, " ")
}

// Reporter publishes a finished measurement
type Reporter interface {
	Name() string
	Report(Result) error
}
