// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package measure

import (
	"errors"
	"log/slog"

	"github.com/hep-benchmarks/hepscore-energy/internal/device"
)

// ProbeResult is the support status of one energy backend
type ProbeResult struct {
	Backend   string
	Supported bool
	// PermissionDenied is set when the backend exists but needs privileges
	PermissionDenied bool
	Reason           string
}

// Probe initializes every meter, records whether it is supported and
// closes it again.
func Probe(logger *slog.Logger, meters ...device.EnergyMeter) []ProbeResult {
	if logger == nil {
		logger = slog.Default()
	}

	results := make([]ProbeResult, 0, len(meters))
	for _, m := range meters {
		r := ProbeResult{Backend: m.Name()}
		if err := m.Init(); err != nil {
			r.Reason = err.Error()
			r.PermissionDenied = errors.Is(err, device.ErrPermissionDenied)
		} else {
			r.Supported = true
		}
		if err := m.Close(); err != nil {
			logger.Warn("Failed to close energy backend", "backend", m.Name(), "error", err)
		}
		logger.Debug("Probed energy backend", "backend", r.Backend, "supported", r.Supported, "reason", r.Reason)
		results = append(results, r)
	}
	return results
}
