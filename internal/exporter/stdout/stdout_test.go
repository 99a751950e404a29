// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/hep-benchmarks/hepscore-energy/internal/device"
	"github.com/hep-benchmarks/hepscore-energy/internal/measure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReporter(t *testing.T) {
	r := NewReporter()
	assert.Equal(t, "stdout", r.Name())
	assert.Same(t, os.Stdout, r.out)

	var buf bytes.Buffer
	r = NewReporter(WithLogger(slog.Default()), WithOutput(&buf))
	assert.Same(t, &buf, r.out)
}

func TestReport(t *testing.T) {
	base := measure.Result{
		Command:  []string{"bmk.sh", "-c", "4"},
		Duration: 20 * time.Second,
		ExitCode: 0,
	}

	tests := []struct {
		name     string
		mutate   func(r *measure.Result)
		contains []string
		absent   []string
	}{{
		name: "measured",
		mutate: func(r *measure.Result) {
			r.Backend = "perf"
			r.Energy = 3000 * device.Joule
		},
		contains: []string{"bmk.sh -c 4", "perf", "3000.000", "150.00", "20.000"},
	}, {
		name:     "unsupported",
		mutate:   func(r *measure.Result) {},
		contains: []string{"none", "not supported", "n/a"},
	}, {
		name: "failed",
		mutate: func(r *measure.Result) {
			r.Backend = "msr"
			r.Energy = 10 * device.Joule
			r.EnergyErr = errors.New("read")
			r.ExitCode = 2
		},
		contains: []string{"msr", "failed: read", "n/a"},
		absent:   []string{"10.000"},
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := base
			tc.mutate(&res)

			var buf bytes.Buffer
			require.NoError(t, NewReporter(WithOutput(&buf)).Report(res))

			out := buf.String()
			assert.Contains(t, out, "MEASUREMENT")
			for _, s := range tc.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tc.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestWriteProbe(t *testing.T) {
	var buf bytes.Buffer
	err := WriteProbe(&buf, []measure.ProbeResult{
		{Backend: "perf", Supported: true},
		{Backend: "powercap", Reason: "no zones"},
		{Backend: "msr", PermissionDenied: true, Reason: "denied"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "BACKEND")
	assert.Contains(t, out, "supported")
	assert.Contains(t, out, "unsupported")
	assert.Contains(t, out, "permission denied")
	assert.Contains(t, out, "no zones")
}
