// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hep-benchmarks/hepscore-energy/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestCLI_MeasureArgs(t *testing.T) {
	c := newCLI()
	cmd, err := c.app.Parse([]string{"measure", "--", "bench", "--threads", "4"})
	require.NoError(t, err)
	assert.Equal(t, c.measure.FullCommand(), cmd)
	assert.Equal(t, []string{"bench", "--threads", "4"}, *c.command)
}

func TestCLI_LoadConfig(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	site := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(base, []byte("energy:\n  backends: [msr]\n  msr:\n    interval: 3s\n"), 0o644))
	require.NoError(t, os.WriteFile(site, []byte("log:\n  level: debug\n"), 0o644))

	c := newCLI()
	_, err := c.app.Parse([]string{
		"--config.file=" + base,
		"--config.file=" + site,
		"--energy.powercap.interval=1m",
		"probe",
	})
	require.NoError(t, err)

	cfg, err := c.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"msr"}, cfg.Energy.Backends)
	assert.Equal(t, 3*time.Second, cfg.Energy.MSR.Interval)
	assert.Equal(t, time.Minute, cfg.Energy.Powercap.Interval)
}

func TestCLI_MissingConfigFile(t *testing.T) {
	c := newCLI()
	_, err := c.app.Parse([]string{"--config.file=/does/not/exist.yaml", "probe"})
	require.NoError(t, err)

	_, err = c.loadConfig()
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestCreateReporters(t *testing.T) {
	cfg := config.DefaultConfig()
	reporters := createReporters(discardLogger(), cfg)
	require.Len(t, reporters, 1)
	assert.Equal(t, "stdout", reporters[0].Name())

	cfg.Exporter.Stdout.Enabled = ptr.To(false)
	cfg.Exporter.Prometheus.Enabled = ptr.To(true)
	cfg.Exporter.Prometheus.Textfile = filepath.Join(t.TempDir(), "hepscore.prom")
	reporters = createReporters(discardLogger(), cfg)
	require.Len(t, reporters, 1)
	assert.Equal(t, "prometheus", reporters[0].Name())
}

func TestProbe_Unsupported(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Energy.Backends = []string{config.BackendPowercap}
	cfg.Host.SysFS = t.TempDir()

	meters, err := createMeters(discardLogger(), cfg)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	assert.Equal(t, exitFailure, probe(discardLogger(), out, meters))
	assert.Contains(t, out.String(), "powercap")
	assert.Contains(t, out.String(), "unsupported")
}

func TestRunMeasure_WithoutEnergy(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	cfg := config.DefaultConfig()
	cfg.Energy.Backends = []string{config.BackendPowercap}
	cfg.Host.SysFS = t.TempDir()
	cfg.Exporter.Stdout.Enabled = ptr.To(false)

	meters, err := createMeters(discardLogger(), cfg)
	require.NoError(t, err)

	code := runMeasure(discardLogger(), cfg, []string{"/bin/sh", "-c", "exit 7"}, meters)
	assert.Equal(t, 7, code, "the workload's exit code is passed through")
}
