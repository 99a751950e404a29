// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/hep-benchmarks/hepscore-energy/config"
	"github.com/hep-benchmarks/hepscore-energy/internal/device"
	"github.com/hep-benchmarks/hepscore-energy/internal/exporter/prometheus"
	"github.com/hep-benchmarks/hepscore-energy/internal/exporter/stdout"
	"github.com/hep-benchmarks/hepscore-energy/internal/logger"
	"github.com/hep-benchmarks/hepscore-energy/internal/measure"
	"github.com/hep-benchmarks/hepscore-energy/internal/service"
	"github.com/hep-benchmarks/hepscore-energy/internal/version"
)

const appName = "hepscore-energy"

// exit code used when the workload never produced one
const exitFailure = 1

type cli struct {
	app          *kingpin.Application
	configFiles  *[]string
	updateConfig config.ConfigUpdaterFn

	probe   *kingpin.CmdClause
	measure *kingpin.CmdClause
	command *[]string
}

func newCLI() *cli {
	app := kingpin.New(appName, "Measure the energy used by benchmark workloads with Intel RAPL.")
	app.Version(version.Info().String())

	c := &cli{
		app:         app,
		configFiles: app.Flag("config.file", "Path to YAML configuration file; repeat to layer files").Strings(),
	}
	c.updateConfig = config.RegisterFlags(app)

	c.probe = app.Command("probe", "Report which energy backends this machine supports")
	c.measure = app.Command("measure", "Run a workload and report the energy it used")
	c.command = c.measure.Arg("command", "Workload command and its arguments; use -- before flags of the workload").
		Required().Strings()
	return c
}

// loadConfig layers the config files over the defaults and applies the
// flags given explicitly on the command line
func (c *cli) loadConfig() (*config.Config, error) {
	b, err := (&config.Builder{}).MergeFiles(*c.configFiles...)
	if err != nil {
		return nil, err
	}
	cfg, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := c.updateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	c := newCLI()
	cmd := kingpin.MustParse(c.app.Parse(os.Args[1:]))

	cfg, err := c.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(exitFailure)
	}

	logger := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logger.Info("Version information", "version", version.Info())
	logger.Debug("Configuration", "config", cfg.String())

	meters, err := createMeters(logger, cfg)
	if err != nil {
		logger.Error("Failed to create energy backends", "error", err)
		os.Exit(exitFailure)
	}

	switch cmd {
	case c.probe.FullCommand():
		os.Exit(probe(logger, os.Stdout, meters))
	case c.measure.FullCommand():
		os.Exit(runMeasure(logger, cfg, *c.command, meters))
	}
}

func createMeters(logger *slog.Logger, cfg *config.Config) ([]device.EnergyMeter, error) {
	return device.NewEnergyMeters(
		cfg.EnabledBackends(),
		cfg.Energy.MSR.Interval,
		cfg.Energy.Powercap.Interval,
		device.WithLogger(logger),
		device.WithSysFSPath(cfg.Host.SysFS),
		device.WithProcFSPath(cfg.Host.ProcFS),
		device.WithMSRDevicePath(cfg.Energy.MSR.DevicePath),
	)
}

func probe(logger *slog.Logger, out io.Writer, meters []device.EnergyMeter) int {
	results := measure.Probe(logger, meters...)
	if err := stdout.WriteProbe(out, results); err != nil {
		logger.Error("Failed to write probe results", "error", err)
		return exitFailure
	}
	for _, r := range results {
		if r.Supported {
			return 0
		}
	}
	return exitFailure
}

func createReporters(logger *slog.Logger, cfg *config.Config) []measure.Reporter {
	var reporters []measure.Reporter
	if *cfg.Exporter.Stdout.Enabled {
		reporters = append(reporters, stdout.NewReporter(stdout.WithLogger(logger)))
	}
	if *cfg.Exporter.Prometheus.Enabled {
		reporters = append(reporters, prometheus.NewReporter(
			cfg.Exporter.Prometheus.Textfile,
			prometheus.WithLogger(logger),
		))
	}
	return reporters
}

// runMeasure runs the workload and returns the exit code to leave with:
// the workload's own unless it could not be run at all
func runMeasure(logger *slog.Logger, cfg *config.Config, command []string, meters []device.EnergyMeter) int {
	session := measure.NewSession(command, meters,
		measure.WithLogger(logger),
		measure.WithReporters(createReporters(logger, cfg)...),
	)
	services := []service.Service{
		session,
		service.NewSignalHandler(os.Interrupt, syscall.SIGTERM),
	}

	if err := service.Init(logger, services); err != nil {
		logger.Error("Initialization failed", "error", err)
		return exitFailure
	}

	if err := service.Run(context.Background(), logger, services); err != nil {
		logger.Error("Measurement ended with an error", "error", err)
	}

	res, ok := session.Result()
	if !ok || res.ExitCode < 0 {
		return exitFailure
	}
	return res.ExitCode
}
