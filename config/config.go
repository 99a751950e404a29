// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	Host struct {
		SysFS  string `yaml:"sysfs"`
		ProcFS string `yaml:"procfs"`
	}

	// MSR backend; DevicePath is a printf template taking the cpu number
	MSR struct {
		DevicePath string        `yaml:"devicePath"`
		Interval   time.Duration `yaml:"interval"`
	}

	Powercap struct {
		Interval time.Duration `yaml:"interval"`
	}

	Perf struct {
		Enabled *bool `yaml:"enabled"`
	}

	// Energy configures the energy backends. Backends are probed in order
	// and the first supported one is used.
	Energy struct {
		Backends []string `yaml:"backends"`
		MSR      MSR      `yaml:"msr"`
		Powercap Powercap `yaml:"powercap"`
		Perf     Perf     `yaml:"perf"`
	}

	// Exporter configuration
	StdoutExporter struct {
		Enabled *bool `yaml:"enabled"`
	}

	PrometheusExporter struct {
		Enabled  *bool  `yaml:"enabled"`
		Textfile string `yaml:"textfile"` // node_exporter textfile collector output
	}

	Exporter struct {
		Stdout     StdoutExporter     `yaml:"stdout"`
		Prometheus PrometheusExporter `yaml:"prometheus"`
	}

	Config struct {
		Log      Log      `yaml:"log"`
		Host     Host     `yaml:"host"`
		Energy   Energy   `yaml:"energy"`
		Exporter Exporter `yaml:"exporter"`
	}
)

type SkipValidation int

const (
	SkipHostValidation SkipValidation = 1
)

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	HostSysFSFlag  = "host.sysfs"
	HostProcFSFlag = "host.procfs"

	EnergyBackendFlag          = "energy.backend"
	EnergyMSRDevicePathFlag    = "energy.msr.device-path"
	EnergyMSRIntervalFlag      = "energy.msr.interval"
	EnergyPowercapIntervalFlag = "energy.powercap.interval"
	EnergyPerfEnabledFlag      = "energy.perf"

	// Exporters
	ExporterStdoutEnabledFlag      = "exporter.stdout"
	ExporterPrometheusEnabledFlag  = "exporter.prometheus"
	ExporterPrometheusTextfileFlag = "exporter.prometheus.textfile"
)

const (
	BackendPerf     = "perf"
	BackendPowercap = "powercap"
	BackendMSR      = "msr"
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Host: Host{
			SysFS:  "/sys",
			ProcFS: "/proc",
		},
		Energy: Energy{
			Backends: []string{BackendPerf, BackendPowercap, BackendMSR},
			MSR: MSR{
				DevicePath: "/dev/cpu/%d/msr",
				Interval:   10 * time.Second,
			},
			Powercap: Powercap{
				Interval: 30 * time.Second,
			},
			Perf: Perf{
				Enabled: ptr.To(true),
			},
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled: ptr.To(true),
			},
			Prometheus: PrometheusExporter{
				Enabled: ptr.To(false),
			},
		},
	}
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (cfg *Config, errRet error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil && errRet == nil {
			errRet = err
		}
	}()

	return Load(file)
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		// Clear the map in case this function is called multiple times
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	// host
	hostSysFS := app.Flag(HostSysFSFlag, "Host sysfs path").Default("/sys").ExistingDir()
	hostProcFS := app.Flag(HostProcFSFlag, "Host procfs path").Default("/proc").ExistingDir()

	// energy
	backends := app.Flag(EnergyBackendFlag,
		"Energy backend to probe; repeat to set the preference order (perf, powercap, msr)").
		Enums(BackendPerf, BackendPowercap, BackendMSR)
	msrDevicePath := app.Flag(EnergyMSRDevicePathFlag, "MSR device path template, %d is the cpu number").
		Default("/dev/cpu/%d/msr").String()
	msrInterval := app.Flag(EnergyMSRIntervalFlag, "Sampling interval of the msr backend").Default("10s").Duration()
	powercapInterval := app.Flag(EnergyPowercapIntervalFlag, "Sampling interval of the powercap backend").Default("30s").Duration()
	perfEnabled := app.Flag(EnergyPerfEnabledFlag, "Enable the perf power PMU backend").Default("true").Bool()

	// exporters
	stdoutExporterEnabled := app.Flag(ExporterStdoutEnabledFlag, "Enable stdout exporter").Default("true").Bool()
	prometheusExporterEnabled := app.Flag(ExporterPrometheusEnabledFlag, "Enable Prometheus textfile exporter").Default("false").Bool()
	prometheusTextfile := app.Flag(ExporterPrometheusTextfileFlag, "Prometheus textfile to write the measurement to").String()

	return func(cfg *Config) error {
		// Logging settings
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}

		if flagsSet[HostProcFSFlag] {
			cfg.Host.ProcFS = *hostProcFS
		}

		// energy settings
		if flagsSet[EnergyBackendFlag] {
			cfg.Energy.Backends = *backends
		}
		if flagsSet[EnergyMSRDevicePathFlag] {
			cfg.Energy.MSR.DevicePath = *msrDevicePath
		}
		if flagsSet[EnergyMSRIntervalFlag] {
			cfg.Energy.MSR.Interval = *msrInterval
		}
		if flagsSet[EnergyPowercapIntervalFlag] {
			cfg.Energy.Powercap.Interval = *powercapInterval
		}
		if flagsSet[EnergyPerfEnabledFlag] {
			cfg.Energy.Perf.Enabled = perfEnabled
		}

		if flagsSet[ExporterStdoutEnabledFlag] {
			cfg.Exporter.Stdout.Enabled = stdoutExporterEnabled
		}

		if flagsSet[ExporterPrometheusEnabledFlag] {
			cfg.Exporter.Prometheus.Enabled = prometheusExporterEnabled
		}

		if flagsSet[ExporterPrometheusTextfileFlag] {
			cfg.Exporter.Prometheus.Textfile = *prometheusTextfile
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.Host.ProcFS = strings.TrimSpace(c.Host.ProcFS)

	for i := range c.Energy.Backends {
		c.Energy.Backends[i] = strings.ToLower(strings.TrimSpace(c.Energy.Backends[i]))
	}
	c.Energy.MSR.DevicePath = strings.TrimSpace(c.Energy.MSR.DevicePath)
	c.Exporter.Prometheus.Textfile = strings.TrimSpace(c.Exporter.Prometheus.Textfile)
}

// EnabledBackends returns the backends to probe, in order, with perf
// removed when it is disabled.
func (c *Config) EnabledBackends() []string {
	out := make([]string, 0, len(c.Energy.Backends))
	for _, b := range c.Energy.Backends {
		if b == BackendPerf && !ptr.Deref(c.Energy.Perf.Enabled, true) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Validate checks for configuration errors
func (c *Config) Validate(skips ...SkipValidation) error {
	validationSkipped := make(map[SkipValidation]bool, len(skips))
	for _, v := range skips {
		validationSkipped[v] = true
	}
	var errs []string
	{ // log level

		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}

		// Validate logging settings
		if _, valid := validLogLevels[c.Log.Level]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
		}
	}
	{ // log format
		validFormats := map[string]bool{
			"text": true,
			"json": true,
		}
		if _, valid := validFormats[c.Log.Format]; !valid {
			errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
		}
	}

	{ // Validate host settings
		if _, skip := validationSkipped[SkipHostValidation]; !skip {
			if err := canReadDir(c.Host.SysFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid sysfs path: %s: %s ", c.Host.SysFS, err.Error()))
			}
			if err := canReadDir(c.Host.ProcFS); err != nil {
				errs = append(errs, fmt.Sprintf("invalid procfs path: %s: %s ", c.Host.ProcFS, err.Error()))
			}
		}
	}
	{ // Energy backends
		validBackends := map[string]bool{
			BackendPerf:     true,
			BackendPowercap: true,
			BackendMSR:      true,
		}
		seen := map[string]bool{}
		for _, b := range c.Energy.Backends {
			if !validBackends[b] {
				errs = append(errs, fmt.Sprintf("invalid energy backend: %q", b))
				continue
			}
			if seen[b] {
				errs = append(errs, fmt.Sprintf("duplicate energy backend: %s", b))
			}
			seen[b] = true
		}
		if c.Energy.MSR.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid msr interval: %s must be positive", c.Energy.MSR.Interval))
		}
		if c.Energy.Powercap.Interval <= 0 {
			errs = append(errs, fmt.Sprintf("invalid powercap interval: %s must be positive", c.Energy.Powercap.Interval))
		}
		if strings.Count(c.Energy.MSR.DevicePath, "%d") != 1 {
			errs = append(errs, fmt.Sprintf("invalid msr device path: %q must contain exactly one %%d", c.Energy.MSR.DevicePath))
		}
	}
	{ // Prometheus textfile
		if ptr.Deref(c.Exporter.Prometheus.Enabled, false) && c.Exporter.Prometheus.Textfile == "" {
			errs = append(errs, fmt.Sprintf("%s not supplied but %s set to true",
				ExporterPrometheusTextfileFlag, ExporterPrometheusEnabledFlag))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}

	return nil
}

func canReadDir(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() {
		// ignored on purpose
		_ = f.Close()
	}()

	_, err = f.ReadDir(1)
	if err != nil {
		return err
	}

	return nil
}

func (c *Config) String() string {
	bytes, err := yaml.Marshal(c)
	if err == nil {
		return string(bytes)
	}
	// NOTE:  this code path should not happen but if it does (i.e if yaml marshal) fails
	// for some reason, manually build the string
	return c.manualString()
}

func (c *Config) manualString() string {
	cfgs := []struct {
		Name  string
		Value string
	}{
		{LogLevelFlag, c.Log.Level},
		{LogFormatFlag, c.Log.Format},
		{HostSysFSFlag, c.Host.SysFS},
		{HostProcFSFlag, c.Host.ProcFS},
		{EnergyBackendFlag, strings.Join(c.Energy.Backends, ", ")},
		{EnergyMSRDevicePathFlag, c.Energy.MSR.DevicePath},
		{EnergyMSRIntervalFlag, c.Energy.MSR.Interval.String()},
		{EnergyPowercapIntervalFlag, c.Energy.Powercap.Interval.String()},
		{EnergyPerfEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Energy.Perf.Enabled, false))},
		{ExporterStdoutEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Stdout.Enabled, false))},
		{ExporterPrometheusEnabledFlag, fmt.Sprintf("%v", ptr.Deref(c.Exporter.Prometheus.Enabled, false))},
		{ExporterPrometheusTextfileFlag, c.Exporter.Prometheus.Textfile},
	}
	sb := strings.Builder{}

	for _, cfg := range cfgs {
		sb.WriteString(cfg.Name)
		sb.WriteString(": ")
		sb.WriteString(cfg.Value)
		sb.WriteString("\n")
	}

	return sb.String()
}
