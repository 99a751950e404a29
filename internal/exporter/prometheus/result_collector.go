// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package prometheus

import (
	"sync"

	"github.com/hep-benchmarks/hepscore-energy/internal/measure"
	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "hepscore"

// resultCollector exports the last measured workload run. It exports
// nothing until a result is set.
type resultCollector struct {
	mu     sync.RWMutex
	result *measure.Result

	duration  *prom.Desc
	exitCode  *prom.Desc
	startTime *prom.Desc
	supported *prom.Desc
	failed    *prom.Desc
	energy    *prom.Desc
	power     *prom.Desc
}

var _ prom.Collector = (*resultCollector)(nil)

func newResultCollector() *resultCollector {
	backend := []string{"backend"}
	return &resultCollector{
		duration: prom.NewDesc(
			prom.BuildFQName(namespace, "workload", "duration_seconds"),
			"Wall clock duration of the measured workload",
			nil, nil),
		exitCode: prom.NewDesc(
			prom.BuildFQName(namespace, "workload", "exit_code"),
			"Exit code of the measured workload",
			nil, nil),
		startTime: prom.NewDesc(
			prom.BuildFQName(namespace, "workload", "start_time_seconds"),
			"Unix time the measured workload was launched",
			nil, nil),
		supported: prom.NewDesc(
			prom.BuildFQName(namespace, "energy", "supported"),
			"1 if an energy backend was available for the run",
			backend, nil),
		failed: prom.NewDesc(
			prom.BuildFQName(namespace, "energy", "measurement_failed"),
			"1 if the energy backend failed during the run",
			backend, nil),
		energy: prom.NewDesc(
			prom.BuildFQName(namespace, "energy", "joules"),
			"Energy consumed by the machine while the workload ran",
			backend, nil),
		power: prom.NewDesc(
			prom.BuildFQName(namespace, "energy", "average_power_watts"),
			"Average power drawn by the machine while the workload ran",
			backend, nil),
	}
}

func (c *resultCollector) set(r measure.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = &r
}

func (c *resultCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.duration
	ch <- c.exitCode
	ch <- c.startTime
	ch <- c.supported
	ch <- c.failed
	ch <- c.energy
	ch <- c.power
}

func (c *resultCollector) Collect(ch chan<- prom.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r := c.result
	if r == nil {
		return
	}

	ch <- prom.MustNewConstMetric(c.duration, prom.GaugeValue, r.Duration.Seconds())
	ch <- prom.MustNewConstMetric(c.exitCode, prom.GaugeValue, float64(r.ExitCode))
	if !r.StartedAt.IsZero() {
		ch <- prom.MustNewConstMetric(c.startTime, prom.GaugeValue, float64(r.StartedAt.Unix()))
	}

	if !r.EnergySupported() {
		ch <- prom.MustNewConstMetric(c.supported, prom.GaugeValue, 0, "none")
		return
	}
	ch <- prom.MustNewConstMetric(c.supported, prom.GaugeValue, 1, r.Backend)

	if r.EnergyErr != nil {
		ch <- prom.MustNewConstMetric(c.failed, prom.GaugeValue, 1, r.Backend)
		return
	}
	ch <- prom.MustNewConstMetric(c.failed, prom.GaugeValue, 0, r.Backend)
	ch <- prom.MustNewConstMetric(c.energy, prom.GaugeValue, r.Energy.Joules(), r.Backend)
	ch <- prom.MustNewConstMetric(c.power, prom.GaugeValue, r.AveragePower().Watts(), r.Backend)
}
