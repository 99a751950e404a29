// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package prometheus

import (
	"github.com/hep-benchmarks/hepscore-energy/internal/version"
	prom "github.com/prometheus/client_golang/prometheus"
)

// buildInfoCollector exports a constant 1 labelled with version information
type buildInfoCollector struct {
	desc *prom.Desc
}

func newBuildInfoCollector() *buildInfoCollector {
	return &buildInfoCollector{
		desc: prom.NewDesc(
			prom.BuildFQName(namespace, "build", "info"),
			"A metric with a constant '1' value labeled with version information",
			[]string{"arch", "branch", "revision", "version", "goversion"},
			nil,
		),
	}
}

func (c *buildInfoCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.desc
}

func (c *buildInfoCollector) Collect(ch chan<- prom.Metric) {
	info := version.Info()
	ch <- prom.MustNewConstMetric(c.desc, prom.GaugeValue, 1,
		info.GoArch,
		info.GitBranch,
		info.GitCommit,
		info.Version,
		info.GoVersion,
	)
}
