// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/hep-benchmarks/hepscore-energy/internal/exporter/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
)

// MetricInfo holds information about a Prometheus metric
type MetricInfo struct {
	Name        string
	Type        string
	Description string
	Labels      []string
	ConstLabels map[string]string
}

var (
	fqNameRegex         = regexp.MustCompile(`fqName: "([^"]+)"`)
	helpRegex           = regexp.MustCompile(`help: "([^"]+)"`)
	variableLabelsRegex = regexp.MustCompile(`variableLabels: \{([^}]*)\}`)
	constLabelsRegex    = regexp.MustCompile(`constLabels: \{([^}]*)\}`)
	labelPairRegex      = regexp.MustCompile(`(\w+)="([^"]*)"`)
)

// extractMetricsInfo parses the descriptions a collector publishes
func extractMetricsInfo(w io.Writer, collector prom.Collector) []MetricInfo {
	ch := make(chan *prom.Desc, 100)
	collector.Describe(ch)
	close(ch)

	var metrics []MetricInfo
	for desc := range ch {
		descStr := desc.String()
		fqName := fqNameRegex.FindStringSubmatch(descStr)
		help := helpRegex.FindStringSubmatch(descStr)
		if len(fqName) < 2 || len(help) < 2 {
			fmt.Fprintf(w, "Warning: could not parse %s\n", descStr)
			continue
		}

		var labels []string
		if m := variableLabelsRegex.FindStringSubmatch(descStr); len(m) >= 2 && m[1] != "" {
			for _, l := range strings.Split(m[1], ",") {
				labels = append(labels, strings.TrimSpace(l))
			}
		}

		constLabels := make(map[string]string)
		if m := constLabelsRegex.FindStringSubmatch(descStr); len(m) >= 2 {
			for _, pair := range labelPairRegex.FindAllStringSubmatch(m[1], -1) {
				constLabels[pair[1]] = pair[2]
			}
		}

		metricType := "GAUGE"
		if strings.HasSuffix(fqName[1], "_total") {
			metricType = "COUNTER"
		}

		metrics = append(metrics, MetricInfo{
			Name:        fqName[1],
			Type:        metricType,
			Description: help[1],
			Labels:      labels,
			ConstLabels: constLabels,
		})
	}
	return metrics
}

type section struct {
	title  string
	intro  string
	prefix string
}

var sections = []section{{
	title:  "Workload Metrics",
	intro:  "These metrics describe the measured workload run.",
	prefix: "hepscore_workload_",
}, {
	title:  "Energy Metrics",
	intro:  "These metrics report the energy measured by the selected RAPL backend while the workload ran.",
	prefix: "hepscore_energy_",
}}

// generateMarkdown generates Markdown documentation from metric information
func generateMarkdown(metrics []MetricInfo) string {
	var md strings.Builder
	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].Name < metrics[j].Name
	})

	md.WriteString("# HEPscore Energy Metrics\n\n")
	md.WriteString("This document describes the metrics written by hepscore-energy after each measured workload run.\n\n")
	md.WriteString("## Overview\n\n")
	md.WriteString("Metrics are written in the Prometheus text format to the configured textfile, ")
	md.WriteString("ready for the node_exporter textfile collector.\n\n")
	md.WriteString("### Metric Types\n\n")
	md.WriteString("- **COUNTER**: A cumulative metric that only increases over time\n")
	md.WriteString("- **GAUGE**: A metric that can increase and decrease\n\n")
	md.WriteString("## Metrics Reference\n\n")

	grouped := make([][]MetricInfo, len(sections))
	var other []MetricInfo
	for _, m := range metrics {
		placed := false
		for i, s := range sections {
			if strings.HasPrefix(m.Name, s.prefix) {
				grouped[i] = append(grouped[i], m)
				placed = true
				break
			}
		}
		if !placed {
			other = append(other, m)
		}
	}

	for i, s := range sections {
		if len(grouped[i]) == 0 {
			continue
		}
		fmt.Fprintf(&md, "### %s\n\n%s\n\n", s.title, s.intro)
		writeMetricsSection(&md, grouped[i])
	}
	if len(other) > 0 {
		md.WriteString("### Other Metrics\n\n")
		md.WriteString("Additional metrics provided by hepscore-energy.\n\n")
		writeMetricsSection(&md, other)
	}

	md.WriteString("---\n\n")
	md.WriteString("This documentation was automatically generated by the gen-metric-docs tool.\n")
	return md.String()
}

// writeMetricsSection writes a section of metrics to the markdown builder
func writeMetricsSection(md *strings.Builder, metrics []MetricInfo) {
	for _, metric := range metrics {
		fmt.Fprintf(md, "#### %s\n\n", metric.Name)
		fmt.Fprintf(md, "- **Type**: %s\n", metric.Type)
		fmt.Fprintf(md, "- **Description**: %s\n", metric.Description)
		if len(metric.Labels) > 0 {
			md.WriteString("- **Labels**:\n")
			for _, label := range metric.Labels {
				fmt.Fprintf(md, "  - `%s`\n", label)
			}
		}
		if len(metric.ConstLabels) > 0 {
			md.WriteString("- **Constant Labels**:\n")
			keys := make([]string, 0, len(metric.ConstLabels))
			for key := range metric.ConstLabels {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(md, "  - `%s`\n", key)
			}
		}
		md.WriteString("\n")
	}
}

// generate writes the documentation of every exported metric to outputPath
func generate(w io.Writer, outputPath string) error {
	var all []MetricInfo
	for _, c := range prometheus.Collectors() {
		all = append(all, extractMetricsInfo(w, c)...)
	}
	fmt.Fprintf(w, "Extracted %d metrics\n", len(all))

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, []byte(generateMarkdown(all)), 0o644); err != nil {
		return fmt.Errorf("failed to write markdown file: %w", err)
	}
	fmt.Fprintf(w, "Wrote metrics documentation to %s\n", outputPath)
	return nil
}

func main() {
	app := kingpin.New("gen-metric-docs", "Generate Markdown documentation of the exported metrics.")
	output := app.Flag("output", "Path to output Markdown file").Default("metrics.md").String()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := generate(os.Stdout, *output); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
