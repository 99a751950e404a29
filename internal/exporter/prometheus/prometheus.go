// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package prometheus

import (
	"fmt"
	"log/slog"

	"github.com/hep-benchmarks/hepscore-energy/internal/measure"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Reporter writes finished measurements to a Prometheus textfile, to be
// picked up by the node_exporter textfile collector
type Reporter struct {
	logger   *slog.Logger
	textfile string
	registry *prom.Registry
	results  *resultCollector
}

var _ measure.Reporter = (*Reporter)(nil)

type Opts struct {
	logger *slog.Logger
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// NewReporter returns a reporter writing to textfile. The file is replaced
// atomically on every report.
func NewReporter(textfile string, applyOpts ...OptionFn) *Reporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	r := &Reporter{
		logger:   opts.logger.With("service", "prometheus"),
		textfile: textfile,
		registry: prom.NewRegistry(),
		results:  newResultCollector(),
	}
	r.registry.MustRegister(newBuildInfoCollector(), r.results)
	return r
}

// Name implements measure.Reporter
func (r *Reporter) Name() string {
	return "prometheus"
}

func (r *Reporter) Report(res measure.Result) error {
	r.results.set(res)
	if err := prom.WriteToTextfile(r.textfile, r.registry); err != nil {
		return fmt.Errorf("failed to write textfile %s: %w", r.textfile, err)
	}
	r.logger.Info("Wrote measurement textfile", "path", r.textfile)
	return nil
}

// Collectors returns unset instances of every collector a Reporter
// registers, for tooling that only needs their descriptions
func Collectors() []prom.Collector {
	return []prom.Collector{newBuildInfoCollector(), newResultCollector()}
}
