// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/hep-benchmarks/hepscore-energy/internal/measure"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// Reporter prints finished measurements as a table
type Reporter struct {
	logger *slog.Logger
	out    io.Writer
}

var _ measure.Reporter = (*Reporter)(nil)

type Opts struct {
	logger *slog.Logger
	out    io.Writer
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger: slog.Default(),
		out:    os.Stdout,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithOutput(out io.Writer) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

func NewReporter(applyOpts ...OptionFn) *Reporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Reporter{
		logger: opts.logger.With("service", "stdout"),
		out:    opts.out,
	}
}

// Name implements measure.Reporter
func (r *Reporter) Name() string {
	return "stdout"
}

func (r *Reporter) Report(res measure.Result) error {
	r.logger.Debug("Writing measurement", "command", res.CommandLine())
	return writeResult(r.out, res)
}

func writeResult(out io.Writer, res measure.Result) error {
	var energy string
	power := "n/a"
	switch {
	case !res.EnergySupported():
		energy = "not supported"
	case res.EnergyErr != nil:
		energy = "failed: " + res.EnergyErr.Error()
	default:
		energy = fmt.Sprintf("%.3f", res.Energy.Joules())
		power = fmt.Sprintf("%.2f", res.AveragePower().Watts())
	}

	backend := res.Backend
	if backend == "" {
		backend = "none"
	}

	rows := [][]string{
		{"Command", res.CommandLine()},
		{"Exit code", strconv.Itoa(res.ExitCode)},
		{"Duration (s)", fmt.Sprintf("%.3f", res.Duration.Seconds())},
		{"Backend", backend},
		{"Energy (J)", energy},
		{"Average power (W)", power},
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignLeft
	})
	table.Header([]string{"Measurement", "Value"})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// WriteProbe prints the support status of each energy backend
func WriteProbe(out io.Writer, results []measure.ProbeResult) error {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "supported"
		switch {
		case r.PermissionDenied:
			status = "permission denied"
		case !r.Supported:
			status = "unsupported"
		}
		rows = append(rows, []string{r.Backend, status, r.Reason})
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignLeft
	})
	table.Header([]string{"Backend", "Status", "Reason"})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
