// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"

	"github.com/oklog/run"
)

// Run runs every Runner in its own actor of a run group. The first one to
// return cancels the context of all others and Run returns its error once
// every actor has returned. Shutdowners are shut down as their actor is
// interrupted.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var g run.Group
	for _, s := range services {
		s := s
		r, ok := s.(Runner)
		if !ok {
			logger.Debug("Skipping service run", "service", s.Name())
			continue
		}
		g.Add(
			func() error {
				logger.Debug("Running service", "service", r.Name())
				return r.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil {
					logger.Debug("Service interrupted", "service", r.Name(), "reason", err)
				}
				sd, ok := s.(Shutdowner)
				if !ok {
					return
				}
				if err := sd.Shutdown(); err != nil {
					logger.Warn("Service shutdown failed", "service", s.Name(), "error", err)
				}
			},
		)
	}
	return g.Run()
}
