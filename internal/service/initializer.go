// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"errors"
	"fmt"
	"log/slog"
)

// Init initializes services in order. When one fails, the services
// initialized before it are shut down in reverse order and the init error
// is returned.
func Init(logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.Default()
	}

	initialized := make([]Service, 0, len(services))
	for _, s := range services {
		srv, ok := s.(Initializer)
		if !ok {
			logger.Debug("Skipping service initialization", "service", s.Name())
			continue
		}
		logger.Info("Initializing service", "service", s.Name())
		if err := srv.Init(); err != nil {
			_ = Shutdown(logger, initialized)
			return fmt.Errorf("failed to initialize service %s: %w", s.Name(), err)
		}
		initialized = append(initialized, s)
	}
	return nil
}

// Shutdown shuts down services in reverse order. Failures are logged and
// joined into the returned error.
func Shutdown(logger *slog.Logger, services []Service) error {
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		srv, ok := s.(Shutdowner)
		if !ok {
			continue
		}
		if err := srv.Shutdown(); err != nil {
			logger.Error("Failed to shutdown service", "service", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		logger.Debug("Service shut down", "service", s.Name())
	}
	return errors.Join(errs...)
}
