// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "context"

// Service is anything with a lifecycle managed by Init, Run and Shutdown
type Service interface {
	Name() string
}

// Initializer is implemented by services that probe or acquire resources
// before anything runs, e.g. selecting an energy backend
type Initializer interface {
	Service
	Init() error
}

// Runner is implemented by services that do their work in Run. Run blocks
// until the work is done or ctx is cancelled.
type Runner interface {
	Service
	Run(ctx context.Context) error
}

// Shutdowner is implemented by services holding resources that must be
// released, such as open MSR devices or perf event descriptors
type Shutdowner interface {
	Service
	Shutdown() error
}
