// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package measure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// Launcher runs a workload to completion and returns its exit code. An
// error means the workload could not be run at all.
type Launcher interface {
	Launch(ctx context.Context, argv []string) (int, error)
}

// ExecLauncher runs the workload as a child process sharing our stdio.
// On cancellation the child gets SIGTERM and GracePeriod to exit before
// it is killed.
type ExecLauncher struct {
	Stdout      io.Writer
	Stderr      io.Writer
	GracePeriod time.Duration
}

var _ Launcher = (*ExecLauncher)(nil)

func (l *ExecLauncher) Launch(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return -1, errors.New("no workload command given")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = l.GracePeriod

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to run %s: %w", argv[0], err)
}
