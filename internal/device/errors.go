// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrUnsupported is returned when the hardware, kernel interface or CPU
	// model cannot provide energy readings through a given backend.
	ErrUnsupported = errors.New("energy measurement not supported")

	// ErrPermissionDenied is returned when a device or sysfs node exists but
	// cannot be accessed by the current user. It always wraps ErrUnsupported.
	ErrPermissionDenied = fmt.Errorf("%w: permission denied", ErrUnsupported)

	// ErrCounterRead is returned when a counter read fails during an active
	// measurement session. The session cannot recover from it.
	ErrCounterRead = errors.New("energy counter read failed")

	// usage errors
	ErrAlreadyStarted = errors.New("energy measurement already started")
	ErrNotStarted     = errors.New("energy measurement not started")
	ErrSessionRunning = errors.New("energy measurement still running; stop it first")
	ErrNoSession      = errors.New("no energy measurement session has been run")
	ErrClosed         = errors.New("energy meter is closed")
)

// unsupported wraps err so that it matches ErrUnsupported, or
// ErrPermissionDenied when err is a permission failure.
func unsupported(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrUnsupported, msg)
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %s: %w", ErrPermissionDenied, msg, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnsupported, msg, err)
}
