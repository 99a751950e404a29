// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAsync(ctx context.Context, services []Service) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, nil, services)
	}()
	return errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRun(t *testing.T) {
	t.Run("first runner to return cancels the others", func(t *testing.T) {
		rec := &recorder{}
		runErr := errors.New("workload failed to launch")
		services := []Service{
			runShutdown{&fakeService{name: "measure", rec: rec,
				runFn: func(context.Context) error { return runErr }}},
			runShutdown{&fakeService{name: "waiter", rec: rec, runFn: untilCancelled(rec, "waiter")}},
			initOnly{&fakeService{name: "not-a-runner", rec: rec}},
		}

		err := waitErr(t, runAsync(context.Background(), services))
		assert.ErrorIs(t, err, runErr)
		assert.Equal(t, 1, rec.count("waiter:cancelled"))
		assert.Equal(t, 1, rec.count("measure:shutdown"))
		assert.Equal(t, 1, rec.count("waiter:shutdown"))
		assert.Zero(t, rec.count("not-a-runner:run"))
	})

	t.Run("shutdown errors do not change the result", func(t *testing.T) {
		rec := &recorder{}
		services := []Service{
			runShutdown{&fakeService{name: "svc", rec: rec, shutdownErr: errors.New("close failed")}},
		}

		assert.NoError(t, waitErr(t, runAsync(context.Background(), services)))
		assert.Equal(t, []string{"svc:run", "svc:shutdown"}, rec.list())
	})

	t.Run("runners without shutdown are only cancelled", func(t *testing.T) {
		rec := &recorder{}
		runErr := errors.New("run error")
		services := []Service{
			runOnly{&fakeService{name: "a", rec: rec, runFn: func(context.Context) error { return runErr }}},
			runOnly{&fakeService{name: "b", rec: rec, runFn: untilCancelled(rec, "b")}},
		}

		assert.ErrorIs(t, waitErr(t, runAsync(context.Background(), services)), runErr)
		assert.Equal(t, 1, rec.count("b:cancelled"))
	})

	t.Run("outer context cancellation stops all runners", func(t *testing.T) {
		rec := &recorder{}
		started := make(chan struct{}, 2)
		block := func(name string) func(ctx context.Context) error {
			wait := untilCancelled(rec, name)
			return func(ctx context.Context) error {
				started <- struct{}{}
				return wait(ctx)
			}
		}
		services := []Service{
			runShutdown{&fakeService{name: "a", rec: rec, runFn: block("a")}},
			runShutdown{&fakeService{name: "b", rec: rec, runFn: block("b")}},
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		errCh := runAsync(ctx, services)
		<-started
		<-started
		cancel()

		assert.ErrorIs(t, waitErr(t, errCh), context.Canceled)
		assert.Equal(t, 1, rec.count("a:cancelled"))
		assert.Equal(t, 1, rec.count("b:cancelled"))
	})

	t.Run("a signal ends the run with an error and cancels the workload", func(t *testing.T) {
		rec := &recorder{}
		started := make(chan struct{})
		wait := untilCancelled(rec, "measure")
		services := []Service{
			runShutdown{&fakeService{name: "measure", rec: rec, runFn: func(ctx context.Context) error {
				close(started)
				return wait(ctx)
			}}},
			NewSignalHandler(syscall.SIGWINCH),
		}

		errCh := runAsync(context.Background(), services)
		<-started

		// SIGWINCH is ignored by default, so resending until the handler
		// has subscribed is harmless
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		deadline := time.After(5 * time.Second)
		var err error
	loop:
		for {
			select {
			case err = <-errCh:
				break loop
			case <-ticker.C:
				require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGWINCH))
			case <-deadline:
				t.Fatal("Run did not return after the signal")
			}
		}

		assert.ErrorContains(t, err, "received signal")
		assert.Equal(t, 1, rec.count("measure:cancelled"))
		assert.Equal(t, 1, rec.count("measure:shutdown"))
	})

	t.Run("empty service list", func(t *testing.T) {
		assert.NoError(t, Run(context.Background(), nil, nil))
	})
}
