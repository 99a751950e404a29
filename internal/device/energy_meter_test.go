// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEnergyMeter struct {
	mock.Mock
}

func (m *mockEnergyMeter) Name() string {
	return m.Called().String(0)
}

func (m *mockEnergyMeter) Init() error {
	return m.Called().Error(0)
}

func (m *mockEnergyMeter) IsSupported() bool {
	return m.Called().Bool(0)
}

func (m *mockEnergyMeter) Start() error {
	return m.Called().Error(0)
}

func (m *mockEnergyMeter) Stop() error {
	return m.Called().Error(0)
}

func (m *mockEnergyMeter) Energy() (Energy, error) {
	args := m.Called()
	return args.Get(0).(Energy), args.Error(1)
}

func (m *mockEnergyMeter) Close() error {
	return m.Called().Error(0)
}

func newMockMeter(name string, initErr error) *mockEnergyMeter {
	m := &mockEnergyMeter{}
	m.On("Name").Return(name).Maybe()
	m.On("Init").Return(initErr).Maybe()
	return m
}

func TestSelectEnergyMeter(t *testing.T) {
	t.Run("first supported wins and the rest are closed", func(t *testing.T) {
		perf := newMockMeter(BackendPerf, unsupported("no power PMU", nil))
		perf.On("Close").Return(nil).Once()
		powercap := newMockMeter(BackendPowercap, nil)
		msr := newMockMeter(BackendMSR, nil)
		msr.On("Close").Return(nil).Once()

		m, err := SelectEnergyMeter(slog.Default(), perf, powercap, msr)
		require.NoError(t, err)
		assert.Same(t, powercap, m)

		perf.AssertExpectations(t)
		msr.AssertExpectations(t)
		msr.AssertNotCalled(t, "Init")
		powercap.AssertNotCalled(t, "Close")
	})

	t.Run("none supported", func(t *testing.T) {
		perf := newMockMeter(BackendPerf, unsupported("no power PMU", nil))
		perf.On("Close").Return(nil)
		msr := newMockMeter(BackendMSR, unsupported("device", errors.New("permission denied")))
		msr.On("Close").Return(errors.New("already closed"))

		m, err := SelectEnergyMeter(nil, perf, msr)
		assert.Nil(t, m)
		assert.ErrorIs(t, err, ErrUnsupported)
		assert.Contains(t, err.Error(), "perf, msr")
	})

	t.Run("no meters", func(t *testing.T) {
		_, err := SelectEnergyMeter(nil)
		assert.ErrorIs(t, err, ErrUnsupported)
	})
}

func TestNewEnergyMeters(t *testing.T) {
	t.Run("default order", func(t *testing.T) {
		meters, err := NewEnergyMeters(nil, 0, 0)
		require.NoError(t, err)
		names := make([]string, len(meters))
		for i, m := range meters {
			names[i] = m.Name()
		}
		assert.Equal(t, DefaultBackends, names)
	})

	t.Run("explicit order and intervals", func(t *testing.T) {
		meters, err := NewEnergyMeters([]string{" MSR", "powercap"}, 5*time.Second, 20*time.Second)
		require.NoError(t, err)
		require.Len(t, meters, 2)

		msr := meters[0].(*sampledMeter)
		assert.Equal(t, BackendMSR, msr.Name())
		assert.Equal(t, 5*time.Second, msr.interval)

		powercap := meters[1].(*sampledMeter)
		assert.Equal(t, BackendPowercap, powercap.Name())
		assert.Equal(t, 20*time.Second, powercap.interval)
	})

	t.Run("zero interval selects the backend default", func(t *testing.T) {
		meters, err := NewEnergyMeters([]string{BackendPowercap}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultPowercapInterval, meters[0].(*sampledMeter).interval)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewEnergyMeters([]string{"nvml"}, 0, 0)
		assert.ErrorContains(t, err, `unknown energy backend "nvml"`)
	})
}
