// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"time"
)

// Energy represents energy usage as an uint64 MicroJoule count.
// The maximum energy that can be captured is 2^64 - 1 MicroJoules
// Use functions Joules, MilliJoules and MicroJoules to get the energy
// value as Joule, MilliJoule or MicroJoule respectively
type Energy uint64

const (
	MicroJoule Energy = 1
	MilliJoule        = 1000 * MicroJoule
	Joule             = 1000 * MilliJoule
)

// EnergyFromJoules converts a Joule value as reported by hardware scale
// factors into Energy. Negative values are clamped to zero.
func EnergyFromJoules(j float64) Energy {
	if j <= 0 {
		return 0
	}
	return Energy(j * float64(Joule))
}

func (e Energy) MicroJoules() uint64 {
	return uint64(e)
}

func (e Energy) MilliJoules() float64 {
	return float64(e) / float64(MilliJoule)
}

func (e Energy) Joules() float64 {
	return float64(e) / float64(Joule)
}

func (e Energy) String() string {
	return fmt.Sprintf("%.2fJ", e.Joules())
}

// Power represents power usage as an float64 MicroWatts.
// Use functions Watts, MilliWatts and MicroWatts to get the power value as
// Watts, MilliWatts or MicroWatts respectively
type Power float64

const (
	MicroWatt Power = 1.0
	MilliWatt       = 1000 * MicroWatt
	Watt            = 1000 * MilliWatt
)

// AveragePower returns the mean power drawn while e was consumed over d.
// A non-positive duration yields zero.
func AveragePower(e Energy, d time.Duration) Power {
	if d <= 0 {
		return 0
	}
	return Power(float64(e) / d.Seconds())
}

func (p Power) MicroWatts() float64 {
	return float64(p)
}

func (p Power) MilliWatts() float64 {
	return float64(p / MilliWatt)
}

func (p Power) Watts() float64 {
	return float64(p / Watt)
}

func (p Power) String() string {
	return fmt.Sprintf("%.2fW", p.Watts())
}

// counterDelta returns the energy accumulated by a counter that moved from
// prev to curr, given that the counter wraps back to zero after ceiling.
func counterDelta(prev, curr, ceiling Energy) Energy {
	if curr >= prev {
		return curr - prev
	}
	if prev > ceiling {
		// counter was reset rather than wrapped; only curr is known to be consumed
		return curr
	}
	return (ceiling - prev) + curr
}
