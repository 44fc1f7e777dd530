// Package clock provides the injectable time source used by every
// time-dependent component (heartbeat aging, retry scheduling, sweep
// reports). Components never read the wall clock directly; tests advance
// a fake clock instead of sleeping.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time source injected into all components.
type Clock = clockwork.Clock

// FakeClock is a manually-advanced Clock for tests.
type FakeClock = *clockwork.FakeClock

// New returns a Clock backed by the system wall clock.
func New() Clock {
	return clockwork.NewRealClock()
}

// NewFake returns a FakeClock frozen at an arbitrary time.
func NewFake() FakeClock {
	return clockwork.NewFakeClock()
}

// NewFakeAt returns a FakeClock frozen at t.
func NewFakeAt(t time.Time) FakeClock {
	return clockwork.NewFakeClockAt(t)
}
