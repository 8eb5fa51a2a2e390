package clock

import "time"

// Clock is the single source of wall-clock time for the core. Everything that
// compares against an expiry instant or a validity window reads through it so
// tests can drive time deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func System() Clock { return systemClock{} }

// Fixed is a settable clock for tests.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time { return f.T }

func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
