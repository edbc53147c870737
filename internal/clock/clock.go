// Package clock abstracts wall-clock access so hold expiry and
// rate-limit windows can be tested deterministically.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System is the production clock; it returns time.Now in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a test clock pinned to an instant that can be moved
// explicitly.
type Fixed struct {
	Instant time.Time
}

func (f *Fixed) Now() time.Time { return f.Instant }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) { f.Instant = f.Instant.Add(d) }
