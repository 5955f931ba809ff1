package util

import "time"

// Clock abstracts time so order logs get deterministic timestamps in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock returns a preset instant and advances by Step on every call.
type FixedClock struct {
	Current time.Time
	Step    time.Duration
}

func (c *FixedClock) Now() time.Time {
	now := c.Current
	c.Current = c.Current.Add(c.Step)
	return now
}
