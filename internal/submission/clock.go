package submission

import "time"

// Clock is the single source of time for rate limiting and record stamps.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
