package worker

import "time"

const (
	defaultWarnWindow = 10 * time.Second
	defaultWarnBurst  = 20
)

// warnLimiter caps the decode warnings logged per window so a flood of
// malformed frames cannot flood the log. Only the worker goroutine uses it.
type warnLimiter struct {
	windowStart time.Time
	windowSize  time.Duration
	maxPerWin   int
	count       int
	suppressed  int
}

func newWarnLimiter(window time.Duration, burst int) *warnLimiter {
	if window <= 0 {
		window = defaultWarnWindow
	}
	if burst <= 0 {
		burst = defaultWarnBurst
	}
	return &warnLimiter{windowSize: window, maxPerWin: burst}
}

// allow reports whether a warning may be logged at now. When now opens a
// new window, dropped is the number of warnings withheld in the old one.
func (l *warnLimiter) allow(now time.Time) (ok bool, dropped int) {
	if now.Sub(l.windowStart) >= l.windowSize {
		dropped = l.suppressed
		l.windowStart = now
		l.count = 0
		l.suppressed = 0
	}
	l.count++
	if l.count > l.maxPerWin {
		l.suppressed++
		return false, dropped
	}
	return true, dropped
}
