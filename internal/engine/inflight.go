package engine

import "sync"

// inFlightLimiter caps concurrent passes of an operation. With max=1 it is
// a single-flight guard: TryAcquire fails while a previous pass still runs.
type inFlightLimiter struct {
	mu       sync.Mutex
	inFlight int
	max      int
}

func newInFlightLimiter(max int) *inFlightLimiter {
	return &inFlightLimiter{max: max}
}

// TryAcquire increments the in-flight counter if under the limit.
func (l *inFlightLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max > 0 && l.inFlight >= l.max {
		return false
	}
	l.inFlight++
	return true
}

// Release decrements the counter, clamping at zero.
func (l *inFlightLimiter) Release() {
	l.mu.Lock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.mu.Unlock()
}

func (l *inFlightLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}
