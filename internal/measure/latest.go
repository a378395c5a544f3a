package measure

import "sync/atomic"

// Latest holds the live measurement. Whichever measurement completes last
// replaces the previous one; readers never see a partial result.
type Latest struct {
	v atomic.Pointer[Result]
}

// Store publishes r.
func (l *Latest) Store(r Result) {
	l.v.Store(&r)
}

// Load returns the live result, if any.
func (l *Latest) Load() (Result, bool) {
	p := l.v.Load()
	if p == nil {
		return Result{}, false
	}
	return *p, true
}

// Clear drops the live result.
func (l *Latest) Clear() {
	l.v.Store(nil)
}
