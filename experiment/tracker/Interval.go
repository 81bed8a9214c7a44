package tracker

// Interval wraps a Tracker so that the wrapped Tracker only tracks
// values at iterations that are multiples of some interval. Interval
// itself is a Tracker.
//
// The Save() method of an Interval calls that of the embedded Tracker.
type Interval struct {
	Tracker
	every int
}

// Every returns a Tracker which passes values to t only at iterations
// that are multiples of n. If n <= 1, every value is passed to t.
func Every(t Tracker, n int) *Interval {
	if n < 1 {
		n = 1
	}
	return &Interval{t, n}
}

// Track calls Track() on the embedded Tracker if iter is a multiple of
// the interval
func (i *Interval) Track(tag string, value float64, iter int) {
	if iter%i.every == 0 {
		i.Tracker.Track(tag, value, iter)
	}
}

// Add is equivalent to Track
func (i *Interval) Add(tag string, value float64, iter int) {
	i.Track(tag, value, iter)
}
