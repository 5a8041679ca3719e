package framesource

import "time"

// timestampTable memoizes capture times by frame number. Its capacity is the frame count of the
// source and entries are never evicted, so each time is read from the backing file at most once.
type timestampTable struct {
	times []time.Time
	known []bool
	size  int
}

func newTimestampTable(frames int) *timestampTable {
	return &timestampTable{
		times: make([]time.Time, frames),
		known: make([]bool, frames),
	}
}

func (t *timestampTable) get(n int) (time.Time, bool) {
	if n < 0 || n >= len(t.times) || !t.known[n] {
		return time.Time{}, false
	}
	return t.times[n], true
}

func (t *timestampTable) put(n int, ts time.Time) {
	if n < 0 || n >= len(t.times) {
		return
	}
	if !t.known[n] {
		t.size++
	}
	t.times[n], t.known[n] = ts, true
}

// Len is the number of frames with a known time.
func (t *timestampTable) Len() int {
	return t.size
}
