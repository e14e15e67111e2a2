package circuitbreaker

import (
	"sync"
	"time"
)

// Outcome is what happened to one call as seen by the breaker.
type Outcome int

const (
	// OutcomeSuccess is a call that completed and counted as healthy.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure is a call that returned an error.
	OutcomeFailure
	// OutcomeTimeout is a call abandoned after CallTimeout. It is also a failure.
	OutcomeTimeout
	// OutcomeReject is a call refused without contacting the downstream.
	OutcomeReject
)

// String returns the outcome label used in metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Counts holds call counters, either for the rolling window or since start.
type Counts struct {
	Fires     uint64 `json:"fires"`
	Successes uint64 `json:"successes"`
	Failures  uint64 `json:"failures"`
	Timeouts  uint64 `json:"timeouts"`
	Rejects   uint64 `json:"rejects"`
	Fallbacks uint64 `json:"fallbacks"`
}

// Completed is the number of calls that reached the downstream and finished.
// Timeouts are already included in Failures.
func (c Counts) Completed() uint64 {
	return c.Successes + c.Failures
}

// ErrorPercentage is Failures over Completed, 0 when nothing completed.
func (c Counts) ErrorPercentage() float64 {
	total := c.Completed()
	if total == 0 {
		return 0
	}
	return float64(c.Failures) / float64(total) * 100
}

func (c *Counts) add(o Counts) {
	c.Fires += o.Fires
	c.Successes += o.Successes
	c.Failures += o.Failures
	c.Timeouts += o.Timeouts
	c.Rejects += o.Rejects
	c.Fallbacks += o.Fallbacks
}

func (c *Counts) record(o Outcome) {
	switch o {
	case OutcomeSuccess:
		c.Fires++
		c.Successes++
	case OutcomeFailure:
		c.Fires++
		c.Failures++
	case OutcomeTimeout:
		c.Fires++
		c.Failures++
		c.Timeouts++
	case OutcomeReject:
		c.Rejects++
	}
}

type bucket struct {
	slot   int64 // absolute bucket number; stale when outside the window
	counts Counts
}

// rollingWindow keeps per-bucket counts over a fixed recent span. Buckets are
// addressed by absolute time, so an idle window needs no background ticker:
// stale buckets are skipped on read and recycled on write.
type rollingWindow struct {
	mu      sync.Mutex
	width   time.Duration
	buckets []bucket
	clock   func() time.Time
	gen     uint64
}

func newRollingWindow(span time.Duration, n int, clock func() time.Time) *rollingWindow {
	if n < 1 {
		n = 1
	}
	width := span / time.Duration(n)
	if width <= 0 {
		width = time.Millisecond
	}
	w := &rollingWindow{
		width:   width,
		buckets: make([]bucket, n),
		clock:   clock,
	}
	for i := range w.buckets {
		w.buckets[i].slot = -1
	}
	return w
}

// generation identifies the current window contents. Outcomes recorded
// against an older generation are dropped, so a call that started before
// a reset cannot leak into the fresh window.
func (w *rollingWindow) generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen
}

func (w *rollingWindow) current() *bucket {
	slot := w.clock().UnixNano() / int64(w.width)
	b := &w.buckets[slot%int64(len(w.buckets))]
	if b.slot != slot {
		b.slot = slot
		b.counts = Counts{}
	}
	return b
}

func (w *rollingWindow) record(gen uint64, o Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		return
	}
	w.current().counts.record(o)
}

// recordAny records regardless of generation; used for rejects and fallbacks.
func (w *rollingWindow) recordAny(o Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current().counts.record(o)
}

func (w *rollingWindow) recordFallback() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current().counts.Fallbacks++
}

func (w *rollingWindow) snapshot() Counts {
	w.mu.Lock()
	defer w.mu.Unlock()

	newest := w.clock().UnixNano() / int64(w.width)
	oldest := newest - int64(len(w.buckets)) + 1

	var total Counts
	for i := range w.buckets {
		b := &w.buckets[i]
		if b.slot >= oldest && b.slot <= newest {
			total.add(b.counts)
		}
	}
	return total
}

func (w *rollingWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gen++
	for i := range w.buckets {
		w.buckets[i] = bucket{slot: -1}
	}
}
