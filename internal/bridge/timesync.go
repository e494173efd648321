package bridge

import (
	"sync/atomic"
	"time"
)

// timesync keeps an exponentially smoothed estimate of local minus remote
// clock, in nanoseconds, from answered TIMESYNC requests. observe is called
// by the poller only; the getters may be called from anywhere.
type timesync struct {
	alpha  float64
	maxRTT time.Duration

	estimate float64
	offset   atomic.Int64
	samples  atomic.Uint64
}

func newTimesync(alpha float64, maxRTT time.Duration) *timesync {
	return &timesync{alpha: alpha, maxRTT: maxRTT}
}

// observe folds in the answer to a request sent at ts1 (local ns), answered
// by the remote at tc1 (remote ns) and received at now (local ns). It
// reports whether the sample was used.
func (t *timesync) observe(ts1, tc1, now int64) bool {
	rtt := time.Duration(now - ts1)
	if rtt < 0 || (t.maxRTT > 0 && rtt > t.maxRTT) {
		return false
	}
	// differences first: absolute nanosecond stamps do not fit a float64 mantissa
	sample := float64((ts1-tc1)+(now-tc1)) / 2
	if t.samples.Load() == 0 {
		t.estimate = sample
	} else {
		t.estimate = t.alpha*sample + (1-t.alpha)*t.estimate
	}
	t.offset.Store(int64(t.estimate))
	t.samples.Add(1)
	return true
}

// Offset returns local minus remote time; zero before the first sample.
func (t *timesync) Offset() time.Duration {
	return time.Duration(t.offset.Load())
}

func (t *timesync) Samples() uint64 {
	return t.samples.Load()
}
