package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimesync_FirstSampleSetsOffset(t *testing.T) {
	ts := newTimesync(0.1, 10*time.Millisecond)
	local := int64(1_700_000_000_000_000_000)

	// remote clock 3 ms behind, 2 ms round trip
	assert.True(t, ts.observe(local, local+1_000_000-3_000_000, local+2_000_000))
	assert.Equal(t, 3*time.Millisecond, ts.Offset())
	assert.Equal(t, uint64(1), ts.Samples())
}

func TestTimesync_Smoothing(t *testing.T) {
	ts := newTimesync(0.5, 0)
	base := int64(1_000_000_000)

	ts.observe(base, base-4_000_000, base)
	ts.observe(base, base-2_000_000, base)

	assert.Equal(t, 3*time.Millisecond, ts.Offset())
}

func TestTimesync_RejectsSlowOrBackwardRoundTrips(t *testing.T) {
	ts := newTimesync(0.1, 10*time.Millisecond)

	assert.False(t, ts.observe(100, 50, 50), "answer before request")
	assert.False(t, ts.observe(0, 0, int64(20*time.Millisecond)))
	assert.Zero(t, ts.Offset())
	assert.Zero(t, ts.Samples())
}
