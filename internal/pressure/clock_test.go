package pressure

import (
	"testing"
	"time"

	"github.com/srg/nanopressure/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffsetAt(t *testing.T) {
	assert.InDelta(t, 999.0, OffsetAt(time.Unix(1000, 0), 1000), 1e-9)
	assert.InDelta(t, 1000.5, OffsetAt(time.Unix(1000, 500_000_000), 0), 1e-9)
}

func TestClock_OffsetAndReconcile(t *testing.T) {
	// GOAL: Verify reconciled timestamps equal T - deviceTime + relative time
	//
	// TEST SCENARIO: deviceTime 1000 ms read at local T → sample at 500 ms → timestamp T - 1.0 + 0.5

	const local = 1_700_000_000.25
	logger, logs := testutils.NewTestLogger()
	clock := NewClock(testutils.NewFakeCharacteristic("ff03", 22).WithRead().WithValues(EncodeUint32(1000)), logger)
	clock.Now = func() time.Time { return time.Unix(0, int64(local*1e9)) }

	offset, err := clock.Offset()
	require.NoError(t, err)

	set := NewSampleSet(2)
	set.Append(Sample{Pressure: 101000, RelativeMs: 500})
	set.Append(Sample{Pressure: 101001, RelativeMs: 1500})
	require.NoError(t, Reconcile(set, offset))

	samples := set.Samples()
	assert.InDelta(t, local-1.0+0.5, samples[0].Timestamp, 1e-3)
	assert.InDelta(t, local-1.0+1.5, samples[1].Timestamp, 1e-3)
	assert.Equal(t, uint32(500), samples[0].RelativeMs, "relative time MUST be preserved")
	assert.Contains(t, logs.String(), "Established time difference")
	assert.Contains(t, logs.String(), "Device start time")
}

func TestReconcile_OnlyOnce(t *testing.T) {
	set := NewSampleSet(1)
	set.Append(Sample{RelativeMs: 1000})
	require.NoError(t, Reconcile(set, 10))
	assert.ErrorIs(t, Reconcile(set, 10), ErrAlreadyReconciled)
	assert.InDelta(t, 11.0, set.Samples()[0].Timestamp, 1e-9)
}

func TestClock_MalformedDeviceTime(t *testing.T) {
	logger, _ := testutils.NewTestLogger()
	clock := NewClock(testutils.NewFakeCharacteristic("ff03", 22).WithRead().WithValues([]byte{1}), logger)
	_, err := clock.Offset()
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
