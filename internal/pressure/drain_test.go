package pressure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/nanopressure/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// historySensor simulates the device buffer: each count read returns the
// next scripted count and makes that many fresh records readable.
type historySensor struct {
	mu         sync.Mutex
	counts     []uint32
	pending    [][]byte
	next       int
	countReads int

	history *testutils.FakeCharacteristic
	count   *testutils.FakeCharacteristic
	clock   *testutils.FakeCharacteristic
}

func newHistorySensor(counts ...uint32) *historySensor {
	s := &historySensor{counts: counts}
	s.history = testutils.NewFakeCharacteristic("ff02", 19).WithRead()
	s.count = testutils.NewFakeCharacteristic("ff04", 25).WithRead()
	s.clock = testutils.NewFakeCharacteristic("ff03", 22).WithRead()

	s.count.OnRead = func() ([]byte, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		c := uint32(0)
		if s.countReads < len(s.counts) {
			c = s.counts[s.countReads]
		}
		s.countReads++
		for i := uint32(0); i < c; i++ {
			s.pending = append(s.pending, EncodeRecord(float32(100000+s.next), uint32(s.next*1000)))
			s.next++
		}
		return EncodeUint32(c), nil
	}
	s.history.OnRead = func() ([]byte, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.pending) == 0 {
			return nil, errors.New("history cursor exhausted")
		}
		rec := s.pending[0]
		s.pending = s.pending[1:]
		return rec, nil
	}
	return s
}

type DrainTestSuite struct {
	suite.Suite
}

func (suite *DrainTestSuite) drainer(s *historySensor) *Drainer {
	logger, _ := testutils.NewTestLogger()
	return NewDrainer(s.history, s.count, logger)
}

func (suite *DrainTestSuite) TestDrain_GrowingBuffer() {
	// GOAL: Verify samples appended mid-drain are picked up by the count re-check
	//
	// TEST SCENARIO: Counts [3, 2, 0] → 5 history reads in order → 3 count reads, the last observing 0

	s := newHistorySensor(3, 2, 0)
	d := suite.drainer(s)

	var progress [][2]int
	d.Progress = func(read, total int) { progress = append(progress, [2]int{read, total}) }

	set, err := d.Drain(context.Background())
	suite.Require().NoError(err)
	suite.Require().Equal(5, set.Len())

	for i, sample := range set.Samples() {
		suite.Assert().Equal(float32(100000+i), sample.Pressure)
		suite.Assert().Equal(uint32(i*1000), sample.RelativeMs)
	}
	suite.Assert().Equal(5, s.history.Reads())
	suite.Assert().Equal(3, s.count.Reads())
	suite.Assert().Equal([][2]int{{1, 3}, {2, 3}, {3, 3}, {4, 5}, {5, 5}}, progress)
	suite.Assert().True(d.Done())
}

func (suite *DrainTestSuite) TestDrain_TotalMatchesCountSequence() {
	tests := []struct {
		name   string
		counts []uint32
		total  int
	}{
		{name: "empty device", counts: []uint32{0}, total: 0},
		{name: "single batch", counts: []uint32{7, 0}, total: 7},
		{name: "many batches", counts: []uint32{4, 1, 1, 3, 0}, total: 9},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			s := newHistorySensor(tt.counts...)
			set, err := suite.drainer(s).Drain(context.Background())
			suite.Require().NoError(err)
			suite.Assert().Equal(tt.total, set.Len())
			suite.Assert().Equal(tt.total, s.history.Reads())
			suite.Assert().Equal(len(tt.counts), s.count.Reads(), "exactly one count read MUST follow the last batch")
		})
	}
}

func (suite *DrainTestSuite) TestDrain_IdempotentAfterZero() {
	// GOAL: Verify a second drain after observing zero performs no device reads
	//
	// TEST SCENARIO: Drain [2, 0] → drain again → empty set, read counters unchanged

	s := newHistorySensor(2, 0, 5)
	d := suite.drainer(s)

	_, err := d.Drain(context.Background())
	suite.Require().NoError(err)

	set, err := d.Drain(context.Background())
	suite.Require().NoError(err)
	suite.Assert().Equal(0, set.Len())
	suite.Assert().Equal(2, s.history.Reads())
	suite.Assert().Equal(2, s.count.Reads())
}

func (suite *DrainTestSuite) TestDrain_CancelledReturnsPartial() {
	// GOAL: Verify cancellation between reads keeps the samples read so far
	//
	// TEST SCENARIO: Cancel after second sample of 4 → 2 samples, error wraps context.Canceled, not done

	s := newHistorySensor(4, 0)
	d := suite.drainer(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Progress = func(read, total int) {
		if read == 2 {
			cancel()
		}
	}

	set, err := d.Drain(ctx)
	suite.Assert().ErrorIs(err, context.Canceled)
	suite.Assert().Equal(2, set.Len())
	suite.Assert().False(d.Done())
}

func (suite *DrainTestSuite) TestDrain_ReadFailureIsFatal() {
	s := newHistorySensor(3, 0)
	s.history.OnRead = nil
	s.history.ReadErr = errors.New("att: read not permitted")

	set, err := suite.drainer(s).Drain(context.Background())
	suite.Assert().ErrorContains(err, "read not permitted")
	suite.Assert().Equal(0, set.Len())
}

func (suite *DrainTestSuite) TestDrain_MalformedRecord() {
	s := newHistorySensor(1, 0)
	s.history.OnRead = func() ([]byte, error) { return []byte{1, 2, 3}, nil }

	_, err := suite.drainer(s).Drain(context.Background())
	suite.Assert().ErrorIs(err, ErrMalformedPayload)
}

func (suite *DrainTestSuite) TestDrain_CountAboveCapacity() {
	// GOAL: Verify an impossible buffered count is rejected before any allocation or history read
	//
	// TEST SCENARIO: pressureCounts reads 0xFFFFFFF0 → ErrMalformedPayload, empty set, no history reads

	s := newHistorySensor()
	s.count.OnRead = func() ([]byte, error) { return EncodeUint32(0xFFFFFFF0), nil }

	set, err := suite.drainer(s).Drain(context.Background())
	suite.Require().ErrorIs(err, ErrMalformedPayload)
	suite.Assert().ErrorContains(err, "exceeds the 16384 sample buffer")
	suite.Assert().Equal(0, set.Len())
	suite.Assert().Zero(s.history.Reads())
}

func (suite *DrainTestSuite) TestDrain_CountAfterBatchAboveCapacity() {
	s := newHistorySensor(1)
	reads := 0
	inner := s.count.OnRead
	s.count.OnRead = func() ([]byte, error) {
		reads++
		if reads > 1 {
			return EncodeUint32(BufferCapacity + 1), nil
		}
		return inner()
	}

	set, err := suite.drainer(s).Drain(context.Background())
	suite.Require().ErrorIs(err, ErrMalformedPayload)
	suite.Assert().Equal(1, set.Len(), "samples read before the bad count MUST be kept")
}

func (suite *DrainTestSuite) TestDownload_EndToEnd() {
	// GOAL: Verify drain plus clock reconciliation on the single-entry reference scenario
	//
	// TEST SCENARIO: One record (101325 Pa, 250 ms), counts [1, 0], deviceTime 250 ms at local 1000.0 s → timestamp 1000.0 s

	s := newHistorySensor()
	s.count.OnRead = nil
	s.count.WithValues(EncodeUint32(1), EncodeUint32(0))
	s.history.OnRead = nil
	s.history.WithValues(EncodeRecord(101325.0, 250))
	s.clock.WithValues(EncodeUint32(250))

	logger, _ := testutils.NewTestLogger()
	clock := NewClock(s.clock, logger)
	clock.Now = func() time.Time { return time.Unix(1000, 0) }

	dl := &Download{Drainer: NewDrainer(s.history, s.count, logger), Clock: clock}
	set, err := dl.Run(context.Background())
	suite.Require().NoError(err)
	suite.Require().Equal(1, set.Len())

	sample := set.Samples()[0]
	suite.Assert().Equal(float32(101325.0), sample.Pressure)
	suite.Assert().InDelta(1000.0, sample.Timestamp, 1e-6)
	suite.Assert().True(set.Reconciled())
}

func (suite *DrainTestSuite) TestDownload_InterruptedStillReconciles() {
	s := newHistorySensor(3, 0)
	s.clock.WithValues(EncodeUint32(10_000))

	logger, _ := testutils.NewTestLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drainer := NewDrainer(s.history, s.count, logger)
	drainer.Progress = func(read, _ int) {
		if read == 1 {
			cancel()
		}
	}
	clock := NewClock(s.clock, logger)
	clock.Now = func() time.Time { return time.Unix(2000, 0) }

	set, err := (&Download{Drainer: drainer, Clock: clock}).Run(ctx)
	suite.Assert().ErrorIs(err, context.Canceled)
	suite.Require().Equal(1, set.Len())
	suite.Assert().InDelta(1990.0, set.Samples()[0].Timestamp, 1e-6)
}

func (suite *DrainTestSuite) TestDownload_FailureSkipsClock() {
	s := newHistorySensor(1, 0)
	s.history.OnRead = nil
	s.history.ReadErr = errors.New("att: read not permitted")

	logger, _ := testutils.NewTestLogger()
	set, err := (&Download{Drainer: NewDrainer(s.history, s.count, logger), Clock: NewClock(s.clock, logger)}).Run(context.Background())
	suite.Assert().Error(err)
	suite.Assert().Nil(set)
	suite.Assert().Equal(0, s.clock.Reads())
}

func TestDrainTestSuite(t *testing.T) {
	suite.Run(t, new(DrainTestSuite))
}
