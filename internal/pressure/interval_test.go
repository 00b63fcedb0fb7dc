package pressure

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/srg/nanopressure/internal/device"
	"github.com/srg/nanopressure/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestRemainingBuffer(t *testing.T) {
	tests := []struct {
		name     string
		count    uint32
		interval uint32
		want     time.Duration
	}{
		{name: "fastest uses 0.1 s fallback", count: 100, interval: 0, want: 1628400 * time.Millisecond},
		{name: "one second", count: 384, interval: 1, want: 16000 * time.Second},
		{name: "empty buffer", count: 0, interval: 60, want: 16384 * time.Minute},
		{name: "full buffer", count: BufferCapacity, interval: 5, want: 0},
		{name: "count above capacity clamps", count: BufferCapacity + 10, interval: 5, want: 0},
		{name: "saturates", count: 0, interval: math.MaxUint32, want: time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RemainingBuffer(tt.count, tt.interval))
		})
	}
}

type IntervalTestSuite struct {
	suite.Suite
	interval *testutils.FakeCharacteristic
	counts   *testutils.FakeCharacteristic
	cfg      *IntervalConfigurator
}

func (suite *IntervalTestSuite) SetupTest() {
	logger, _ := testutils.NewTestLogger()
	suite.interval = testutils.NewFakeCharacteristic("ff01", 15).WithRead().WithWrite().WithValues(EncodeUint32(1))
	suite.counts = testutils.NewFakeCharacteristic("ff04", 25).WithRead().WithValues(EncodeUint32(100))
	suite.cfg = NewIntervalConfigurator(suite.interval, suite.counts, logger)
}

func (suite *IntervalTestSuite) TestApply_WritesAcknowledgedInterval() {
	// GOAL: Verify the configurator reads, writes with acknowledgement and estimates the buffer
	//
	// TEST SCENARIO: Current interval 1 s, request 0, 100 buffered → write [0 0 0 0] → (16384-100) x 0.1 s

	logger, logs := testutils.NewTestLogger()
	suite.cfg.Logger = logger

	remaining, err := suite.cfg.Apply(context.Background(), 0)
	suite.Require().NoError(err)

	suite.Assert().Equal(1628400*time.Millisecond, remaining)
	suite.Assert().Equal([][]byte{{0, 0, 0, 0}}, suite.interval.Writes())
	suite.Assert().Equal(1, suite.interval.Reads())
	suite.Assert().Equal(1, suite.counts.Reads())
	suite.Assert().Contains(logs.String(), "level=warning msg=\"Remaining recording buffer\"")
	suite.Assert().Contains(logs.String(), "remaining=27m8.4s")
}

func (suite *IntervalTestSuite) TestApply_WriteFailureNotAcknowledged() {
	suite.interval.WriteErr = errors.New("att: write timed out")

	_, err := suite.cfg.Apply(context.Background(), 5)
	suite.Assert().ErrorIs(err, device.ErrWriteNotAcknowledged)
	suite.Assert().Equal(0, suite.counts.Reads(), "counts MUST NOT be read after a failed write")
}

func (suite *IntervalTestSuite) TestApply_NoAcknowledgedWriteSupport() {
	// GOAL: Verify an interval characteristic that only supports unacknowledged writes is rejected
	//
	// TEST SCENARIO: Characteristic with write-without-response only → ErrWriteNotAcknowledged wrapping ErrUnsupported

	suite.cfg.Interval = testutils.NewFakeCharacteristic("ff01", 15).WithRead().WithWriteNR().WithValues(EncodeUint32(1))

	_, err := suite.cfg.Apply(context.Background(), 5)
	suite.Assert().ErrorIs(err, device.ErrWriteNotAcknowledged)
	suite.Assert().ErrorIs(err, device.ErrUnsupported)
}

func (suite *IntervalTestSuite) TestApply_MalformedInterval() {
	suite.cfg.Interval = testutils.NewFakeCharacteristic("ff01", 15).WithRead().WithWrite().WithValues([]byte{1, 2})

	_, err := suite.cfg.Apply(context.Background(), 5)
	suite.Assert().ErrorIs(err, ErrMalformedPayload)
	suite.Assert().Empty(suite.interval.Writes())
}

func (suite *IntervalTestSuite) TestApply_Cancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := suite.cfg.Apply(ctx, 5)
	suite.Assert().ErrorIs(err, context.Canceled)
	suite.Assert().Empty(suite.interval.Writes())
}

func TestIntervalTestSuite(t *testing.T) {
	suite.Run(t, new(IntervalTestSuite))
}
