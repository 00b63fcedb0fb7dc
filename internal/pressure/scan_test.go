package pressure

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/srg/nanopressure/internal/device"
	"github.com/srg/nanopressure/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// lineSink records writes and signals each one.
type lineSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes chan struct{}
}

func newLineSink() *lineSink {
	return &lineSink{writes: make(chan struct{}, 16)}
}

func (s *lineSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	n, err := s.buf.Write(p)
	s.mu.Unlock()
	s.writes <- struct{}{}
	return n, err
}

func (s *lineSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func TestOutputFormat_Line(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 7, 9, 123456000, time.Local)

	assert.Equal(t, "2024-03-05 14:07:09.123456 :  101325.00 Pa\n", NewOutputFormat(true, false).Line(at, 101325))
	assert.Equal(t, "2024-03-05 14:07:09.123456 :   99999.50 Pa\r", NewOutputFormat(false, false).Line(at, 99999.5))

	colored := NewOutputFormat(true, true).Line(at, 101325)
	assert.Contains(t, colored, "\x1b[")
	assert.True(t, strings.HasSuffix(colored, "\n"))
}

func TestScanState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "subscribed", Subscribed.String())
	assert.Equal(t, "draining-signal", DrainingSignal.String())
	assert.Equal(t, "unsubscribed", Unsubscribed.String())
	assert.Equal(t, "ScanState(9)", ScanState(9).String())
}

type LiveScanTestSuite struct {
	suite.Suite
	value *testutils.FakeCharacteristic
	conn  *testutils.FakeConnection
	sink  *lineSink
	scan  *LiveScan
	logs  *bytes.Buffer
}

func (suite *LiveScanTestSuite) SetupTest() {
	logger, logs := testutils.NewTestLogger()
	suite.logs = logs
	suite.value = testutils.NewFakeCharacteristic("2a6d", 10).WithRead().WithNotify()
	suite.conn = testutils.NewFakeConnection(&testutils.FakeService{UUIDValue: "181a", Characteristics: []device.Characteristic{suite.value}})
	suite.sink = newLineSink()
	suite.scan = NewLiveScan(NewOutputFormat(true, false), suite.sink, logger)

	fixed := time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local)
	suite.scan.Now = func() time.Time { return fixed }
}

// start runs the scan in the background and waits for the subscription.
func (suite *LiveScanTestSuite) start(ctx context.Context) <-chan error {
	result := make(chan error, 1)
	go func() { result <- suite.scan.Run(ctx, suite.conn, suite.value) }()
	suite.Require().Eventually(suite.value.Subscribed, time.Second, time.Millisecond)
	return result
}

func (suite *LiveScanTestSuite) waitLine() {
	select {
	case <-suite.sink.writes:
	case <-time.After(time.Second):
		suite.FailNow("no line printed")
	}
}

func (suite *LiveScanTestSuite) waitResult(result <-chan error) error {
	select {
	case err := <-result:
		return err
	case <-time.After(time.Second):
		suite.FailNow("scan did not stop")
		return nil
	}
}

func (suite *LiveScanTestSuite) TestRun_PrintsUntilInterrupted() {
	// GOAL: Verify notifications print in order and an interrupt unsubscribes and ends cleanly
	//
	// TEST SCENARIO: Two notifications → two lines → cancel → nil error, unsubscribed, state Unsubscribed

	ctx, cancel := context.WithCancel(context.Background())
	result := suite.start(ctx)
	suite.Assert().Eventually(func() bool { return suite.scan.State() == Subscribed }, time.Second, time.Millisecond)

	suite.value.Notify(EncodePressure(101325))
	suite.waitLine()
	suite.value.Notify(EncodePressure(101330.25))
	suite.waitLine()

	cancel()
	suite.Require().NoError(suite.waitResult(result))

	testutils.NewTextAsserter(suite.T()).Assert(suite.sink.String(),
		"2024-03-05 14:07:09.000000 :  101325.00 Pa\n"+
			"2024-03-05 14:07:09.000000 :  101330.25 Pa\n")
	suite.Assert().Equal(1, suite.value.UnsubscribeCalls())
	suite.Assert().Equal(Unsubscribed, suite.scan.State())
	suite.Assert().False(suite.value.Notify(EncodePressure(1)), "handler MUST be gone after unsubscribe")
}

func (suite *LiveScanTestSuite) TestRun_UnsubscribeFailureIsLoggedNotReturned() {
	// GOAL: Verify a failing unsubscribe does not turn an interrupt into an error and later notifications are dropped
	//
	// TEST SCENARIO: Unsubscribe errors → cancel → nil error, warning logged → late notification not printed

	suite.value.UnsubscribeErr = errors.New("att: write cccd failed")
	ctx, cancel := context.WithCancel(context.Background())
	result := suite.start(ctx)

	cancel()
	suite.Require().NoError(suite.waitResult(result))
	suite.Assert().Contains(suite.logs.String(), "Failed to unsubscribe from pressure notifications")

	suite.Assert().True(suite.value.Notify(EncodePressure(1)), "fake keeps the handler when unsubscribe fails")
	suite.Assert().Empty(suite.sink.String())
}

func (suite *LiveScanTestSuite) TestRun_MalformedPayloadIsFatal() {
	result := suite.start(context.Background())

	suite.value.Notify([]byte{1, 2, 3})
	err := suite.waitResult(result)
	suite.Assert().ErrorIs(err, ErrMalformedPayload)
	suite.Assert().Equal(1, suite.value.UnsubscribeCalls())
}

func (suite *LiveScanTestSuite) TestRun_LinkLoss() {
	// GOAL: Verify a dropped link ends the scan with ErrTransportDisconnected
	//
	// TEST SCENARIO: Connection dropped while subscribed → ErrTransportDisconnected, unsubscribe still attempted

	result := suite.start(context.Background())
	suite.conn.Drop()

	err := suite.waitResult(result)
	suite.Assert().ErrorIs(err, device.ErrTransportDisconnected)
	suite.Assert().Equal(1, suite.value.UnsubscribeCalls())
}

func (suite *LiveScanTestSuite) TestRun_OutputFailure() {
	suite.scan.Out = failingWriter{}
	result := suite.start(context.Background())

	suite.value.Notify(EncodePressure(101325))
	err := suite.waitResult(result)
	suite.Assert().ErrorContains(err, "stdout closed")
}

func (suite *LiveScanTestSuite) TestRun_SubscribeFailure() {
	suite.value.SubscribeErr = errors.New("att: insufficient authentication")

	err := suite.scan.Run(context.Background(), suite.conn, suite.value)
	suite.Assert().ErrorContains(err, "insufficient authentication")
	suite.Assert().Equal(Idle, suite.scan.State())
	suite.Assert().Equal(0, suite.value.UnsubscribeCalls())
}

func TestLiveScanTestSuite(t *testing.T) {
	suite.Run(t, new(LiveScanTestSuite))
}
