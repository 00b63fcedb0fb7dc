package pressure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/nanopressure/internal/device"
	"github.com/srg/nanopressure/internal/ringchan"
)

// ScanState is the live scan lifecycle.
type ScanState int

const (
	Idle ScanState = iota
	Subscribed
	DrainingSignal
	Unsubscribed
)

func (s ScanState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Subscribed:
		return "subscribed"
	case DrainingSignal:
		return "draining-signal"
	case Unsubscribed:
		return "unsubscribed"
	default:
		return fmt.Sprintf("ScanState(%d)", int(s))
	}
}

// DefaultTimeLayout renders local time with microseconds.
const DefaultTimeLayout = "2006-01-02 15:04:05.000000"

// DefaultQueueSize bounds notifications waiting to be printed.
const DefaultQueueSize = 64

// OutputFormat controls how live readings are printed.
type OutputFormat struct {
	// Terminator ends every line: "\n" scrolls, "\r" updates in place.
	Terminator string
	TimeLayout string
	Color      bool
}

// NewOutputFormat returns the console format. newline selects "\n" over "\r".
func NewOutputFormat(newline, colored bool) OutputFormat {
	term := "\r"
	if newline {
		term = "\n"
	}
	return OutputFormat{Terminator: term, TimeLayout: DefaultTimeLayout, Color: colored}
}

// Line renders one reading, e.g. "2024-01-02 03:04:05.000006 :  101325.00 Pa\n".
func (f OutputFormat) Line(at time.Time, pressure float32) string {
	layout := f.TimeLayout
	if layout == "" {
		layout = DefaultTimeLayout
	}
	ts := at.Format(layout)
	value := fmt.Sprintf("%10.2f Pa", pressure)
	if f.Color {
		tsColor := color.New(color.FgCyan)
		tsColor.EnableColor()
		valueColor := color.New(color.FgGreen, color.Bold)
		valueColor.EnableColor()
		ts = tsColor.Sprint(ts)
		value = valueColor.Sprint(value)
	}
	return ts + " : " + value + f.Terminator
}

type notification struct {
	at   time.Time
	data []byte
}

// LiveScan streams pressure notifications to Out until the context ends.
type LiveScan struct {
	Format    OutputFormat
	Out       io.Writer
	Logger    *logrus.Logger
	QueueSize int
	Now       func() time.Time

	mu    sync.Mutex
	state ScanState
}

func NewLiveScan(format OutputFormat, out io.Writer, logger *logrus.Logger) *LiveScan {
	if logger == nil {
		logger = logrus.New()
	}
	return &LiveScan{Format: format, Out: out, Logger: logger, QueueSize: DefaultQueueSize, Now: time.Now}
}

// State returns the current lifecycle state.
func (s *LiveScan) State() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *LiveScan) setState(state ScanState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.Logger.WithField("state", state).Debug("Live scan state")
}

// Run subscribes to value and prints every reading until ctx is cancelled,
// which is the normal way a scan ends and returns nil. Loss of the link
// returns ErrTransportDisconnected. A malformed payload or output failure
// ends the scan with that error. Every path unsubscribes before returning.
func (s *LiveScan) Run(ctx context.Context, conn device.Connection, value device.Characteristic) error {
	queueSize := s.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}

	queue := ringchan.New[notification](queueSize)
	var stopped atomic.Bool

	s.setState(Idle)
	err := value.Subscribe(func(data []byte) {
		if stopped.Load() {
			return
		}
		queue.ForceSend(notification{at: now(), data: append([]byte(nil), data...)})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to pressure notifications: %w", err)
	}
	s.setState(Subscribed)
	s.Logger.Info("Starting scanning mode...")

	stop := func() {
		stopped.Store(true)
		s.setState(DrainingSignal)
		if err := value.Unsubscribe(); err != nil {
			s.Logger.WithError(err).Warn("Failed to unsubscribe from pressure notifications")
		}
		s.setState(Unsubscribed)
		m := queue.Metrics()
		s.Logger.WithFields(logrus.Fields{
			"received": m.Written,
			"dropped":  m.Overwritten,
		}).Debug("Live scan stopped")
	}

	connDone := conn.ConnectionContext().Done()
	for {
		select {
		case <-ctx.Done():
			stop()
			return nil

		case <-connDone:
			stop()
			cause := context.Cause(conn.ConnectionContext())
			if cause == nil || errors.Is(cause, context.Canceled) {
				cause = device.ErrTransportDisconnected
			}
			return fmt.Errorf("live scan: %w", cause)

		case n := <-queue.C():
			if ctx.Err() != nil {
				stop()
				return nil
			}
			pressure, err := DecodePressure(n.data)
			if err != nil {
				stop()
				return err
			}
			if _, err := io.WriteString(s.Out, s.Format.Line(n.at, pressure)); err != nil {
				stop()
				return fmt.Errorf("failed to print reading: %w", err)
			}
		}
	}
}
