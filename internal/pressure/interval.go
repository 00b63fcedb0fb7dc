package pressure

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/nanopressure/internal/device"
)

const (
	// BufferCapacity is the size of the device's circular history buffer.
	BufferCapacity = 16384

	// FallbackInterval is the effective sampling period when the interval is 0 (as fast as possible).
	FallbackInterval = 100 * time.Millisecond

	// DefaultOpTimeout bounds each characteristic read or acknowledged write.
	DefaultOpTimeout = 5 * time.Second
)

// RemainingBuffer estimates how long the device can keep recording before
// the circular buffer wraps, given count buffered samples and the sampling
// interval in seconds. A count above capacity yields 0. Results too large
// for a time.Duration saturate.
func RemainingBuffer(count, interval uint32) time.Duration {
	if count >= BufferCapacity {
		return 0
	}
	left := int64(BufferCapacity - count)
	if interval == 0 {
		return time.Duration(left) * FallbackInterval
	}
	secs := left * int64(interval)
	if secs > math.MaxInt64/int64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs) * time.Second
}

// IntervalConfigurator changes the device sampling interval.
type IntervalConfigurator struct {
	Interval device.Characteristic
	Counts   device.Characteristic
	Timeout  time.Duration
	Logger   *logrus.Logger
}

func NewIntervalConfigurator(interval, counts device.Characteristic, logger *logrus.Logger) *IntervalConfigurator {
	if logger == nil {
		logger = logrus.New()
	}
	return &IntervalConfigurator{Interval: interval, Counts: counts, Timeout: DefaultOpTimeout, Logger: logger}
}

// Apply reads the current interval, writes seconds with acknowledgement and
// returns the remaining buffer duration at the new interval.
func (c *IntervalConfigurator) Apply(ctx context.Context, seconds uint32) (time.Duration, error) {
	current, err := readUint32(c.Interval, "interval", c.Timeout)
	if err != nil {
		return 0, err
	}
	c.Logger.WithField("interval_s", current).Info("Current readout interval")

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.Logger.WithField("interval_s", seconds).Info("Setting readout interval")
	if err := c.Interval.Write(EncodeUint32(seconds), true, c.Timeout); err != nil {
		return 0, fmt.Errorf("%w: interval %d s: %w", device.ErrWriteNotAcknowledged, seconds, err)
	}

	count, err := readUint32(c.Counts, "pressureCounts", c.Timeout)
	if err != nil {
		return 0, err
	}

	remaining := RemainingBuffer(count, seconds)
	c.Logger.WithFields(logrus.Fields{
		"buffered":  count,
		"capacity":  BufferCapacity,
		"remaining": remaining.String(),
	}).Warn("Remaining recording buffer")
	return remaining, nil
}
