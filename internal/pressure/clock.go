package pressure

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/nanopressure/internal/device"
)

// Clock reconciles the device's millisecond clock with local wall time.
type Clock struct {
	DeviceTime device.Characteristic
	Timeout    time.Duration
	Logger     *logrus.Logger
	Now        func() time.Time
}

func NewClock(deviceTime device.Characteristic, logger *logrus.Logger) *Clock {
	if logger == nil {
		logger = logrus.New()
	}
	return &Clock{DeviceTime: deviceTime, Timeout: DefaultOpTimeout, Logger: logger, Now: time.Now}
}

// OffsetAt returns local - deviceMs/1000 in seconds.
func OffsetAt(local time.Time, deviceMs uint32) float64 {
	return float64(local.UnixNano())/1e9 - float64(deviceMs)/1000
}

// Offset reads deviceTime once and returns the additive offset in seconds
// that turns a relative sample time into epoch seconds. Local time is
// sampled right before the read.
func (c *Clock) Offset() (float64, error) {
	local := c.Now()
	deviceMs, err := readUint32(c.DeviceTime, "deviceTime", c.Timeout)
	if err != nil {
		return 0, err
	}

	offset := OffsetAt(local, deviceMs)
	c.Logger.WithFields(logrus.Fields{
		"device_ms": deviceMs,
		"offset_s":  offset,
	}).Info("Established time difference")
	c.Logger.WithField("started_at", epochTime(offset).Format(time.RFC3339)).Info("Device start time")
	return offset, nil
}

// Reconcile sets Timestamp = RelativeMs/1000 + offset on every sample, in one pass.
func Reconcile(set *SampleSet, offset float64) error {
	if set.reconciled {
		return fmt.Errorf("reconcile with offset %f: %w", offset, ErrAlreadyReconciled)
	}
	for i := range set.samples {
		set.samples[i].Timestamp = float64(set.samples[i].RelativeMs)/1000 + offset
	}
	set.reconciled = true
	return nil
}

func epochTime(secs float64) time.Time {
	return time.Unix(0, int64(secs*1e9))
}
