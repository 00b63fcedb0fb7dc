package pressure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/nanopressure/internal/device"
)

// ProgressFunc receives the number of samples read and the last known total.
type ProgressFunc func(read, total int)

// Drainer empties the device history buffer.
//
// The device exposes history as a single read cursor, so reads are strictly
// sequential. The buffered count can grow while a batch is being read; only
// a freshly read count of zero ends the drain.
type Drainer struct {
	History  device.Characteristic
	Counts   device.Characteristic
	Timeout  time.Duration
	Logger   *logrus.Logger
	Progress ProgressFunc

	done bool
}

func NewDrainer(history, counts device.Characteristic, logger *logrus.Logger) *Drainer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Drainer{History: history, Counts: counts, Timeout: DefaultOpTimeout, Logger: logger}
}

// Done reports whether a drain has observed an empty buffer.
func (d *Drainer) Done() bool {
	return d.done
}

func (d *Drainer) readCount() (uint32, error) {
	count, err := readUint32(d.Counts, "pressureCounts", d.Timeout)
	if err != nil {
		return 0, err
	}
	if count > BufferCapacity {
		return 0, fmt.Errorf("%w: pressureCounts %d exceeds the %d sample buffer", ErrMalformedPayload, count, BufferCapacity)
	}
	d.Logger.WithField("count", count).Info("Found pressure values on device")
	return count, nil
}

// Drain reads every buffered sample in device order.
//
// Once a drain has completed, later calls return an empty set without
// touching the device. On cancellation between reads the samples read so
// far are returned with an error wrapping the context error. Any read or
// decode failure is fatal and also returns the partial set.
func (d *Drainer) Drain(ctx context.Context) (*SampleSet, error) {
	if d.done {
		return NewSampleSet(0), nil
	}

	start := time.Now()
	count, err := d.readCount()
	if err != nil {
		return NewSampleSet(0), err
	}
	set := NewSampleSet(int(min(count, BufferCapacity)))

	for count > 0 {
		total := set.Len() + int(count)
		for i := uint32(0); i < count; i++ {
			if err := ctx.Err(); err != nil {
				return set, fmt.Errorf("drain interrupted after %d of %d samples: %w", set.Len(), total, err)
			}

			data, err := d.History.Read(d.Timeout)
			if err != nil {
				return set, fmt.Errorf("failed to read pressureHistory %d of %d: %w", set.Len()+1, total, err)
			}
			sample, err := DecodeRecord(data)
			if err != nil {
				return set, err
			}
			set.Append(sample)

			if d.Progress != nil {
				d.Progress(set.Len(), total)
			}
		}

		// Samples recorded during the batch show up in the next count.
		count, err = d.readCount()
		if err != nil {
			return set, err
		}
	}

	d.done = true
	d.Logger.WithFields(logrus.Fields{
		"samples": set.Len(),
		"elapsed": time.Since(start).String(),
	}).Info("History drained")
	return set, nil
}

// Download drains the history and stamps every sample with absolute time.
type Download struct {
	Drainer *Drainer
	Clock   *Clock
}

// Run drains and reconciles. When the drain is interrupted the partial set
// is still reconciled and returned together with the context error, so the
// caller can persist what was read.
func (d *Download) Run(ctx context.Context) (*SampleSet, error) {
	set, drainErr := d.Drainer.Drain(ctx)
	interrupted := errors.Is(drainErr, context.Canceled) || errors.Is(drainErr, context.DeadlineExceeded)
	if drainErr != nil && !interrupted {
		return nil, drainErr
	}
	if set.Len() == 0 {
		return set, drainErr
	}

	offset, err := d.Clock.Offset()
	if err != nil {
		return nil, errors.Join(err, drainErr)
	}
	if err := Reconcile(set, offset); err != nil {
		return nil, err
	}
	return set, drainErr
}
