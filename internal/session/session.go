// Package session owns the connection to one sensor for the duration of a run.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/nanopressure/internal/device"
)

// ProgressCallback is called when the session phase changes
type ProgressCallback func(phase string)

// Options defines how a session is opened
type Options struct {
	ConnectTimeout time.Duration
	Progress       ProgressCallback
}

// DefaultConnectTimeout is used when Options leaves ConnectTimeout unset.
const DefaultConnectTimeout = 5 * time.Second

// Session is a live connection to one device.
type Session struct {
	dev    device.Device
	logger *logrus.Logger

	mu     sync.Mutex
	closed bool
}

// Open connects to dev. Failures are reported as ErrConnectionTimeout or
// ErrConnectionFailed; an interrupted connect returns the context error.
func Open(ctx context.Context, dev device.Device, opts *Options, logger *logrus.Logger) (*Session, error) {
	if opts == nil {
		opts = &Options{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(string) {}
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	progress("Connecting")
	err := dev.Connect(ctx, &device.ConnectOptions{ConnectTimeout: timeout})
	if err != nil {
		progress("Failed")
		return nil, classifyConnectError(ctx, dev, err)
	}
	progress("Connected")

	logger.WithFields(logrus.Fields{
		"device":  dev.Name(),
		"address": dev.Address(),
	}).Info("Connected to device")
	return &Session{dev: dev, logger: logger}, nil
}

func classifyConnectError(ctx context.Context, dev device.Device, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("connect to %s: %w", dev.Address(), ctx.Err())
	case errors.Is(err, device.ErrConnectionTimeout), errors.Is(err, device.ErrConnectionFailed):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", device.ErrConnectionTimeout, dev.Address(), err)
	default:
		return fmt.Errorf("%w: %s: %w", device.ErrConnectionFailed, dev.Address(), err)
	}
}

// Device returns the connected peripheral.
func (s *Session) Device() device.DeviceInfo {
	return s.dev
}

// Connection returns the live GATT connection.
func (s *Session) Connection() device.Connection {
	return s.dev.GetConnection()
}

// ListCharacteristics logs every service and characteristic at debug level.
func (s *Session) ListCharacteristics() {
	if !s.logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	for _, svc := range s.Connection().Services() {
		s.logger.WithField("service", svc.UUID()).Debug("Service")
		for _, c := range svc.GetCharacteristics() {
			s.logger.WithFields(logrus.Fields{
				"service":      svc.UUID(),
				"uuid":         c.UUID(),
				"handle":       c.Handle(),
				"value_handle": c.ValueHandle(),
				"properties":   PropertyNames(c.GetProperties()),
			}).Debug("Characteristic")
		}
	}
}

// PropertyNames renders a property set as "Read|Notify".
func PropertyNames(p device.Properties) string {
	var names []string
	for _, prop := range []device.Property{p.Read(), p.Write(), p.WriteWithoutResponse(), p.Notify(), p.Indicate()} {
		if device.Has(prop) {
			names = append(names, prop.KnownName())
		}
	}
	return strings.Join(names, "|")
}

// Close disconnects. Later calls do nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.dev.Disconnect()
	if err != nil {
		s.logger.WithError(err).Error("Failed to disconnect device")
		return err
	}
	s.logger.WithField("device", s.dev.Name()).Info("Disconnected from device")
	return nil
}

// With opens a session, runs fn and always closes the session afterwards,
// whether fn returns normally, with an error or after cancellation.
// A failed disconnect is returned when fn itself succeeded; otherwise fn's
// error wins and the disconnect failure is only logged.
func With[R any](ctx context.Context, dev device.Device, opts *Options, logger *logrus.Logger, fn func(*Session) (R, error)) (result R, err error) {
	s, err := Open(ctx, dev, opts, logger)
	if err != nil {
		return result, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to disconnect from %s: %w", dev.Address(), cerr)
		}
	}()

	if opts != nil && opts.Progress != nil {
		opts.Progress("Running")
	}
	return fn(s)
}
