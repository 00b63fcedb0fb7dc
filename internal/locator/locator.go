// Package locator finds the sensor to connect to, either by a known address
// or by an RSSI-filtered discovery scan.
package locator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/nanopressure/internal/device"
)

// DeviceBuilder creates a connectable device from its first advertisement.
type DeviceBuilder func(adv device.Advertisement) device.Device

// Chooser picks one of several candidates. Candidates are sorted strongest first.
type Chooser interface {
	Choose(ctx context.Context, candidates []device.DeviceInfo) (int, error)
}

// ChooserFunc adapts a function to Chooser.
type ChooserFunc func(ctx context.Context, candidates []device.DeviceInfo) (int, error)

func (f ChooserFunc) Choose(ctx context.Context, candidates []device.DeviceInfo) (int, error) {
	return f(ctx, candidates)
}

// Locator discovers BLE peripherals through a scanning device.
type Locator struct {
	scanner   device.ScanningDevice
	newDevice DeviceBuilder
	logger    *logrus.Logger

	// BlockList holds addresses that are never returned.
	BlockList []string
}

func New(scanner device.ScanningDevice, newDevice DeviceBuilder, logger *logrus.Logger) *Locator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Locator{scanner: scanner, newDevice: newDevice, logger: logger}
}

func (l *Locator) blocked(addr string) bool {
	for _, b := range l.BlockList {
		if device.SameAddress(addr, b) {
			return true
		}
	}
	return false
}

// scan runs one scan bounded by timeout. Expiry of the scan's own deadline
// is the normal end; cancellation of ctx is returned as ctx.Err().
func (l *Locator) scan(ctx context.Context, timeout time.Duration, handler func(device.Advertisement)) error {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := l.scanner.Scan(scanCtx, true, handler)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

// ResolveByAddress scans until an advertisement from address is seen.
// Addresses compare case-insensitively, ignoring ':' and '-'.
func (l *Locator) ResolveByAddress(ctx context.Context, address string, timeout time.Duration) (device.Device, error) {
	l.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Info("Looking for device...")

	scanCtx, stop := context.WithCancel(ctx)
	defer stop()

	found := make(chan device.Device, 1)
	err := l.scan(scanCtx, timeout, func(adv device.Advertisement) {
		if !device.SameAddress(adv.Addr(), address) {
			return
		}
		select {
		case found <- l.newDevice(adv):
			stop()
		default:
		}
	})

	select {
	case dev := <-found:
		l.logger.WithFields(logrus.Fields{
			"device": dev.Name(),
			"rssi":   dev.RSSI(),
		}).Info("Found device")
		return dev, nil
	default:
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: could not find device with address %s within %s", device.ErrDeviceNotFound, address, timeout)
}

// Discover scans for the whole timeout and returns every advertiser whose
// last-seen RSSI is strictly above minRSSI, strongest first.
func (l *Locator) Discover(ctx context.Context, timeout time.Duration, minRSSI int) ([]device.Device, error) {
	l.logger.WithField("timeout", timeout).Info("Scanning for bluetooth devices...")

	seen := hashmap.New[string, device.Device]()
	err := l.scan(ctx, timeout, func(adv device.Advertisement) {
		key := device.NormalizeAddress(adv.Addr())
		if key == "" || l.blocked(adv.Addr()) {
			return
		}
		if dev, ok := seen.Get(key); ok {
			dev.Update(adv)
			return
		}
		if dev, loaded := seen.GetOrInsert(key, l.newDevice(adv)); loaded {
			dev.Update(adv)
		}
	})
	if err != nil {
		return nil, err
	}

	var candidates []device.Device
	seen.Range(func(_ string, dev device.Device) bool {
		if dev.RSSI() > minRSSI {
			candidates = append(candidates, dev)
		}
		return true
	})
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RSSI() != candidates[j].RSSI() {
			return candidates[i].RSSI() > candidates[j].RSSI()
		}
		return candidates[i].Address() < candidates[j].Address()
	})

	for _, dev := range candidates {
		l.logger.WithFields(logrus.Fields{
			"device":  dev.Name(),
			"address": dev.Address(),
			"rssi":    dev.RSSI(),
		}).Info("Found device")
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: none above %d dB among %d advertisers, check minimum RSSI level (--rssi)",
			device.ErrNoDevicesFound, minRSSI, seen.Len())
	}
	return candidates, nil
}

// DiscoverInteractive runs Discover and selects a device. A single candidate
// is taken as is, several are offered to chooser. There is no re-scan.
func (l *Locator) DiscoverInteractive(ctx context.Context, timeout time.Duration, minRSSI int, chooser Chooser) (device.Device, error) {
	candidates, err := l.Discover(ctx, timeout, minRSSI)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	if chooser == nil {
		return nil, fmt.Errorf("%d devices found and no way to choose, pass --addr", len(candidates))
	}

	infos := make([]device.DeviceInfo, len(candidates))
	for i, c := range candidates {
		infos[i] = c
	}
	idx, err := chooser.Choose(ctx, infos)
	if err != nil {
		return nil, fmt.Errorf("device selection: %w", err)
	}
	if idx < 0 || idx >= len(candidates) {
		return nil, fmt.Errorf("device selection: index %d out of range", idx)
	}
	return candidates[idx], nil
}
