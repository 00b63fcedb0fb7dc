package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/nanopressure/internal/device"
)

// bleScanner wraps ble.Device to implement a device.ScanningDevice interface
type bleScanner struct {
	dev ble.Device
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (s *bleScanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	err := s.dev.Scan(ctx, allowDup, bleHandler)
	if err != nil {
		return NormalizeError(err)
	}
	return nil
}

// NewScanner creates a device.ScanningDevice backed by the shared host adapter.
func NewScanner() (device.ScanningDevice, error) {
	dev, err := SharedDevice()
	if err != nil {
		return nil, err
	}
	return &bleScanner{dev: dev}, nil
}
