package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
)

// DeviceFactory creates the host BLE adapter (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

var (
	sharedMu  sync.Mutex
	sharedDev ble.Device
)

// SharedDevice returns the process-wide host adapter, creating it on first use.
// Scanning and dialing go through the same adapter because the Linux HCI
// socket can only be opened once.
func SharedDevice() (ble.Device, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedDev != nil {
		return sharedDev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)
	sharedDev = dev
	return dev, nil
}

// ReleaseSharedDevice stops the host adapter if one was created.
func ReleaseSharedDevice() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedDev == nil {
		return nil
	}
	err := sharedDev.Stop()
	sharedDev = nil
	return err
}

// GATTClient is the subset of ble.Client a connection needs.
type GATTClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// Dial opens a GATT client to the peripheral at address (can be overridden in tests)
var Dial = func(ctx context.Context, address string) (GATTClient, error) {
	dev, err := SharedDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}
