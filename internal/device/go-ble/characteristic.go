package goble

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/nanopressure/internal/device"
)

const (
	// DefaultReadTimeout is the default timeout for characteristic read operations.
	// This prevents indefinite blocking if a device becomes unresponsive during a read.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds a write round-trip, including the ATT write response.
	DefaultWriteTimeout = 5 * time.Second
)

// BLECharacteristic is a discovered characteristic bound to its connection.
type BLECharacteristic struct {
	uuid       string
	properties *BLEProperties
	BLEChar    *ble.Characteristic
	connection *BLEConnection

	mu         sync.Mutex
	subscribed bool
	indicate   bool
}

func NewCharacteristic(c *ble.Characteristic, conn *BLEConnection) *BLECharacteristic {
	return &BLECharacteristic{
		uuid:       device.NormalizeUUID(c.UUID.String()),
		BLEChar:    c,
		properties: NewProperties(c.Property),
		connection: conn,
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) Handle() uint16 {
	return c.BLEChar.Handle
}

func (c *BLECharacteristic) ValueHandle() uint16 {
	return c.BLEChar.ValueHandle
}

func (c *BLECharacteristic) GetProperties() device.Properties {
	return c.properties
}

// Read reads the current value of the characteristic from the device with the specified timeout.
// A zero timeout uses DefaultReadTimeout.
func (c *BLECharacteristic) Read(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	client, err := c.connection.activeClient()
	if err != nil {
		return nil, fmt.Errorf("read characteristic %s: %w", c.uuid, err)
	}

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		c.connection.opMutex.Lock()
		defer c.connection.opMutex.Unlock()
		data, err := client.ReadCharacteristic(c.BLEChar)
		resultCh <- readResult{data: data, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("failed to read characteristic %s: %w", c.uuid, NormalizeError(result.err))
		}
		return result.data, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: reading characteristic %s after %v", device.ErrTimeout, c.uuid, timeout)
	}
}

// Write sends data to the characteristic. With withResponse set the call
// returns only after the peripheral acknowledged the ATT write request.
func (c *BLECharacteristic) Write(data []byte, withResponse bool, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	if withResponse && !device.Has(c.properties.Write()) {
		return fmt.Errorf("%w: characteristic %s does not accept acknowledged writes", device.ErrUnsupported, c.uuid)
	}
	if !withResponse && !device.Has(c.properties.WriteWithoutResponse()) {
		return fmt.Errorf("%w: characteristic %s does not accept writes without response", device.ErrUnsupported, c.uuid)
	}

	client, err := c.connection.activeClient()
	if err != nil {
		return fmt.Errorf("write characteristic %s: %w", c.uuid, err)
	}

	errCh := make(chan error, 1)
	go func() {
		c.connection.opMutex.Lock()
		defer c.connection.opMutex.Unlock()
		errCh <- client.WriteCharacteristic(c.BLEChar, data, !withResponse)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to write characteristic %s: %w", c.uuid, NormalizeError(err))
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w: writing characteristic %s after %v", device.ErrTimeout, c.uuid, timeout)
	}
}

// Subscribe enables notifications (or indications when that is all the
// characteristic supports) and routes every payload to handler.
func (c *BLECharacteristic) Subscribe(handler func(data []byte)) error {
	notify := device.Has(c.properties.Notify())
	indicate := device.Has(c.properties.Indicate())
	if !notify && !indicate {
		return fmt.Errorf("%w: characteristic %s does not support notifications", device.ErrUnsupported, c.uuid)
	}

	client, err := c.connection.activeClient()
	if err != nil {
		return fmt.Errorf("subscribe characteristic %s: %w", c.uuid, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribed {
		return fmt.Errorf("characteristic %s already subscribed", c.uuid)
	}

	c.connection.opMutex.Lock()
	err = client.Subscribe(c.BLEChar, !notify, func(data []byte) {
		handler(data)
	})
	c.connection.opMutex.Unlock()
	if err != nil {
		return fmt.Errorf("failed to subscribe characteristic %s: %w", c.uuid, NormalizeError(err))
	}

	c.subscribed = true
	c.indicate = !notify
	c.connection.logger.WithField("char_uuid", c.uuid).Debug("Subscribed to characteristic notifications")
	return nil
}

// Unsubscribe disables notifications. It is a no-op when not subscribed.
func (c *BLECharacteristic) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscribed {
		return nil
	}

	client, err := c.connection.activeClient()
	if err != nil {
		c.subscribed = false
		return fmt.Errorf("unsubscribe characteristic %s: %w", c.uuid, err)
	}

	c.connection.opMutex.Lock()
	err = client.Unsubscribe(c.BLEChar, c.indicate)
	c.connection.opMutex.Unlock()
	c.subscribed = false
	if err != nil {
		return fmt.Errorf("failed to unsubscribe characteristic %s: %w", c.uuid, NormalizeError(err))
	}

	c.connection.logger.WithField("char_uuid", c.uuid).Debug("Unsubscribed from characteristic notifications")
	return nil
}

func (c *BLECharacteristic) isSubscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}
