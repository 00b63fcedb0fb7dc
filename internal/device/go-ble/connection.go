package goble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/nanopressure/internal/device"
	"github.com/srg/nanopressure/internal/groutine"
)

// DisconnectUnsubscribeTimeout bounds the unsubscribe step of Disconnect.
var DisconnectUnsubscribeTimeout = 2 * time.Second

// BLEConnection represents a live GATT connection.
type BLEConnection struct {
	client      GATTClient
	logger      *logrus.Logger
	opMutex     sync.Mutex // one ATT request in flight at a time
	connMutex   sync.RWMutex
	isConnected bool

	services map[string]*BLEService

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewBLEConnection(logger *logrus.Logger) *BLEConnection {
	if logger == nil {
		logger = logrus.New()
	}
	return &BLEConnection{
		services: make(map[string]*BLEService),
		ctx:      context.Background(),
		logger:   logger,
	}
}

// Services returns all discovered GATT services sorted by UUID. Thread-safe.
func (c *BLEConnection) Services() []device.Service {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	result := make([]device.Service, 0, len(c.services))
	for _, v := range c.services {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UUID() < result[j].UUID()
	})
	return result
}

// ConnectionContext returns the connection context that is cancelled when the connection
// experiences errors or is disconnected.
func (c *BLEConnection) ConnectionContext() context.Context {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.ctx
}

// Connect dials the peripheral and discovers its full GATT profile.
func (c *BLEConnection) Connect(ctx context.Context, address string, opts *device.ConnectOptions) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if strings.TrimSpace(address) == "" {
		c.logger.Error("Connection attempt with empty address")
		return fmt.Errorf("device address is empty")
	}

	if c.isConnectedInternal() {
		c.logger.WithField("address", address).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}

	c.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	client, err := Dial(connCtx, address)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return classifyDialError(ctx, connCtx, address, err)
	}

	c.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	bleProfile, err := client.DiscoverProfile(true)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			c.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return fmt.Errorf("%w: failed to discover profile: %v", device.ErrConnectionFailed, NormalizeError(err))
	}

	c.services = make(map[string]*BLEService)
	totalChars := 0
	for _, bleSvc := range bleProfile.Services {
		svcUUID := device.NormalizeUUID(bleSvc.UUID.String())
		svc, ok := c.services[svcUUID]
		if !ok {
			svc = &BLEService{
				uuid:            svcUUID,
				Characteristics: make(map[string]*BLECharacteristic),
			}
			c.services[svcUUID] = svc
		}

		for _, bleCharacteristic := range bleSvc.Characteristics {
			char := NewCharacteristic(bleCharacteristic, c)
			// Keyed by handle: a service may legally expose the same UUID twice.
			svc.Characteristics[fmt.Sprintf("%s@%d", char.UUID(), bleCharacteristic.Handle)] = char
			totalChars++
		}
	}

	c.client = client
	c.isConnected = true
	c.ctx, c.cancel = context.WithCancelCause(context.Background())

	// Monitor the client Disconnected() channel when the platform provides one
	if watcher, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		connCtx := c.ctx
		connCancel := c.cancel
		groutine.Go(context.Background(), "ble-connection-monitor", func(monitorCtx context.Context) {
			select {
			case <-watcher.Disconnected():
				c.logger.Warn("BLE link reported disconnection, cancelling connection context")
				connCancel(device.ErrTransportDisconnected)
			case <-connCtx.Done():
			}
		})
	} else {
		c.logger.Debug("Client does not expose a Disconnected() channel")
	}

	c.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(c.services),
		"characteristics": totalChars,
	}).Info("BLE device connected successfully")
	return nil
}

// classifyDialError maps a dial failure onto the connection error taxonomy.
// A cancelled parent context is returned as-is so callers can treat it as an interrupt.
func classifyDialError(parent, connCtx context.Context, address string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("connect to %s: %w", address, parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(connCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no connection to %s: %v", device.ErrConnectionTimeout, address, err)
	}
	if nerr := NormalizeError(err); nerr != err {
		return fmt.Errorf("%w: %w", device.ErrConnectionFailed, nerr)
	}
	return fmt.Errorf("%w: failed to connect to device with address %q: %v", device.ErrConnectionFailed, address, err)
}

// Disconnect unsubscribes any active notifications and cancels the link.
// It is safe to call more than once.
func (c *BLEConnection) Disconnect() error {
	c.connMutex.Lock()
	if c.client == nil || !c.isConnected {
		c.connMutex.Unlock()
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}

	c.logger.WithField("services", len(c.services)).Info("Disconnecting BLE device...")

	client := c.client
	cancel := c.cancel
	var subscribed []*BLECharacteristic
	for _, svc := range c.services {
		for _, char := range svc.Characteristics {
			if char.isSubscribed() {
				subscribed = append(subscribed, char)
			}
		}
	}
	c.connMutex.Unlock()

	// Unsubscribe while the client is still reachable; failures do not stop the disconnect.
	// A GATT operation stalled on a dead link holds opMutex, so the wait is bounded.
	if len(subscribed) > 0 {
		done := make(chan struct{})
		go func() {
			defer close(done)
			for _, char := range subscribed {
				if err := char.Unsubscribe(); err != nil {
					c.logger.WithError(err).Warn("Failed to unsubscribe during disconnect")
				}
			}
		}()
		select {
		case <-done:
		case <-time.After(DisconnectUnsubscribeTimeout):
			c.logger.WithField("timeout", DisconnectUnsubscribeTimeout).Warn("Unsubscribe did not finish, cancelling the link anyway")
		}
	}

	c.connMutex.Lock()
	c.client = nil
	c.cancel = nil
	c.isConnected = false
	c.connMutex.Unlock()

	if cancel != nil {
		cancel(nil) // Normal disconnection, no error cause
	}

	// Not under opMutex: cancelling the link is what unblocks an in-flight operation.
	disconnectErr := client.CancelConnection()

	if disconnectErr != nil {
		c.logger.WithField("error", disconnectErr).Warn("BLE device disconnected with errors")
		return NormalizeError(disconnectErr)
	}
	c.logger.Info("BLE device disconnected successfully")
	return nil
}

// IsConnected reports whether the link is up.
func (c *BLEConnection) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.isConnectedInternal()
}

// isConnectedInternal checks the connection status without acquiring locks.
// Should only be called when the caller already holds connMutex.
func (c *BLEConnection) isConnectedInternal() bool {
	return c.client != nil && c.isConnected
}

// activeClient returns the client for an operation, or the reason it cannot run.
func (c *BLEConnection) activeClient() (GATTClient, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	if !c.isConnectedInternal() {
		return nil, device.ErrNotConnected
	}
	if cause := context.Cause(c.ctx); cause != nil {
		return nil, cause
	}
	return c.client, nil
}
