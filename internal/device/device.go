package device

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	ConnectTimeout   ConnectionState = "connection_timeout"
	ConnectFailed    ConnectionState = "connection_failed"
	Disconnected     ConnectionState = "transport_disconnected"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected          = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected      = &ConnectionError{State: AlreadyConnected}
	ErrConnectionTimeout     = &ConnectionError{State: ConnectTimeout}
	ErrConnectionFailed      = &ConnectionError{State: ConnectFailed}
	ErrTransportDisconnected = &ConnectionError{State: Disconnected}
)

// Discovery errors
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrNoDevicesFound = errors.New("no devices found")
)

// Operation errors
var (
	ErrTimeout              = errors.New("timeout")
	ErrUnsupported          = errors.New("unsupported")
	ErrBluetoothOff         = errors.New("bluetooth is turned off")
	ErrWriteNotAcknowledged = errors.New("write not acknowledged")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ScanningDevice represents a BLE device capable of scanning for advertisements
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// Advertisement is the subset of advertising data the locator relies on.
type Advertisement interface {
	LocalName() string
	Connectable() bool
	Services() []string
	RSSI() int
	Addr() string
}

//nolint:revive // DeviceInfo name is intentional for clarity when used as a device.DeviceInfo
type DeviceInfo interface {
	Name() string
	Address() string
	RSSI() int
}

// Device defines a connectable BLE peripheral
type Device interface {
	DeviceInfo

	Connect(ctx context.Context, opts *ConnectOptions) error
	Disconnect() error
	IsConnected() bool
	Update(adv Advertisement)
	GetConnection() Connection
}

// Connection represents a live GATT connection
type Connection interface {
	Services() []Service
	// ConnectionContext is cancelled when the link drops or Disconnect is called.
	// context.Cause reports ErrTransportDisconnected for link loss.
	ConnectionContext() context.Context
}

// Service represents a GATT service interface
type Service interface {
	UUID() string
	GetCharacteristics() []Characteristic
}

// CharacteristicInfo represents characteristic metadata
type CharacteristicInfo interface {
	UUID() string
	// Handle is the characteristic declaration handle.
	Handle() uint16
	ValueHandle() uint16
	GetProperties() Properties
}

// CharacteristicReader provides read operations
type CharacteristicReader interface {
	Read(timeout time.Duration) ([]byte, error)
}

// CharacteristicWriter provides write operations
type CharacteristicWriter interface {
	Write(data []byte, withResponse bool, timeout time.Duration) error
}

// CharacteristicNotifier provides notification subscriptions.
// The handler runs on the transport goroutine and must not block.
type CharacteristicNotifier interface {
	Subscribe(handler func(data []byte)) error
	Unsubscribe() error
}

// Characteristic combines info + operations
type Characteristic interface {
	CharacteristicInfo
	CharacteristicReader
	CharacteristicWriter
	CharacteristicNotifier
}

// Property represents a single BLE characteristic property
type Property interface {
	Value() int
	KnownName() string
}

// Properties represent a collection of BLE characteristic properties
type Properties interface {
	Read() Property
	Write() Property
	WriteWithoutResponse() Property
	Notify() Property
	Indicate() Property
}

// Has reports whether p is present and set.
func Has(p Property) bool {
	return p != nil && p.Value() != 0
}

// ConnectOptions defines BLE connection options
type ConnectOptions struct {
	ConnectTimeout time.Duration
}
