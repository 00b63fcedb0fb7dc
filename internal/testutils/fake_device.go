package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/srg/nanopressure/internal/device"
)

// FakeProperty is a settable characteristic property.
type FakeProperty struct {
	name string
	bit  int
}

func (p *FakeProperty) Value() int        { return p.bit }
func (p *FakeProperty) KnownName() string { return p.name }

// FakeProperties implements device.Properties from a flag list.
type FakeProperties struct {
	read, write, writeNR, notify, indicate bool
}

func prop(set bool, name string, bit int) device.Property {
	if !set {
		return nil
	}
	return &FakeProperty{name: name, bit: bit}
}

func (p FakeProperties) Read() device.Property     { return prop(p.read, "Read", 0x02) }
func (p FakeProperties) Write() device.Property    { return prop(p.write, "Write", 0x08) }
func (p FakeProperties) Notify() device.Property   { return prop(p.notify, "Notify", 0x10) }
func (p FakeProperties) Indicate() device.Property { return prop(p.indicate, "Indicate", 0x20) }
func (p FakeProperties) WriteWithoutResponse() device.Property {
	return prop(p.writeNR, "WriteWithoutResponse", 0x04)
}

// FakeCharacteristic is a scripted device.Characteristic.
//
// Reads are served by OnRead when set, otherwise from the queued values in
// order. The last queued value repeats once the queue is exhausted.
type FakeCharacteristic struct {
	mu          sync.Mutex
	uuid        string
	handle      uint16
	valueHandle uint16
	props       FakeProperties

	values  [][]byte
	OnRead  func() ([]byte, error)
	OnWrite func(data []byte) error

	ReadErr        error
	WriteErr       error
	SubscribeErr   error
	UnsubscribeErr error

	reads        int
	writes       [][]byte
	handler      func([]byte)
	unsubscribed int
}

// NewFakeCharacteristic creates a characteristic with value handle handle+1.
func NewFakeCharacteristic(uuid string, handle uint16) *FakeCharacteristic {
	return &FakeCharacteristic{uuid: device.NormalizeUUID(uuid), handle: handle, valueHandle: handle + 1}
}

func (c *FakeCharacteristic) WithRead() *FakeCharacteristic {
	c.props.read = true
	return c
}

func (c *FakeCharacteristic) WithWrite() *FakeCharacteristic {
	c.props.write = true
	return c
}

func (c *FakeCharacteristic) WithWriteNR() *FakeCharacteristic {
	c.props.writeNR = true
	return c
}

func (c *FakeCharacteristic) WithNotify() *FakeCharacteristic {
	c.props.notify = true
	return c
}

func (c *FakeCharacteristic) WithIndicate() *FakeCharacteristic {
	c.props.indicate = true
	return c
}

// WithValues queues read results.
func (c *FakeCharacteristic) WithValues(values ...[]byte) *FakeCharacteristic {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, values...)
	return c
}

func (c *FakeCharacteristic) UUID() string                     { return c.uuid }
func (c *FakeCharacteristic) Handle() uint16                   { return c.handle }
func (c *FakeCharacteristic) ValueHandle() uint16              { return c.valueHandle }
func (c *FakeCharacteristic) GetProperties() device.Properties { return c.props }

func (c *FakeCharacteristic) Read(time.Duration) ([]byte, error) {
	c.mu.Lock()
	c.reads++
	onRead := c.OnRead
	if onRead == nil {
		defer c.mu.Unlock()
		if c.ReadErr != nil {
			return nil, c.ReadErr
		}
		if len(c.values) == 0 {
			return nil, errors.New("fake: no value queued")
		}
		v := c.values[0]
		if len(c.values) > 1 {
			c.values = c.values[1:]
		}
		return v, nil
	}
	c.mu.Unlock()
	return onRead()
}

func (c *FakeCharacteristic) Write(data []byte, withResponse bool, _ time.Duration) error {
	if withResponse && !c.props.write {
		return device.ErrUnsupported
	}
	if !withResponse && !c.props.writeNR {
		return device.ErrUnsupported
	}

	c.mu.Lock()
	onWrite := c.OnWrite
	err := c.WriteErr
	if err == nil {
		c.writes = append(c.writes, append([]byte(nil), data...))
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}
	if onWrite != nil {
		return onWrite(data)
	}
	return nil
}

func (c *FakeCharacteristic) Subscribe(handler func(data []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return c.SubscribeErr
	}
	c.handler = handler
	return nil
}

func (c *FakeCharacteristic) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed++
	c.handler = nil
	return c.UnsubscribeErr
}

// Notify delivers data to the subscribed handler. It reports false when nobody is subscribed.
func (c *FakeCharacteristic) Notify(data []byte) bool {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Subscribed reports whether a handler is registered.
func (c *FakeCharacteristic) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

func (c *FakeCharacteristic) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func (c *FakeCharacteristic) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *FakeCharacteristic) UnsubscribeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribed
}

// FakeService groups fake characteristics under a UUID.
type FakeService struct {
	UUIDValue       string
	Characteristics []device.Characteristic
}

func (s *FakeService) UUID() string                                { return s.UUIDValue }
func (s *FakeService) GetCharacteristics() []device.Characteristic { return s.Characteristics }

// FakeConnection is a device.Connection over fake services.
type FakeConnection struct {
	services []device.Service
	ctx      context.Context
	cancel   context.CancelCauseFunc
}

func NewFakeConnection(services ...device.Service) *FakeConnection {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &FakeConnection{services: services, ctx: ctx, cancel: cancel}
}

func (c *FakeConnection) Services() []device.Service         { return c.services }
func (c *FakeConnection) ConnectionContext() context.Context { return c.ctx }

// Drop simulates link loss.
func (c *FakeConnection) Drop() {
	c.cancel(device.ErrTransportDisconnected)
}

// FakeDevice is a device.Device whose connect outcome is scripted.
type FakeDevice struct {
	mu             sync.Mutex
	name, address  string
	rssi           int
	Conn           *FakeConnection
	ConnectErr     error
	DisconnectErr  error
	LastConnectOpt *device.ConnectOptions

	connected   bool
	connects    int
	disconnects int
}

func NewFakeDevice(name, address string, rssi int, conn *FakeConnection) *FakeDevice {
	return &FakeDevice{name: name, address: address, rssi: rssi, Conn: conn}
}

func (d *FakeDevice) Name() string    { return d.name }
func (d *FakeDevice) Address() string { return d.address }
func (d *FakeDevice) RSSI() int       { return d.rssi }

func (d *FakeDevice) Connect(ctx context.Context, opts *device.ConnectOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	d.LastConnectOpt = opts
	if d.ConnectErr != nil {
		return d.ConnectErr
	}
	d.connected = true
	return nil
}

func (d *FakeDevice) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnects++
	d.connected = false
	return d.DisconnectErr
}

func (d *FakeDevice) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *FakeDevice) Update(adv device.Advertisement) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rssi = adv.RSSI()
}

func (d *FakeDevice) GetConnection() device.Connection {
	return d.Conn
}

func (d *FakeDevice) Disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnects
}

// FakeAdvertisement is a static device.Advertisement.
type FakeAdvertisement struct {
	Name          string
	Address       string
	RSSIValue     int
	IsConnectable bool
	ServiceUUIDs  []string
}

func (a *FakeAdvertisement) LocalName() string  { return a.Name }
func (a *FakeAdvertisement) Connectable() bool  { return a.IsConnectable }
func (a *FakeAdvertisement) Services() []string { return a.ServiceUUIDs }
func (a *FakeAdvertisement) RSSI() int          { return a.RSSIValue }
func (a *FakeAdvertisement) Addr() string       { return a.Address }

// FakeScanner replays advertisements then blocks until the scan context ends.
type FakeScanner struct {
	Advertisements []*FakeAdvertisement
	ScanErr        error
	AllowDup       bool
}

func (s *FakeScanner) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	s.AllowDup = allowDup
	if s.ScanErr != nil {
		return s.ScanErr
	}
	for _, adv := range s.Advertisements {
		if ctx.Err() != nil {
			break
		}
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}
