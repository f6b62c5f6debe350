// Package ble implements a BLE central session that finds a named peripheral,
// walks its GATT hierarchy down to the Client Characteristic Configuration
// Descriptor and toggles notification delivery through it. Radio access goes
// through the Adapter interface so the engine can run against any host stack.
package ble

import "context"

// Handle is an opaque identifier the adapter assigns to a connection or to a
// discovered attribute. Attribute handles are only valid for the connection
// they were discovered on.
type Handle string

// Attribute is a discovered service, characteristic or descriptor.
type Attribute struct {
	ID   Handle
	UUID UUID
}

// Device represents a peripheral seen by the adapter.
type Device struct {
	Address    string
	Name       string
	RSSI       int
	Connection Handle // set once the device is connected
}

// ConnectOptions carries the scan and link parameters for a connect request.
type ConnectOptions struct {
	Scan   ScanParameters
	Params ConnectionParameters
}

// Adapter abstracts the BLE host stack. Request methods block until the host
// stack answers; asynchronous happenings arrive on Events.
type Adapter interface {
	// Open powers on the radio and starts delivering events.
	Open(ctx context.Context) error
	// Close releases the radio. Pending requests may fail afterwards.
	Close() error
	// Events returns the channel of adapter events.
	Events() <-chan Event

	// StartScan begins scanning; results arrive as DeviceDiscovered events.
	StartScan(ctx context.Context, params ScanParameters) error
	// Connect initiates a connection; success is reported by DeviceConnected.
	Connect(ctx context.Context, address string, opts ConnectOptions) error

	// Services lists the primary services of a connection.
	Services(ctx context.Context, conn Handle) ([]Attribute, error)
	// Characteristics lists the characteristics of a service.
	Characteristics(ctx context.Context, service Handle) ([]Attribute, error)
	// Descriptors lists the descriptors of a characteristic.
	Descriptors(ctx context.Context, characteristic Handle) ([]Attribute, error)

	// WriteDescriptor writes value to a descriptor, with or without acknowledgement.
	WriteDescriptor(ctx context.Context, descriptor Handle, value []byte, ack bool) error
	// UpdateConnectionParameters accepts new link timing for a connection.
	UpdateConnectionParameters(ctx context.Context, conn Handle, params ConnectionParameters) error
}

// Event is anything the adapter reports without being asked.
type Event interface {
	event()
}

// DeviceDiscovered is emitted for each advertisement seen while scanning.
type DeviceDiscovered struct{ Device Device }

// DeviceConnected is emitted once a connection is established.
type DeviceConnected struct{ Device Device }

// DeviceDisconnected is emitted when a connection drops.
type DeviceDisconnected struct{ Device Device }

// ConnParamUpdateRequest is emitted when the peer asks for different link timing.
type ConnParamUpdateRequest struct {
	Device Device
	Params ConnectionParameters
}

// ConnParamUpdate is emitted once new link timing is in effect.
type ConnParamUpdate struct {
	Device Device
	Params ConnectionParameters
}

// CharacteristicValueChanged carries a notification from the peer.
type CharacteristicValueChanged struct {
	Characteristic Attribute
	Value          []byte
}

// Severity of an adapter log message.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// LogMessage is a diagnostic line from the host stack.
type LogMessage struct {
	Severity Severity
	Text     string
}

// AdapterError reports a host stack failure not tied to a request.
type AdapterError struct{ Err error }

// ScanTimedOut is emitted when a scan with a finite timeout expires.
type ScanTimedOut struct{}

func (DeviceDiscovered) event()           {}
func (DeviceConnected) event()            {}
func (DeviceDisconnected) event()         {}
func (ConnParamUpdateRequest) event()     {}
func (ConnParamUpdate) event()            {}
func (CharacteristicValueChanged) event() {}
func (LogMessage) event()                 {}
func (AdapterError) event()               {}
func (ScanTimedOut) event()               {}
