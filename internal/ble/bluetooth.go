package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// BluetoothAdapter implements Adapter on tinygo-org/bluetooth (BlueZ on
// Linux, CoreBluetooth on macOS, WinRT on Windows).
//
// The host stack hides descriptors and performs the CCCD write itself when
// notifications are enabled, so every characteristic reports a CCCD and a
// write to it maps to EnableNotifications. Peer connection parameter
// requests are negotiated by the host stack and never surface as events.
type BluetoothAdapter struct {
	adapter *bluetooth.Adapter
	port    string
	api     APIVersion

	events chan Event
	done   chan struct{}
	once   sync.Once

	// mu protects everything below.
	mu        sync.Mutex
	seq       int
	addrs     map[string]bluetooth.Address
	names     map[string]string
	conns     map[Handle]*bluetoothConn
	services  map[Handle]bluetooth.DeviceService
	chars     map[Handle]bluetoothChar
	cccds     map[Handle]Handle // descriptor -> characteristic
	scanTimer *time.Timer
}

type bluetoothConn struct {
	device bluetooth.Device
	info   Device
}

type bluetoothChar struct {
	char bluetooth.DeviceCharacteristic
	attr Attribute
}

// NewBluetoothAdapter creates an adapter for the controller named by port.
func NewBluetoothAdapter(port string, api APIVersion) *BluetoothAdapter {
	adapter, addressable := hostAdapter(port)
	if !addressable {
		slog.Info("[BLE] this platform has a single system adapter; port is informational", "port", port)
	}
	return &BluetoothAdapter{
		adapter:  adapter,
		port:     port,
		api:      api,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		addrs:    make(map[string]bluetooth.Address),
		names:    make(map[string]string),
		conns:    make(map[Handle]*bluetoothConn),
		services: make(map[Handle]bluetooth.DeviceService),
		chars:    make(map[Handle]bluetoothChar),
		cccds:    make(map[Handle]Handle),
	}
}

// Compile-time check that BluetoothAdapter implements Adapter.
var _ Adapter = (*BluetoothAdapter)(nil)

func (a *BluetoothAdapter) Open(_ context.Context) error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter %s: %w", a.port, err)
	}

	// Only disconnects are taken from here; connects are reported by Connect
	// so each one carries its handle.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		a.mu.Lock()
		info, found := takeConnection(a.conns, device.Address.String())
		if found {
			a.forgetAttributes()
		}
		a.mu.Unlock()
		if found {
			a.emit(DeviceDisconnected{Device: info})
		}
	})
	slog.Debug("[BLE] adapter enabled", "port", a.port, "api", a.api)
	return nil
}

func (a *BluetoothAdapter) Close() error {
	a.once.Do(func() { close(a.done) })

	a.mu.Lock()
	if a.scanTimer != nil {
		a.scanTimer.Stop()
		a.scanTimer = nil
	}
	conns := make([]*bluetoothConn, 0, len(a.conns))
	for _, c := range a.conns {
		conns = append(conns, c)
	}
	a.conns = make(map[Handle]*bluetoothConn)
	a.forgetAttributes()
	a.mu.Unlock()

	_ = a.adapter.StopScan()

	var errs []error
	for _, c := range conns {
		if err := c.device.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("ble: disconnect %s: %w", c.info.Address, err))
		}
	}
	return errors.Join(errs...)
}

func (a *BluetoothAdapter) Events() <-chan Event { return a.events }

// StartScan starts scanning in the background. The host stack picks its own
// interval and window; a failure after start is reported as AdapterError.
func (a *BluetoothAdapter) StartScan(_ context.Context, p ScanParameters) error {
	select {
	case <-a.done:
		return errors.New("ble: adapter closed")
	default:
	}

	slog.Debug("[BLE] scan", "active", p.Active, "interval", p.Interval, "window", p.Window, "timeout", p.Timeout)

	go func() {
		err := a.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			addr := r.Address.String()
			name := r.LocalName()
			a.mu.Lock()
			a.addrs[addr] = r.Address
			if name != "" {
				a.names[addr] = name
			} else {
				name = a.names[addr]
			}
			a.mu.Unlock()
			a.emitScan(DeviceDiscovered{Device: Device{Address: addr, Name: name, RSSI: int(r.RSSI)}})
		})
		if err != nil {
			a.emit(AdapterError{Err: fmt.Errorf("ble: scan: %w", err)})
		}
	}()

	if p.Timeout > 0 {
		a.mu.Lock()
		if a.scanTimer != nil {
			a.scanTimer.Stop()
		}
		a.scanTimer = time.AfterFunc(p.Timeout, func() {
			if err := a.adapter.StopScan(); err == nil {
				a.emit(ScanTimedOut{})
			}
		})
		a.mu.Unlock()
	}
	return nil
}

func (a *BluetoothAdapter) Connect(ctx context.Context, address string, opts ConnectOptions) error {
	a.mu.Lock()
	addr, ok := a.addrs[address]
	name := a.names[address]
	if a.scanTimer != nil {
		a.scanTimer.Stop()
		a.scanTimer = nil
	}
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: connect to %s: address not seen while scanning", address)
	}

	// BlueZ refuses to connect while a discovery is running.
	_ = a.adapter.StopScan()

	params := newHostConnParams(opts.Params).bluetooth(a.api, opts.Scan.Timeout)

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// We wrap it to also respect our ctx cancellation.
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, params)
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		go reapConnect(ch, func(d bluetooth.Device) error { return d.Disconnect() })
		return fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}
		info := Device{Address: address, Name: name}
		a.mu.Lock()
		info.Connection = a.nextHandle("conn")
		a.conns[info.Connection] = &bluetoothConn{device: result.device, info: info}
		a.mu.Unlock()

		a.emit(DeviceConnected{Device: info})
		return nil
	}
}

func (a *BluetoothAdapter) Services(_ context.Context, conn Handle) ([]Attribute, error) {
	a.mu.Lock()
	c, ok := a.conns[conn]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ble: unknown connection %s", conn)
	}

	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	attrs := make([]Attribute, 0, len(svcs))
	for _, svc := range svcs {
		h := a.nextHandle("svc")
		a.services[h] = svc
		attrs = append(attrs, Attribute{ID: h, UUID: uuidOf(svc.UUID())})
	}
	return attrs, nil
}

func (a *BluetoothAdapter) Characteristics(_ context.Context, service Handle) ([]Attribute, error) {
	a.mu.Lock()
	svc, ok := a.services[service]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ble: unknown service %s", service)
	}

	chars, err := svc.DiscoverCharacteristics(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	attrs := make([]Attribute, 0, len(chars))
	for _, char := range chars {
		attr := Attribute{ID: a.nextHandle("char"), UUID: uuidOf(char.UUID())}
		a.chars[attr.ID] = bluetoothChar{char: char, attr: attr}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func (a *BluetoothAdapter) Descriptors(_ context.Context, characteristic Handle) ([]Attribute, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.chars[characteristic]; !ok {
		return nil, fmt.Errorf("ble: unknown characteristic %s", characteristic)
	}
	h := a.nextHandle("desc")
	a.cccds[h] = characteristic
	return []Attribute{{ID: h, UUID: CCCDUUID}}, nil
}

// WriteDescriptor supports CCCD values only. The host stack chooses the
// ATT write type, so ack is not honoured.
func (a *BluetoothAdapter) WriteDescriptor(_ context.Context, descriptor Handle, value []byte, _ bool) error {
	a.mu.Lock()
	ch, ok := a.chars[a.cccds[descriptor]]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: unknown descriptor %s", descriptor)
	}
	enable, err := cccdEnabled(value)
	if err != nil {
		return err
	}

	if !enable {
		if err := ch.char.EnableNotifications(nil); err != nil {
			return fmt.Errorf("ble: disable notifications: %w", err)
		}
		return nil
	}

	attr := ch.attr
	err = ch.char.EnableNotifications(func(buf []byte) {
		v := make([]byte, len(buf))
		copy(v, buf)
		a.emit(CharacteristicValueChanged{Characteristic: attr, Value: v})
	})
	if err != nil {
		return fmt.Errorf("ble: enable notifications: %w", err)
	}
	return nil
}

func (a *BluetoothAdapter) UpdateConnectionParameters(_ context.Context, conn Handle, params ConnectionParameters) error {
	a.mu.Lock()
	_, ok := a.conns[conn]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: unknown connection %s", conn)
	}
	slog.Debug("[BLE] parameter update left to host stack", append([]any{"connection", conn}, paramAttrs(params)...)...)
	return nil
}

type connectResult struct {
	device bluetooth.Device
	err    error
}

// reapConnect waits for a connect whose caller gave up and drops the link if
// it came up anyway.
func reapConnect(ch <-chan connectResult, disconnect func(bluetooth.Device) error) {
	r := <-ch
	if r.err != nil {
		return
	}
	if err := disconnect(r.device); err != nil {
		slog.Warn("[BLE] disconnect abandoned connection", "error", err)
	}
}

// takeConnection removes every connection to addr from conns and returns the
// last one removed.
func takeConnection(conns map[Handle]*bluetoothConn, addr string) (Device, bool) {
	var info Device
	var found bool
	for h, c := range conns {
		if c.info.Address == addr {
			info, found = c.info, true
			delete(conns, h)
		}
	}
	return info, found
}

// cccdEnabled decodes a CCCD value. Only the notification bit is honoured.
func cccdEnabled(value []byte) (bool, error) {
	if len(value) != 2 {
		return false, fmt.Errorf("ble: CCCD value must be 2 bytes, got %d", len(value))
	}
	return value[0]&0x01 != 0, nil
}

// emit delivers an event unless the adapter is closed.
func (a *BluetoothAdapter) emit(ev Event) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

// emitScan drops advertisements when the consumer is behind.
func (a *BluetoothAdapter) emitScan(ev Event) {
	select {
	case a.events <- ev:
	default:
	}
}

// nextHandle returns a fresh handle (caller must hold mu).
func (a *BluetoothAdapter) nextHandle(kind string) Handle {
	a.seq++
	return Handle(kind + "-" + strconv.Itoa(a.seq))
}

// forgetAttributes drops all discovered attributes (caller must hold mu).
func (a *BluetoothAdapter) forgetAttributes() {
	a.services = make(map[Handle]bluetooth.DeviceService)
	a.chars = make(map[Handle]bluetoothChar)
	a.cccds = make(map[Handle]Handle)
}

func uuidOf(u bluetooth.UUID) UUID {
	if c, err := NormalizeUUID(u.String()); err == nil {
		return c
	}
	return UUID(strings.ToUpper(u.String()))
}
