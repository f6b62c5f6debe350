package ble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var (
	uartService = MustUUID("6E400001-B5A3-F393-E0A9-E50E24DCCA9E")
	uartRX      = MustUUID("6E400002-B5A3-F393-E0A9-E50E24DCCA9E")
	uartTX      = MustUUID("6E400003-B5A3-F393-E0A9-E50E24DCCA9E")

	errBoom = errors.New("boom")
)

func uartProfile() Profile {
	return Profile{
		Name:    "Nordic_UART",
		Service: uartService,
		Characteristics: []CharacteristicSpec{
			{UUID: uartTX, Role: RoleNotify},
			{UUID: uartRX, Role: RoleWrite},
		},
		CCCD:         CCCDUUID,
		NotifyPolicy: PolicyReapply,
		ConnParams: ConnectionParameters{
			MinInterval:        7500 * time.Microsecond,
			MaxInterval:        7500 * time.Microsecond,
			SupervisionTimeout: 4 * time.Second,
		},
	}
}

// call records one adapter request.
type call struct {
	op      string
	handle  Handle
	address string
	scan    ScanParameters
	opts    ConnectOptions
	params  ConnectionParameters
	value   []byte
	ack     bool
}

// mockAdapter simulates the host stack with a fixed attribute table. The
// connection created by Connect is always "conn-1".
type mockAdapter struct {
	mu     sync.Mutex
	calls  []call
	events chan Event

	services map[Handle][]Attribute
	chars    map[Handle][]Attribute
	descs    map[Handle][]Attribute

	openErr     error
	scanErrs    []error // consumed one per StartScan
	connectErr  error
	servicesErr error
	writeErr    error
	updateErr   error
	closeErr    error

	gates map[string]chan struct{} // one-shot, see block
}

// newMockAdapter returns an adapter exposing the UART service next to a GAP
// service.
func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		events: make(chan Event, 64),
		services: map[Handle][]Attribute{
			"conn-1": {
				{ID: "svc-gap", UUID: "1800"},
				{ID: "svc-uart", UUID: uartService},
			},
		},
		chars: map[Handle][]Attribute{
			"svc-gap": {{ID: "char-name", UUID: "2A00"}},
			"svc-uart": {
				{ID: "char-rx", UUID: uartRX},
				{ID: "char-tx", UUID: uartTX},
			},
		},
		descs: map[Handle][]Attribute{
			"char-tx": {{ID: "desc-tx-cccd", UUID: CCCDUUID}},
		},
	}
}

func (a *mockAdapter) record(c call) {
	a.mu.Lock()
	a.calls = append(a.calls, c)
	gate := a.gates[c.op]
	delete(a.gates, c.op)
	a.mu.Unlock()

	// A blocked call ignores its context, like a host stack that hangs.
	if gate != nil {
		<-gate
	}
}

// block makes the next call of op hang after it is recorded, until release
// is called. Release also runs at test cleanup.
func (a *mockAdapter) block(t *testing.T, op string) (release func()) {
	t.Helper()
	gate := make(chan struct{})
	a.mu.Lock()
	if a.gates == nil {
		a.gates = make(map[string]chan struct{})
	}
	a.gates[op] = gate
	a.mu.Unlock()

	release = sync.OnceFunc(func() { close(gate) })
	t.Cleanup(release)
	return release
}

func (a *mockAdapter) Open(_ context.Context) error {
	a.record(call{op: "open"})
	return a.openErr
}

func (a *mockAdapter) Close() error {
	a.record(call{op: "close"})
	return a.closeErr
}

func (a *mockAdapter) Events() <-chan Event { return a.events }

func (a *mockAdapter) StartScan(_ context.Context, p ScanParameters) error {
	a.record(call{op: "scan", scan: p})
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.scanErrs) == 0 {
		return nil
	}
	err := a.scanErrs[0]
	a.scanErrs = a.scanErrs[1:]
	return err
}

func (a *mockAdapter) Connect(_ context.Context, address string, opts ConnectOptions) error {
	a.record(call{op: "connect", address: address, opts: opts})
	if a.connectErr != nil {
		return a.connectErr
	}
	a.events <- DeviceConnected{Device: Device{Address: address, Connection: "conn-1"}}
	return nil
}

func (a *mockAdapter) Services(_ context.Context, conn Handle) ([]Attribute, error) {
	a.record(call{op: "services", handle: conn})
	if a.servicesErr != nil {
		return nil, a.servicesErr
	}
	return a.services[conn], nil
}

func (a *mockAdapter) Characteristics(_ context.Context, service Handle) ([]Attribute, error) {
	a.record(call{op: "characteristics", handle: service})
	return a.chars[service], nil
}

func (a *mockAdapter) Descriptors(_ context.Context, characteristic Handle) ([]Attribute, error) {
	a.record(call{op: "descriptors", handle: characteristic})
	return a.descs[characteristic], nil
}

func (a *mockAdapter) WriteDescriptor(_ context.Context, descriptor Handle, value []byte, ack bool) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	a.record(call{op: "write", handle: descriptor, value: cp, ack: ack})
	return a.writeErr
}

func (a *mockAdapter) UpdateConnectionParameters(_ context.Context, conn Handle, params ConnectionParameters) error {
	a.record(call{op: "update", handle: conn, params: params})
	return a.updateErr
}

// SimulateEvent delivers an event as if the host stack emitted it.
func (a *mockAdapter) SimulateEvent(ev Event) {
	a.events <- ev
}

// callsOf returns the recorded calls of one kind (thread-safe).
func (a *mockAdapter) callsOf(op string) []call {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []call
	for _, c := range a.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

// ops returns the names of all recorded calls in order.
func (a *mockAdapter) ops() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.calls))
	for i, c := range a.calls {
		out[i] = c.op
	}
	return out
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
}
