package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is the state of a Session.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseConnecting
	PhaseConnected
	PhaseDiscovering
	PhaseSubscribing
	PhaseActive
	PhaseDisconnected
	PhaseClosed
)

var phaseNames = [...]string{
	PhaseIdle:         "idle",
	PhaseScanning:     "scanning",
	PhaseConnecting:   "connecting",
	PhaseConnected:    "connected",
	PhaseDiscovering:  "discovering",
	PhaseSubscribing:  "subscribing",
	PhaseActive:       "active",
	PhaseDisconnected: "disconnected",
	PhaseClosed:       "closed",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Intent is an operator request.
type Intent int

const (
	// ToggleNotifications flips notification delivery on the peer.
	ToggleNotifications Intent = iota
	// Quit closes the adapter and ends the session.
	Quit
)

func (i Intent) String() string {
	switch i {
	case ToggleNotifications:
		return "toggle-notifications"
	case Quit:
		return "quit"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// ErrSessionClosed is returned by Submit once Run has returned.
var ErrSessionClosed = errors.New("ble: session closed")

// SessionOptions configures the scans a Session issues.
type SessionOptions struct {
	Scan        ScanParameters // discovery scan
	ConnectScan ScanParameters // scan parameters sent with connect requests
}

// DefaultSessionOptions returns the scan parameters used by the CLI.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Scan: ScanParameters{
			Active:   true,
			Interval: 100 * time.Millisecond,
			Window:   50 * time.Millisecond,
		},
		ConnectScan: ScanParameters{
			Active:   false,
			Interval: 100 * time.Millisecond,
			Window:   50 * time.Millisecond,
		},
	}
}

// task performs adapter I/O off the event loop and returns the continuation
// to run on it.
type task func(ctx context.Context) func() error

// job is a queued task. Jobs bound to an epoch carry that epoch's context and
// are skipped, or abandoned mid-call, once it is cancelled.
type job struct {
	ctx  context.Context
	run  task
	drop func() // runs on the loop when the job is skipped; may be nil
}

func (j job) skipped() error {
	if j.drop != nil {
		j.drop()
	}
	return nil
}

// Session drives scan, connect, discovery and subscription for one profile.
//
// Adapter events, operator intents and task completions are handled one at a
// time by the goroutine running Run. Adapter requests are executed in order
// by a single worker so the loop never waits on the radio. Every connection
// and every discovery gets a new epoch. Ending an epoch cancels its context,
// so its queued requests never reach the adapter and its completions are
// dropped.
type Session struct {
	adapter  Adapter
	profile  Profile
	notifier *Notifier
	opts     SessionOptions

	intents chan Intent
	results chan func() error
	tasks   chan job
	done    chan struct{}
	once    sync.Once

	phase      atomic.Int32
	discovered atomic.Pointer[Discovery]

	// Owned by the loop.
	pending   []job
	conn      Handle
	epoch     uint64
	runCtx    context.Context
	epochCtx  context.Context
	endEpoch  context.CancelFunc
	defaulted bool
	unsynced  map[UUID]bool // characteristics whose last write was skipped
}

// NewSession creates a Session. The notifier keeps its state across
// connections; the session only mutates it from its loop.
func NewSession(adapter Adapter, profile Profile, notifier *Notifier, opts SessionOptions) *Session {
	return &Session{
		adapter:  adapter,
		profile:  profile,
		notifier: notifier,
		opts:     opts,
		intents:  make(chan Intent, 16),
		results:  make(chan func() error),
		tasks:    make(chan job),
		done:     make(chan struct{}),
		unsynced: make(map[UUID]bool),
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// Discovered returns the attribute set of the current connection, or nil
// while none is known.
func (s *Session) Discovered() *Discovery { return s.discovered.Load() }

// Submit queues an operator intent.
func (s *Session) Submit(ctx context.Context, in Intent) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.intents <- in:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run opens the adapter, starts scanning and processes events until Quit,
// ctx cancellation or a fatal error. The adapter is closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.once.Do(func() { close(s.done) })

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.runCtx = ctx
	s.epochCtx, s.endEpoch = context.WithCancel(ctx)

	if err := s.adapter.Open(ctx); err != nil {
		s.setPhase(PhaseClosed)
		return &Error{Kind: ErrAdapterOpen, Err: err}
	}
	slog.Info("[BLE] adapter open")

	if err := s.adapter.StartScan(ctx, s.opts.Scan); err != nil {
		s.close()
		return &Error{Kind: ErrScanStart, Err: err}
	}
	s.setPhase(PhaseScanning)
	slog.Info("[BLE] scanning", "name", s.profile.Name)

	go s.work(ctx)

	events := s.adapter.Events()
	for {
		s.prune()
		var next job
		var tasks chan<- job
		if len(s.pending) > 0 {
			next, tasks = s.pending[0], s.tasks
		}

		var err error
		select {
		case <-ctx.Done():
			s.close()
			return ctx.Err()
		case tasks <- next:
			s.pending[0] = job{}
			s.pending = s.pending[1:]
		case ev, ok := <-events:
			if !ok {
				slog.Warn("[BLE] adapter event stream closed")
				events = nil
				continue
			}
			err = s.handle(ev)
		case in := <-s.intents:
			if in == Quit {
				slog.Info("[BLE] quit requested")
				s.close()
				return nil
			}
			s.toggle()
		case k := <-s.results:
			err = k()
		}
		if err != nil {
			slog.Error("[BLE] session failed", "error", err, "phase", s.Phase())
			s.close()
			return err
		}
	}
}

// work runs queued jobs one after the other.
func (s *Session) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.tasks:
			k := exec(j)
			select {
			case s.results <- k:
			case <-ctx.Done():
				return
			}
		}
	}
}

// exec runs j unless its context is done. A call still blocked when the
// context ends is abandoned so the worker can move on.
func exec(j job) func() error {
	if j.ctx.Err() != nil {
		return j.skipped
	}
	ch := make(chan func() error, 1)
	go func() { ch <- j.run(j.ctx) }()
	select {
	case k := <-ch:
		return k
	case <-j.ctx.Done():
		return j.skipped
	}
}

// spawn queues a request that outlives connections (scan, connect).
func (s *Session) spawn(t task) {
	s.pending = append(s.pending, job{ctx: s.runCtx, run: t})
}

// spawnEpoch queues a request that belongs to the current epoch.
func (s *Session) spawnEpoch(t task, drop func()) {
	s.pending = append(s.pending, job{ctx: s.epochCtx, run: t, drop: drop})
}

// prune drops queued jobs whose epoch has ended.
func (s *Session) prune() {
	live := s.pending[:0]
	for _, j := range s.pending {
		if j.ctx.Err() != nil {
			_ = j.skipped()
			continue
		}
		live = append(live, j)
	}
	clear(s.pending[len(live):])
	s.pending = live
}

// nextEpoch cancels every request of the current epoch and starts a new one.
func (s *Session) nextEpoch() uint64 {
	s.endEpoch()
	s.epoch++
	s.epochCtx, s.endEpoch = context.WithCancel(s.runCtx)
	return s.epoch
}

func (s *Session) setPhase(p Phase) {
	if old := Phase(s.phase.Swap(int32(p))); old != p {
		slog.Debug("[BLE] phase", "from", old, "to", p)
	}
}

func (s *Session) close() {
	s.setPhase(PhaseClosed)
	s.discovered.Store(nil)
	if err := s.adapter.Close(); err != nil {
		slog.Warn("[BLE] close adapter", "error", err)
	}
}

func (s *Session) handle(ev Event) error {
	switch ev := ev.(type) {
	case DeviceDiscovered:
		s.onDiscovered(ev.Device)
	case DeviceConnected:
		s.onConnected(ev.Device)
	case DeviceDisconnected:
		s.onDisconnected(ev.Device)
	case ConnParamUpdateRequest:
		s.onParamUpdateRequest(ev)
	case ConnParamUpdate:
		slog.Info("[BLE] connection parameters updated", paramAttrs(ev.Params)...)
	case CharacteristicValueChanged:
		slog.Info("[BLE] notification",
			"characteristic", ev.Characteristic.UUID,
			"value", fmt.Sprintf("% X", ev.Value),
			"text", string(ev.Value))
	case LogMessage:
		slog.Log(context.Background(), ev.Severity.level(), "[BLE] adapter: "+ev.Text)
	case AdapterError:
		return &Error{Kind: ErrAdapter, Err: ev.Err}
	case ScanTimedOut:
		return &Error{Kind: ErrScanTimedOut}
	}
	return nil
}

func (s *Session) onDiscovered(d Device) {
	if s.Phase() != PhaseScanning || d.Name != s.profile.Name {
		return
	}
	slog.Info("[BLE] found peripheral", "name", d.Name, "address", d.Address, "rssi", d.RSSI)
	s.setPhase(PhaseConnecting)

	opts := ConnectOptions{Scan: s.opts.ConnectScan, Params: s.profile.ConnParams}
	s.spawn(func(ctx context.Context) func() error {
		err := s.adapter.Connect(ctx, d.Address, opts)
		return func() error {
			if err != nil {
				return &Error{Kind: ErrConnect, Err: err}
			}
			return nil
		}
	})
}

func (s *Session) onConnected(d Device) {
	if s.conn != "" {
		slog.Warn("[BLE] ignoring additional connection", "address", d.Address)
		return
	}
	s.conn = d.Connection
	s.setPhase(PhaseConnected)
	slog.Info("[BLE] connected", "address", d.Address, "connection", d.Connection)

	clear(s.unsynced)
	if s.profile.NotifyPolicy == PolicyFirstConnect {
		for _, c := range s.profile.Characteristics {
			if c.Role == RoleNotify {
				s.notifier.Reset(c.UUID)
			}
		}
	}
	s.discover()
}

// discover clears the attribute set and runs the discovery pipeline for the
// current connection.
func (s *Session) discover() {
	epoch, conn := s.nextEpoch(), s.conn
	s.discovered.Store(nil)
	s.setPhase(PhaseDiscovering)

	s.spawnEpoch(func(ctx context.Context) func() error {
		d, err := Discover(ctx, s.adapter, conn, s.profile)
		return func() error {
			if epoch != s.epoch {
				return nil
			}
			if err != nil {
				return err
			}
			s.discovered.Store(d)
			s.subscribe(epoch, d)
			return nil
		}
	}, nil)
}

func (s *Session) subscribe(epoch uint64, d *Discovery) {
	var writes []DescriptorWrite
	for _, c := range d.Notifiable() {
		switch s.profile.NotifyPolicy {
		case PolicyReapply:
			writes = append(writes, s.notifier.ApplyDefault(c))
		case PolicyFirstConnect:
			if !s.defaulted {
				writes = append(writes, s.notifier.Toggle(c))
			}
		}
	}
	s.defaulted = true
	s.flush(epoch, d, writes)
}

// flush issues writes, plus a write of the current state for every
// characteristic whose last write was skipped.
func (s *Session) flush(epoch uint64, d *Discovery, writes []DescriptorWrite) {
	planned := make(map[UUID]bool, len(writes))
	for _, w := range writes {
		planned[w.Characteristic] = true
	}
	for _, c := range d.Notifiable() {
		if s.unsynced[c.UUID] && !planned[c.UUID] {
			writes = append(writes, s.notifier.Current(c))
		}
	}
	clear(s.unsynced)

	if len(writes) == 0 {
		s.setPhase(PhaseActive)
		return
	}
	s.setPhase(PhaseSubscribing)
	for _, w := range writes {
		s.write(epoch, w)
	}
}

func (s *Session) write(epoch uint64, w DescriptorWrite) {
	s.spawnEpoch(func(ctx context.Context) func() error {
		err := s.notifier.Write(ctx, w)
		return func() error {
			if epoch != s.epoch {
				return nil
			}
			if err != nil {
				return err
			}
			if s.Phase() == PhaseSubscribing {
				s.setPhase(PhaseActive)
			}
			return nil
		}
	}, func() {
		s.unsynced[w.Characteristic] = true
	})
}

func (s *Session) toggle() {
	d := s.discovered.Load()
	if d == nil {
		slog.Warn("[BLE] no discovered peripheral, toggle ignored", "phase", s.Phase())
		return
	}
	for _, c := range d.Notifiable() {
		s.write(s.epoch, s.notifier.Toggle(c))
	}
}

func (s *Session) onDisconnected(d Device) {
	if s.conn == "" || (d.Connection != "" && d.Connection != s.conn) {
		return
	}
	slog.Warn("[BLE] disconnected, scanning again", "address", d.Address)

	s.nextEpoch()
	s.conn = ""
	s.discovered.Store(nil)
	s.setPhase(PhaseDisconnected)
	s.setPhase(PhaseScanning)

	s.spawn(func(ctx context.Context) func() error {
		err := s.adapter.StartScan(ctx, s.opts.Scan)
		return func() error {
			if err != nil {
				slog.Error("[BLE] scan not restarted", "error", &Error{Kind: ErrScanStart, Err: err})
			}
			return nil
		}
	})
}

func (s *Session) onParamUpdateRequest(ev ConnParamUpdateRequest) {
	if s.conn == "" || ev.Device.Connection != s.conn {
		return
	}
	slog.Info("[BLE] connection parameter update requested", paramAttrs(ev.Params)...)

	// Attributes are unusable until the update settles: queued writes are
	// skipped and toggles are ignored.
	prev := s.discovered.Load()
	epoch, conn := s.nextEpoch(), s.conn
	s.discovered.Store(nil)
	s.setPhase(PhaseConnected)

	s.spawnEpoch(func(ctx context.Context) func() error {
		err := s.adapter.UpdateConnectionParameters(ctx, conn, ev.Params)
		return func() error {
			if epoch != s.epoch {
				return nil
			}
			if err != nil {
				slog.Warn("[BLE] keeping current connection parameters",
					"error", &Error{Kind: ErrParameterUpdate, Err: err})
				if prev == nil {
					s.discover()
					return nil
				}
				s.discovered.Store(prev)
				s.flush(epoch, prev, nil)
				return nil
			}
			s.discover()
			return nil
		}
	}, nil)
}

func paramAttrs(p ConnectionParameters) []any {
	return []any{
		"min_interval", p.MinInterval,
		"max_interval", p.MaxInterval,
		"latency", p.Latency,
		"supervision_timeout", p.SupervisionTimeout,
	}
}

func (s Severity) level() slog.Level {
	switch s {
	case SeverityDebug:
		return slog.LevelDebug
	case SeverityWarn:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
