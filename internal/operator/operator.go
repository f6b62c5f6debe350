// Package operator maps global key chords to session intents using gohook.
package operator

import (
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"

	"github.com/chaz8081/ble-notify/internal/ble"
)

// Listener watches two global key chords and emits ble.ToggleNotifications
// and ble.Quit.
type Listener struct {
	toggleKeys []string
	quitKeys   []string
	ch         chan ble.Intent
	done       chan struct{}
	once       sync.Once
}

// NewListener creates a Listener. Keys are lowercase gohook key names
// (e.g., ["ctrl", "shift", "t"]).
func NewListener(toggleKeys, quitKeys []string) *Listener {
	return &Listener{
		toggleKeys: toggleKeys,
		quitKeys:   quitKeys,
		ch:         make(chan ble.Intent, 16),
		done:       make(chan struct{}),
	}
}

// Intents returns the channel that receives operator intents.
// The channel is closed when the listener stops.
func (l *Listener) Intents() <-chan ble.Intent {
	return l.ch
}

// Start begins listening for the key chords.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.toggleKeys, func(hook.Event) {
		l.dispatch(ble.ToggleNotifications)
	})
	hook.Register(hook.KeyDown, l.quitKeys, func(hook.Event) {
		l.dispatch(ble.Quit)
	})

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// dispatch delivers an intent without blocking the hook callback.
func (l *Listener) dispatch(in ble.Intent) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.ch <- in:
	default:
		slog.Warn("[operator] intent dropped, queue full", "intent", in)
	}
}

// Stop terminates the listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
