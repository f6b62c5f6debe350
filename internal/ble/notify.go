package ble

import (
	"context"
	"log/slog"
)

// NotificationState is the enable bit written to a CCCD.
type NotificationState bool

// Bytes returns the two-byte CCCD value, [1 0] when enabled and [0 0] otherwise.
func (s NotificationState) Bytes() []byte {
	if s {
		return []byte{1, 0}
	}
	return []byte{0, 0}
}

// DescriptorWrite is a pending CCCD write.
type DescriptorWrite struct {
	Characteristic UUID
	Descriptor     Handle
	State          NotificationState
	Ack            bool
}

// Notifier owns the notification state of every notify-source
// characteristic. State changes and writes are split so the caller decides
// where the write runs; the state always reflects the last value attempted.
type Notifier struct {
	adapter Adapter
	states  map[UUID]NotificationState
}

// NewNotifier creates a Notifier writing through adapter.
func NewNotifier(adapter Adapter) *Notifier {
	return &Notifier{
		adapter: adapter,
		states:  make(map[UUID]NotificationState),
	}
}

// State returns the current state for a characteristic (disabled if unknown).
func (n *Notifier) State(char UUID) NotificationState {
	return n.states[char]
}

// Toggle flips the state of c and returns the write that applies it.
func (n *Notifier) Toggle(c DiscoveredCharacteristic) DescriptorWrite {
	n.states[c.UUID] = !n.states[c.UUID]
	return n.request(c)
}

// ApplyDefault enables notifications for c and returns the write.
func (n *Notifier) ApplyDefault(c DiscoveredCharacteristic) DescriptorWrite {
	n.states[c.UUID] = true
	return n.request(c)
}

// Current returns a write that re-applies the current state of c.
func (n *Notifier) Current(c DiscoveredCharacteristic) DescriptorWrite {
	return n.request(c)
}

// Reset marks c disabled without writing anything.
func (n *Notifier) Reset(char UUID) {
	n.states[char] = false
}

func (n *Notifier) request(c DiscoveredCharacteristic) DescriptorWrite {
	w := DescriptorWrite{Characteristic: c.UUID, State: n.states[c.UUID]}
	if c.CCCD != nil {
		w.Descriptor = c.CCCD.ID
	}
	return w
}

// Write issues w as an unacknowledged descriptor write.
func (n *Notifier) Write(ctx context.Context, w DescriptorWrite) error {
	if err := n.adapter.WriteDescriptor(ctx, w.Descriptor, w.State.Bytes(), w.Ack); err != nil {
		return &Error{Kind: ErrDescriptorWrite, UUID: w.Characteristic, Err: err}
	}
	slog.Info("[BLE] notifications "+enabledString(w.State), "characteristic", w.Characteristic)
	return nil
}

func enabledString(s NotificationState) string {
	if s {
		return "enabled"
	}
	return "disabled"
}
