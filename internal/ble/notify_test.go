package ble

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func txCharacteristic() DiscoveredCharacteristic {
	return DiscoveredCharacteristic{
		Attribute: Attribute{ID: "char-tx", UUID: uartTX},
		Role:      RoleNotify,
		CCCD:      &Attribute{ID: "desc-tx-cccd", UUID: CCCDUUID},
	}
}

func TestNotificationStateBytes(t *testing.T) {
	if got := NotificationState(true).Bytes(); !bytes.Equal(got, []byte{1, 0}) {
		t.Errorf("enabled bytes = %v, want [1 0]", got)
	}
	if got := NotificationState(false).Bytes(); !bytes.Equal(got, []byte{0, 0}) {
		t.Errorf("disabled bytes = %v, want [0 0]", got)
	}
}

func TestToggleIsPureFlip(t *testing.T) {
	adapter := newMockAdapter()
	n := NewNotifier(adapter)
	c := txCharacteristic()
	ctx := context.Background()

	before := n.State(c.UUID)
	for i := 0; i < 2; i++ {
		if err := n.Write(ctx, n.Toggle(c)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if n.State(c.UUID) != before {
		t.Errorf("state after two toggles = %v, want %v", n.State(c.UUID), before)
	}

	writes := adapter.callsOf("write")
	if len(writes) != 2 {
		t.Fatalf("got %d writes, want 2", len(writes))
	}
	if !bytes.Equal(writes[0].value, []byte{1, 0}) || !bytes.Equal(writes[1].value, []byte{0, 0}) {
		t.Errorf("write values = %v, %v; want [1 0], [0 0]", writes[0].value, writes[1].value)
	}
	for i, w := range writes {
		if w.handle != "desc-tx-cccd" {
			t.Errorf("write %d went to %q, want desc-tx-cccd", i, w.handle)
		}
		if w.ack {
			t.Errorf("write %d requested ack, want unacknowledged", i)
		}
	}
}

func TestApplyDefaultIdempotent(t *testing.T) {
	adapter := newMockAdapter()
	n := NewNotifier(adapter)
	c := txCharacteristic()
	ctx := context.Background()

	first := n.ApplyDefault(c)
	if err := n.Write(ctx, first); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	second := n.ApplyDefault(c)
	if err := n.Write(ctx, second); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if first != second {
		t.Errorf("ApplyDefault requests differ: %+v vs %+v", first, second)
	}
	if !n.State(c.UUID) {
		t.Error("state should be enabled after ApplyDefault")
	}
	writes := adapter.callsOf("write")
	if len(writes) != 2 || !bytes.Equal(writes[0].value, writes[1].value) {
		t.Errorf("writes = %+v, want two identical [1 0] writes", writes)
	}
}

func TestResetDisables(t *testing.T) {
	n := NewNotifier(newMockAdapter())
	c := txCharacteristic()

	n.ApplyDefault(c)
	n.Reset(c.UUID)
	if n.State(c.UUID) {
		t.Error("state should be disabled after Reset")
	}
	if w := n.Toggle(c); !w.State {
		t.Error("Toggle after Reset should enable")
	}
}

func TestWriteFailureKeepsAttemptedState(t *testing.T) {
	adapter := newMockAdapter()
	adapter.writeErr = errBoom
	n := NewNotifier(adapter)
	c := txCharacteristic()

	err := n.Write(context.Background(), n.Toggle(c))
	if !errors.Is(err, ErrDescriptorWrite) || !errors.Is(err, errBoom) {
		t.Fatalf("Write() error = %v, want ErrDescriptorWrite wrapping boom", err)
	}
	if !n.State(c.UUID) {
		t.Error("state should reflect the attempted value after a failed write")
	}
}

func TestCurrentKeepsState(t *testing.T) {
	n := NewNotifier(newMockAdapter())
	c := txCharacteristic()

	if w := n.Current(c); w.State || w.Descriptor != "desc-tx-cccd" {
		t.Errorf("Current() before any change = %+v, want disabled on desc-tx-cccd", w)
	}
	n.Toggle(c)
	if w := n.Current(c); !w.State {
		t.Errorf("Current() after Toggle = %+v, want enabled", w)
	}
	if !n.State(c.UUID) {
		t.Error("Current() must not change the state")
	}
}
