package ble

import (
	"testing"
	"time"
)

func TestProfileValidateCanonicalises(t *testing.T) {
	p := Profile{
		Name:    "Nordic_Blinky",
		Service: "00001523-1212-efde-1523-785feabcd123",
		Characteristics: []CharacteristicSpec{
			{UUID: "00001524-1212-efde-1523-785feabcd123", Role: RoleNotify},
			{UUID: "0x2a19", Role: RoleWrite},
		},
		NotifyPolicy: PolicyFirstConnect,
		ConnParams: ConnectionParameters{
			MinInterval:        7500 * time.Microsecond,
			MaxInterval:        7500 * time.Microsecond,
			SupervisionTimeout: 4 * time.Second,
		},
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if p.Service != "000015231212EFDE1523785FEABCD123" {
		t.Errorf("Service = %q", p.Service)
	}
	if p.Characteristics[0].UUID != "000015241212EFDE1523785FEABCD123" {
		t.Errorf("Characteristics[0] = %q", p.Characteristics[0].UUID)
	}
	if p.Characteristics[1].UUID != "2A19" {
		t.Errorf("Characteristics[1] = %q, want 2A19", p.Characteristics[1].UUID)
	}
	if p.CCCD != CCCDUUID {
		t.Errorf("CCCD = %q, want default %q", p.CCCD, CCCDUUID)
	}
}

func TestProfileValidateRejectsEmptyCharacteristics(t *testing.T) {
	p := uartProfile()
	p.Characteristics = nil
	if err := p.Validate(); err == nil {
		t.Error("Validate() should fail without characteristics")
	}
}
