package ble

import "testing"

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		in      string
		want    UUID
		wantErr bool
	}{
		{in: "2902", want: "2902"},
		{in: "0x2a19", want: "2A19"},
		{in: "00002902-0000-1000-8000-00805f9b34fb", want: "2902"},
		{in: "6e400001-b5a3-f393-e0a9-e50e24dcca9e", want: "6E400001B5A3F393E0A9E50E24DCCA9E"},
		{in: "6E400001B5A3F393E0A9E50E24DCCA9E", want: "6E400001B5A3F393E0A9E50E24DCCA9E"},
		{in: " 00001523-1212-efde-1523-785feabcd123 ", want: "000015231212EFDE1523785FEABCD123"},
		{in: "zzzz", wantErr: true},
		{in: "1234567", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeUUID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeUUID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeUUID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMustUUIDPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustUUID should panic on malformed input")
		}
	}()
	MustUUID("not-a-uuid")
}
