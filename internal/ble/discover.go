package ble

import (
	"context"
	"fmt"
	"log/slog"
)

// DiscoveredCharacteristic is a profile characteristic found on the peer.
// CCCD is set for notify-source characteristics only.
type DiscoveredCharacteristic struct {
	Attribute
	Role Role
	CCCD *Attribute
}

// Discovery is the attribute set of one connection.
type Discovery struct {
	Service         Attribute
	Characteristics []DiscoveredCharacteristic
}

// Notifiable returns the characteristics that have a CCCD.
func (d *Discovery) Notifiable() []DiscoveredCharacteristic {
	var out []DiscoveredCharacteristic
	for _, c := range d.Characteristics {
		if c.CCCD != nil {
			out = append(out, c)
		}
	}
	return out
}

// Discover walks service -> characteristic -> descriptor for the profile on
// conn. Each step is one adapter round trip; the first failure aborts.
// It stops between round trips once ctx is done.
func Discover(ctx context.Context, a Adapter, conn Handle, p Profile) (*Discovery, error) {
	if err := abandoned(ctx); err != nil {
		return nil, err
	}
	svc, err := findService(ctx, a, conn, p.Service)
	if err != nil {
		return nil, err
	}
	slog.Debug("[BLE] service found", "uuid", svc.UUID, "handle", svc.ID)

	d := &Discovery{Service: svc}
	for _, spec := range p.Characteristics {
		if err := abandoned(ctx); err != nil {
			return nil, err
		}
		char, err := findCharacteristic(ctx, a, svc.ID, spec.UUID)
		if err != nil {
			return nil, err
		}
		slog.Debug("[BLE] characteristic found", "uuid", char.UUID, "handle", char.ID, "role", spec.Role)

		dc := DiscoveredCharacteristic{Attribute: char, Role: spec.Role}
		if spec.Role == RoleNotify {
			if err := abandoned(ctx); err != nil {
				return nil, err
			}
			cccd, err := findDescriptor(ctx, a, char.ID, p.CCCD)
			if err != nil {
				return nil, err
			}
			dc.CCCD = &cccd
		}
		d.Characteristics = append(d.Characteristics, dc)
	}
	return d, nil
}

func abandoned(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ble: discovery abandoned: %w", err)
	}
	return nil
}

func findService(ctx context.Context, a Adapter, conn Handle, u UUID) (Attribute, error) {
	svcs, err := a.Services(ctx, conn)
	if err != nil {
		return Attribute{}, &Error{Kind: ErrServiceNotFound, UUID: u, Err: err}
	}
	if s, ok := firstMatch(svcs, u); ok {
		return s, nil
	}
	return Attribute{}, &Error{Kind: ErrServiceNotFound, UUID: u}
}

func findCharacteristic(ctx context.Context, a Adapter, service Handle, u UUID) (Attribute, error) {
	chars, err := a.Characteristics(ctx, service)
	if err != nil {
		return Attribute{}, &Error{Kind: ErrCharacteristicNotFound, UUID: u, Err: err}
	}
	if c, ok := firstMatch(chars, u); ok {
		return c, nil
	}
	return Attribute{}, &Error{Kind: ErrCharacteristicNotFound, UUID: u}
}

func findDescriptor(ctx context.Context, a Adapter, characteristic Handle, u UUID) (Attribute, error) {
	descs, err := a.Descriptors(ctx, characteristic)
	if err != nil {
		return Attribute{}, &Error{Kind: ErrDescriptorNotFound, UUID: u, Err: err}
	}
	if d, ok := firstMatch(descs, u); ok {
		return d, nil
	}
	return Attribute{}, &Error{Kind: ErrDescriptorNotFound, UUID: u}
}

func firstMatch(attrs []Attribute, u UUID) (Attribute, bool) {
	for _, a := range attrs {
		if a.UUID == u {
			return a, true
		}
	}
	return Attribute{}, false
}
