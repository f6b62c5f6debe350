package ble

import (
	"fmt"
	"time"
)

// CCCDUUID is the Client Characteristic Configuration Descriptor type.
const CCCDUUID UUID = "2902"

// Role describes what the session does with a characteristic.
type Role string

const (
	RoleNotify Role = "notify" // notify-source, subscribed through its CCCD
	RoleWrite  Role = "write"  // write-target, located but never subscribed
)

// NotifyPolicy decides when the session enables notifications on its own.
type NotifyPolicy string

const (
	// PolicyReapply enables notifications after every discovery.
	PolicyReapply NotifyPolicy = "reapply"
	// PolicyFirstConnect enables notifications after the first connection
	// only. Later connections start disabled until the operator toggles.
	PolicyFirstConnect NotifyPolicy = "first-connect"
)

// CharacteristicSpec names a characteristic the profile expects.
type CharacteristicSpec struct {
	UUID UUID `yaml:"uuid"`
	Role Role `yaml:"role"`
}

// Profile describes the peripheral to look for and what to do with it.
type Profile struct {
	Name            string               `yaml:"name"` // advertised local name
	Service         UUID                 `yaml:"service"`
	Characteristics []CharacteristicSpec `yaml:"characteristics"`
	CCCD            UUID                 `yaml:"cccd"`
	NotifyPolicy    NotifyPolicy         `yaml:"notify_policy"`
	ConnParams      ConnectionParameters `yaml:"conn_params"`
}

// Validate checks the profile and canonicalises its UUIDs in place.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	svc, err := NormalizeUUID(string(p.Service))
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}
	p.Service = svc

	if p.CCCD == "" {
		p.CCCD = CCCDUUID
	}
	cccd, err := NormalizeUUID(string(p.CCCD))
	if err != nil {
		return fmt.Errorf("cccd: %w", err)
	}
	p.CCCD = cccd

	if len(p.Characteristics) == 0 {
		return fmt.Errorf("characteristics must not be empty")
	}
	for i := range p.Characteristics {
		c := &p.Characteristics[i]
		u, err := NormalizeUUID(string(c.UUID))
		if err != nil {
			return fmt.Errorf("characteristics[%d]: %w", i, err)
		}
		c.UUID = u
		switch c.Role {
		case RoleNotify, RoleWrite:
		default:
			return fmt.Errorf("characteristics[%d].role must be %q or %q, got %q", i, RoleNotify, RoleWrite, c.Role)
		}
	}

	switch p.NotifyPolicy {
	case PolicyReapply, PolicyFirstConnect:
	default:
		return fmt.Errorf("notify_policy must be %q or %q, got %q", PolicyReapply, PolicyFirstConnect, p.NotifyPolicy)
	}

	return p.ConnParams.Validate()
}

// ScanParameters controls a scan request.
type ScanParameters struct {
	Active   bool          `yaml:"active"`
	Interval time.Duration `yaml:"interval"`
	Window   time.Duration `yaml:"window"`
	Timeout  time.Duration `yaml:"timeout"` // zero scans forever
}

// ConnectionParameters is the negotiated link timing of a connection.
type ConnectionParameters struct {
	MinInterval        time.Duration `yaml:"min_interval"`
	MaxInterval        time.Duration `yaml:"max_interval"`
	Latency            uint16        `yaml:"latency"` // connection events the peripheral may skip
	SupervisionTimeout time.Duration `yaml:"supervision_timeout"`
}

// Validate checks the parameters against the ranges of the Core specification.
func (p ConnectionParameters) Validate() error {
	const (
		minInterval = 7500 * time.Microsecond
		maxInterval = 4 * time.Second
		minTimeout  = 100 * time.Millisecond
		maxTimeout  = 32 * time.Second
	)
	if p.MinInterval < minInterval || p.MaxInterval > maxInterval || p.MinInterval > p.MaxInterval {
		return fmt.Errorf("connection interval must satisfy %s <= min <= max <= %s, got %s..%s",
			minInterval, maxInterval, p.MinInterval, p.MaxInterval)
	}
	if p.Latency > 499 {
		return fmt.Errorf("latency must be <= 499, got %d", p.Latency)
	}
	if p.SupervisionTimeout < minTimeout || p.SupervisionTimeout > maxTimeout {
		return fmt.Errorf("supervision timeout must be within %s..%s, got %s", minTimeout, maxTimeout, p.SupervisionTimeout)
	}
	return nil
}

// APIVersion is the host stack API generation named on the command line.
type APIVersion string

const (
	APIv2 APIVersion = "v2"
	APIv5 APIVersion = "v5"
)

// ParseAPIVersion accepts exactly "v2" or "v5".
func ParseAPIVersion(s string) (APIVersion, error) {
	switch v := APIVersion(s); v {
	case APIv2, APIv5:
		return v, nil
	default:
		return "", fmt.Errorf("ble: unsupported API version %q (want v2 or v5)", s)
	}
}
