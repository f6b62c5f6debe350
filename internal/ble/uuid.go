package ble

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// UUID is a canonical attribute type: four upper-case hex digits for UUIDs
// on the Bluetooth base, otherwise 32 upper-case hex digits without dashes.
// Canonical UUIDs compare with ==.
type UUID string

const baseSuffix = "-0000-1000-8000-00805F9B34FB"

// NormalizeUUID converts a 16-bit or 128-bit UUID in any common notation to
// its canonical form.
func NormalizeUUID(s string) (UUID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) == 4 {
		if _, err := strconv.ParseUint(s, 16, 16); err != nil {
			return "", fmt.Errorf("ble: invalid UUID %q", s)
		}
		return UUID(strings.ToUpper(s)), nil
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("ble: invalid UUID %q: %w", s, err)
	}
	str := strings.ToUpper(u.String())
	if strings.HasPrefix(str, "0000") && strings.HasSuffix(str, baseSuffix) {
		return UUID(str[4:8]), nil
	}
	return UUID(strings.ReplaceAll(str, "-", "")), nil
}

// MustUUID is NormalizeUUID for constants; it panics on malformed input.
func MustUUID(s string) UUID {
	u, err := NormalizeUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u UUID) String() string { return string(u) }
