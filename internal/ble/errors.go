package ble

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error carries one of these; use errors.Is to test.
var (
	ErrAdapterOpen            = errors.New("adapter open failed")
	ErrAdapter                = errors.New("adapter failure")
	ErrScanStart              = errors.New("scan start failed")
	ErrScanTimedOut           = errors.New("scan timed out")
	ErrConnect                = errors.New("connect failed")
	ErrServiceNotFound        = errors.New("service not found")
	ErrCharacteristicNotFound = errors.New("characteristic not found")
	ErrDescriptorNotFound     = errors.New("descriptor not found")
	ErrDescriptorWrite        = errors.New("descriptor write failed")
	ErrParameterUpdate        = errors.New("connection parameter update failed")
)

// Error is a session failure. It unwraps to both its kind and its cause.
type Error struct {
	Kind error
	UUID UUID  // attribute involved, if any
	Err  error // adapter error, if any
}

func (e *Error) Error() string {
	msg := "ble: " + e.Kind.Error()
	if e.UUID != "" {
		msg += " (" + string(e.UUID) + ")"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
