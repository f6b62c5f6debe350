package ble

import (
	"time"

	"tinygo.org/x/bluetooth"
)

// hostConnParams is the connection parameter record handed to the host
// stack. Host stack generations disagree on field names, so both sets are
// filled from the same canonical value and always hold equal numbers.
// Times are in milliseconds.
type hostConnParams struct {
	// v2 names
	MinConnInterval float64
	MaxConnInterval float64
	SlaveLatency    uint16
	ConnSupTimeout  float64

	// v5 names
	MinConnectionInterval        float64
	MaxConnectionInterval        float64
	PeripheralLatency            uint16
	ConnectionSupervisionTimeout float64
}

func newHostConnParams(p ConnectionParameters) hostConnParams {
	minInterval, maxInterval, timeout := millis(p.MinInterval), millis(p.MaxInterval), millis(p.SupervisionTimeout)
	return hostConnParams{
		MinConnInterval: minInterval,
		MaxConnInterval: maxInterval,
		SlaveLatency:    p.Latency,
		ConnSupTimeout:  timeout,

		MinConnectionInterval:        minInterval,
		MaxConnectionInterval:        maxInterval,
		PeripheralLatency:            p.Latency,
		ConnectionSupervisionTimeout: timeout,
	}
}

// bluetooth converts the record using the field set of API version v.
func (h hostConnParams) bluetooth(v APIVersion, connectTimeout time.Duration) bluetooth.ConnectionParams {
	minInterval, maxInterval, timeout := h.MinConnectionInterval, h.MaxConnectionInterval, h.ConnectionSupervisionTimeout
	if v == APIv2 {
		minInterval, maxInterval, timeout = h.MinConnInterval, h.MaxConnInterval, h.ConnSupTimeout
	}
	return bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(connectTimeout),
		MinInterval:       bluetooth.NewDuration(fromMillis(minInterval)),
		MaxInterval:       bluetooth.NewDuration(fromMillis(maxInterval)),
		Timeout:           bluetooth.NewDuration(fromMillis(timeout)),
	}
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func fromMillis(ms float64) time.Duration { return time.Duration(ms * float64(time.Millisecond)) }
