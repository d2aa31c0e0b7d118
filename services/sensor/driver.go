package sensor

import (
	"context"

	"sensorcode-go/types"
)

// DataFunc receives one unit of data from a driver read. Returning an error
// aborts the read.
type DataFunc func(s *Sensor, t types.SensorType, d types.Data) error

// Driver is the contract every sensor driver satisfies. The manager holds
// the sensor lock for the duration of each call.
type Driver interface {
	// Read reads the types in mask and calls fn once per unit of data. The
	// bus transaction honours ctx's deadline.
	Read(ctx context.Context, s *Sensor, mask types.SensorType, fn DataFunc) error
	GetConfig(s *Sensor, t types.SensorType) (types.SensorConfig, error)
	SetConfig(s *Sensor, cfg types.SensorConfig) error
}

// ThresholdDriver programs hardware trigger thresholds.
type ThresholdDriver interface {
	SetTriggerThreshold(s *Sensor, t types.SensorType, low, high types.Data) error
}

// ThresholdClearer disables the hardware interrupt tied to one bound.
type ThresholdClearer interface {
	ClearLowThreshold(s *Sensor, t types.SensorType) error
	ClearHighThreshold(s *Sensor, t types.SensorType) error
}

// NotificationDriver enables chip-detected events (taps, free fall).
type NotificationDriver interface {
	SetNotification(s *Sensor, ev types.EventType) error
	UnsetNotification(s *Sensor, ev types.EventType) error
}

// InterruptDriver services a deferred interrupt on the event loop.
type InterruptDriver interface {
	HandleInterrupt(s *Sensor) error
}
