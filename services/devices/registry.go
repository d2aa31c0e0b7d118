// Package devices builds sensors from configuration. Driver packages register
// a Builder under their driver name from init; Install turns a sensors list
// into registered, scheduled sensors.
package devices

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"sensorcode-go/services/config"
	"sensorcode-go/services/platform"
	"sensorcode-go/services/sensor"
	"sensorcode-go/types"
	"sensorcode-go/x/timex"
)

// EventSink is the manager surface a driver may post to from its own
// goroutines or interrupt handlers.
type EventSink interface {
	PutNotify(s *sensor.Sensor, ev types.EventType) bool
	PutInterrupt(s *sensor.Sensor) error
}

// BuildInput is passed to a device builder.
type BuildInput struct {
	Ctx    context.Context
	Config config.SensorConfig
	Types  types.SensorType
	Buses  platform.I2CBusFactory
	Pins   platform.PinFactory
	Clock  timex.Clock
	Events EventSink
	Logger *slog.Logger
}

// BuildOutput describes a constructed sensor.
type BuildOutput struct {
	Sensor *sensor.Sensor
	IRQ    *IRQRequest // nil if none
}

// IRQRequest asks the installer to bridge a GPIO edge to the sensor.
type IRQRequest struct {
	Pin      platform.IRQPin
	Edge     platform.Edge
	Debounce time.Duration
}

// Builder creates a sensor and its driver from config and factories.
type Builder interface {
	Build(in BuildInput) (BuildOutput, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(in BuildInput) (BuildOutput, error)

func (f BuilderFunc) Build(in BuildInput) (BuildOutput, error) { return f(in) }

var (
	mu       sync.RWMutex
	builders = map[string]Builder{}
)

func RegisterBuilder(driver string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := builders[driver]; exists {
		panic(fmt.Sprintf("device builder already registered for driver %q", driver))
	}
	builders[driver] = b
}

func Lookup(driver string) (Builder, bool) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := builders[driver]
	return b, ok
}

// Drivers lists registered driver names in order.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
