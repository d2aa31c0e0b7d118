// Package platform holds the hardware seams the sensor daemon needs on a
// host: I²C buses, GPIO pins with edge interrupts, and the bridge that turns
// a pin edge into a manager interrupt event.
package platform

import "tinygo.org/x/drivers"

type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// ParseEdge accepts "rising", "falling" or "both"; empty means rising.
func ParseEdge(s string) (Edge, bool) {
	switch s {
	case "", "rising":
		return EdgeRising, true
	case "falling":
		return EdgeFalling, true
	case "both":
		return EdgeBoth, true
	}
	return EdgeNone, false
}

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// IRQPin is a GPIO input able to call a handler from interrupt context.
// Handlers must not block.
type IRQPin interface {
	Number() int
	Get() bool
	SetIRQ(edge Edge, handler func()) error
	ClearIRQ() error
}

type I2CBusFactory interface {
	ByID(id string) (drivers.I2C, bool)
}

type PinFactory interface {
	ByNumber(n int) (IRQPin, bool)
}
