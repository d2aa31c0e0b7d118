package types

import (
	"math/bits"
	"strings"
)

// EventType is a bitmask of asynchronous sensor events.
type EventType uint32

const (
	EventSingleTap      EventType = 1 << 0
	EventDoubleTap      EventType = 1 << 1
	EventWakeup         EventType = 1 << 2
	EventFreeFall       EventType = 1 << 3
	EventOrientChange   EventType = 1 << 4
	EventSleep          EventType = 1 << 5
	EventOrientXLChange EventType = 1 << 6
	EventOrientYLChange EventType = 1 << 7
	EventOrientZLChange EventType = 1 << 8
	EventOrientXHChange EventType = 1 << 9
	EventOrientYHChange EventType = 1 << 10
	EventOrientZHChange EventType = 1 << 11

	// EventThreshold is raised by the software comparator when a reading
	// satisfies a type trait's threshold algorithm.
	EventThreshold EventType = 1 << 16

	EventAll EventType = 0xFFFFFFFF
)

var eventNames = []struct {
	e    EventType
	name string
}{
	{EventSingleTap, "single_tap"},
	{EventDoubleTap, "double_tap"},
	{EventWakeup, "wakeup"},
	{EventFreeFall, "free_fall"},
	{EventOrientChange, "orient_change"},
	{EventSleep, "sleep"},
	{EventOrientXLChange, "orient_x_l"},
	{EventOrientYLChange, "orient_y_l"},
	{EventOrientZLChange, "orient_z_l"},
	{EventOrientXHChange, "orient_x_h"},
	{EventOrientYHChange, "orient_y_h"},
	{EventOrientZHChange, "orient_z_h"},
	{EventThreshold, "threshold"},
}

func (e EventType) Each(fn func(EventType)) {
	for m := uint32(e); m != 0; m &= m - 1 {
		fn(EventType(1) << bits.TrailingZeros32(m))
	}
}

func (e EventType) String() string {
	switch e {
	case 0:
		return "none"
	case EventAll:
		return "all"
	}
	var parts []string
	e.Each(func(b EventType) {
		name := "unknown"
		for _, n := range eventNames {
			if n.e == b {
				name = n.name
				break
			}
		}
		parts = append(parts, name)
	})
	return strings.Join(parts, "|")
}

// ParseEventType accepts a single event name or "all".
func ParseEventType(s string) (EventType, bool) {
	s = strings.TrimSpace(s)
	if s == "all" {
		return EventAll, true
	}
	for _, n := range eventNames {
		if n.name == s {
			return n.e, true
		}
	}
	return 0, false
}
