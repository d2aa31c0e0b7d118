package types

import (
	"math/bits"
	"strconv"
	"strings"
)

// SensorType is a bitmask of measurement kinds a sensor can produce.
type SensorType uint32

const (
	TypeNone               SensorType = 0
	TypeAccelerometer      SensorType = 1 << 0
	TypeMagneticField      SensorType = 1 << 1
	TypeGyroscope          SensorType = 1 << 2
	TypeLight              SensorType = 1 << 3
	TypeTemperature        SensorType = 1 << 4
	TypeAmbientTemperature SensorType = 1 << 5
	TypePressure           SensorType = 1 << 6
	TypeProximity          SensorType = 1 << 7
	TypeRelativeHumidity   SensorType = 1 << 8
	TypeRotationVector     SensorType = 1 << 9
	TypeAltitude           SensorType = 1 << 10
	TypeWeight             SensorType = 1 << 11
	TypeLinearAccel        SensorType = 1 << 12
	TypeGravity            SensorType = 1 << 13
	TypeEuler              SensorType = 1 << 14
	TypeColor              SensorType = 1 << 15

	TypeUserDefined1 SensorType = 1 << 26
	TypeUserDefined2 SensorType = 1 << 27
	TypeUserDefined3 SensorType = 1 << 28
	TypeUserDefined4 SensorType = 1 << 29
	TypeUserDefined5 SensorType = 1 << 30
	TypeUserDefined6 SensorType = 1 << 31

	TypeAll SensorType = 0xFFFFFFFF
)

var sensorTypeNames = []struct {
	t    SensorType
	name string
}{
	{TypeAccelerometer, "accelerometer"},
	{TypeMagneticField, "magnetic_field"},
	{TypeGyroscope, "gyroscope"},
	{TypeLight, "light"},
	{TypeTemperature, "temperature"},
	{TypeAmbientTemperature, "ambient_temperature"},
	{TypePressure, "pressure"},
	{TypeProximity, "proximity"},
	{TypeRelativeHumidity, "relative_humidity"},
	{TypeRotationVector, "rotation_vector"},
	{TypeAltitude, "altitude"},
	{TypeWeight, "weight"},
	{TypeLinearAccel, "linear_accel"},
	{TypeGravity, "gravity"},
	{TypeEuler, "euler"},
	{TypeColor, "color"},
	{TypeUserDefined1, "user_defined_1"},
	{TypeUserDefined2, "user_defined_2"},
	{TypeUserDefined3, "user_defined_3"},
	{TypeUserDefined4, "user_defined_4"},
	{TypeUserDefined5, "user_defined_5"},
	{TypeUserDefined6, "user_defined_6"},
}

// Single reports whether exactly one bit is set.
func (t SensorType) Single() bool { return t != 0 && t&(t-1) == 0 }

// Has reports whether every bit of o is present in t.
func (t SensorType) Has(o SensorType) bool { return t&o == o }

// Each calls fn once per set bit, lowest first.
func (t SensorType) Each(fn func(SensorType)) {
	for m := uint32(t); m != 0; m &= m - 1 {
		fn(SensorType(1) << bits.TrailingZeros32(m))
	}
}

// String renders single types by name and masks as "a|b".
func (t SensorType) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeAll:
		return "all"
	}
	var parts []string
	t.Each(func(b SensorType) {
		parts = append(parts, typeName(b))
	})
	return strings.Join(parts, "|")
}

func typeName(b SensorType) string {
	for _, e := range sensorTypeNames {
		if e.t == b {
			return e.name
		}
	}
	return "bit" + strconv.Itoa(bits.TrailingZeros32(uint32(b)))
}

// ParseSensorType accepts a name, "all", or a "|"-separated list of names.
func ParseSensorType(s string) (SensorType, bool) {
	s = strings.TrimSpace(s)
	if s == "all" {
		return TypeAll, true
	}
	var out SensorType
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		found := false
		for _, e := range sensorTypeNames {
			if e.name == part {
				out |= e.t
				found = true
				break
			}
		}
		if !found {
			return TypeNone, false
		}
	}
	return out, true
}

// ValueType describes the result format of one sensor type.
type ValueType uint8

const (
	ValueOpaque ValueType = iota
	ValueInt32
	ValueFloat
	ValueInt32Triplet
	ValueFloatTriplet
)

// SensorConfig is the per-type configuration a driver reports and accepts.
type SensorConfig struct {
	Type      SensorType
	ValueType ValueType
}
