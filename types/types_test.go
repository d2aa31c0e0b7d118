package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensorTypeNamesRoundTrip(t *testing.T) {
	for _, e := range sensorTypeNames {
		got, ok := ParseSensorType(e.name)
		require.True(t, ok, e.name)
		assert.Equal(t, e.t, got)
		assert.Equal(t, e.name, e.t.String())
	}
}

func TestSensorTypeMask(t *testing.T) {
	m := TypeAccelerometer | TypeTemperature
	assert.Equal(t, "accelerometer|temperature", m.String())
	assert.False(t, m.Single())
	assert.True(t, TypeGyroscope.Single())
	assert.True(t, m.Has(TypeTemperature))
	assert.False(t, m.Has(TypeTemperature|TypeGyroscope))

	got, ok := ParseSensorType("accelerometer | temperature")
	require.True(t, ok)
	assert.Equal(t, m, got)

	_, ok = ParseSensorType("accelerometer|bogus")
	assert.False(t, ok)

	var seen []SensorType
	m.Each(func(b SensorType) { seen = append(seen, b) })
	assert.Equal(t, []SensorType{TypeAccelerometer, TypeTemperature}, seen)

	assert.Equal(t, "all", TypeAll.String())
	assert.Equal(t, "none", TypeNone.String())
}

func TestEventTypeParse(t *testing.T) {
	e, ok := ParseEventType("double_tap")
	require.True(t, ok)
	assert.Equal(t, EventDoubleTap, e)
	assert.Equal(t, "single_tap|threshold", (EventSingleTap | EventThreshold).String())

	_, ok = ParseEventType("nope")
	assert.False(t, ok)
}

func TestBuildMatchesKind(t *testing.T) {
	d := Build(KindOf(TypeAccelerometer), []float64{1, 2})
	a, ok := d.(AccelData)
	require.True(t, ok)
	assert.Equal(t, F(1), a.X)
	assert.Equal(t, F(2), a.Y)
	assert.False(t, a.Z.Valid)

	assert.Equal(t, KindTemp, Build(KindOf(TypeAmbientTemperature), []float64{21}).Kind())
	assert.Equal(t, KindScalar, KindOf(TypeUserDefined3))
	assert.Len(t, Build(KindQuat, nil).Fields(), 4)
}
