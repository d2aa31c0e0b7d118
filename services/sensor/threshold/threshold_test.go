package threshold

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorcode-go/errcode"
	"sensorcode-go/types"
)

func temp(v float64) types.Data { return types.TempData{Temp: types.F(v)} }

func TestWindowBoundaries(t *testing.T) {
	lo, hi := temp(10), temp(20)
	cases := []struct {
		v    float64
		want bool
	}{
		{15, true},
		{25, false},
		{10, false},
		{20, false},
		{5, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Window(lo, hi, temp(c.v)), "reading %v", c.v)
	}
}

func TestWatermarkBoundaries(t *testing.T) {
	lo, hi := temp(10), temp(20)
	cases := []struct {
		v    float64
		want bool
	}{
		{25, true},
		{5, true},
		{15, false},
		{20, false},
		{10, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Watermark(lo, hi, temp(c.v)), "reading %v", c.v)
	}
}

func TestInvalidFieldsAreSkipped(t *testing.T) {
	lo := types.AccelData{X: types.F(0), Y: types.F(0)}
	hi := types.AccelData{X: types.F(1), Y: types.F(1)}

	// Z is outside the band but the thresholds do not cover it.
	d := types.AccelData{X: types.F(0.5), Y: types.F(0.5), Z: types.F(9)}
	assert.False(t, Watermark(lo, hi, d))
	assert.True(t, Window(lo, hi, d))

	// Only the high bound is valid: values below anything never trip.
	hiOnly := types.TempData{Temp: types.F(30)}
	assert.False(t, Watermark(types.TempData{}, hiOnly, temp(-100)))
	assert.True(t, Watermark(types.TempData{}, hiOnly, temp(31)))

	// Window needs both bounds.
	assert.False(t, Window(types.TempData{}, hiOnly, temp(0)))
}

func TestAnyAxisTriggers(t *testing.T) {
	lo := types.AccelData{X: types.F(-1), Y: types.F(-1), Z: types.F(-1)}
	hi := types.AccelData{X: types.F(1), Y: types.F(1), Z: types.F(1)}
	assert.True(t, Watermark(lo, hi, types.AccelData{X: types.F(0), Y: types.F(0), Z: types.F(2)}))
	assert.False(t, Watermark(lo, hi, types.AccelData{X: types.F(0), Y: types.F(0), Z: types.F(0)}))
}

func TestKindMismatch(t *testing.T) {
	assert.False(t, Window(temp(0), temp(10), types.HumidData{Humid: types.F(5)}))
	assert.False(t, Watermark(temp(0), temp(10), types.PressData{Press: types.F(50)}))
	assert.False(t, Watermark(nil, temp(10), temp(50)))
}

func TestFor(t *testing.T) {
	f, err := For(AlgoWindow, nil)
	require.NoError(t, err)
	assert.True(t, f(temp(10), temp(20), temp(15)))

	_, err = For(AlgoUser, nil)
	assert.True(t, errors.Is(err, errcode.InvalidArgument))

	called := false
	f, err = For(AlgoUser, func(_, _, _ types.Data) bool { called = true; return true })
	require.NoError(t, err)
	assert.True(t, f(nil, nil, nil))
	assert.True(t, called)

	_, err = For(Algo(9), nil)
	assert.Error(t, err)
}

func TestParseAlgo(t *testing.T) {
	for _, a := range []Algo{AlgoWindow, AlgoWatermark, AlgoUser} {
		got, ok := ParseAlgo(a.String())
		require.True(t, ok)
		assert.Equal(t, a, got)
	}
	_, ok := ParseAlgo("median")
	assert.False(t, ok)
}
