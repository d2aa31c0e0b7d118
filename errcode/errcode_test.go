package errcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]error{
		"no_device":          NoDevice,
		"invalid_argument":   InvalidArgument,
		"comm_failure":       CommFailure,
		"resource_exhausted": ResourceExhausted,
		"not_supported":      NotSupported,
		"timeout":            Timeout,
		"error":              Error,
	}
	for want, e := range cases {
		assert.Equal(t, want, e.Error())
	}
}

func TestOf(t *testing.T) {
	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, NoDevice, Of(NoDevice))
	assert.Equal(t, NotSupported, Of(fmt.Errorf("wrapped: %w", NotSupported)))
	assert.Equal(t, InvalidArgument, Of(&E{C: InvalidArgument, Err: NoDevice}))
	assert.Equal(t, Error, Of(errors.New("plain")))
}

func TestWrappedCodeMatchesBothLayers(t *testing.T) {
	err := &E{C: InvalidArgument, Op: "set_poll_rate", Msg: "imu0", Err: NoDevice}

	assert.True(t, errors.Is(err, InvalidArgument))
	assert.True(t, errors.Is(err, NoDevice))
	assert.False(t, errors.Is(err, CommFailure))
	assert.Equal(t, "set_poll_rate: invalid_argument: imu0 (no_device)", err.Error())
}

func TestMapDriverErr(t *testing.T) {
	require.NoError(t, MapDriverErr("read", nil))

	// Coded errors pass through untouched.
	assert.Equal(t, error(NotSupported), MapDriverErr("read", NotSupported))

	err := MapDriverErr("read", errors.New("nack"))
	assert.True(t, errors.Is(err, CommFailure))
	assert.Contains(t, err.Error(), "nack")

	err = MapDriverErr("read", context.DeadlineExceeded)
	assert.True(t, errors.Is(err, CommFailure))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
