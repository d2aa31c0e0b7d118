// Package threshold holds the comparators that decide whether a reading
// crosses a type trait's low/high bounds.
package threshold

import (
	"strings"

	"sensorcode-go/errcode"
	"sensorcode-go/types"
)

// Algo selects the comparison applied to a reading.
type Algo uint8

const (
	AlgoWindow Algo = iota
	AlgoWatermark
	AlgoUser
)

func (a Algo) String() string {
	switch a {
	case AlgoWindow:
		return "window"
	case AlgoWatermark:
		return "watermark"
	case AlgoUser:
		return "user"
	default:
		return "unknown"
	}
}

// ParseAlgo is the inverse of String.
func ParseAlgo(s string) (Algo, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "window":
		return AlgoWindow, true
	case "watermark":
		return AlgoWatermark, true
	case "user":
		return AlgoUser, true
	}
	return 0, false
}

// Func reports whether data triggers against the low and high bounds.
type Func func(low, high, data types.Data) bool

// Window triggers when any field valid in all three operands lies strictly
// inside (low, high).
func Window(low, high, data types.Data) bool {
	lf, hf, df, ok := align(low, high, data)
	if !ok {
		return false
	}
	for i, d := range df {
		if !d.Valid || !lf[i].Valid || !hf[i].Valid {
			continue
		}
		if d.Value > lf[i].Value && d.Value < hf[i].Value {
			return true
		}
	}
	return false
}

// Watermark triggers when any valid field lies strictly below a valid low
// bound or strictly above a valid high bound.
func Watermark(low, high, data types.Data) bool {
	lf, hf, df, ok := align(low, high, data)
	if !ok {
		return false
	}
	for i, d := range df {
		if !d.Valid {
			continue
		}
		if lf[i].Valid && d.Value < lf[i].Value {
			return true
		}
		if hf[i].Valid && d.Value > hf[i].Value {
			return true
		}
	}
	return false
}

func align(low, high, data types.Data) (lf, hf, df []types.Field, ok bool) {
	if low == nil || high == nil || data == nil {
		return nil, nil, nil, false
	}
	k := data.Kind()
	if low.Kind() != k || high.Kind() != k {
		return nil, nil, nil, false
	}
	return low.Fields(), high.Fields(), data.Fields(), true
}

// For returns the comparator for a. AlgoUser requires user.
func For(a Algo, user Func) (Func, error) {
	switch a {
	case AlgoWindow:
		return Window, nil
	case AlgoWatermark:
		return Watermark, nil
	case AlgoUser:
		if user == nil {
			return nil, errcode.New(errcode.InvalidArgument, "threshold", "user algorithm without comparator")
		}
		return user, nil
	}
	return nil, errcode.New(errcode.InvalidArgument, "threshold", "unknown algorithm "+a.String())
}
