package types

// Field is one measured quantity with an explicit validity flag. Drivers leave
// Valid false for axes the chip did not report.
type Field struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// F returns a valid field.
func F(v float64) Field { return Field{Value: v, Valid: true} }

// DataKind tags the concrete payload shape behind Data.
type DataKind uint8

const (
	KindScalar DataKind = iota
	KindAccel
	KindMag
	KindGyro
	KindEuler
	KindQuat
	KindLight
	KindColor
	KindTemp
	KindPress
	KindHumid
)

// Data is the sealed variant carried by every reading. The field order
// returned by Fields is fixed per kind so that readings and thresholds of the
// same kind line up axis by axis.
type Data interface {
	Kind() DataKind
	Fields() []Field
	isData()
}

// KindOf maps a single sensor type to the payload kind its readings carry.
func KindOf(t SensorType) DataKind {
	switch t {
	case TypeAccelerometer, TypeLinearAccel, TypeGravity:
		return KindAccel
	case TypeMagneticField:
		return KindMag
	case TypeGyroscope:
		return KindGyro
	case TypeEuler:
		return KindEuler
	case TypeRotationVector:
		return KindQuat
	case TypeLight:
		return KindLight
	case TypeColor:
		return KindColor
	case TypeTemperature, TypeAmbientTemperature:
		return KindTemp
	case TypePressure:
		return KindPress
	case TypeRelativeHumidity:
		return KindHumid
	default:
		return KindScalar
	}
}

// AccelData is in m/s².
type AccelData struct{ X, Y, Z Field }

func (AccelData) Kind() DataKind    { return KindAccel }
func (d AccelData) Fields() []Field { return []Field{d.X, d.Y, d.Z} }
func (AccelData) isData()           {}

// MagData is in µT.
type MagData struct{ X, Y, Z Field }

func (MagData) Kind() DataKind    { return KindMag }
func (d MagData) Fields() []Field { return []Field{d.X, d.Y, d.Z} }
func (MagData) isData()           {}

// GyroData is in deg/s.
type GyroData struct{ X, Y, Z Field }

func (GyroData) Kind() DataKind    { return KindGyro }
func (d GyroData) Fields() []Field { return []Field{d.X, d.Y, d.Z} }
func (GyroData) isData()           {}

type EulerData struct{ H, R, P Field }

func (EulerData) Kind() DataKind    { return KindEuler }
func (d EulerData) Fields() []Field { return []Field{d.H, d.R, d.P} }
func (EulerData) isData()           {}

type QuatData struct{ X, Y, Z, W Field }

func (QuatData) Kind() DataKind    { return KindQuat }
func (d QuatData) Fields() []Field { return []Field{d.X, d.Y, d.Z, d.W} }
func (QuatData) isData()           {}

type LightData struct{ Full, IR, Lux Field }

func (LightData) Kind() DataKind    { return KindLight }
func (d LightData) Fields() []Field { return []Field{d.Full, d.IR, d.Lux} }
func (LightData) isData()           {}

type ColorData struct{ R, G, B, C Field }

func (ColorData) Kind() DataKind    { return KindColor }
func (d ColorData) Fields() []Field { return []Field{d.R, d.G, d.B, d.C} }
func (ColorData) isData()           {}

// TempData is in °C.
type TempData struct{ Temp Field }

func (TempData) Kind() DataKind    { return KindTemp }
func (d TempData) Fields() []Field { return []Field{d.Temp} }
func (TempData) isData()           {}

// PressData is in Pa.
type PressData struct{ Press Field }

func (PressData) Kind() DataKind    { return KindPress }
func (d PressData) Fields() []Field { return []Field{d.Press} }
func (PressData) isData()           {}

// HumidData is in %RH.
type HumidData struct{ Humid Field }

func (HumidData) Kind() DataKind    { return KindHumid }
func (d HumidData) Fields() []Field { return []Field{d.Humid} }
func (HumidData) isData()           {}

// ScalarData covers proximity, altitude, weight and user-defined types.
type ScalarData struct{ Value Field }

func (ScalarData) Kind() DataKind    { return KindScalar }
func (d ScalarData) Fields() []Field { return []Field{d.Value} }
func (ScalarData) isData()           {}

// Build constructs the Data of the given kind from positional values. Missing
// trailing values stay invalid; extras are ignored. Used by configuration
// loading to express thresholds as plain number lists.
func Build(k DataKind, vals []float64) Data {
	f := func(i int) Field {
		if i < len(vals) {
			return F(vals[i])
		}
		return Field{}
	}
	switch k {
	case KindAccel:
		return AccelData{f(0), f(1), f(2)}
	case KindMag:
		return MagData{f(0), f(1), f(2)}
	case KindGyro:
		return GyroData{f(0), f(1), f(2)}
	case KindEuler:
		return EulerData{f(0), f(1), f(2)}
	case KindQuat:
		return QuatData{f(0), f(1), f(2), f(3)}
	case KindLight:
		return LightData{f(0), f(1), f(2)}
	case KindColor:
		return ColorData{f(0), f(1), f(2), f(3)}
	case KindTemp:
		return TempData{f(0)}
	case KindPress:
		return PressData{f(0)}
	case KindHumid:
		return HumidData{f(0)}
	default:
		return ScalarData{f(0)}
	}
}
