package nomad

import "math"

// DefaultEps is the default tolerance used by Dbl's equality and ordering
// comparisons, matching the bbopt/nomad default epsilon.
const DefaultEps = 1e-13

// Dbl is an extended real number with a distinguished "undefined" state,
// separate from the ordinary floating point sentinels +Inf, -Inf and NaN
// (all three of which are valid *defined* values). Arithmetic on an
// undefined Dbl propagates undefined. Comparisons between defined values
// are epsilon-tolerant.
type Dbl struct {
	v       float64
	defined bool
}

// D constructs a defined Dbl from a float64.
func D(v float64) Dbl { return Dbl{v: v, defined: true} }

// Undef returns the undefined Dbl.
func Undef() Dbl { return Dbl{} }

// PosInf and NegInf return the defined +/- infinity sentinels.
func PosInf() Dbl { return Dbl{v: math.Inf(1), defined: true} }
func NegInf() Dbl { return Dbl{v: math.Inf(-1), defined: true} }

// IsDefined reports whether d holds a value (possibly Inf or NaN).
func (d Dbl) IsDefined() bool { return d.defined }

// Value returns the underlying float64. It is only meaningful when
// d.IsDefined().
func (d Dbl) Value() float64 { return d.v }

func (d Dbl) IsNaN() bool { return d.defined && math.IsNaN(d.v) }
func (d Dbl) IsInf() bool { return d.defined && math.IsInf(d.v, 0) }

// EqualEps reports whether d and o are equal within the given epsilon. Two
// undefined values are never equal (mirroring the "total order defined
// only on defined values" rule).
func (d Dbl) EqualEps(o Dbl, eps float64) bool {
	if !d.defined || !o.defined {
		return false
	}
	if math.IsNaN(d.v) || math.IsNaN(o.v) {
		return false
	}
	if math.IsInf(d.v, 0) || math.IsInf(o.v, 0) {
		return d.v == o.v
	}
	return math.Abs(d.v-o.v) <= eps
}

// Equal uses DefaultEps.
func (d Dbl) Equal(o Dbl) bool { return d.EqualEps(o, DefaultEps) }

// Less is an epsilon-tolerant strict less-than; it is only defined when
// both operands are defined, and returns false otherwise (spec: total order
// defined only on defined values).
func (d Dbl) Less(o Dbl) bool {
	if !d.defined || !o.defined {
		return false
	}
	return d.v < o.v-DefaultEps
}

func (d Dbl) LessEq(o Dbl) bool    { return d.Less(o) || d.Equal(o) }
func (d Dbl) Greater(o Dbl) bool   { return o.Less(d) }
func (d Dbl) GreaterEq(o Dbl) bool { return d.Greater(o) || d.Equal(o) }

// Add, Sub, Mul, Div propagate undefined: if either operand is undefined,
// the result is undefined.
func (d Dbl) Add(o Dbl) Dbl {
	if !d.defined || !o.defined {
		return Undef()
	}
	return D(d.v + o.v)
}

func (d Dbl) Sub(o Dbl) Dbl {
	if !d.defined || !o.defined {
		return Undef()
	}
	return D(d.v - o.v)
}

func (d Dbl) Mul(o Dbl) Dbl {
	if !d.defined || !o.defined {
		return Undef()
	}
	return D(d.v * o.v)
}

func (d Dbl) Div(o Dbl) Dbl {
	if !d.defined || !o.defined {
		return Undef()
	}
	return D(d.v / o.v)
}

func (d Dbl) Neg() Dbl {
	if !d.defined {
		return Undef()
	}
	return D(-d.v)
}

func (d Dbl) Abs() Dbl {
	if !d.defined {
		return Undef()
	}
	return D(math.Abs(d.v))
}

// Max and Min propagate undefined like the arithmetic operators, rather
// than treating undefined as an identity element: an undefined operand
// makes the whole comparison meaningless.
func (d Dbl) Max(o Dbl) Dbl {
	if !d.defined || !o.defined {
		return Undef()
	}
	return D(math.Max(d.v, o.v))
}

func (d Dbl) Min(o Dbl) Dbl {
	if !d.defined || !o.defined {
		return Undef()
	}
	return D(math.Min(d.v, o.v))
}

func (d Dbl) Pow(o Dbl) Dbl {
	if !d.defined || !o.defined {
		return Undef()
	}
	return D(math.Pow(d.v, o.v))
}

// RoundToPrecision rounds the value to the given number of decimal places.
// Undefined values round to undefined.
func (d Dbl) RoundToPrecision(decimals int) Dbl {
	if !d.defined {
		return Undef()
	}
	scale := math.Pow(10, float64(decimals))
	return D(math.Round(d.v*scale) / scale)
}

// IsMultipleOf reports whether d is an integer multiple of granularity
// (within DefaultEps). A zero or undefined granularity means "continuous",
// and every defined value is trivially a multiple of it.
func (d Dbl) IsMultipleOf(granularity Dbl) bool {
	if !d.defined {
		return false
	}
	if !granularity.defined || granularity.v == 0 {
		return true
	}
	ratio := d.v / granularity.v
	return math.Abs(ratio-math.Round(ratio)) <= DefaultEps
}

// SnapToGranularity rounds d to the nearest multiple of granularity. A
// zero or undefined granularity is a no-op.
func (d Dbl) SnapToGranularity(granularity Dbl) Dbl {
	if !d.defined || !granularity.defined || granularity.v == 0 {
		return d
	}
	return D(math.Round(d.v/granularity.v) * granularity.v)
}

func (d Dbl) String() string {
	if !d.defined {
		return "-"
	}
	return ftoa(d.v)
}

func ftoa(v float64) string {
	return trimFloat(v)
}
