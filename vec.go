package nomad

import (
	"fmt"
	"math"
)

// Vec is a fixed-length ordered vector of Dbl. Point and Direction are both
// Vecs with role-specific methods attached.
type Vec []Dbl

// NewVec builds a Vec of defined values from plain float64s.
func NewVec(vals ...float64) Vec {
	v := make(Vec, len(vals))
	for i, x := range vals {
		v[i] = D(x)
	}
	return v
}

// Clone returns an independent copy of v.
func (v Vec) Clone() Vec {
	out := make(Vec, len(v))
	copy(out, v)
	return out
}

// EqualEps reports componentwise epsilon-equality; vectors of different
// length are never equal.
func (v Vec) EqualEps(o Vec, eps float64) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if !v[i].EqualEps(o[i], eps) {
			return false
		}
	}
	return true
}

func (v Vec) Equal(o Vec) bool { return v.EqualEps(o, DefaultEps) }

// AllDefined reports whether every coordinate is defined.
func (v Vec) AllDefined() bool {
	for _, d := range v {
		if !d.IsDefined() {
			return false
		}
	}
	return true
}

// Add, Sub are componentwise; panics if the operand lengths differ, since
// mixing dimensions is a programmer error (spec §7 "Dimension mismatch").
func (v Vec) Add(o Vec) Vec {
	v.mustMatch(o)
	out := make(Vec, len(v))
	for i := range v {
		out[i] = v[i].Add(o[i])
	}
	return out
}

func (v Vec) Sub(o Vec) Vec {
	v.mustMatch(o)
	out := make(Vec, len(v))
	for i := range v {
		out[i] = v[i].Sub(o[i])
	}
	return out
}

// Scale multiplies every defined coordinate by s.
func (v Vec) Scale(s float64) Vec {
	out := make(Vec, len(v))
	for i := range v {
		out[i] = v[i].Mul(D(s))
	}
	return out
}

// ScaleVec multiplies componentwise by another Vec (e.g. a per-coordinate
// mesh size).
func (v Vec) ScaleVec(o Vec) Vec {
	v.mustMatch(o)
	out := make(Vec, len(v))
	for i := range v {
		out[i] = v[i].Mul(o[i])
	}
	return out
}

func (v Vec) mustMatch(o Vec) {
	if len(v) != len(o) {
		panic(fmt.Sprintf("nomad: dimension mismatch: %d vs %d", len(v), len(o)))
	}
}

// SnapToBounds clamps each coordinate into [lb[i], ub[i]]. An undefined
// bound on a given coordinate leaves that side unconstrained.
func (v Vec) SnapToBounds(lb, ub Vec) Vec {
	out := v.Clone()
	for i := range out {
		if i < len(lb) && lb[i].IsDefined() && out[i].IsDefined() && out[i].Less(lb[i]) {
			out[i] = lb[i]
		}
		if i < len(ub) && ub[i].IsDefined() && out[i].IsDefined() && out[i].Greater(ub[i]) {
			out[i] = ub[i]
		}
	}
	return out
}

// InBounds reports whether every coordinate respects [lb, ub].
func (v Vec) InBounds(lb, ub Vec) bool {
	for i := range v {
		if i < len(lb) && lb[i].IsDefined() && v[i].IsDefined() && v[i].Less(lb[i]) {
			return false
		}
		if i < len(ub) && ub[i].IsDefined() && v[i].IsDefined() && v[i].Greater(ub[i]) {
			return false
		}
	}
	return true
}

// RoundToGranularity snaps each coordinate to the nearest multiple of the
// matching granularity entry; a zero/undefined entry leaves that
// coordinate continuous.
func (v Vec) RoundToGranularity(granularity Vec) Vec {
	out := v.Clone()
	for i := range out {
		if i < len(granularity) {
			out[i] = out[i].SnapToGranularity(granularity[i])
		}
	}
	return out
}

func (v Vec) Floats() []float64 {
	out := make([]float64, len(v))
	for i, d := range v {
		if d.IsDefined() {
			out[i] = d.Value()
		}
	}
	return out
}

func (v Vec) String() string {
	s := "("
	for i, d := range v {
		if i > 0 {
			s += " "
		}
		s += d.String()
	}
	return s + ")"
}

// Point is a location in variable space, full or fixed-variable-subspace
// depending on context. A fixed-variable mask is itself a Point whose
// defined coordinates are the fixed values and whose undefined coordinates
// mark the free variables (see the subspace package).
type Point struct {
	Vec
}

func NewPoint(vals ...float64) Point { return Point{NewVec(vals...)} }

func (p Point) Clone() Point { return Point{p.Vec.Clone()} }

func (p Point) Equal(o Point) bool { return p.Vec.Equal(o.Vec) }

func (p Point) Len() int { return len(p.Vec) }

// Direction is an offset vector, typically scaled to a mesh frame size and
// used both for poll-direction generation and for recording the parent->
// child direction used in Δ anisotropic-enlargement accounting.
type Direction struct {
	Vec
}

func NewDirection(vals ...float64) Direction { return Direction{NewVec(vals...)} }

func (d Direction) Clone() Direction { return Direction{d.Vec.Clone()} }

// Norm2 returns the Euclidean length of the direction, treating undefined
// coordinates as zero.
func (d Direction) Norm2() float64 {
	tot := 0.0
	for _, x := range d.Vec {
		if x.IsDefined() {
			tot += x.Value() * x.Value()
		}
	}
	return math.Sqrt(tot)
}
