// Package subspace implements the fixed-variable mapping between a full
// search space and a reduced subproblem space, used by PSD-MADS and
// SSD-MADS to decompose a large problem into smaller ones (spec §4.7,
// testable property 9).
package subspace

import (
	"fmt"

	"github.com/bbopt/nomad-sub004"
)

// Mask marks, for each full-space coordinate, whether it is fixed (and at
// what value) or free. A Mask is itself a nomad.Point: defined coordinates
// are the fixed values, undefined coordinates mark free variables — the
// same representation the root package's Cache.FindInSubspace expects.
type Mask struct {
	nomad.Point
}

// NewMask builds a mask from a full-space point and the indices that stay
// free; every other coordinate of full is captured as fixed.
func NewMask(full nomad.Point, freeIdx []int) Mask {
	free := make(map[int]bool, len(freeIdx))
	for _, i := range freeIdx {
		free[i] = true
	}
	out := full.Clone()
	for i := range out.Vec {
		if free[i] {
			out.Vec[i] = nomad.Undef()
		}
	}
	return Mask{out}
}

// FreeIndices returns the full-space indices this mask leaves free, in
// ascending order.
func (m Mask) FreeIndices() []int {
	var idx []int
	for i, d := range m.Vec {
		if !d.IsDefined() {
			idx = append(idx, i)
		}
	}
	return idx
}

// Dim returns the number of free (subproblem) dimensions.
func (m Mask) Dim() int { return len(m.FreeIndices()) }

// AgreesWith reports whether full matches every fixed coordinate of m.
func (m Mask) AgreesWith(full nomad.Point) bool {
	if len(full.Vec) != len(m.Vec) {
		return false
	}
	for i, d := range m.Vec {
		if d.IsDefined() && !full.Vec[i].Equal(d) {
			return false
		}
	}
	return true
}

// ToSub projects a full-space point onto the mask's free coordinates, in
// FreeIndices order.
func ToSub(full nomad.Point, m Mask) nomad.Point {
	idx := m.FreeIndices()
	out := make(nomad.Vec, len(idx))
	for i, fi := range idx {
		out[i] = full.Vec[fi]
	}
	return nomad.Point{Vec: out}
}

// ToFull reconstructs a full-space point from a subspace point and the mask
// that produced it: fixed coordinates come from m, free coordinates from
// sub in FreeIndices order. Panics if sub's dimension does not match m's
// free-variable count, since that is a programmer error (spec §7 "Dimension
// mismatch").
func ToFull(sub nomad.Point, m Mask) nomad.Point {
	idx := m.FreeIndices()
	if len(sub.Vec) != len(idx) {
		panic(fmt.Sprintf("nomad/subspace: subspace point has %d coords, mask expects %d", len(sub.Vec), len(idx)))
	}
	out := m.Point.Clone()
	for i, fi := range idx {
		out.Vec[fi] = sub.Vec[i]
	}
	return out
}

// RandomMask draws a mask fixing all but nbVar of dim coordinates, using
// the supplied index permutation (callers own randomness so the core never
// imports math/rand directly — PSD-MADS's pollster seeds this from its own
// deterministic or random schedule, spec §4.7).
func RandomMask(full nomad.Point, nbVar int, perm []int) Mask {
	if nbVar > len(perm) {
		nbVar = len(perm)
	}
	return NewMask(full, perm[:nbVar])
}
