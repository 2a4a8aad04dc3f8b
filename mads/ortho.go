package mads

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// DenseSpanner produces real-valued poll directions, for variants whose
// directions are not integer multiples of the coordinate axes. Projection
// onto the mesh happens downstream in the Poller, exactly as for the
// integer Spanners.
type DenseSpanner interface {
	SpanDense(ndim int, rng *rand.Rand) [][]float64
}

// Ortho2N generates 2N poll directions from the Householder transform of
// a random unit vector v: H = I - 2vvᵀ. The columns of H are an
// orthonormal basis, and emitting each column with both signs yields a
// maximal positive basis that rotates with v from one iteration to the
// next, so the union of poll directions over the run is dense on the unit
// sphere.
type Ortho2N struct{}

func (Ortho2N) SpanDense(ndim int, rng *rand.Rand) [][]float64 {
	v := mat.NewVecDense(ndim, nil)
	norm := 0.0
	for norm == 0 {
		for i := 0; i < ndim; i++ {
			v.SetVec(i, rng.NormFloat64())
		}
		norm = mat.Norm(v, 2)
	}
	v.ScaleVec(1/norm, v)

	h := mat.NewDense(ndim, ndim, nil)
	h.Outer(-2, v, v)
	for i := 0; i < ndim; i++ {
		h.Set(i, i, h.At(i, i)+1)
	}

	dirs := make([][]float64, 0, 2*ndim)
	for j := 0; j < ndim; j++ {
		pos := make([]float64, ndim)
		neg := make([]float64, ndim)
		for i := 0; i < ndim; i++ {
			pos[i] = h.At(i, j)
			neg[i] = -pos[i]
		}
		dirs = append(dirs, pos, neg)
	}
	return dirs
}
