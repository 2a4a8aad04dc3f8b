package mads

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbopt/nomad-sub004"
)

func TestOrtho2NDirectionsAreOrthonormalPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	dirs := Ortho2N{}.SpanDense(4, rng)
	require.Len(t, dirs, 8)

	dot := func(a, b []float64) float64 {
		s := 0.0
		for i := range a {
			s += a[i] * b[i]
		}
		return s
	}

	// even entries are the basis columns, odd entries their negatives
	for j := 0; j < 4; j++ {
		pos, neg := dirs[2*j], dirs[2*j+1]
		assert.InDelta(t, 1.0, math.Sqrt(dot(pos, pos)), 1e-12)
		for i := range pos {
			assert.Equal(t, -pos[i], neg[i])
		}
		for k := j + 1; k < 4; k++ {
			assert.InDelta(t, 0.0, dot(pos, dirs[2*k]), 1e-12)
		}
	}
}

func TestDensePollerProjectsOrthoDirectionsOnMesh(t *testing.T) {
	mesh := nomad.NewMesh(nomad.NewVec(1, 1, 1), nil)
	center := nomad.NewPoint(0, 0, 0)
	p := NewDensePoller(Ortho2N{}, rand.New(rand.NewSource(3)))

	pts := p.GeneratePollPoints(center, mesh)
	require.Len(t, pts, 6)
	for _, ep := range pts {
		assert.True(t, mesh.VerifyOnMesh(ep.Point, center))
		assert.NotNil(t, ep.Direction)
	}
}
