package mads

import (
	"math/rand"

	"github.com/bbopt/nomad-sub004"
)

// Poller generates direction-based trial points around a frame center,
// mirroring the teacher's pattern.Poller but driven by the mesh's frame
// size rather than a scalar step (spec §4.6 Poll step). Directions come
// from either an integer Spanner (the compass patterns) or a DenseSpanner
// (Ortho2N); when both are set, Dense wins.
type Poller struct {
	Spanner Spanner
	Dense   DenseSpanner
	Rng     *rand.Rand
}

func NewPoller(span Spanner, rng *rand.Rand) *Poller {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Poller{Spanner: span, Rng: rng}
}

// NewDensePoller builds a Poller around a real-valued direction generator
// such as Ortho2N.
func NewDensePoller(d DenseSpanner, rng *rand.Rand) *Poller {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Poller{Dense: d, Rng: rng}
}

func (p *Poller) directions(ndim int) [][]float64 {
	if p.Dense != nil {
		return p.Dense.SpanDense(ndim, p.Rng)
	}
	raw := p.Spanner.Span(ndim, p.Rng)
	out := make([][]float64, len(raw))
	for i, d := range raw {
		out[i] = make([]float64, len(d))
		for j, mult := range d {
			out[i][j] = float64(mult)
		}
	}
	return out
}

// GeneratePollPoints spans directions around center scaled by mesh's frame
// size, tagging each produced EvalPoint with its parent and direction for
// Δ anisotropic-enlargement accounting (spec §3 EvalPoint.pointFrom/direction).
func (p *Poller) GeneratePollPoints(center nomad.Point, mesh *nomad.Mesh) []*nomad.EvalPoint {
	ndim := center.Len()
	dirs := p.directions(ndim)

	out := make([]*nomad.EvalPoint, 0, len(dirs))
	for _, d := range dirs {
		coords := make([]float64, ndim)
		dirVals := make([]float64, ndim)
		for i, mult := range d {
			step := mesh.FrameSize[i].Value()
			offset := mult * step
			coords[i] = center.Vec[i].Value() + offset
			dirVals[i] = offset
		}
		trial := nomad.NewPoint(coords...)
		proj := mesh.ProjectOnMesh(trial, center)

		ep := nomad.NewEvalPoint(proj)
		parent := center.Clone()
		ep.PointFrom = &parent
		dir := nomad.NewDirection(dirVals...)
		ep.Direction = &dir
		ep.GenStep = append(ep.GenStep, "POLL")
		out = append(out, ep)
	}
	return out
}
