// Package ssd implements SSD-MADS (spec §4.7): one pollster iteration
// followed by N subproblem MADS instances run sequentially within the same
// mega-iteration. The pollster starts from the coarser frame size;
// subproblems inherit the main frame size as a floor (their minimum frame
// size). An opportunistic early stop fires as soon as any subproblem
// reports FullSuccess.
package ssd

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/bbopt/nomad-sub004"
	"github.com/bbopt/nomad-sub004/mads"
	"github.com/bbopt/nomad-sub004/queue"
	"github.com/bbopt/nomad-sub004/subspace"
)

// Runner drives one pollster plus NbSubproblem sequential subproblem
// sweeps per mega-iteration, sharing the run's cache and queue.
type Runner struct {
	NbSubproblem int
	Cache        *nomad.Cache
	EC           *queue.EvaluatorControl
	Rule         nomad.ComputeRule
	StopReasons  *nomad.StopReasons
	Rng          *rand.Rand
}

func NewRunner(nbSubproblem int, ec *queue.EvaluatorControl, rule nomad.ComputeRule, reasons *nomad.StopReasons) (*Runner, error) {
	if nbSubproblem <= 0 {
		return nil, fmt.Errorf("nomad/ssd: SSD_MADS_NB_SUBPROBLEM must be positive, got %d", nbSubproblem)
	}
	return &Runner{NbSubproblem: nbSubproblem, Cache: ec.Cache, EC: ec, Rule: rule, StopReasons: reasons, Rng: rand.New(rand.NewSource(1))}, nil
}

type SubproblemInstance struct {
	MI   *mads.MegaIteration
	Mask subspace.Mask
}

// BuildSubproblem mirrors psd.Runner.BuildSubproblem but inherits the
// pollster's current frame size as the subproblem mesh's MINIMUM frame
// size (spec §4.7: "subproblems inherit the main frame size as minimum
// frame"), rather than PSD's independently supplied floor. Like PSD, the
// subproblem's main-thread context lifts points to full space at the
// cache boundary and its per-subproblem eval counter starts at zero.
func (r *Runner) BuildSubproblem(ctx context.Context, best nomad.Point, pollsterFrameSize nomad.Vec, nbVar int) *SubproblemInstance {
	perm := r.Rng.Perm(best.Len())
	mask := subspace.RandomMask(best, nbVar, perm)
	sub := subspace.ToSub(best, mask)

	minFrame := make(nomad.Vec, mask.Dim())
	for i, fi := range mask.FreeIndices() {
		if fi < len(pollsterFrameSize) {
			minFrame[i] = pollsterFrameSize[fi]
		}
	}

	frame0 := make(nomad.Vec, mask.Dim())
	for i := range frame0 {
		frame0[i] = nomad.D(1)
	}
	subMesh := nomad.NewMesh(frame0, nil)
	subMesh.MinFrameSize = minFrame

	barrier := nomad.NewProgressiveBarrier(r.Rule, nomad.PosInf())
	reasons := nomad.NewStopReasons()

	mi := mads.New(barrier, subMesh, r.Rule, r.Cache, r.EC, reasons)
	mi.MT.Lift = func(p nomad.Point) nomad.Point { return subspace.ToFull(p, mask) }
	mi.MT.ResetBBEvalInSubproblem()
	mi.Poller = mads.NewPoller(&mads.RandomN{N: 1}, r.Rng)
	mi.Initialize(ctx, sub)
	return &SubproblemInstance{MI: mi, Mask: mask}
}

// RunRound runs the pollster once, then each subproblem in turn, lifting
// each subproblem's incumbent back to full space and merging it into the
// pollster's barrier, and stopping the sweep early the moment one reports
// FullSuccess (spec §4.7 "iteration-level opportunistic early stop").
func (r *Runner) RunRound(ctx context.Context, pollster *mads.MegaIteration, build func(ctx context.Context, best nomad.Point, frameSize nomad.Vec) *SubproblemInstance) (nomad.SuccessType, error) {
	pollsterSt, err := pollster.RunIteration(ctx)
	if err != nil {
		return nomad.Unsuccessful, err
	}

	best := pollsterSt
	for i := 0; i < r.NbSubproblem; i++ {
		center := pollster.Barrier.BestFrameCenter()
		if center == nil {
			break
		}
		sp := build(ctx, center.Point, pollster.Mesh.FrameSize)
		st, err := sp.MI.RunIteration(ctx)
		if err != nil {
			return best, err
		}
		mergeSubIncumbent(pollster.Barrier, sp)
		if st.Better(best) {
			best = st
		}
		if st == nomad.FullSuccess {
			break
		}
	}
	return best, nil
}

// mergeSubIncumbent lifts a subproblem's incumbent to full space and feeds
// it through the outer barrier's sole mutator (spec §4.7: "results are
// lifted to full space before merging into the outer barrier").
func mergeSubIncumbent(outer *nomad.ProgressiveBarrier, sp *SubproblemInstance) {
	inc := sp.MI.Barrier.BestFrameCenter()
	if inc == nil {
		return
	}
	lifted := nomad.NewEvalPoint(subspace.ToFull(inc.Point, sp.Mask))
	if e := inc.Eval(nomad.EvalKindBB); e != nil {
		cp := *e
		lifted.SetEval(nomad.EvalKindBB, &cp)
	}
	lifted.ThreadOrigin = inc.ThreadOrigin
	outer.UpdateWithPoints([]*nomad.EvalPoint{lifted}, true)
	outer.UpdateRefBests()
}
