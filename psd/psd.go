// Package psd implements PSD-MADS (spec §4.7): a "pollster" main thread
// runs full-dimensional MADS with a single poll direction per iteration,
// while the remaining main threads each run MADS on a subproblem whose
// free variables are a random subset of the full problem, fixed at the
// current best point elsewhere. A coverage counter tracks how many
// distinct variables the subproblems have addressed since the last mesh
// update; the pollster's mesh only moves when the threshold is crossed or
// a subproblem reports an opportunistic success.
package psd

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bbopt/nomad-sub004"
	"github.com/bbopt/nomad-sub004/mads"
	"github.com/bbopt/nomad-sub004/queue"
	"github.com/bbopt/nomad-sub004/subspace"
)

// Coverage tracks how many distinct full-space variables subproblems have
// addressed since the mesh last updated, and resets on every mesh update
// (spec §4.7 "On each mesh update the coverage counter resets").
type Coverage struct {
	mu      sync.Mutex
	touched map[int]bool
	dim     int
}

func NewCoverage(dim int) *Coverage {
	return &Coverage{touched: map[int]bool{}, dim: dim}
}

// Mark records that idx was addressed by some subproblem this round.
func (c *Coverage) Mark(idx []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, i := range idx {
		c.touched[i] = true
	}
}

// Count returns the number of distinct variables touched so far.
func (c *Coverage) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.touched)
}

// Remaining returns how many variables have not yet been addressed since
// the last reset; each subproblem round decreases it by the number of
// newly covered variables.
func (c *Coverage) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dim - len(c.touched)
}

// Reset clears the coverage counter, called whenever the pollster updates
// the shared mesh.
func (c *Coverage) Reset() {
	c.mu.Lock()
	c.touched = map[int]bool{}
	c.mu.Unlock()
}

// Runner drives one pollster plus NbSubproblem subproblem instances over a
// shared cache and queue.
type Runner struct {
	NbSubproblem      int
	NbVarInSubproblem int
	Cache             *nomad.Cache
	EC                *queue.EvaluatorControl
	Rule              nomad.ComputeRule
	StopReasons       *nomad.StopReasons
	Coverage          *Coverage
	CoverageThreshold int
	Rng               *rand.Rand

	// MaxBBEvalPerSubproblem bounds each subproblem thread's blackbox
	// budget (PSD_MADS_SUBPROBLEM_MAX_BB_EVAL); 0 means unbounded.
	MaxBBEvalPerSubproblem int
}

func NewRunner(nbSubproblem, nbVarInSubproblem, dim int, ec *queue.EvaluatorControl, rule nomad.ComputeRule, reasons *nomad.StopReasons) (*Runner, error) {
	if nbSubproblem <= 0 || nbVarInSubproblem <= 0 {
		return nil, fmt.Errorf("nomad/psd: PSD_MADS_NB_SUBPROBLEM and PSD_MADS_NB_VAR_IN_SUBPROBLEM must be positive")
	}
	return &Runner{
		NbSubproblem:      nbSubproblem,
		NbVarInSubproblem: nbVarInSubproblem,
		Cache:             ec.Cache,
		EC:                ec,
		Rule:              rule,
		StopReasons:       reasons,
		Coverage:          NewCoverage(dim),
		CoverageThreshold: dim,
		Rng:               rand.New(rand.NewSource(1)),
	}, nil
}

// SubproblemInstance pairs a subproblem's MegaIteration (running in the
// reduced space) with the Mask that maps it back to full space.
type SubproblemInstance struct {
	MI   *mads.MegaIteration
	Mask subspace.Mask
}

// BuildSubproblem constructs one subproblem MADS instance fixing all but
// NbVarInSubproblem variables of best at their current values. The
// instance's barrier and mesh live in the subspace; its main-thread
// context lifts every point to full space at the cache boundary, so the
// shared cache only ever holds full-dimension points (spec §4.7 common
// invariants).
func (r *Runner) BuildSubproblem(ctx context.Context, best nomad.Point, minFrameSize nomad.Vec) *SubproblemInstance {
	perm := r.Rng.Perm(best.Len())
	mask := subspace.RandomMask(best, r.NbVarInSubproblem, perm)
	sub := subspace.ToSub(best, mask)

	frame0 := make(nomad.Vec, mask.Dim())
	for i := range frame0 {
		frame0[i] = nomad.D(1)
	}
	subMesh := nomad.NewMesh(frame0, nil)
	subMesh.MinFrameSize = minFrameSize

	barrier := nomad.NewProgressiveBarrier(r.Rule, nomad.PosInf())
	reasons := nomad.NewStopReasons()

	mi := mads.New(barrier, subMesh, r.Rule, r.Cache, r.EC, reasons)
	mi.MT.Lift = func(p nomad.Point) nomad.Point { return subspace.ToFull(p, mask) }
	mi.MT.MaxBBEval = r.MaxBBEvalPerSubproblem
	mi.MT.ResetBBEvalInSubproblem()
	mi.Poller = mads.NewPoller(&mads.RandomN{N: 1}, r.Rng)
	mi.Initialize(ctx, sub)
	return &SubproblemInstance{MI: mi, Mask: mask}
}

// RunRound runs one pollster iteration and NbSubproblem subproblem
// iterations concurrently, marking coverage for each subproblem's free
// variables. The pollster's mesh moves only once the coverage threshold is
// crossed or a subproblem reports FullSuccess, and the coverage counter
// resets on every such mesh update (spec §4.7). The pollster is expected
// to run with FreezeMesh set so RunRound alone decides when its mesh
// moves.
func (r *Runner) RunRound(ctx context.Context, pollster *mads.MegaIteration, subproblems []*SubproblemInstance) (nomad.SuccessType, error) {
	g, gctx := errgroup.WithContext(ctx)

	var pollsterSt nomad.SuccessType
	g.Go(func() error {
		st, err := pollster.RunIteration(gctx)
		pollsterSt = st
		return err
	})

	results := make([]nomad.SuccessType, len(subproblems))
	for i, sp := range subproblems {
		i, sp := i, sp
		g.Go(func() error {
			st, err := sp.MI.RunIteration(gctx)
			results[i] = st
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nomad.Unsuccessful, err
	}

	best := pollsterSt
	opportunistic := false
	for i, sp := range subproblems {
		r.Coverage.Mark(sp.Mask.FreeIndices())
		mergeSubIncumbent(pollster.Barrier, sp)
		if results[i].Better(best) {
			best = results[i]
		}
		if results[i] == nomad.FullSuccess {
			opportunistic = true
		}
	}

	if opportunistic || r.Coverage.Count() >= r.CoverageThreshold {
		if best == nomad.FullSuccess {
			pollster.Mesh.EnlargeFrame(nomad.NewDirection(), 0, false)
		} else {
			pollster.Mesh.RefineFrame()
		}
		pollster.Mesh.UpdateMeshFromFrame()
		r.Coverage.Reset()
	}
	return best, nil
}

// mergeSubIncumbent lifts a subproblem's incumbent to full space and feeds
// it through the pollster barrier's sole mutator (spec §4.7: "results are
// lifted to full space before merging into the outer barrier"). RunRound
// only calls this after the round's errgroup has drained, so the barrier
// is never mutated concurrently.
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
