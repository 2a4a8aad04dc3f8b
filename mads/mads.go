// Package mads implements the serial MADS mega-iteration: Search, Poll,
// evaluation, and the Update step that enlarges or refines the mesh based
// on the iteration's SuccessType (spec §4/§4.6). Parallel variants
// (nomad/coop, nomad/psd, nomad/ssd) drive several of these concurrently
// or in nested subproblems.
package mads

import (
	"context"
	"time"

	"github.com/bbopt/nomad-sub004"
	"github.com/bbopt/nomad-sub004/queue"
	"github.com/bbopt/nomad-sub004/step"
)

// MegaIteration owns one MADS instance's state: the iteration counter k,
// its barrier, mesh, main-thread queue context, and search/poll plug-ins.
// One MegaIteration is "one main thread" in the spec's COOP/PSD/SSD
// vocabulary; its queue.MainThread identity doubles as the
// EvalPoint.ThreadOrigin tag that tells siblings' trial points apart in a
// shared cache (spec §3 EvalPoint.threadOrigin).
type MegaIteration struct {
	K int

	Barrier *nomad.ProgressiveBarrier
	Mesh    *nomad.Mesh
	Rule    nomad.ComputeRule

	Cache *nomad.Cache
	Queue *queue.EvaluatorControl
	MT    *queue.MainThread

	Searchers []SearchMethod
	Poller    *Poller

	LowerBound, UpperBound nomad.Vec
	MinMeshSize            nomad.Vec

	AnisotropyFactor float64
	AnisotropicMesh  bool

	// FreezeMesh suppresses the per-iteration mesh Update step; PSD-MADS
	// sets it on the pollster so the mesh only moves when the coverage
	// threshold fires (spec §4.7).
	FreezeMesh bool

	StopReasons *nomad.StopReasons

	MaxEval       int
	MaxIterations int
	MaxTime       time.Duration
	MaxNoImprove  int
	startedAt     time.Time
	noImprove     int

	arena *step.Arena
}

func New(barrier *nomad.ProgressiveBarrier, mesh *nomad.Mesh, rule nomad.ComputeRule, cache *nomad.Cache, q *queue.EvaluatorControl, reasons *nomad.StopReasons) *MegaIteration {
	return &MegaIteration{
		Barrier:     barrier,
		Mesh:        mesh,
		Rule:        rule,
		Cache:       cache,
		Queue:       q,
		MT:          q.RegisterMainThread(reasons),
		StopReasons: reasons,
		arena:       step.NewArena(),
	}
}

// ThreadID returns this instance's main-thread identity.
func (mi *MegaIteration) ThreadID() string { return mi.MT.ID }

// Initialize evaluates the starting points through the queue's
// single-point path (spec §4.5 evalSinglePoint: "bypasses the queue; used
// for X0") and seeds the barrier with the results. Points the cache
// already holds are adopted without a new blackbox call.
func (mi *MegaIteration) Initialize(ctx context.Context, x0s ...nomad.Point) {
	var evaluated []*nomad.EvalPoint
	for _, x0 := range x0s {
		ep := nomad.NewEvalPoint(x0.Clone())
		ep.ThreadOrigin = mi.MT.ID
		ep.GenStep = append(ep.GenStep, "X0")
		mi.Queue.EvalSinglePoint(ctx, mi.MT, ep, nil, mi.Barrier.HMax)
		evaluated = append(evaluated, ep)
	}
	mi.Barrier.UpdateWithPoints(evaluated, true)
	mi.Barrier.UpdateRefBests()
}

// RunIteration executes one full Search → Poll → evaluate → Update cycle
// and returns the SuccessType the iteration achieved. Poll only runs if
// Search did not already reach FullSuccess (spec §4 control flow,
// "opportunism across the Search/Poll boundary").
func (mi *MegaIteration) RunIteration(ctx context.Context) (nomad.SuccessType, error) {
	if mi.startedAt.IsZero() {
		mi.startedAt = nowFunc()
	}

	center := mi.Barrier.BestFrameCenter()
	if center == nil {
		return nomad.Unsuccessful, nil
	}

	best := nomad.Unsuccessful

	searchStep := mi.arena.New("search", step.TypeSearch, -1, mi.StopReasons)
	u := step.NewIterationUtils(searchStep, mi.Mesh, mi.Cache, mi.Queue, mi.MT, mi.Rule, mi.LowerBound, mi.UpperBound)

	for _, s := range mi.Searchers {
		pts := s.GeneratePoints(center.Point, mi.Mesh)
		mi.tagOrigin(pts, s.Name())
		u.TrialPoints = append(u.TrialPoints, pts...)
	}
	if len(u.TrialPoints) > 0 {
		u.SnapAndProjectTrialPoints(center.Point)
		st, err := u.EvalTrialPoints(ctx, center, mi.Barrier.HMax)
		if err != nil {
			return nomad.Unsuccessful, err
		}
		if st.Better(best) {
			best = st
		}
		u.PostProcessing(mi.Barrier, best)
		center = mi.Barrier.BestFrameCenter()
	}

	if best != nomad.FullSuccess && mi.Poller != nil {
		pollStep := mi.arena.New("poll", step.TypePoll, searchStep.ID(), mi.StopReasons)
		u = step.NewIterationUtils(pollStep, mi.Mesh, mi.Cache, mi.Queue, mi.MT, mi.Rule, mi.LowerBound, mi.UpperBound)
		pts := mi.Poller.GeneratePollPoints(center.Point, mi.Mesh)
		mi.tagOrigin(pts, "POLL")
		u.TrialPoints = pts
		u.SnapAndProjectTrialPoints(center.Point)
		st, err := u.EvalTrialPoints(ctx, center, mi.Barrier.HMax)
		if err != nil {
			return nomad.Unsuccessful, err
		}
		if st.Better(best) {
			best = st
		}
		u.PostProcessing(mi.Barrier, best)
	}

	if best == nomad.Unsuccessful {
		mi.noImprove++
	} else {
		mi.noImprove = 0
	}

	mi.updateMeshFromSuccess(best, center)
	mi.K++
	// The opportunistic flag only scopes one iteration's queue batches;
	// the next iteration starts with a clean slate.
	mi.StopReasons.Clear(nomad.StopOpportunisticSuccess)
	mi.checkTermination()
	return best, nil
}

// updateMeshFromSuccess is the spec §4 "Update" step: full success enlarges
// the frame (anisotropically if enabled) along the improving direction,
// anything less refines it.
func (mi *MegaIteration) updateMeshFromSuccess(st nomad.SuccessType, center *nomad.EvalPoint) {
	if mi.FreezeMesh {
		return
	}
	switch st {
	case nomad.FullSuccess:
		dir := nomad.NewDirection()
		if center != nil && mi.Barrier.BestFrameCenter() != nil && mi.Barrier.BestFrameCenter().Direction != nil {
			dir = *mi.Barrier.BestFrameCenter().Direction
		}
		mi.Mesh.EnlargeFrame(dir, mi.AnisotropyFactor, mi.AnisotropicMesh)
	default:
		mi.Mesh.RefineFrame()
	}
	mi.Mesh.UpdateMeshFromFrame()
}

// checkTermination evaluates the termination predicate disjunction (spec
// §5 "Termination", OR over mesh floor / budgets / user interrupt). The
// blackbox budget is per main thread (the queue raises StopMaxBBEval
// itself when MT.MaxBBEval is crossed); MAX_EVAL covers every evaluation
// the shared queue performed regardless of thread.
func (mi *MegaIteration) checkTermination() {
	mi.Mesh.CheckStop(mi.MinMeshSize, mi.StopReasons)
	if mi.MaxIterations > 0 && mi.K >= mi.MaxIterations {
		mi.StopReasons.Set(nomad.StopMaxIterations)
	}
	if mi.MaxEval > 0 && mi.Queue.EvalCount() >= mi.MaxEval {
		mi.StopReasons.Set(nomad.StopMaxEval)
	}
	if mi.MaxTime > 0 && nowFunc().Sub(mi.startedAt) >= mi.MaxTime {
		mi.StopReasons.Set(nomad.StopMaxTime)
	}
	if mi.MaxNoImprove > 0 && mi.noImprove >= mi.MaxNoImprove {
		mi.StopReasons.Set(nomad.StopStalled)
	}
}

// Done reports whether any terminal stop reason has fired.
func (mi *MegaIteration) Done() (nomad.StopReasonKind, bool) {
	return mi.StopReasons.AnyTerminal()
}

// tagOrigin stamps every trial point with this instance's thread identity
// and generating step, so a shared cache (COOP-MADS) can tell which
// sibling generated which point.
func (mi *MegaIteration) tagOrigin(pts []*nomad.EvalPoint, genStep string) {
	for _, p := range pts {
		p.ThreadOrigin = mi.MT.ID
		if len(p.GenStep) == 0 {
			p.GenStep = append(p.GenStep, genStep)
		}
	}
}

// nowFunc is indirected so tests can pin time deterministically.
var nowFunc = time.Now
