// Package coop implements COOP-MADS (spec §4.7): N independent MADS
// instances, each with its own barrier and mesh, sharing one Cache and one
// evaluation queue. Each instance runs CacheSearch first so it can adopt
// an improving point a sibling has already found without spending a new
// blackbox call.
package coop

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bbopt/nomad-sub004"
	"github.com/bbopt/nomad-sub004/mads"
	"github.com/bbopt/nomad-sub004/queue"
)

// Instance is one COOP-MADS sibling.
type Instance struct {
	MI *mads.MegaIteration
}

// Runner drives NbProblem siblings concurrently against a shared cache and
// queue.
type Runner struct {
	NbProblem   int
	Cache       *nomad.Cache
	EC          *queue.EvaluatorControl
	Rule        nomad.ComputeRule
	StopReasons *nomad.StopReasons
}

// NewRunner validates that block evaluations are disabled, per spec §4.7:
// "Block evaluations are forbidden (BB_MAX_BLOCK_SIZE must be 1)".
func NewRunner(nbProblem int, ec *queue.EvaluatorControl, rule nomad.ComputeRule, reasons *nomad.StopReasons) (*Runner, error) {
	if ec.BBMaxBlockSize > 1 {
		return nil, fmt.Errorf("nomad/coop: BB_MAX_BLOCK_SIZE must be 1 for COOP-MADS, got %d", ec.BBMaxBlockSize)
	}
	if nbProblem <= 0 {
		return nil, fmt.Errorf("nomad/coop: COOP_MADS_NB_PROBLEM must be positive, got %d", nbProblem)
	}
	return &Runner{NbProblem: nbProblem, Cache: ec.Cache, EC: ec, Rule: rule, StopReasons: reasons}, nil
}

// BuildInstance wires one sibling's MegaIteration, installing CacheSearch
// as its first search method (spec §4.7: "inserted as the first search
// method"), and evaluates x0 through the shared queue so the barrier
// starts with real incumbents. Each sibling gets its own StopReasons set;
// the runner-level set only carries run-wide reasons (user interrupt,
// wall clock).
func (r *Runner) BuildInstance(ctx context.Context, x0 nomad.Point, mesh *nomad.Mesh, poller *mads.Poller) *Instance {
	barrier := nomad.NewProgressiveBarrier(r.Rule, nomad.PosInf())
	reasons := nomad.NewStopReasons()

	mi := mads.New(barrier, mesh, r.Rule, r.Cache, r.EC, reasons)
	mi.Searchers = []mads.SearchMethod{mads.NewCacheSearch(r.Cache, r.Rule)}
	mi.Poller = poller
	mi.Initialize(ctx, x0)
	return &Instance{MI: mi}
}

// RunOnce runs one iteration on every instance concurrently via
// golang.org/x/sync/errgroup, so siblings make progress in lockstep
// wall-clock time while only ever touching the shared cache through its
// own synchronized API. A run-wide stop reason is propagated to every
// sibling before the round starts.
func (r *Runner) RunOnce(ctx context.Context, instances []*Instance) error {
	if reason, stopped := r.StopReasons.AnyTerminal(); stopped {
		for _, inst := range instances {
			inst.MI.StopReasons.Set(reason)
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			_, err := inst.MI.RunIteration(gctx)
			return err
		})
	}
	return g.Wait()
}

// AllDone reports whether every sibling has reached a terminal stop
// reason.
func AllDone(instances []*Instance) bool {
	for _, inst := range instances {
		if _, done := inst.MI.Done(); !done {
			return false
		}
	}
	return true
}

// BestAcrossSiblings returns the feasible incumbent with the smallest f
// across all instances, or the best infeasible incumbent if none is
// feasible, mirroring how a human operator reads out a COOP-MADS run.
func BestAcrossSiblings(instances []*Instance, rule nomad.ComputeRule) *nomad.EvalPoint {
	var best *nomad.EvalPoint
	for _, inst := range instances {
		c := inst.MI.Barrier.BestFrameCenter()
		if c == nil {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		if cFeas, bFeas := c.IsFeasible(rule), best.IsFeasible(rule); cFeas != bFeas {
			if cFeas {
				best = c
			}
			continue
		}
		if nomad.ComputeSuccessType(c, best, inst.MI.Barrier.HMax, rule) == nomad.FullSuccess {
			best = c
		}
	}
	return best
}
