package mads

import "github.com/bbopt/nomad-sub004"

// PhaseOneDriver wraps a MegaIteration to run NOMAD's Phase-One mode: the
// active ComputeRule is swapped to PhaseOneComputeRule (f<-h, h<-0) so the
// barrier minimizes infeasibility, and the driver watches for the first
// feasible point (spec §4.2 Phase-One, testable property 10: "once any
// cached point has h=0, Phase-One emits FULL_SUCCESS on its next barrier
// update").
type PhaseOneDriver struct {
	mi       *MegaIteration
	base     nomad.ComputeRule
	active   bool
	stopIfFeasible bool
}

func NewPhaseOneDriver(mi *MegaIteration, stopIfFeasible bool) *PhaseOneDriver {
	return &PhaseOneDriver{mi: mi, base: mi.Rule, stopIfFeasible: stopIfFeasible}
}

// Enter switches the mega-iteration onto the Phase-One compute rule and
// invalidates every cached f/h pair so the next read recomputes under it.
func (d *PhaseOneDriver) Enter() {
	if d.active {
		return
	}
	phaseOne := nomad.NewPhaseOneComputeRule(d.base)
	d.mi.Rule = phaseOne
	d.mi.Barrier.Rule = phaseOne
	d.mi.Queue.Rule = phaseOne
	d.mi.Cache.ProcessOnAllPoints(func(ep *nomad.EvalPoint) {
		if e := ep.Eval(nomad.EvalKindBB); e != nil {
			e.InvalidateComputeRule()
		}
	})
	d.active = true
}

// Exit restores the base compute rule, again invalidating cached f/h.
func (d *PhaseOneDriver) Exit() {
	if !d.active {
		return
	}
	d.mi.Rule = d.base
	d.mi.Barrier.Rule = d.base
	d.mi.Queue.Rule = d.base
	d.mi.Cache.ProcessOnAllPoints(func(ep *nomad.EvalPoint) {
		if e := ep.Eval(nomad.EvalKindBB); e != nil {
			e.InvalidateComputeRule()
		}
	})
	d.active = false
}

// CheckFeasibleFound reports whether any cached point under the base rule
// is feasible (h==0); if stopIfFeasible is set, it also sets
// StopFeasibleReached, which callers read with StopReasons.TestIf. That
// reason is not run-terminal, so AnyTerminal does not report it.
func (d *PhaseOneDriver) CheckFeasibleFound() bool {
	feas := d.mi.Cache.FindPredicate(func(ep *nomad.EvalPoint) bool {
		return ep.IsFeasible(d.base)
	})
	found := len(feas) > 0
	if found && d.stopIfFeasible {
		d.mi.StopReasons.Set(nomad.StopFeasibleReached)
	}
	return found
}

// Active reports whether Phase-One is the currently installed rule.
func (d *PhaseOneDriver) Active() bool { return d.active }
