package mads

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbopt/nomad-sub004"
	"github.com/bbopt/nomad-sub004/queue"
)

// halfLineBB is feasible only for x1 <= 0: one objective, one PB
// constraint equal to x1.
func halfLineBB() nomad.Blackbox {
	return nomad.BlackboxFunc(func(ctx context.Context, p nomad.Point) (string, bool, error) {
		x := p.Vec[0].Value()
		return nomad.D(x*x).String() + " " + nomad.D(x).String(), true, nil
	})
}

func TestPhaseOneSwitchesRuleAndStopsOnFirstFeasible(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	types := []nomad.BBOutputType{nomad.BBOutputObj, nomad.BBOutputPB}
	cache := nomad.NewCache()
	reasons := nomad.NewStopReasons()

	q := queue.New(halfLineBB(), cache, rule, types)
	barrier := nomad.NewProgressiveBarrier(rule, nomad.PosInf())
	mesh := nomad.NewMesh(nomad.NewVec(1), nil)
	mi := New(barrier, mesh, rule, cache, q, reasons)
	mi.Poller = NewPoller(Compass2N{}, rand.New(rand.NewSource(5)))

	d := NewPhaseOneDriver(mi, true)
	d.Enter()
	require.True(t, d.Active())

	// all of X0 is infeasible (x1 > 0)
	mi.Initialize(context.Background(), nomad.NewPoint(2))
	require.NotNil(t, mi.Barrier.BestFrameCenter())
	assert.False(t, d.CheckFeasibleFound())

	// under the phase-one rule the infeasible start is "feasible" with
	// f equal to its base-rule violation
	center := mi.Barrier.BestFrameCenter()
	assert.True(t, center.IsFeasible(mi.Rule))
	assert.False(t, center.IsFeasible(rule))

	// iterate until polling crosses into x1 <= 0
	for i := 0; i < 10 && !d.CheckFeasibleFound(); i++ {
		_, err := mi.RunIteration(context.Background())
		require.NoError(t, err)
	}
	assert.True(t, d.CheckFeasibleFound())
	assert.True(t, reasons.TestIf(nomad.StopFeasibleReached))

	d.Exit()
	assert.False(t, d.Active())
	// cached evals were invalidated: reads under the restored rule see the
	// true feasibility again
	feas := cache.FindPredicate(func(ep *nomad.EvalPoint) bool { return ep.IsFeasible(rule) })
	assert.NotEmpty(t, feas)
}

func TestPhaseOneEmitsFullSuccessOnceFeasibleAppears(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	types := []nomad.BBOutputType{nomad.BBOutputObj, nomad.BBOutputPB}
	phaseOne := nomad.NewPhaseOneComputeRule(rule)

	infeasible := nomad.NewEvalPoint(nomad.NewPoint(2))
	infeasible.SetEval(nomad.EvalKindBB, nomad.NewEval(nomad.EvalStatusOK, "4 2", types, phaseOne))

	feasible := nomad.NewEvalPoint(nomad.NewPoint(-1))
	feasible.SetEval(nomad.EvalKindBB, nomad.NewEval(nomad.EvalStatusOK, "1 -1", types, phaseOne))

	st := nomad.ComputeSuccessType(feasible, infeasible, nomad.PosInf(), phaseOne)
	assert.Equal(t, nomad.FullSuccess, st)
}
