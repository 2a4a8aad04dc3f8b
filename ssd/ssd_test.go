package ssd

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbopt/nomad-sub004"
	"github.com/bbopt/nomad-sub004/mads"
	"github.com/bbopt/nomad-sub004/queue"
)

var objPB = []nomad.BBOutputType{nomad.BBOutputObj, nomad.BBOutputPB}

func sphereBB() nomad.Blackbox {
	return nomad.BlackboxFunc(func(ctx context.Context, p nomad.Point) (string, bool, error) {
		sum := 0.0
		for _, d := range p.Vec {
			sum += d.Value() * d.Value()
		}
		return nomad.D(sum).String() + " 0", true, nil
	})
}

func TestNewRunnerRejectsNonPositive(t *testing.T) {
	ec := queue.New(sphereBB(), nomad.NewCache(), nomad.NewStandardComputeRule(), objPB)
	_, err := NewRunner(0, ec, nomad.NewStandardComputeRule(), nomad.NewStopReasons())
	assert.Error(t, err)
}

func TestSubproblemInheritsPollsterFrameAsMinimum(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	ec := queue.New(sphereBB(), cache, rule, objPB)

	runner, err := NewRunner(1, ec, rule, nomad.NewStopReasons())
	require.NoError(t, err)

	best := nomad.NewPoint(1, 1, 1, 1)
	pollsterFrame := nomad.NewVec(0.25, 0.25, 0.25, 0.25)
	sp := runner.BuildSubproblem(context.Background(), best, pollsterFrame, 2)

	require.Len(t, sp.MI.Mesh.MinFrameSize, 2)
	for _, d := range sp.MI.Mesh.MinFrameSize {
		assert.InDelta(t, 0.25, d.Value(), 1e-12)
	}
}

func TestRunRoundSweepsSubproblemsAndMergesIncumbents(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	reasons := nomad.NewStopReasons()

	ec := queue.New(sphereBB(), cache, rule, objPB)
	ec.MaxWorkers = 2
	runner, err := NewRunner(3, ec, rule, reasons)
	require.NoError(t, err)

	ctx := context.Background()
	barrier := nomad.NewProgressiveBarrier(rule, nomad.PosInf())
	mesh := nomad.NewMesh(nomad.NewVec(1, 1, 1, 1), nomad.NewVec(0, 0, 0, 0))
	pollster := mads.New(barrier, mesh, rule, cache, ec, reasons)
	pollster.Poller = mads.NewPoller(mads.Compass2N{}, rand.New(rand.NewSource(1)))
	pollster.Initialize(ctx, nomad.NewPoint(1, 1, 1, 1))

	startF := pollster.Barrier.BestFrameCenter().F(rule)

	build := func(ctx context.Context, best nomad.Point, frameSize nomad.Vec) *SubproblemInstance {
		return runner.BuildSubproblem(ctx, best, frameSize, 2)
	}
	st, err := runner.RunRound(ctx, pollster, build)
	require.NoError(t, err)
	assert.Contains(t, []nomad.SuccessType{nomad.Unsuccessful, nomad.PartialSuccess, nomad.FullSuccess}, st)

	endBest := pollster.Barrier.BestFrameCenter()
	require.NotNil(t, endBest)
	assert.Equal(t, 4, endBest.Point.Len(), "merged incumbent lives in full space")
	assert.True(t, endBest.F(rule).LessEq(startF))
}
