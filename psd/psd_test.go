package psd

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

func TestNewRunnerRejectsNonPositiveSizes(t *testing.T) {
	ec := queue.New(sphereBB(), nomad.NewCache(), nomad.NewStandardComputeRule(), objPB)
	_, err := NewRunner(0, 2, 6, ec, nomad.NewStandardComputeRule(), nomad.NewStopReasons())
	assert.Error(t, err)
}

func TestCoverageCountsDistinctAndResets(t *testing.T) {
	c := NewCoverage(6)
	c.Mark([]int{0, 1})
	c.Mark([]int{1, 2})
	assert.Equal(t, 3, c.Count())
	assert.Equal(t, 3, c.Remaining())
	c.Reset()
	assert.Equal(t, 0, c.Count())
	assert.Equal(t, 6, c.Remaining())
}

func TestBuildSubproblemLiftsToFullSpaceAtCacheBoundary(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	reasons := nomad.NewStopReasons()

	ec := queue.New(sphereBB(), cache, rule, objPB)
	runner, err := NewRunner(1, 2, 6, ec, rule, reasons)
	require.NoError(t, err)

	best := nomad.NewPoint(1, 1, 1, 1, 1, 1)
	sp := runner.BuildSubproblem(context.Background(), best, nomad.NewVec(1e-6, 1e-6))

	// the subproblem's x0 (== best restricted to the free variables) must
	// land in the cache as the full 6-dimensional point
	found, ok := cache.Find(best)
	require.True(t, ok)
	assert.Equal(t, 6, found.Point.Len())
	require.NotNil(t, sp.MI.Barrier.BestFrameCenter(), "subproblem barrier seeded at build time")
	assert.Equal(t, 2, sp.MI.Barrier.BestFrameCenter().Point.Len())
}

func TestRunRoundCoverageAndMeshGating(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	reasons := nomad.NewStopReasons()

	ec := queue.New(sphereBB(), cache, rule, objPB)
	ec.MaxWorkers = 2
	runner, err := NewRunner(3, 2, 6, ec, rule, reasons)
	require.NoError(t, err)
	runner.CoverageThreshold = 100 // keep the gate closed for this round

	ctx := context.Background()
	barrier := nomad.NewProgressiveBarrier(rule, nomad.PosInf())
	pollsterMesh := nomad.NewMesh(nomad.NewVec(1, 1, 1, 1, 1, 1), nil)
	pollster := mads.New(barrier, pollsterMesh, rule, cache, ec, nomad.NewStopReasons())
	pollster.Poller = mads.NewPoller(&mads.RandomN{N: 1}, rand.New(rand.NewSource(1)))
	pollster.FreezeMesh = true
	pollster.Initialize(ctx, nomad.NewPoint(1, 1, 1, 1, 1, 1))

	best := pollster.Barrier.BestFrameCenter().Point
	var subs []*SubproblemInstance
	for i := 0; i < 3; i++ {
		subs = append(subs, runner.BuildSubproblem(ctx, best, nomad.NewVec(1e-6, 1e-6)))
	}

	frameBefore := pollsterMesh.FrameSize.Clone()
	_, err = runner.RunRound(ctx, pollster, subs)
	require.NoError(t, err)

	// coverage accumulated (up to 3 subproblems x 2 free vars each, with
	// possible overlap), but the gate never crossed; a FullSuccess from a
	// subproblem may still fire the opportunistic mesh update.
	if runner.Coverage.Count() > 0 {
		assert.LessOrEqual(t, runner.Coverage.Count(), 6)
		assert.True(t, pollsterMesh.FrameSize.Equal(frameBefore), "mesh frozen until the coverage gate opens")
	}
}

func TestRunRoundResetsCoverageOnThreshold(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	reasons := nomad.NewStopReasons()

	ec := queue.New(sphereBB(), cache, rule, objPB)
	runner, err := NewRunner(3, 2, 6, ec, rule, reasons)
	require.NoError(t, err)
	runner.CoverageThreshold = 1 // any covered variable opens the gate

	ctx := context.Background()
	barrier := nomad.NewProgressiveBarrier(rule, nomad.PosInf())
	pollsterMesh := nomad.NewMesh(nomad.NewVec(1, 1, 1, 1, 1, 1), nil)
	pollster := mads.New(barrier, pollsterMesh, rule, cache, ec, nomad.NewStopReasons())
	pollster.Poller = mads.NewPoller(&mads.RandomN{N: 1}, rand.New(rand.NewSource(1)))
	pollster.FreezeMesh = true
	pollster.Initialize(ctx, nomad.NewPoint(1, 1, 1, 1, 1, 1))

	subs := []*SubproblemInstance{
		runner.BuildSubproblem(ctx, pollster.Barrier.BestFrameCenter().Point, nomad.NewVec(1e-6, 1e-6)),
	}
	_, err = runner.RunRound(ctx, pollster, subs)
	require.NoError(t, err)
	assert.Equal(t, 0, runner.Coverage.Count(), "coverage resets on every mesh update")
}
