package coop

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

func TestNewRunnerRejectsBlockSize(t *testing.T) {
	ec := queue.New(sphereBB(), nomad.NewCache(), nomad.NewStandardComputeRule(), objPB)
	ec.BBMaxBlockSize = 2
	_, err := NewRunner(4, ec, nomad.NewStandardComputeRule(), nomad.NewStopReasons())
	assert.Error(t, err)
}

func TestRunnerRunsSiblingsConcurrently(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	reasons := nomad.NewStopReasons()

	ec := queue.New(sphereBB(), cache, rule, objPB)
	ec.MaxWorkers = 2
	runner, err := NewRunner(3, ec, rule, reasons)
	require.NoError(t, err)

	ctx := context.Background()
	var instances []*Instance
	for i := 0; i < 3; i++ {
		mesh := nomad.NewMesh(nomad.NewVec(1, 1), nomad.NewVec(0, 0))
		poller := mads.NewPoller(mads.Compass2N{}, rand.New(rand.NewSource(int64(i))))
		inst := runner.BuildInstance(ctx, nomad.NewPoint(float64(i+1), float64(i+1)), mesh, poller)
		require.NotNil(t, inst.MI.Barrier.BestFrameCenter(), "x0 must be evaluated at build time")
		instances = append(instances, inst)
	}

	require.NoError(t, runner.RunOnce(ctx, instances))
	best := BestAcrossSiblings(instances, rule)
	require.NotNil(t, best)
	assert.True(t, best.IsFeasible(rule))
}

func TestSiblingsObserveEachOtherThroughCacheSearch(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	reasons := nomad.NewStopReasons()

	ec := queue.New(sphereBB(), cache, rule, objPB)
	runner, err := NewRunner(2, ec, rule, reasons)
	require.NoError(t, err)

	ctx := context.Background()
	// Sibling A starts close to the optimum, sibling B far away. B's first
	// CacheSearch pass must pick up A's better cached point.
	mesh1 := nomad.NewMesh(nomad.NewVec(1, 1), nomad.NewVec(0, 0))
	a := runner.BuildInstance(ctx, nomad.NewPoint(0.5, 0.5), mesh1, mads.NewPoller(mads.Compass2N{}, rand.New(rand.NewSource(1))))
	mesh2 := nomad.NewMesh(nomad.NewVec(1, 1), nomad.NewVec(0, 0))
	b := runner.BuildInstance(ctx, nomad.NewPoint(50, 50), mesh2, mads.NewPoller(mads.Compass2N{}, rand.New(rand.NewSource(2))))

	_, err = b.MI.RunIteration(ctx)
	require.NoError(t, err)

	bBest := b.MI.Barrier.BestFrameCenter()
	require.NotNil(t, bBest)
	aF := a.MI.Barrier.BestFrameCenter().F(rule)
	assert.True(t, bBest.F(rule).LessEq(aF), "sibling B should adopt A's cached incumbent via CacheSearch")
}

func TestRunOncePropagatesRunWideStop(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	reasons := nomad.NewStopReasons()

	ec := queue.New(sphereBB(), cache, rule, objPB)
	runner, err := NewRunner(1, ec, rule, reasons)
	require.NoError(t, err)

	ctx := context.Background()
	mesh := nomad.NewMesh(nomad.NewVec(1, 1), nomad.NewVec(0, 0))
	inst := runner.BuildInstance(ctx, nomad.NewPoint(2, 2), mesh, mads.NewPoller(mads.Compass2N{}, rand.New(rand.NewSource(1))))

	reasons.Set(nomad.StopUserInterrupt)
	require.NoError(t, runner.RunOnce(ctx, []*Instance{inst}))
	assert.True(t, AllDone([]*Instance{inst}))
}
