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

func sphereBB() nomad.Blackbox {
	return nomad.BlackboxFunc(func(ctx context.Context, p nomad.Point) (string, bool, error) {
		sum := 0.0
		for _, d := range p.Vec {
			sum += d.Value() * d.Value()
		}
		return nomad.D(sum).String() + " 0", true, nil
	})
}

func TestSpannerCompass2NCoversAllDirections(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	dirs := Compass2N{}.Span(3, rng)
	assert.Len(t, dirs, 6)
}

func TestSpannerCompassNp1HasNPlus1Directions(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	dirs := CompassNp1{}.Span(4, rng)
	assert.Len(t, dirs, 5)
}

func TestPollerGeneratesOnMeshPoints(t *testing.T) {
	mesh := nomad.NewMesh(nomad.NewVec(1, 1), nomad.NewVec(0, 0))
	p := NewPoller(Compass2N{}, rand.New(rand.NewSource(7)))
	pts := p.GeneratePollPoints(nomad.NewPoint(0, 0), mesh)
	require.Len(t, pts, 4)
	for _, ep := range pts {
		assert.True(t, mesh.VerifyOnMesh(ep.Point, nomad.NewPoint(0, 0)))
		assert.NotNil(t, ep.Direction)
	}
}

func TestCacheSearchReturnsOnlyImproving(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	types := []nomad.BBOutputType{nomad.BBOutputObj, nomad.BBOutputPB}

	worse := nomad.NewPoint(5)
	better := nomad.NewPoint(1)
	cache.SmartInsert(worse, 1, nomad.EvalKindBB)
	cache.Update(worse, nomad.EvalKindBB, nomad.NewEval(nomad.EvalStatusOK, "5 0", types, rule))
	cache.SmartInsert(better, 1, nomad.EvalKindBB)
	cache.Update(better, nomad.EvalKindBB, nomad.NewEval(nomad.EvalStatusOK, "1 0", types, rule))
	center := nomad.NewPoint(3)
	cache.SmartInsert(center, 1, nomad.EvalKindBB)
	cache.Update(center, nomad.EvalKindBB, nomad.NewEval(nomad.EvalStatusOK, "3 0", types, rule))

	cs := NewCacheSearch(cache, rule)
	found := cs.GeneratePoints(center, nil)
	require.Len(t, found, 1)
	assert.True(t, found[0].Point.Equal(better))
}

func TestMegaIterationRunsSphereAndConverges(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	types := []nomad.BBOutputType{nomad.BBOutputObj, nomad.BBOutputPB}
	cache := nomad.NewCache()
	reasons := nomad.NewStopReasons()

	barrier := nomad.NewProgressiveBarrier(rule, nomad.PosInf())

	mesh := nomad.NewMesh(nomad.NewVec(1, 1), nomad.NewVec(0, 0))
	q := queue.New(sphereBB(), cache, rule, types)
	q.MaxWorkers = 2

	mi := New(barrier, mesh, rule, cache, q, reasons)
	mi.Poller = NewPoller(Compass2N{}, rand.New(rand.NewSource(3)))
	mi.MinMeshSize = nomad.NewVec(1e-6, 1e-6)
	mi.MaxIterations = 40
	mi.Initialize(context.Background(), nomad.NewPoint(3, 3))

	startF := barrier.BestFrameCenter().F(rule)
	for i := 0; i < 40; i++ {
		if _, stopped := mi.Done(); stopped {
			break
		}
		_, err := mi.RunIteration(context.Background())
		require.NoError(t, err)
	}
	endF := barrier.BestFrameCenter().F(rule)
	assert.True(t, endF.LessEq(startF))
}
