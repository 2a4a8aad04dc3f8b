package queue

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbopt/nomad-sub004"
)

var objPB = []nomad.BBOutputType{nomad.BBOutputObj, nomad.BBOutputPB}

func constBB(f float64) Blackbox {
	return nomad.BlackboxFunc(func(ctx context.Context, p nomad.Point) (string, bool, error) {
		return fmt.Sprintf("%v 0", f), true, nil
	})
}

func TestQueueDrainsAndRecordsResultsOnPoints(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	var calls int32
	bb := nomad.BlackboxFunc(func(ctx context.Context, p nomad.Point) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		return "1 0", true, nil
	})

	ec := New(bb, cache, rule, objPB)
	ec.MaxWorkers = 4
	mt := ec.RegisterMainThread(nil)

	var pts []*nomad.EvalPoint
	ec.LockQueue(mt)
	for i := 0; i < 5; i++ {
		ep := nomad.NewEvalPoint(nomad.NewPoint(float64(i)))
		pts = append(pts, ep)
		ec.AddToQueue(mt, EvalQueuePoint{Point: ep, Priority: float64(5 - i)})
	}
	ec.UnlockQueue(mt, true)

	ec.StartEvaluation(context.Background(), mt, nil, nomad.PosInf())
	assert.EqualValues(t, 5, atomic.LoadInt32(&calls))
	assert.Equal(t, 5, cache.Len())
	assert.Equal(t, 5, mt.BBEval())
	for _, ep := range pts {
		e := ep.Eval(nomad.EvalKindBB)
		require.NotNil(t, e)
		assert.Equal(t, nomad.EvalStatusOK, e.Status)
	}
}

func TestQueueOpportunisticStopsOnPartialSuccessOrBetter(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()

	bb := constBB(0) // every candidate beats the reference

	ec := New(bb, cache, rule, objPB)
	ec.MaxWorkers = 1
	mt := ec.RegisterMainThread(nil)
	mt.Opportunistic = true

	ref := nomad.NewEvalPoint(nomad.NewPoint(100))
	ref.SetEval(nomad.EvalKindBB, nomad.NewEval(nomad.EvalStatusOK, "100 0", objPB, rule))

	ec.LockQueue(mt)
	for i := 0; i < 10; i++ {
		ec.AddToQueue(mt, EvalQueuePoint{Point: nomad.NewEvalPoint(nomad.NewPoint(float64(i))), Priority: float64(i)})
	}
	ec.UnlockQueue(mt, true)

	st := ec.StartEvaluation(context.Background(), mt, ref, nomad.PosInf())
	assert.Equal(t, nomad.FullSuccess, st)
	assert.True(t, mt.TestIf(nomad.StopOpportunisticSuccess))
	require.Less(t, cache.Len(), 10)
	assert.Equal(t, 0, ec.QueueLen())
}

func TestBlockIsEvaluatedAtomicallyUnderOpportunism(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()

	ec := New(constBB(0), cache, rule, objPB)
	ec.MaxWorkers = 1
	ec.BBMaxBlockSize = 3
	mt := ec.RegisterMainThread(nil)
	mt.Opportunistic = true

	ref := nomad.NewEvalPoint(nomad.NewPoint(100))
	ref.SetEval(nomad.EvalKindBB, nomad.NewEval(nomad.EvalStatusOK, "100 0", objPB, rule))

	ec.LockQueue(mt)
	for i := 0; i < 6; i++ {
		ec.AddToQueue(mt, EvalQueuePoint{Point: nomad.NewEvalPoint(nomad.NewPoint(float64(i)))})
	}
	ec.UnlockQueue(mt, false)

	ec.StartEvaluation(context.Background(), mt, ref, nomad.PosInf())
	// The very first point already improves, but its whole block of 3 must
	// still complete; the second block is dropped.
	assert.Equal(t, 3, cache.Len())
}

func TestStoppedThreadPointsDiscardedAtDequeue(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()

	ec := New(constBB(1), cache, rule, objPB)
	mt := ec.RegisterMainThread(nil)

	ec.LockQueue(mt)
	for i := 0; i < 4; i++ {
		ec.AddToQueue(mt, EvalQueuePoint{Point: nomad.NewEvalPoint(nomad.NewPoint(float64(i)))})
	}
	ec.UnlockQueue(mt, false)

	mt.SetStopReason(nomad.StopUserInterrupt)
	st := ec.StartEvaluation(context.Background(), mt, nil, nomad.PosInf())
	assert.Equal(t, nomad.Unsuccessful, st)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 0, ec.QueueLen())
}

func TestPerThreadBudgetStopsEvaluation(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()

	ec := New(constBB(1), cache, rule, objPB)
	mt := ec.RegisterMainThread(nil)
	mt.MaxBBEval = 2

	ec.LockQueue(mt)
	for i := 0; i < 8; i++ {
		ec.AddToQueue(mt, EvalQueuePoint{Point: nomad.NewEvalPoint(nomad.NewPoint(float64(i)))})
	}
	ec.UnlockQueue(mt, false)

	ec.StartEvaluation(context.Background(), mt, nil, nomad.PosInf())
	assert.Equal(t, 2, mt.BBEval())
	assert.True(t, mt.TestIf(nomad.StopMaxBBEval))
}

func TestAddToQueueCacheHitCopiesEvalAndSkips(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()

	p := nomad.NewPoint(1, 2)
	cache.SmartInsert(p, 1, nomad.EvalKindBB)
	cache.Update(p, nomad.EvalKindBB, nomad.NewEval(nomad.EvalStatusOK, "7 0", objPB, rule))

	ec := New(constBB(1), cache, rule, objPB)
	mt := ec.RegisterMainThread(nil)

	ep := nomad.NewEvalPoint(p)
	ec.LockQueue(mt)
	ec.AddToQueue(mt, EvalQueuePoint{Point: ep})
	ec.UnlockQueue(mt, false)

	assert.Equal(t, 0, ec.QueueLen())
	require.NotNil(t, ep.Eval(nomad.EvalKindBB))
	assert.Equal(t, "7 0", ep.Eval(nomad.EvalKindBB).RawOutputs)
}

func TestSubspaceLiftKeepsCacheInFullSpace(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()

	ec := New(constBB(1), cache, rule, objPB)
	mt := ec.RegisterMainThread(nil)
	mt.Lift = func(p nomad.Point) nomad.Point {
		// fix x2=9, free variable is x1
		return nomad.NewPoint(p.Vec[0].Value(), 9)
	}

	ep := nomad.NewEvalPoint(nomad.NewPoint(3)) // subspace point
	ec.EvalSinglePoint(context.Background(), mt, ep, nil, nomad.PosInf())

	_, ok := cache.Find(nomad.NewPoint(3, 9))
	assert.True(t, ok)
	_, ok = cache.Find(nomad.NewPoint(3))
	assert.False(t, ok)
}

func TestHistoryWriterReceivesOneLinePerEval(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()

	var hist strings.Builder
	ec := New(constBB(2), cache, rule, objPB)
	ec.History = &hist
	mt := ec.RegisterMainThread(nil)

	ec.LockQueue(mt)
	for i := 0; i < 3; i++ {
		ec.AddToQueue(mt, EvalQueuePoint{Point: nomad.NewEvalPoint(nomad.NewPoint(float64(i)))})
	}
	ec.UnlockQueue(mt, false)
	ec.StartEvaluation(context.Background(), mt, nil, nomad.PosInf())

	lines := strings.Split(strings.TrimSpace(hist.String()), "\n")
	assert.Len(t, lines, 3)
	for _, line := range lines {
		assert.Contains(t, line, "2 0")
	}
}

func TestEvalCountSpansThreads(t *testing.T) {
	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	ec := New(constBB(1), cache, rule, objPB)

	for i := 0; i < 2; i++ {
		mt := ec.RegisterMainThread(nil)
		ec.LockQueue(mt)
		ec.AddToQueue(mt, EvalQueuePoint{Point: nomad.NewEvalPoint(nomad.NewPoint(float64(i), 0))})
		ec.UnlockQueue(mt, false)
		ec.StartEvaluation(context.Background(), mt, nil, nomad.PosInf())
	}
	assert.Equal(t, 2, ec.EvalCount())
}
