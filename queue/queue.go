// Package queue implements EvaluatorControl: the shared trial-point queue
// and worker pool that drives a blackbox against the points the Search and
// Poll steps of one or more concurrent MADS instances produce
// (spec §4.5). There is one queue per run; each concurrent algorithm
// instance registers a MainThread context carrying its own stop reasons,
// budget and opportunism policy, and the queue filters per-thread work at
// dequeue time.
package queue

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bbopt/nomad-sub004"
)

// EvalQueuePoint pairs a trial EvalPoint with the priority the queue sorts
// by before dispatch, the block it was submitted in, and the main thread
// and step that submitted it (spec §3 EvalQueuePoint).
type EvalQueuePoint struct {
	Point    *nomad.EvalPoint
	Priority float64
	BlockID  int
	Thread   *MainThread
	Step     string
}

// MainThread is one concurrent algorithm instance's context within the
// shared queue: its identity, stop reasons, per-thread evaluation budget,
// opportunism policy, and the subspace-to-full-space lift applied at the
// cache boundary when the instance runs in a fixed-variable subproblem
// (spec §4.5 "one main thread context per concurrent algorithm instance",
// §4.7 "in subspace at the algorithm boundary, full space at the cache
// boundary").
type MainThread struct {
	ID          string
	StopReasons *nomad.StopReasons

	Opportunistic bool
	MaxBBEval     int // 0 means unbounded

	// Lift maps an algorithm-side point to the full-dimension point used
	// for cache lookup and blackbox dispatch. nil means identity (the
	// instance already works in full space).
	Lift func(nomad.Point) nomad.Point

	mu                 sync.Mutex
	staging            []EvalQueuePoint
	nextBlock          int
	bbEval             int
	bbEvalInSubproblem int
}

func (mt *MainThread) lift(p nomad.Point) nomad.Point {
	if mt.Lift == nil {
		return p
	}
	return mt.Lift(p)
}

// BBEval returns how many budget-counted blackbox evaluations this thread
// has consumed.
func (mt *MainThread) BBEval() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.bbEval
}

func (mt *MainThread) countEval() (budgetLeft bool) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.bbEval++
	mt.bbEvalInSubproblem++
	return mt.MaxBBEval <= 0 || mt.bbEval < mt.MaxBBEval
}

func (mt *MainThread) budgetExhausted() bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.MaxBBEval > 0 && mt.bbEval >= mt.MaxBBEval
}

// SetStopReason raises a stop reason on this thread; TestIf queries one.
// Pending queue points submitted by a stopped thread are discarded at
// dequeue time (spec §4.5 Cancellation).
func (mt *MainThread) SetStopReason(r nomad.StopReasonKind) { mt.StopReasons.Set(r) }
func (mt *MainThread) TestIf(r nomad.StopReasonKind) bool   { return mt.StopReasons.TestIf(r) }

// ResetBBEvalInSubproblem and GetBBEvalInSubproblem track the
// per-subproblem evaluation counter consumed by PSD/SSD coverage
// accounting (spec §4.5, §4.7: "per-subproblem BB-eval counters reset
// between subproblems").
func (mt *MainThread) ResetBBEvalInSubproblem() {
	mt.mu.Lock()
	mt.bbEvalInSubproblem = 0
	mt.mu.Unlock()
}

func (mt *MainThread) GetBBEvalInSubproblem() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.bbEvalInSubproblem
}

func (mt *MainThread) stopped() bool {
	if _, terminal := mt.StopReasons.AnyTerminal(); terminal {
		return true
	}
	return mt.StopReasons.TestIf(nomad.StopOpportunisticSuccess)
}

// EvaluatorControl owns the run's single trial queue: points are staged by
// a producing main thread between LockQueue and UnlockQueue, sorted once
// per unlock, and drained by a bounded worker pool built on
// golang.org/x/sync/errgroup and golang.org/x/sync/semaphore, mirroring
// the teacher's heartbeat-driven worker loop (cloudlus/worker.go) but
// collapsed to an in-process pool.
type EvaluatorControl struct {
	mu    sync.Mutex
	queue []EvalQueuePoint

	Cache *nomad.Cache
	Rule  nomad.ComputeRule
	Types []nomad.BBOutputType

	BB Blackbox

	MaxWorkers     int
	EvalQueueClear bool
	BBMaxBlockSize int

	// History, when set, receives one append-only record per completed
	// blackbox evaluation (spec §6 "History line").
	History io.Writer
	histMu  sync.Mutex

	evalCount int64

	// Log receives one warning line per failed blackbox call; the zero
	// value is a disabled logger (zerolog.Logger's nop default), matching
	// the corpus's habit of making structured logging safe-by-default when
	// a caller doesn't configure one.
	Log nomad.Logger
}

// Blackbox is the narrow contract EvaluatorControl dispatches against; it
// is satisfied by nomad.Blackbox directly (kept as its own named type here
// so queue doesn't need to re-export the root package's identifiers).
type Blackbox = nomad.Blackbox

func New(bb Blackbox, cache *nomad.Cache, rule nomad.ComputeRule, types []nomad.BBOutputType) *EvaluatorControl {
	return &EvaluatorControl{
		BB:             bb,
		Cache:          cache,
		Rule:           rule,
		Types:          types,
		MaxWorkers:     1,
		BBMaxBlockSize: 1,
		Log:            nomad.NopLogger(),
	}
}

// RegisterMainThread creates a main-thread context for one algorithm
// instance sharing this queue.
func (ec *EvaluatorControl) RegisterMainThread(reasons *nomad.StopReasons) *MainThread {
	if reasons == nil {
		reasons = nomad.NewStopReasons()
	}
	return &MainThread{ID: uuid.NewString(), StopReasons: reasons}
}

// EvalCount returns the total number of evaluations performed through this
// queue (all threads, counted against the budget or not), the MAX_EVAL
// budget's measure.
func (ec *EvaluatorControl) EvalCount() int { return int(atomic.LoadInt64(&ec.evalCount)) }

// LockQueue begins a submission batch for mt. Points staged until the
// matching UnlockQueue keep their submission order (spec §4.5 "within one
// lock/unlock batch, the producer observes a stable order").
func (ec *EvaluatorControl) LockQueue(mt *MainThread) {
	mt.mu.Lock()
	mt.staging = mt.staging[:0]
	mt.mu.Unlock()
}

// AddToQueue stages one trial point for mt's current batch. If the cache
// already holds a completed compatible Eval for the (lifted) point, the
// cached result is copied onto the point and it is not enqueued, so the
// producer's trial set still sees the outcome (spec §4.5 addToQueue).
func (ec *EvaluatorControl) AddToQueue(mt *MainThread, p EvalQueuePoint) {
	full := mt.lift(p.Point.Point)
	if cached, ok := ec.Cache.Find(full); ok {
		if e := cached.Eval(nomad.EvalKindBB); e != nil && e.Status != nomad.EvalStatusInProgress {
			cp := *e
			p.Point.SetEval(nomad.EvalKindBB, &cp)
			return
		}
	}
	p.Thread = mt
	mt.mu.Lock()
	mt.staging = append(mt.staging, p)
	mt.mu.Unlock()
}

// UnlockQueue closes mt's submission batch, optionally sorting it by
// ascending Priority, groups it into blocks of at most BBMaxBlockSize, and
// publishes it to the shared queue.
func (ec *EvaluatorControl) UnlockQueue(mt *MainThread, sortQueue bool) {
	mt.mu.Lock()
	batch := mt.staging
	mt.staging = nil
	if sortQueue {
		sort.SliceStable(batch, func(i, j int) bool { return batch[i].Priority < batch[j].Priority })
	}
	blockSize := ec.BBMaxBlockSize
	if blockSize <= 0 {
		blockSize = 1
	}
	for i := range batch {
		batch[i].BlockID = mt.nextBlock + i/blockSize
	}
	if len(batch) > 0 {
		mt.nextBlock = batch[len(batch)-1].BlockID + 1
	}
	mt.mu.Unlock()

	ec.mu.Lock()
	ec.queue = append(ec.queue, batch...)
	ec.mu.Unlock()
}

// QueueLen reports how many points are currently queued across all
// threads.
func (ec *EvaluatorControl) QueueLen() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.queue)
}

// ClearQueue drops mt's remaining queued points (all points when mt is
// nil), used at the end of an iteration when EVAL_QUEUE_CLEAR is set and
// when an opportunistic success fires.
func (ec *EvaluatorControl) ClearQueue(mt *MainThread) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if mt == nil {
		ec.queue = nil
		return
	}
	kept := ec.queue[:0]
	for _, p := range ec.queue {
		if p.Thread != mt {
			kept = append(kept, p)
		}
	}
	ec.queue = kept
}

// dequeueBlock pops mt's next whole block: a block submitted together is
// dispatched together (spec §4.5 "atomicity of block").
func (ec *EvaluatorControl) dequeueBlock(mt *MainThread) []EvalQueuePoint {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	start := -1
	for i, p := range ec.queue {
		if p.Thread == mt {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	blockID := ec.queue[start].BlockID
	var block []EvalQueuePoint
	kept := ec.queue[:0]
	for i, p := range ec.queue {
		if i >= start && p.Thread == mt && p.BlockID == blockID {
			block = append(block, p)
			continue
		}
		kept = append(kept, p)
	}
	ec.queue = kept
	return block
}

// StartEvaluation drains mt's queued blocks through the bounded worker
// pool and returns the best SuccessType observed against reference under
// hMax (spec §4.5). It returns when (a) mt's slice of the queue is
// drained, (b) mt's budget is exhausted, or (c) opportunism triggers: with
// mt.Opportunistic set, the first PartialSuccess or better raises
// StopOpportunisticSuccess and drops mt's remaining points — though a
// block already dispatched is always finished as a block.
func (ec *EvaluatorControl) StartEvaluation(ctx context.Context, mt *MainThread, reference *nomad.EvalPoint, hMax nomad.Dbl) nomad.SuccessType {
	if ec.MaxWorkers <= 0 {
		ec.MaxWorkers = 1
	}
	if !hMax.IsDefined() {
		hMax = nomad.PosInf()
	}
	sem := semaphore.NewWeighted(int64(ec.MaxWorkers))
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	best := nomad.Unsuccessful

	for {
		if mt.stopped() {
			ec.ClearQueue(mt)
			break
		}
		if mt.budgetExhausted() {
			mt.StopReasons.Set(nomad.StopMaxBBEval)
			ec.ClearQueue(mt)
			break
		}
		block := ec.dequeueBlock(mt)
		if block == nil {
			break
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			// A block dequeued just before a sibling worker raised the
			// thread's stop flag is dropped here, not evaluated.
			if mt.stopped() {
				return nil
			}
			for _, item := range block {
				ec.evalPoint(gctx, mt, item.Point, hMax)

				mu.Lock()
				if reference != nil {
					if st := nomad.ComputeSuccessType(item.Point, reference, hMax, ec.Rule); st.Better(best) {
						best = st
					}
				}
				trigger := mt.Opportunistic && best.Better(nomad.Unsuccessful)
				mu.Unlock()
				if trigger {
					mt.StopReasons.Set(nomad.StopOpportunisticSuccess)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if ec.EvalQueueClear {
		ec.ClearQueue(mt)
	}
	return best
}

// EvalSinglePoint bypasses the queue entirely, evaluating ep synchronously
// and classifying it against reference under hMax; used for X0 during
// initialization (spec §4.5 evalSinglePoint).
func (ec *EvaluatorControl) EvalSinglePoint(ctx context.Context, mt *MainThread, ep *nomad.EvalPoint, reference *nomad.EvalPoint, hMax nomad.Dbl) nomad.SuccessType {
	ec.evalPoint(ctx, mt, ep, hMax)
	if reference == nil {
		return nomad.Unsuccessful
	}
	if !hMax.IsDefined() {
		hMax = nomad.PosInf()
	}
	return nomad.ComputeSuccessType(ep, reference, hMax, ec.Rule)
}

// evalPoint runs the blackbox on one point via Cache.SmartInsert, writing
// the completed Eval both into the cache (waking any waiter) and back onto
// ep itself so the submitting step's trial set carries the result. An OK
// result whose violation exceeds the submitting thread's finite hMax is
// demoted to CONS_H_OVER (spec §6 cache-file status set) before it is
// stored.
func (ec *EvaluatorControl) evalPoint(ctx context.Context, mt *MainThread, ep *nomad.EvalPoint, hMax nomad.Dbl) nomad.EvalStatusType {
	full := mt.lift(ep.Point)
	if !ec.Cache.SmartInsert(full, 1, nomad.EvalKindBB) {
		if existing, ok := ec.Cache.WaitForResult(full, nomad.EvalKindBB); ok {
			if e := existing.Eval(nomad.EvalKindBB); e != nil {
				cp := *e
				ep.SetEval(nomad.EvalKindBB, &cp)
				return e.Status
			}
		}
		return nomad.EvalStatusUndefined
	}
	e := nomad.Evaluate(ctx, ec.BB, full, ec.Types, ec.Rule)
	if e.Status == nomad.EvalStatusOK && hMax.IsDefined() && !hMax.IsInf() {
		if h := e.H(ec.Rule); h.IsDefined() && h.Greater(hMax) {
			e.Status = nomad.EvalStatusConsHOver
		}
	}
	ec.Cache.Update(full, nomad.EvalKindBB, e)
	cp := *e
	ep.SetEval(nomad.EvalKindBB, &cp)
	atomic.AddInt64(&ec.evalCount, 1)

	if e.Status == nomad.EvalStatusFail {
		ec.Log.Warn().Str("point", full.String()).Str("outputs", e.RawOutputs).Msg("blackbox evaluation failed")
	}
	if e.CountEval {
		if !mt.countEval() {
			mt.StopReasons.Set(nomad.StopMaxBBEval)
		}
	}
	if ec.History != nil {
		ec.histMu.Lock()
		hp := nomad.NewEvalPoint(full)
		hp.SetEval(nomad.EvalKindBB, &cp)
		_ = nomad.WriteHistoryLine(ec.History, hp)
		ec.histMu.Unlock()
	}
	return e.Status
}
