// Package step implements the Step lifecycle scaffolding shared by every
// phase of a MADS mega-iteration: start/run/end, a weak parent pointer, and
// the IterationUtils mix-in for steps that generate trial points (spec
// §4.6). The teacher's codebase has no direct analogue for this; the shape
// follows the spec's explicit re-architecture note (capability set plus
// composition, not an inheritance chain) while keeping the root package's
// error-handling and naming conventions.
package step

import (
	"context"
	"fmt"

	"github.com/bbopt/nomad-sub004"
	"github.com/bbopt/nomad-sub004/queue"
)

// Type tags a Step's role, used for EvalPoint.GenStep bookkeeping and for
// log messages.
type Type int

const (
	TypeUnknown Type = iota
	TypeInitialization
	TypeSearch
	TypePoll
	TypeUpdate
	TypePostProcessing
)

func (t Type) String() string {
	switch t {
	case TypeInitialization:
		return "INITIALIZATION"
	case TypeSearch:
		return "SEARCH"
	case TypePoll:
		return "POLL"
	case TypeUpdate:
		return "UPDATE"
	case TypePostProcessing:
		return "POST_PROCESSING"
	default:
		return "UNKNOWN"
	}
}

// Runnable is the minimal capability every Step exposes: start/run/end plus
// identity. It is a capability interface, not a base class — concrete
// steps embed Base for the bookkeeping and implement Run themselves.
type Runnable interface {
	Start()
	Run() error
	End()
	Name() string
}

// Base is the shared Step bookkeeping: a weak parent handle (by id, never a
// strong pointer, so a child never keeps its parent's arena entry alive
// past the mega-iteration), the step's own name/type tag, and the shared
// StopReasons the whole tree reads and writes.
type Base struct {
	id       int
	parentID int
	hasParent bool
	name     string
	typ      Type

	StopReasons *nomad.StopReasons
}

// Arena owns a mega-iteration's Steps, referenced by id rather than by
// pointer so parent links stay weak (spec §9 redesign note: "Steps are
// arena-allocated per MegaIteration and referenced by id").
type Arena struct {
	steps []*Base
}

func NewArena() *Arena { return &Arena{} }

// New allocates a Step in the arena, with parentID of -1 meaning "root".
func (a *Arena) New(name string, typ Type, parentID int, reasons *nomad.StopReasons) *Base {
	b := &Base{id: len(a.steps), name: name, typ: typ, StopReasons: reasons}
	if parentID >= 0 {
		b.parentID = parentID
		b.hasParent = true
	}
	a.steps = append(a.steps, b)
	return b
}

// Parent resolves the weak parent link through the arena; returns nil if
// this Step is the root or the arena has since been reset.
func (a *Arena) Parent(b *Base) *Base {
	if !b.hasParent || b.parentID >= len(a.steps) {
		return nil
	}
	return a.steps[b.parentID]
}

func (b *Base) ID() int        { return b.id }
func (b *Base) Name() string   { return b.name }
func (b *Base) Type() Type     { return b.typ }

// Start and End are no-ops on Base beyond being explicit lifecycle hooks
// concrete steps can override; kept symmetric with Runnable so composing
// types don't need to stub them out.
func (b *Base) Start() {}
func (b *Base) End()   {}

// IterationUtils is the mix-in attached to any Step that produces trial
// points (Search, Poll): snap/project, on-mesh verification, queue
// submission and post-processing (spec §4.6).
type IterationUtils struct {
	*Base

	Mesh  *nomad.Mesh
	Cache *nomad.Cache
	Queue *queue.EvaluatorControl
	MT    *queue.MainThread
	Rule  nomad.ComputeRule

	LowerBound, UpperBound nomad.Vec

	TrialPoints []*nomad.EvalPoint
}

func NewIterationUtils(b *Base, mesh *nomad.Mesh, cache *nomad.Cache, q *queue.EvaluatorControl, mt *queue.MainThread, rule nomad.ComputeRule, lb, ub nomad.Vec) *IterationUtils {
	return &IterationUtils{Base: b, Mesh: mesh, Cache: cache, Queue: q, MT: mt, Rule: rule, LowerBound: lb, UpperBound: ub}
}

// SnapPointToBoundsAndProjectOnMesh tries project-then-snap-then-reproject
// (spec §4.5): project p onto the mesh around center, clamp to bounds, then
// re-project (bound clamping can knock a point off-mesh). It returns
// whether the final point is both on-mesh and in-bounds; on failure it
// reverts to p unchanged.
func SnapPointToBoundsAndProjectOnMesh(p, center nomad.Point, lb, ub nomad.Vec, mesh *nomad.Mesh) (nomad.Point, bool) {
	proj := mesh.ProjectOnMesh(p, center)
	snapped := proj.Vec.SnapToBounds(lb, ub)
	reproj := mesh.ProjectOnMesh(nomad.Point{Vec: snapped}, center)

	onMesh := mesh.VerifyOnMesh(reproj, center)
	inBounds := reproj.Vec.InBounds(lb, ub)
	if onMesh && inBounds {
		return reproj, true
	}
	return p, false
}

// SnapAndProjectTrialPoints runs every accumulated trial point through
// SnapPointToBoundsAndProjectOnMesh relative to center (spec §4.4 step 2,
// §4.6: "generate trial points, snap+project, evaluate"), updating each
// point's coordinates in place and dropping any that still fail to land
// on-mesh and in-bounds. Search methods that hand back points generated
// against a stale mesh/center (e.g. a CacheSearch reusing a sibling's
// cached point) are reconciled here rather than silently dropped.
func (u *IterationUtils) SnapAndProjectTrialPoints(center nomad.Point) {
	kept := u.TrialPoints[:0]
	for _, p := range u.TrialPoints {
		proj, ok := SnapPointToBoundsAndProjectOnMesh(p.Point, center, u.LowerBound, u.UpperBound, u.Mesh)
		if !ok {
			continue
		}
		p.Point = proj
		kept = append(kept, p)
	}
	u.TrialPoints = kept
}

// VerifyPointsAreOnMesh filters the accumulated trial set down to points
// that verify on-mesh relative to center, dropping the rest. Kept as a
// standalone filter (spec §4.6 lists it as its own IterationUtils member,
// distinct from the snap+project step) for callers that already know their
// points are on-mesh and only need the bounds-free mesh check.
func (u *IterationUtils) VerifyPointsAreOnMesh(center nomad.Point) {
	kept := u.TrialPoints[:0]
	for _, p := range u.TrialPoints {
		if u.Mesh.VerifyOnMesh(p.Point, center) {
			kept = append(kept, p)
		}
	}
	u.TrialPoints = kept
}

// EvalTrialPoints locks the queue, submits the accumulated trial set
// (AddToQueue itself skips candidates the cache already satisfies,
// recording the cached Eval onto the trial point instead), runs the worker
// pool, and reports the best success observed (spec §4.6 evalTrialPoints).
func (u *IterationUtils) EvalTrialPoints(ctx context.Context, reference *nomad.EvalPoint, hMax nomad.Dbl) (nomad.SuccessType, error) {
	if u.Queue == nil || u.MT == nil {
		return nomad.Unsuccessful, fmt.Errorf("nomad/step: EvalTrialPoints called with no queue attached")
	}
	u.Queue.LockQueue(u.MT)
	for _, p := range u.TrialPoints {
		u.Queue.AddToQueue(u.MT, queue.EvalQueuePoint{Point: p, Step: u.Name()})
	}
	u.Queue.UnlockQueue(u.MT, true)

	return u.Queue.StartEvaluation(ctx, u.MT, reference, hMax), nil
}

// PostProcessing recomputes hMax for PARTIAL_SUCCESS outcomes and commits
// the barrier update (spec §4.2/§4.6). kind reports the success type the
// iteration observed; the barrier's own UpdateWithPoints already applies
// the three-branch hMax rule, so this simply drives that commit with the
// freshly evaluated trial points.
func (u *IterationUtils) PostProcessing(barrier *nomad.ProgressiveBarrier, kind nomad.SuccessType) bool {
	_ = kind
	changed := barrier.UpdateWithPoints(u.TrialPoints, true)
	barrier.UpdateRefBests()
	u.TrialPoints = nil
	return changed
}
