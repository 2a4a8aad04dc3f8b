package nomad

import (
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

// BBOutputType tags one field of a blackbox's raw output line.
type BBOutputType int

const (
	BBOutputUndefined BBOutputType = iota
	BBOutputObj                    // objective
	BBOutputPB                     // progressive-barrier constraint: <=0 feasible
	BBOutputEB                     // extreme-barrier constraint: >0 forever infeasible
	BBOutputCntEval                // 0/1, whether this call counts against budget
)

func (t BBOutputType) String() string {
	switch t {
	case BBOutputObj:
		return "OBJ"
	case BBOutputPB:
		return "PB"
	case BBOutputEB:
		return "EB"
	case BBOutputCntEval:
		return "CNT_EVAL"
	default:
		return "-"
	}
}

// EvalStatusType is the outcome of one blackbox/surrogate call.
type EvalStatusType int

const (
	EvalStatusUndefined EvalStatusType = iota
	EvalStatusInProgress
	EvalStatusOK
	EvalStatusFail
	EvalStatusConsHOver
)

func (s EvalStatusType) String() string {
	switch s {
	case EvalStatusInProgress:
		return "IN_PROGRESS"
	case EvalStatusOK:
		return "EVAL_OK"
	case EvalStatusFail:
		return "EVAL_FAILED"
	case EvalStatusConsHOver:
		return "EVAL_CONS_H_OVER"
	default:
		return "UNDEFINED"
	}
}

// EvalKind distinguishes which evaluator produced an Eval for a given
// EvalPoint: the true blackbox, a cheap static surrogate, or a model
// (e.g. quadratic) surrogate.
type EvalKind int

const (
	EvalKindBB EvalKind = iota
	EvalKindStaticSurrogate
	EvalKindModelSurrogate
)

// ComputeRule maps a raw blackbox output line plus its declared output
// types into cached (f, h) values. Standard and Phase-One are the two
// instances the core uses; DiscoMads/DMultiMads rules are out of scope and
// only need to implement this interface to plug in.
type ComputeRule interface {
	// Compute returns the objective value f and the infeasibility measure
	// h (0 when feasible, +Inf when an EB constraint is violated).
	Compute(rawOutputs string, types []BBOutputType) (f, h Dbl)
	// Name distinguishes rules for the Eval.toRecompute invalidation check.
	Name() string
}

// StandardComputeRule is the default compute rule: h is the sum over PB
// constraint outputs of max(0,c)^P, and any EB constraint strictly greater
// than zero forces h = +Inf.
type StandardComputeRule struct {
	P float64 // exponent, default 2
}

func NewStandardComputeRule() StandardComputeRule { return StandardComputeRule{P: 2} }

func (r StandardComputeRule) Name() string { return "standard" }

func (r StandardComputeRule) Compute(rawOutputs string, types []BBOutputType) (f, h Dbl) {
	p := r.P
	if p == 0 {
		p = 2
	}
	fields := strings.Fields(rawOutputs)
	f, h = Undef(), D(0)
	for i, t := range types {
		if i >= len(fields) {
			break
		}
		val, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			continue
		}
		switch t {
		case BBOutputObj:
			f = D(val)
		case BBOutputPB:
			if val > 0 {
				h = h.Add(D(math.Pow(val, p)))
			}
		case BBOutputEB:
			if val > 0 {
				h = PosInf()
			}
		}
	}
	return f, h
}

// PhaseOneComputeRule substitutes f <- h and h <- 0, driving the barrier to
// minimize infeasibility until a feasible point is found (spec §4.2
// Phase-One mode).
type PhaseOneComputeRule struct {
	Base ComputeRule
}

func NewPhaseOneComputeRule(base ComputeRule) PhaseOneComputeRule {
	return PhaseOneComputeRule{Base: base}
}

func (r PhaseOneComputeRule) Name() string { return "phase-one/" + r.Base.Name() }

func (r PhaseOneComputeRule) Compute(rawOutputs string, types []BBOutputType) (f, h Dbl) {
	_, baseH := r.Base.Compute(rawOutputs, types)
	return baseH, D(0)
}

// Eval is one blackbox/surrogate evaluation record for a Point. f and h
// are a pure function of RawOutputs, BBOutputTypes and the active
// ComputeRule; ToRecompute is set whenever the active rule changes so the
// next read recomputes instead of serving a stale cached value.
type Eval struct {
	Status       EvalStatusType
	RawOutputs   string
	BBOutputTypes []BBOutputType
	ToRecompute  bool

	// CountEval records whether this call should count against the
	// evaluation budget (spec §6 CNT_EVAL), independent of whether the
	// call succeeded: a blackbox that crashes after doing real work can
	// still report true here.
	CountEval bool

	f, h     Dbl
	ruleName string
}

// NewEval creates an evaluated Eval, computing and caching f/h immediately.
func NewEval(status EvalStatusType, rawOutputs string, types []BBOutputType, rule ComputeRule) *Eval {
	e := &Eval{Status: status, RawOutputs: rawOutputs, BBOutputTypes: types}
	e.recompute(rule)
	return e
}

// NewPlaceholderEval returns an IN_PROGRESS eval with no outputs yet,
// used by Cache.SmartInsert to reserve a slot before dispatch.
func NewPlaceholderEval() *Eval {
	return &Eval{Status: EvalStatusInProgress}
}

func (e *Eval) recompute(rule ComputeRule) {
	if e.Status != EvalStatusOK {
		e.f, e.h = Undef(), PosInf()
		if e.Status == EvalStatusUndefined || e.Status == EvalStatusInProgress {
			e.f, e.h = Undef(), Undef()
		}
		e.ruleName = rule.Name()
		e.ToRecompute = false
		return
	}
	e.f, e.h = rule.Compute(e.RawOutputs, e.BBOutputTypes)
	e.ruleName = rule.Name()
	e.ToRecompute = false
}

// F and H return the cached objective/infeasibility, recomputing first if
// the active rule changed since the last computation.
func (e *Eval) F(rule ComputeRule) Dbl {
	e.maybeRecompute(rule)
	return e.f
}

func (e *Eval) H(rule ComputeRule) Dbl {
	e.maybeRecompute(rule)
	return e.h
}

func (e *Eval) maybeRecompute(rule ComputeRule) {
	if e.ToRecompute || e.ruleName != rule.Name() {
		e.recompute(rule)
	}
}

// InvalidateComputeRule flags the eval for recomputation on next read,
// e.g. after the active ComputeRule is switched (entering/exiting
// Phase-One).
func (e *Eval) InvalidateComputeRule() { e.ToRecompute = true }

// IsFeasible reports h == 0 under the given rule.
func (e *Eval) IsFeasible(rule ComputeRule) bool {
	h := e.H(rule)
	return h.IsDefined() && h.Equal(D(0))
}

// Equal compares two Evals by status and raw outputs only, per spec.
func (e *Eval) Equal(o *Eval) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.Status == o.Status && e.RawOutputs == o.RawOutputs
}

var tagCounter int64

// NextTag returns a process-wide monotonically increasing EvalPoint tag.
func NextTag() int64 { return atomic.AddInt64(&tagCounter, 1) }

// EvalPoint is the candidate record: coordinates plus one or more Evals
// keyed by EvalKind.
type EvalPoint struct {
	Point

	tag          int64
	tagAssigned  bool
	ThreadOrigin string
	NumEvals     int
	PointFrom    *Point // full-space parent, for Δ direction accounting
	GenStep      []string
	Direction    *Direction
	Angle        Dbl

	Evals map[EvalKind]*Eval
}

func NewEvalPoint(p Point) *EvalPoint {
	return &EvalPoint{Point: p, Evals: map[EvalKind]*Eval{}}
}

// Tag lazily assigns and returns the monotonic id, per spec ("assigned
// lazily").
func (ep *EvalPoint) Tag() int64 {
	if !ep.tagAssigned {
		ep.tag = NextTag()
		ep.tagAssigned = true
	}
	return ep.tag
}

func (ep *EvalPoint) Clone() *EvalPoint {
	out := &EvalPoint{
		Point:        ep.Point.Clone(),
		tag:          ep.tag,
		tagAssigned:  ep.tagAssigned,
		ThreadOrigin: ep.ThreadOrigin,
		NumEvals:     ep.NumEvals,
		PointFrom:    ep.PointFrom,
		Angle:        ep.Angle,
		Evals:        make(map[EvalKind]*Eval, len(ep.Evals)),
	}
	out.GenStep = append([]string{}, ep.GenStep...)
	if ep.Direction != nil {
		d := ep.Direction.Clone()
		out.Direction = &d
	}
	for k, v := range ep.Evals {
		cp := *v
		out.Evals[k] = &cp
	}
	return out
}

// Eval returns the Eval for kind, or nil if absent.
func (ep *EvalPoint) Eval(kind EvalKind) *Eval { return ep.Evals[kind] }

// SetEval installs the Eval for kind, incrementing NumEvals when the
// status is terminal (OK/FAIL/CONS_H_OVER).
func (ep *EvalPoint) SetEval(kind EvalKind, e *Eval) {
	ep.Evals[kind] = e
	switch e.Status {
	case EvalStatusOK, EvalStatusFail, EvalStatusConsHOver:
		ep.NumEvals++
	}
}

// F and H read the BB eval's cached objective/infeasibility under rule; if
// no BB eval is present they are undefined.
func (ep *EvalPoint) F(rule ComputeRule) Dbl {
	if e := ep.Evals[EvalKindBB]; e != nil {
		return e.F(rule)
	}
	return Undef()
}

func (ep *EvalPoint) H(rule ComputeRule) Dbl {
	if e := ep.Evals[EvalKindBB]; e != nil {
		return e.H(rule)
	}
	return Undef()
}

func (ep *EvalPoint) IsFeasible(rule ComputeRule) bool {
	h := ep.H(rule)
	return h.IsDefined() && h.Equal(D(0))
}

// Equal: Points epsilon-equal and every present Eval equal by status +
// rawOutputs (spec §3 EvalPoint).
func (ep *EvalPoint) Equal(o *EvalPoint) bool {
	if ep == nil || o == nil {
		return ep == o
	}
	if !ep.Point.Equal(o.Point) {
		return false
	}
	if len(ep.Evals) != len(o.Evals) {
		return false
	}
	for k, v := range ep.Evals {
		ov, ok := o.Evals[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
