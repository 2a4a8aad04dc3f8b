package nomad

// SuccessType classifies one candidate against a reference point under
// the progressive barrier's rules (spec §4.2).
type SuccessType int

const (
	Unsuccessful SuccessType = iota
	PartialSuccess
	FullSuccess
)

func (s SuccessType) String() string {
	switch s {
	case FullSuccess:
		return "FULL_SUCCESS"
	case PartialSuccess:
		return "PARTIAL_SUCCESS"
	default:
		return "UNSUCCESSFUL"
	}
}

// Better reports whether s represents a strictly better outcome than o.
func (s SuccessType) Better(o SuccessType) bool { return s > o }

// ComputeSuccessType classifies candidate c against reference r, per spec
// §4.2 "Success rules". hMax gates both: any candidate with h>hMax is
// unsuccessful regardless of f.
func ComputeSuccessType(c, r *EvalPoint, hMax Dbl, rule ComputeRule) SuccessType {
	cf, ch := c.F(rule), c.H(rule)
	rf, rh := r.F(rule), r.H(rule)

	if !ch.IsDefined() || ch.Greater(hMax) {
		return Unsuccessful
	}

	cFeas := ch.IsDefined() && ch.Equal(D(0))
	rFeas := rh.IsDefined() && rh.Equal(D(0))

	switch {
	case cFeas && rFeas:
		if cf.Less(rf) {
			return FullSuccess
		}
		return Unsuccessful
	case !cFeas && !rFeas:
		fBetterOrEq := cf.LessEq(rf)
		hBetterOrEq := ch.LessEq(rh)
		strict := cf.Less(rf) || ch.Less(rh)
		if fBetterOrEq && hBetterOrEq && strict {
			return FullSuccess
		}
		if ch.Less(rh) && cf.Greater(rf) {
			return PartialSuccess
		}
		return Unsuccessful
	default:
		// one feasible, one infeasible: always unsuccessful per spec.
		return Unsuccessful
	}
}

// ProgressiveBarrier maintains feasible and infeasible incumbent sets and
// an adaptive threshold hMax on constraint violation (spec §3/§4.2).
type ProgressiveBarrier struct {
	Rule ComputeRule
	HMax Dbl

	XFeas []*EvalPoint
	XInf  []*EvalPoint

	XIncFeas *EvalPoint
	XIncInf  *EvalPoint

	refBestFeas *EvalPoint
	refBestInf  *EvalPoint

	upToDate bool
}

// NewProgressiveBarrier constructs an empty barrier with the given initial
// hMax (spec's H_MAX_0, default +Inf).
func NewProgressiveBarrier(rule ComputeRule, hMax0 Dbl) *ProgressiveBarrier {
	if !hMax0.IsDefined() {
		hMax0 = PosInf()
	}
	return &ProgressiveBarrier{Rule: rule, HMax: hMax0}
}

// NewProgressiveBarrierFromPoints seeds the barrier from an explicit point
// list (e.g. X0), classifying each by feasibility.
func NewProgressiveBarrierFromPoints(rule ComputeRule, hMax0 Dbl, points []*EvalPoint) *ProgressiveBarrier {
	b := NewProgressiveBarrier(rule, hMax0)
	b.UpdateWithPoints(points, true)
	return b
}

// NewProgressiveBarrierFromCache seeds the barrier from a cache snapshot,
// used when FRAME_CENTER_USE_CACHE is enabled.
func NewProgressiveBarrierFromCache(rule ComputeRule, hMax0 Dbl, cache *Cache) *ProgressiveBarrier {
	all := cache.FindPredicate(func(ep *EvalPoint) bool {
		e := ep.Eval(EvalKindBB)
		return e != nil && e.Status == EvalStatusOK
	})
	return NewProgressiveBarrierFromPoints(rule, hMax0, all)
}

// UpdateWithPoints is the sole mutator that changes incumbents and hMax
// (spec §4.2). It appends evaluated points into XFeas/XInf (rejecting
// h>hMax), and when updateIncumbentsAndHMax is true recomputes incumbents,
// the success classification, and the new hMax. It returns true iff an
// incumbent changed.
func (b *ProgressiveBarrier) UpdateWithPoints(points []*EvalPoint, updateIncumbentsAndHMax bool) bool {
	priorXIncInf := b.XIncInf

	for _, p := range points {
		e := p.Eval(EvalKindBB)
		if e == nil || e.Status != EvalStatusOK {
			continue
		}
		h := p.H(b.Rule)
		if !h.IsDefined() || h.Greater(b.HMax) {
			continue
		}
		if h.Equal(D(0)) {
			b.XFeas = append(b.XFeas, p)
		} else {
			b.XInf = append(b.XInf, p)
		}
	}

	if !updateIncumbentsAndHMax {
		return false
	}

	changed := false
	feasSuccess := Unsuccessful
	if len(b.XFeas) > 0 {
		best := b.XFeas[0]
		for _, p := range b.XFeas[1:] {
			if p.F(b.Rule).Less(best.F(b.Rule)) {
				best = p
			}
		}
		if b.XIncFeas == nil || best.F(b.Rule).Less(b.XIncFeas.F(b.Rule)) {
			feasSuccess = FullSuccess
			changed = true
		}
		b.XIncFeas = best
		kept := b.XFeas[:0]
		for _, p := range b.XFeas {
			if !p.F(b.Rule).Greater(best.F(b.Rule)) {
				kept = append(kept, p)
			}
		}
		b.XFeas = kept
	}

	infSuccess := Unsuccessful
	if priorXIncInf != nil && len(b.XInf) > 0 {
		for _, p := range b.XInf {
			if st := ComputeSuccessType(p, priorXIncInf, b.HMax, b.Rule); st.Better(infSuccess) {
				infSuccess = st
			}
		}
		if infSuccess == FullSuccess {
			changed = true
		}
	} else if priorXIncInf == nil && len(b.XInf) > 0 {
		infSuccess = FullSuccess
		changed = true
	}

	switch {
	case (feasSuccess == FullSuccess || infSuccess == FullSuccess) && priorXIncInf != nil:
		b.HMax = priorXIncInf.H(b.Rule)
	case infSuccess == PartialSuccess:
		var maxBelow Dbl
		found := false
		for _, p := range b.XInf {
			h := p.H(b.Rule)
			if priorXIncInf != nil && h.Less(priorXIncInf.H(b.Rule)) {
				if !found || h.Greater(maxBelow) {
					maxBelow = h
					found = true
				}
			}
		}
		if found {
			b.HMax = maxBelow
		}
	case infSuccess == Unsuccessful && priorXIncInf != nil:
		b.HMax = priorXIncInf.H(b.Rule)
	}

	kept := b.XInf[:0]
	for _, p := range b.XInf {
		if p.H(b.Rule).LessEq(b.HMax) {
			kept = append(kept, p)
		}
	}
	b.XInf = kept

	b.XIncInf = nil
	if len(b.XInf) > 0 {
		nonDominated := nonDominatedInfeasible(b.XInf, b.Rule)
		largestH := nonDominated[0]
		for _, p := range nonDominated[1:] {
			if p.H(b.Rule).Greater(largestH.H(b.Rule)) {
				largestH = p
			}
		}
		b.XIncInf = largestH
	}
	if b.XIncInf != priorXIncInf {
		changed = true
	}

	b.upToDate = true
	return changed
}

func nonDominatedInfeasible(points []*EvalPoint, rule ComputeRule) []*EvalPoint {
	var out []*EvalPoint
	for _, p := range points {
		dominated := false
		for _, q := range points {
			if p == q {
				continue
			}
			if dominates(q, p, rule) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return points
	}
	return out
}

// Clone returns an independent barrier sharing the member EvalPoints as
// reference-counted handles (the cache holds the canonical copies); the
// incumbent sets and hMax fork so the copy can evolve separately, the copy
// semantics the parallel variants rely on when handing a barrier to a new
// MegaIteration.
func (b *ProgressiveBarrier) Clone() *ProgressiveBarrier {
	out := &ProgressiveBarrier{
		Rule:        b.Rule,
		HMax:        b.HMax,
		XIncFeas:    b.XIncFeas,
		XIncInf:     b.XIncInf,
		refBestFeas: b.refBestFeas,
		refBestInf:  b.refBestInf,
		upToDate:    b.upToDate,
	}
	out.XFeas = append([]*EvalPoint{}, b.XFeas...)
	out.XInf = append([]*EvalPoint{}, b.XInf...)
	return out
}

// UpdateRefBests snapshots current incumbents as the reference point for
// the next iteration's success-type classification (spec §4.2).
func (b *ProgressiveBarrier) UpdateRefBests() {
	b.refBestFeas = b.XIncFeas
	b.refBestInf = b.XIncInf
}

func (b *ProgressiveBarrier) RefBestFeas() *EvalPoint { return b.refBestFeas }
func (b *ProgressiveBarrier) RefBestInf() *EvalPoint  { return b.refBestInf }

// UpToDate reports whether the barrier's incumbents reflect the most
// recent UpdateWithPoints call.
func (b *ProgressiveBarrier) UpToDate() bool { return b.upToDate }

// BestFrameCenter returns the incumbent to poll/search around: the
// feasible incumbent if one exists, else the infeasible incumbent.
func (b *ProgressiveBarrier) BestFrameCenter() *EvalPoint {
	if b.XIncFeas != nil {
		return b.XIncFeas
	}
	return b.XIncInf
}

// RevealingHook and MultiObjectiveHook are narrow extension points for the
// DiscoMads and DMultiMads barriers respectively (out of scope per spec
// §1); ProgressiveBarrier never calls them itself, but a caller composing
// a richer barrier over this one can.
type RevealingHook interface {
	OnRevealed(p *EvalPoint)
}

type MultiObjectiveHook interface {
	OnParetoUpdate(feas, inf []*EvalPoint)
}
