package mads

import (
	"github.com/bbopt/nomad-sub004"
)

// SearchMethod is the pluggable trial-point generator run before Poll each
// iteration (spec §4.6, §1 Non-goals: concrete search-method bodies beyond
// CacheSearch are out of scope — this interface is the extension point
// QuadModel/SgtelibModel style searches plug into).
type SearchMethod interface {
	// GeneratePoints returns candidate trial points around center for this
	// iteration; it may return none.
	GeneratePoints(center nomad.Point, mesh *nomad.Mesh) []*nomad.EvalPoint
	Name() string
}

// CacheSearch scans the shared cache for already-evaluated points that
// would improve on the current incumbent, without spending any new
// blackbox evaluations (spec §4.7 COOP-MADS: "inserted as the first search
// method"). It is the one concrete SearchMethod the core ships, since it
// is cache-only and needs no domain-specific model.
type CacheSearch struct {
	Cache *nomad.Cache
	Rule  nomad.ComputeRule
}

func NewCacheSearch(cache *nomad.Cache, rule nomad.ComputeRule) *CacheSearch {
	return &CacheSearch{Cache: cache, Rule: rule}
}

func (CacheSearch) Name() string { return "CACHE_SEARCH" }

// GeneratePoints returns cached points strictly better than center, so the
// caller's post-processing picks them up as already-evaluated improvements
// without touching the blackbox. When center itself has no cached value,
// every feasible cached point is returned.
func (s *CacheSearch) GeneratePoints(center nomad.Point, mesh *nomad.Mesh) []*nomad.EvalPoint {
	centerF := nomad.Undef()
	if ep, ok := s.Cache.Find(center); ok {
		centerF = ep.F(s.Rule)
	}
	return s.Cache.FindPredicate(func(ep *nomad.EvalPoint) bool {
		e := ep.Eval(nomad.EvalKindBB)
		if e == nil || e.Status != nomad.EvalStatusOK {
			return false
		}
		if !ep.IsFeasible(s.Rule) {
			return false
		}
		if !centerF.IsDefined() {
			return true
		}
		return ep.F(s.Rule).Less(centerF)
	})
}
