package nomad

import (
	"crypto/sha1"
	"encoding/binary"
	"math"
	"sync"
)

// cacheEps is the coordinate quantization used when hashing a Point for
// the cache's content-addressed key, matching the spec's "hashing
// truncates each coordinate by ε" rule.
const cacheEps = DefaultEps

func cacheKey(p Point) [sha1.Size]byte {
	data := make([]byte, 0, len(p.Vec)*8)
	for _, d := range p.Vec {
		v := 0.0
		if d.IsDefined() {
			v = math.Round(d.Value()/cacheEps) * cacheEps
		} else {
			v = math.NaN()
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		data = append(data, buf[:]...)
	}
	return sha1.Sum(data)
}

// cacheSlot guards one Point's evaluation lifecycle: a single in-flight
// evaluation at a time, with waiters released either by update() or by
// Cache.SetStopWaiting().
type cacheSlot struct {
	mu   sync.Mutex
	cond *sync.Cond
	ep   *EvalPoint
}

func newCacheSlot(ep *EvalPoint) *cacheSlot {
	s := &cacheSlot{ep: ep}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Cache is the process-wide, content-addressed store of evaluated points
// (spec §3/§4.1). Reads are concurrent; writes are serialized per key via
// the slot's own mutex, guarded overall by a reader/writer lock on the
// slot map itself.
type Cache struct {
	mu          sync.RWMutex
	slots       map[[sha1.Size]byte]*cacheSlot
	stopWaiting bool
}

func NewCache() *Cache {
	return &Cache{slots: map[[sha1.Size]byte]*cacheSlot{}}
}

func (c *Cache) slotFor(p Point) (*cacheSlot, bool) {
	key := cacheKey(p)
	c.mu.RLock()
	s, ok := c.slots[key]
	c.mu.RUnlock()
	if ok {
		return s, true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.slots[key]; ok {
		return s, true
	}
	s = newCacheSlot(nil)
	c.slots[key] = s
	return s, false
}

// SmartInsert reserves the slot for p if it is absent, if its eval for kind
// is absent, or if that eval is terminal, not flagged ToRecompute, and
// NumEvals < maxEval. A stale (ToRecompute) eval is not re-evaluated.
// It returns true when the caller may proceed to evaluate p; false when an
// existing, acceptable Eval is already cached.
func (c *Cache) SmartInsert(p Point, maxEval int, kind EvalKind) bool {
	s, existed := c.slotFor(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	if !existed || s.ep == nil {
		s.ep = NewEvalPoint(p.Clone())
		s.ep.SetEval(kind, NewPlaceholderEval())
		return true
	}

	e := s.ep.Eval(kind)
	if e == nil {
		s.ep.SetEval(kind, NewPlaceholderEval())
		return true
	}
	terminal := e.Status == EvalStatusOK || e.Status == EvalStatusFail || e.Status == EvalStatusConsHOver
	if !terminal {
		// another evaluation already in flight for this exact slot/kind.
		return false
	}
	if e.ToRecompute {
		return false // stale compute rule only invalidates f/h, not re-eval
	}
	if s.ep.NumEvals < maxEval {
		s.ep.Evals[kind] = NewPlaceholderEval()
		return true
	}
	return false
}

// Update writes a completed Eval into p's slot and wakes any waiter.
func (c *Cache) Update(p Point, kind EvalKind, e *Eval) {
	s, existed := c.slotFor(p)
	s.mu.Lock()
	if !existed || s.ep == nil {
		s.ep = NewEvalPoint(p.Clone())
	}
	s.ep.SetEval(kind, e)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// WaitForResult blocks until p's slot holds a terminal (non IN_PROGRESS)
// Eval for kind, or the cache is stopped. ok is false when the cache was
// stopped before a result arrived (spec §7 "cache miss under wait").
func (c *Cache) WaitForResult(p Point, kind EvalKind) (ep *EvalPoint, ok bool) {
	s, _ := c.slotFor(p)
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.ep != nil {
			if e := s.ep.Eval(kind); e != nil && e.Status != EvalStatusInProgress {
				return s.ep.Clone(), true
			}
		}
		c.mu.RLock()
		stopped := c.stopWaiting
		c.mu.RUnlock()
		if stopped {
			return nil, false
		}
		s.cond.Wait()
	}
}

// SetStopWaiting marks the cache as "no more results will arrive" and
// releases every thread currently blocked in WaitForResult.
func (c *Cache) SetStopWaiting() {
	c.mu.Lock()
	c.stopWaiting = true
	var slots []*cacheSlot
	for _, s := range c.slots {
		slots = append(slots, s)
	}
	c.mu.Unlock()
	for _, s := range slots {
		s.cond.Broadcast()
	}
}

// Find returns an exact lookup of p. A miss never reserves a slot.
func (c *Cache) Find(p Point) (*EvalPoint, bool) {
	key := cacheKey(p)
	c.mu.RLock()
	s, existed := c.slots[key]
	c.mu.RUnlock()
	if !existed {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ep == nil {
		return nil, false
	}
	return s.ep.Clone(), true
}

// FindPredicate streams all cached points matching pred.
func (c *Cache) FindPredicate(pred func(*EvalPoint) bool) []*EvalPoint {
	return c.findPreFiltered(nil, pred)
}

// findPreFiltered applies prefilter first (on the raw, un-transformed
// point) to avoid any subspace conversion for candidates that would be
// rejected outright, then pred on the full candidate.
func (c *Cache) findPreFiltered(prefilter, pred func(*EvalPoint) bool) []*EvalPoint {
	c.mu.RLock()
	slots := make([]*cacheSlot, 0, len(c.slots))
	for _, s := range c.slots {
		slots = append(slots, s)
	}
	c.mu.RUnlock()

	// Predicates run on a clone taken under the slot lock: a predicate
	// reading f/h may trigger a lazy recompute, which must never mutate
	// the canonical cached record outside its lock.
	var out []*EvalPoint
	for _, s := range slots {
		s.mu.Lock()
		var ep *EvalPoint
		if s.ep != nil {
			ep = s.ep.Clone()
		}
		s.mu.Unlock()
		if ep == nil {
			continue
		}
		if prefilter != nil && !prefilter(ep) {
			continue
		}
		if pred == nil || pred(ep) {
			out = append(out, ep)
		}
	}
	return out
}

// FindPreFilter is the public two-predicate form: prefilter is evaluated
// against the raw cached EvalPoint (cheap, full-space check) before pred
// runs (which may be an expensive subspace-aware predicate).
func (c *Cache) FindPreFilter(prefilter, pred func(*EvalPoint) bool) []*EvalPoint {
	return c.findPreFiltered(prefilter, pred)
}

// FindInSubspace pre-filters to points whose coordinates agree with the
// fixed (defined) entries of mask, before running pred.
func (c *Cache) FindInSubspace(mask Point, pred func(*EvalPoint) bool) []*EvalPoint {
	prefilter := func(ep *EvalPoint) bool {
		if len(ep.Vec) != len(mask.Vec) {
			return false
		}
		for i, m := range mask.Vec {
			if m.IsDefined() && !ep.Vec[i].Equal(m) {
				return false
			}
		}
		return true
	}
	return c.findPreFiltered(prefilter, pred)
}

// FindBestFeas returns all cached feasible points (h==0) tied for minimal
// f under rule. If reference is non-nil, only candidates strictly better
// than it are returned.
func (c *Cache) FindBestFeas(rule ComputeRule, kind EvalKind, reference *EvalPoint) []*EvalPoint {
	candidates := c.findPreFiltered(nil, func(ep *EvalPoint) bool {
		e := ep.Eval(kind)
		if e == nil || e.Status != EvalStatusOK {
			return false
		}
		return e.IsFeasible(rule)
	})
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0].F(rule)
	for _, ep := range candidates[1:] {
		if f := ep.F(rule); f.Less(best) {
			best = f
		}
	}
	var out []*EvalPoint
	for _, ep := range candidates {
		if ep.F(rule).Equal(best) {
			if reference != nil && !ep.F(rule).Less(reference.F(rule)) {
				continue
			}
			out = append(out, ep)
		}
	}
	return out
}

// FindBestInf returns the non-dominated infeasible candidates (0 < h <=
// hMax) in (f, h): p dominates q if p.f<=q.f and p.h<=q.h with one strict.
func (c *Cache) FindBestInf(hMax Dbl, rule ComputeRule, kind EvalKind, reference *EvalPoint) []*EvalPoint {
	candidates := c.findPreFiltered(nil, func(ep *EvalPoint) bool {
		e := ep.Eval(kind)
		if e == nil || e.Status != EvalStatusOK {
			return false
		}
		h := e.H(rule)
		return h.IsDefined() && h.Greater(D(0)) && h.LessEq(hMax)
	})
	var nonDominated []*EvalPoint
	for _, p := range candidates {
		dominated := false
		for _, q := range candidates {
			if p == q {
				continue
			}
			if dominates(q, p, rule) {
				dominated = true
				break
			}
		}
		if !dominated {
			if reference != nil && !(p.F(rule).Less(reference.F(rule)) || p.H(rule).Less(reference.H(rule))) {
				continue
			}
			nonDominated = append(nonDominated, p)
		}
	}
	return nonDominated
}

func dominates(a, b *EvalPoint, rule ComputeRule) bool {
	fa, fb := a.F(rule), b.F(rule)
	ha, hb := a.H(rule), b.H(rule)
	if !fa.IsDefined() || !fb.IsDefined() || !ha.IsDefined() || !hb.IsDefined() {
		return false
	}
	leq := fa.LessEq(fb) && ha.LessEq(hb)
	strict := fa.Less(fb) || ha.Less(hb)
	return leq && strict
}

// ProcessOnAllPoints applies fn to every cached point's Eval under an
// exclusive lock, used after switching the active ComputeRule to
// invalidate cached f/h values.
func (c *Cache) ProcessOnAllPoints(fn func(*EvalPoint)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.slots {
		s.mu.Lock()
		if s.ep != nil {
			fn(s.ep)
		}
		s.mu.Unlock()
	}
}

// Len returns the number of distinct points in the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}
