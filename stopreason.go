package nomad

import "sync"

// StopReasonKind enumerates the disjoint conditions that can end a run or
// a mesh's useful life (spec §4.4 termination predicate, §4.3 CheckStop).
type StopReasonKind int

const (
	StopNone StopReasonKind = iota
	StopMaxBBEval
	StopMaxEval
	StopMaxTime
	StopMaxIterations
	StopMinMeshReached
	StopStalled
	StopUserInterrupt
	StopFeasibleReached // Phase-One: STOP_IF_FEASIBLE satisfied
	StopOpportunisticSuccess
	StopAlgoSpecific
)

func (k StopReasonKind) String() string {
	switch k {
	case StopMaxBBEval:
		return "MAX_BB_EVAL_REACHED"
	case StopMaxEval:
		return "MAX_EVAL_REACHED"
	case StopMaxTime:
		return "MAX_TIME_REACHED"
	case StopMaxIterations:
		return "MAX_ITERATIONS_REACHED"
	case StopMinMeshReached:
		return "MIN_MESH_REACHED"
	case StopStalled:
		return "STALLED"
	case StopUserInterrupt:
		return "USER_INTERRUPT"
	case StopFeasibleReached:
		return "NO_FEAS_PT_CLEARED"
	case StopOpportunisticSuccess:
		return "OPPORTUNISTIC_SUCCESS"
	case StopAlgoSpecific:
		return "ALGO_SPECIFIC_STOP"
	default:
		return "NONE"
	}
}

// IsTerminal reports whether reaching this reason should end the whole
// run, as opposed to merely ending one iteration or one queue batch.
func (k StopReasonKind) IsTerminal() bool {
	switch k {
	case StopMaxBBEval, StopMaxEval, StopMaxTime, StopMaxIterations,
		StopMinMeshReached, StopStalled, StopUserInterrupt, StopAlgoSpecific:
		return true
	default:
		return false
	}
}

// StopReasons is shared, settable state: any component may raise a
// reason, callers query it explicitly rather than relying on unwinding
// (spec §4.6 "stop reasons bubble by explicit query, not by unwinding").
// One StopReasons instance exists per main (algorithm) thread; the queue
// keys per-main-thread stop flags by the *main_thread identity it was
// constructed with.
type StopReasons struct {
	mu      sync.RWMutex
	reasons map[StopReasonKind]bool
}

func NewStopReasons() *StopReasons {
	return &StopReasons{reasons: map[StopReasonKind]bool{}}
}

// Set raises reason (idempotent).
func (s *StopReasons) Set(reason StopReasonKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons[reason] = true
}

// Clear lowers reason, e.g. Phase-One clearing StopFeasibleReached once
// handled (spec S3 scenario: "NO_FEAS_PT cleared").
func (s *StopReasons) Clear(reason StopReasonKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reasons, reason)
}

// TestIf reports whether reason is currently raised.
func (s *StopReasons) TestIf(reason StopReasonKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reasons[reason]
}

// AnyTerminal reports whether any raised reason is run-terminal, and
// returns the first one found (order is unspecified among concurrently
// raised reasons, which is acceptable since termination is a disjunction).
func (s *StopReasons) AnyTerminal() (StopReasonKind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k := range s.reasons {
		if k.IsTerminal() {
			return k, true
		}
	}
	return StopNone, false
}

// Reset clears all reasons.
func (s *StopReasons) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = map[StopReasonKind]bool{}
}
