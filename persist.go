package nomad

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteHistoryLine appends one history record (spec §6 "History line"): the
// point's coordinates in full precision, whitespace-separated, followed by
// the raw blackbox output for the BB eval. History is append-only; callers
// open w in append mode.
func WriteHistoryLine(w io.Writer, ep *EvalPoint) error {
	e := ep.Eval(EvalKindBB)
	raw := ""
	if e != nil {
		raw = e.RawOutputs
	}
	_, err := fmt.Fprintf(w, "%s %s\n", ep.Point.String(), raw)
	return err
}

// WriteSolutionFile rewrites the solution file in full on each best-feasible
// improvement (spec §6 "Solution file"): the same record shape as one
// history line for the current best feasible point, or a textual marker
// when no feasible solution exists yet.
func WriteSolutionFile(w io.Writer, best *EvalPoint) error {
	if best == nil {
		_, err := fmt.Fprintln(w, "No best feasible solution at this iteration.")
		return err
	}
	return WriteHistoryLine(w, best)
}

// cacheRecord formats one `( x1 x2 ... xn ) STATUS ( o1 o2 ... om )`
// record (spec §6 "Cache file"), shared by the text cache file and the
// DiskCache's stored values so both round-trip identically.
func cacheRecord(p *EvalPoint, kind EvalKind) (string, bool) {
	e := p.Eval(kind)
	if e == nil {
		return "", false
	}
	return fmt.Sprintf("( %s ) %s ( %s )", coordsOnly(p.Point), e.Status, e.RawOutputs), true
}

// WriteCacheFile writes every evaluated point in points as one record per
// line (spec §6 "Cache file"), using kind's Eval on each point. Points
// lacking an Eval of that kind are skipped.
func WriteCacheFile(w io.Writer, points []*EvalPoint, kind EvalKind) error {
	for _, p := range points {
		rec, ok := cacheRecord(p, kind)
		if !ok {
			continue
		}
		if _, err := fmt.Fprintln(w, rec); err != nil {
			return err
		}
	}
	return nil
}

func coordsOnly(p Point) string {
	var b strings.Builder
	for i, d := range p.Vec {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(d.String())
	}
	return b.String()
}

// ReadCacheFile parses a cache file written by WriteCacheFile into a fresh
// Cache, recomputing f/h under rule against the given output-type list
// (dimension and BB_OUTPUT_TYPE are configured externally, per spec §6).
func ReadCacheFile(r io.Reader, types []BBOutputType, rule ComputeRule) (*Cache, error) {
	cache := NewCache()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ep, err := parseCacheLine(line, types, rule)
		if err != nil {
			return nil, fmt.Errorf("nomad: cache file line %d: %w", lineNo, err)
		}
		cache.Update(ep.Point, EvalKindBB, ep.Eval(EvalKindBB))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cache, nil
}

func parseCacheLine(line string, types []BBOutputType, rule ComputeRule) (*EvalPoint, error) {
	openCoords := strings.IndexByte(line, '(')
	closeCoords := strings.IndexByte(line, ')')
	if openCoords < 0 || closeCoords < 0 || closeCoords < openCoords {
		return nil, fmt.Errorf("malformed record: %q", line)
	}
	coordFields := strings.Fields(line[openCoords+1 : closeCoords])
	vals := make([]float64, len(coordFields))
	for i, f := range coordFields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad coordinate %q: %w", f, err)
		}
		vals[i] = v
	}
	rest := strings.TrimSpace(line[closeCoords+1:])
	statusEnd := strings.IndexByte(rest, '(')
	if statusEnd < 0 {
		return nil, fmt.Errorf("malformed record, missing outputs: %q", line)
	}
	statusStr := strings.TrimSpace(rest[:statusEnd])
	status, err := parseStatus(statusStr)
	if err != nil {
		return nil, err
	}
	outOpen := strings.IndexByte(rest, '(')
	outClose := strings.LastIndexByte(rest, ')')
	if outOpen < 0 || outClose < 0 || outClose < outOpen {
		return nil, fmt.Errorf("malformed outputs: %q", line)
	}
	rawOutputs := strings.TrimSpace(rest[outOpen+1 : outClose])

	ep := NewEvalPoint(NewPoint(vals...))
	ep.SetEval(EvalKindBB, NewEval(status, rawOutputs, types, rule))
	return ep, nil
}

func parseStatus(s string) (EvalStatusType, error) {
	switch s {
	case "EVAL_OK":
		return EvalStatusOK, nil
	case "EVAL_FAILED":
		return EvalStatusFail, nil
	case "EVAL_CONS_H_OVER":
		return EvalStatusConsHOver, nil
	default:
		return EvalStatusUndefined, fmt.Errorf("unknown cache STATUS %q", s)
	}
}

// WriteBarrierFile writes a barrier snapshot (spec §6 "Barrier file"): one
// `X_FEAS <point> <status> <rawOutputs>` line per feasible member, one
// `X_INF ...` line per infeasible member, and a final `H_MAX <value>` line.
func WriteBarrierFile(w io.Writer, b *ProgressiveBarrier) error {
	for _, p := range b.XFeas {
		if err := writeBarrierPoint(w, "X_FEAS", p); err != nil {
			return err
		}
	}
	for _, p := range b.XInf {
		if err := writeBarrierPoint(w, "X_INF", p); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "H_MAX %s\n", b.HMax.String())
	return err
}

func writeBarrierPoint(w io.Writer, tag string, p *EvalPoint) error {
	e := p.Eval(EvalKindBB)
	status, raw := EvalStatusOK, ""
	if e != nil {
		status, raw = e.Status, e.RawOutputs
	}
	_, err := fmt.Fprintf(w, "%s ( %s ) %s ( %s )\n", tag, coordsOnly(p.Point), status, raw)
	return err
}

// ReadBarrierFile parses a barrier file written by WriteBarrierFile,
// reconstructing a ProgressiveBarrier under rule. types describes the
// output layout needed to recompute f/h, exactly as in ReadCacheFile.
func ReadBarrierFile(r io.Reader, types []BBOutputType, rule ComputeRule) (*ProgressiveBarrier, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var feas, inf []*EvalPoint
	hMax := PosInf()
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		tag := fields[0]
		if tag == "H_MAX" {
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
			if err != nil {
				return nil, fmt.Errorf("nomad: barrier file line %d: bad H_MAX: %w", lineNo, err)
			}
			hMax = D(v)
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("nomad: barrier file line %d: malformed record %q", lineNo, line)
		}
		ep, err := parseCacheLine(fields[1], types, rule)
		if err != nil {
			return nil, fmt.Errorf("nomad: barrier file line %d: %w", lineNo, err)
		}
		switch tag {
		case "X_FEAS":
			feas = append(feas, ep)
		case "X_INF":
			inf = append(inf, ep)
		default:
			return nil, fmt.Errorf("nomad: barrier file line %d: unknown tag %q", lineNo, tag)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	b := NewProgressiveBarrier(rule, hMax)
	b.UpdateWithPoints(append(append([]*EvalPoint{}, feas...), inf...), true)
	return b, nil
}
