// Command nomad-solve drives the core optimizer against either an external
// BB_EXE-style executable or the built-in sphere function, mirroring the
// teacher's cmd/pswarmdriver: a flag-configured driver that wires a
// RunConfig straight into the optimizer and writes results to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/bbopt/nomad-sub004"
	"github.com/bbopt/nomad-sub004/coop"
	"github.com/bbopt/nomad-sub004/mads"
	"github.com/bbopt/nomad-sub004/psd"
	"github.com/bbopt/nomad-sub004/queue"
	"github.com/bbopt/nomad-sub004/ssd"
)

var (
	bbExe        = flag.String("bbexe", "", "path to an external BB_EXE executable; empty runs the built-in sphere demo")
	x0Str        = flag.String("x0", "1,1,1,1", "comma-separated starting point")
	maxBBEval    = flag.Int("maxbbeval", 2000, "max number of blackbox evaluations per main thread")
	maxIter      = flag.Int("maxiter", 0, "max number of mega-iterations (0 => unbounded)")
	maxNoImprove = flag.Int("maxnoimprove", 0, "stop after this many iterations with no improvement (0 => infinite)")
	variant      = flag.String("variant", "mads", "one of mads, coop, psd, ssd")
	nbProblem    = flag.Int("nbproblem", 4, "COOP: number of independent instances; PSD/SSD: number of subproblems")
	nbVarInSub   = flag.Int("nbvarinsub", 2, "PSD/SSD: number of variables per subproblem")
	solutionOut  = flag.String("sol", "solution.txt", "file to write the incumbent solution to")
	historyOut   = flag.String("hist", "", "optional append-only history file, one line per evaluation")
	cacheDB      = flag.String("cachedb", "", "optional on-disk cache store; seeded at boot, flushed at exit")
)

func parseX0(s string) nomad.Point {
	fields := strings.Split(s, ",")
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			log.Fatalf("nomad-solve: invalid -x0 coordinate %q: %v", f, err)
		}
		vals[i] = v
	}
	return nomad.NewPoint(vals...)
}

func newRng(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

func sphereBB() nomad.Blackbox {
	return nomad.BlackboxFunc(func(ctx context.Context, p nomad.Point) (string, bool, error) {
		sum := 0.0
		for _, d := range p.Vec {
			sum += d.Value() * d.Value()
		}
		return fmt.Sprintf("%g 0", sum), true, nil
	})
}

func main() {
	flag.Parse()

	x0 := parseX0(*x0Str)
	dim := x0.Len()

	types := []nomad.BBOutputType{nomad.BBOutputObj, nomad.BBOutputPB}
	cfg, err := nomad.NewRunConfig(
		nomad.WithBBOutputTypes(types...),
		nomad.WithX0(x0),
		nomad.WithMaxBBEval(*maxBBEval),
		nomad.WithMaxIterations(*maxIter),
		nomad.WithOpportunisticEval(true),
	)
	if err != nil {
		log.Fatalf("nomad-solve: %v", err)
	}
	cfg.MaxNoImprove = *maxNoImprove

	var bb nomad.Blackbox
	if *bbExe != "" {
		bb = nomad.NewExecBlackbox(*bbExe)
	} else {
		bb = sphereBB()
	}

	rule := nomad.NewStandardComputeRule()
	cache := nomad.NewCache()
	reasons := nomad.NewStopReasons()
	l := nomad.NewLogger(os.Stderr)

	ec := queue.New(bb, cache, rule, types)
	ec.Log = l
	ec.MaxWorkers = 4
	ec.BBMaxBlockSize = cfg.BBMaxBlockSize
	ec.EvalQueueClear = cfg.EvalQueueClear
	if *historyOut != "" {
		hf, err := os.OpenFile(*historyOut, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("nomad-solve: %v", err)
		}
		defer hf.Close()
		ec.History = hf
	}

	var dc *nomad.DiskCache
	if *cacheDB != "" {
		var err error
		dc, err = nomad.OpenDiskCache(*cacheDB, types, rule)
		if err != nil {
			log.Fatalf("nomad-solve: %v", err)
		}
		defer dc.Close()
		n, err := dc.LoadInto(cache)
		if err != nil {
			log.Fatalf("nomad-solve: %v", err)
		}
		l.Info().Int("points", n).Str("path", *cacheDB).Msg("cache seeded from disk")
	}

	frame0 := make(nomad.Vec, dim)
	for i := range frame0 {
		frame0[i] = nomad.D(1)
	}

	best := runToCompletion(cfg, ec, x0, frame0, rule, cache, reasons)

	if dc != nil {
		if _, err := dc.Flush(cache); err != nil {
			log.Fatalf("nomad-solve: %v", err)
		}
	}

	f, err := os.Create(*solutionOut)
	if err != nil {
		log.Fatalf("nomad-solve: %v", err)
	}
	defer f.Close()
	if err := nomad.WriteSolutionFile(f, best); err != nil {
		log.Fatalf("nomad-solve: %v", err)
	}
	l.Info().Str("file", *solutionOut).Msg("solution written")
}

func newMadsInstance(cfg *nomad.RunConfig, ec *queue.EvaluatorControl, x0 nomad.Point, frame0 nomad.Vec, rule nomad.ComputeRule, cache *nomad.Cache, reasons *nomad.StopReasons, poller *mads.Poller) *mads.MegaIteration {
	barrier := nomad.NewProgressiveBarrier(rule, cfg.HMax0)
	mesh := nomad.NewMesh(frame0, cfg.Granularity)
	mi := mads.New(barrier, mesh, rule, cache, ec, reasons)
	mi.Poller = poller
	mi.MT.MaxBBEval = cfg.MaxBBEval
	mi.MT.Opportunistic = cfg.Opportunistic
	mi.MaxIterations = cfg.MaxIterations
	mi.MaxNoImprove = cfg.MaxNoImprove
	mi.LowerBound, mi.UpperBound = cfg.LowerBound, cfg.UpperBound
	mi.Initialize(context.Background(), x0)
	return mi
}

func runToCompletion(cfg *nomad.RunConfig, ec *queue.EvaluatorControl, x0 nomad.Point, frame0 nomad.Vec, rule nomad.ComputeRule, cache *nomad.Cache, reasons *nomad.StopReasons) *nomad.EvalPoint {
	ctx := context.Background()

	switch *variant {
	case "coop":
		runner, err := coop.NewRunner(*nbProblem, ec, rule, reasons)
		if err != nil {
			log.Fatalf("nomad-solve: %v", err)
		}
		instances := make([]*coop.Instance, *nbProblem)
		for i := range instances {
			poller := mads.NewPoller(mads.Compass2N{}, newRng(int64(i)))
			mesh := nomad.NewMesh(frame0, cfg.Granularity)
			instances[i] = runner.BuildInstance(ctx, x0, mesh, poller)
			instances[i].MI.MT.MaxBBEval = cfg.MaxBBEval
			instances[i].MI.MT.Opportunistic = cfg.Opportunistic
			instances[i].MI.MaxIterations = cfg.MaxIterations
			instances[i].MI.MaxNoImprove = cfg.MaxNoImprove
		}
		for !coop.AllDone(instances) {
			if err := runner.RunOnce(ctx, instances); err != nil {
				log.Fatalf("nomad-solve: %v", err)
			}
		}
		return coop.BestAcrossSiblings(instances, rule)

	case "psd":
		runner, err := psd.NewRunner(*nbProblem, *nbVarInSub, x0.Len(), ec, rule, reasons)
		if err != nil {
			log.Fatalf("nomad-solve: %v", err)
		}
		pollster := newMadsInstance(cfg, ec, x0, frame0, rule, cache, reasons, mads.NewPoller(&mads.RandomN{N: 1}, newRng(1)))
		pollster.FreezeMesh = true
		for {
			if _, done := pollster.Done(); done {
				break
			}
			center := pollster.Barrier.BestFrameCenter()
			subs := make([]*psd.SubproblemInstance, *nbProblem)
			for i := range subs {
				subs[i] = runner.BuildSubproblem(ctx, center.Point, pollster.Mesh.FrameSize)
			}
			if _, err := runner.RunRound(ctx, pollster, subs); err != nil {
				log.Fatalf("nomad-solve: %v", err)
			}
		}
		return pollster.Barrier.BestFrameCenter()

	case "ssd":
		runner, err := ssd.NewRunner(*nbProblem, ec, rule, reasons)
		if err != nil {
			log.Fatalf("nomad-solve: %v", err)
		}
		pollster := newMadsInstance(cfg, ec, x0, frame0, rule, cache, reasons, mads.NewPoller(mads.Compass2N{}, newRng(1)))
		build := func(ctx context.Context, best nomad.Point, frameSize nomad.Vec) *ssd.SubproblemInstance {
			return runner.BuildSubproblem(ctx, best, frameSize, *nbVarInSub)
		}
		for {
			if _, done := pollster.Done(); done {
				break
			}
			if _, err := runner.RunRound(ctx, pollster, build); err != nil {
				log.Fatalf("nomad-solve: %v", err)
			}
		}
		return pollster.Barrier.BestFrameCenter()

	default:
		mi := newMadsInstance(cfg, ec, x0, frame0, rule, cache, reasons, mads.NewDensePoller(mads.Ortho2N{}, newRng(1)))
		for {
			if _, done := mi.Done(); done {
				break
			}
			if _, err := mi.RunIteration(ctx); err != nil {
				log.Fatalf("nomad-solve: %v", err)
			}
		}
		return mi.Barrier.BestFrameCenter()
	}
}
