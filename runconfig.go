package nomad

import "fmt"

// Variant selects which top-level driver consumes a RunConfig (spec §4.7).
type Variant int

const (
	VariantMads Variant = iota
	VariantCoop
	VariantPSD
	VariantSSD
)

// ConfigError is returned by NewRunConfig for invalid combinations of
// options, per spec §7 "Configuration ... Fatal at boot".
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "nomad: configuration error: " + e.Msg }

// RunConfig collects the §6 configuration surface this core cares about.
// It is built with functional options exactly like the teacher's
// pattern.Option mechanism (pattern.Option func(*Method)) rather than a
// parsed text format — BB_EXE-style parameter files remain out of scope.
type RunConfig struct {
	BBOutputTypes []BBOutputType
	LowerBound    Vec
	UpperBound    Vec
	Granularity   Vec

	X0 []Point

	HMax0 Dbl

	MaxBBEval       int
	MaxEval         int
	MaxIterations   int
	MaxNoImprove    int
	MinMeshSize     Vec

	Opportunistic  bool
	EvalQueueClear bool
	BBMaxBlockSize int

	AnisotropyFactor float64
	AnisotropicMesh  bool

	FrameCenterUseCache bool
	StopIfFeasible      bool

	Variant Variant

	PSDNbSubproblem     int
	PSDNbVarInSubproblem int
	CoopNbProblem       int
	SSDNbSubproblem     int

	// ModelRadiusFactor, SgtelibMinPointsForModel and
	// SgtelibMaxPointsForModel are accepted and forwarded to search-method
	// plug-ins without being interpreted by the core (spec §6).
	ModelRadiusFactor        float64
	SgtelibMinPointsForModel int
	SgtelibMaxPointsForModel int
}

type Option func(*RunConfig)

func WithBBOutputTypes(types ...BBOutputType) Option {
	return func(c *RunConfig) { c.BBOutputTypes = types }
}

func WithBounds(lb, ub Vec) Option {
	return func(c *RunConfig) { c.LowerBound, c.UpperBound = lb, ub }
}

func WithGranularity(g Vec) Option { return func(c *RunConfig) { c.Granularity = g } }

func WithX0(points ...Point) Option { return func(c *RunConfig) { c.X0 = points } }

func WithHMax0(h Dbl) Option { return func(c *RunConfig) { c.HMax0 = h } }

func WithMaxBBEval(n int) Option { return func(c *RunConfig) { c.MaxBBEval = n } }
func WithMaxEval(n int) Option   { return func(c *RunConfig) { c.MaxEval = n } }
func WithMaxIterations(n int) Option { return func(c *RunConfig) { c.MaxIterations = n } }
func WithMinMeshSize(v Vec) Option   { return func(c *RunConfig) { c.MinMeshSize = v } }

func WithOpportunisticEval(b bool) Option { return func(c *RunConfig) { c.Opportunistic = b } }
func WithEvalQueueClear(b bool) Option    { return func(c *RunConfig) { c.EvalQueueClear = b } }
func WithBBMaxBlockSize(n int) Option     { return func(c *RunConfig) { c.BBMaxBlockSize = n } }

func WithAnisotropicMesh(factor float64) Option {
	return func(c *RunConfig) { c.AnisotropicMesh = true; c.AnisotropyFactor = factor }
}

func WithFrameCenterUseCache(b bool) Option { return func(c *RunConfig) { c.FrameCenterUseCache = b } }
func WithStopIfFeasible(b bool) Option      { return func(c *RunConfig) { c.StopIfFeasible = b } }

func WithVariant(v Variant) Option { return func(c *RunConfig) { c.Variant = v } }

func WithPSD(nbSubproblem, nbVarInSubproblem int) Option {
	return func(c *RunConfig) {
		c.PSDNbSubproblem = nbSubproblem
		c.PSDNbVarInSubproblem = nbVarInSubproblem
	}
}

func WithCoopNbProblem(n int) Option { return func(c *RunConfig) { c.CoopNbProblem = n } }
func WithSSDNbSubproblem(n int) Option { return func(c *RunConfig) { c.SSDNbSubproblem = n } }

func WithModelRadiusFactor(f float64) Option { return func(c *RunConfig) { c.ModelRadiusFactor = f } }
func WithSgtelibPointBounds(min, max int) Option {
	return func(c *RunConfig) {
		c.SgtelibMinPointsForModel = min
		c.SgtelibMaxPointsForModel = max
	}
}

// NewRunConfig applies opts over sane defaults and validates the result
// eagerly, returning a *ConfigError for any fatal inconsistency (spec §7).
func NewRunConfig(opts ...Option) (*RunConfig, error) {
	c := &RunConfig{
		HMax0:          PosInf(),
		BBMaxBlockSize: 1,
		Variant:        VariantMads,
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.BBOutputTypes) == 0 {
		c.BBOutputTypes = []BBOutputType{BBOutputObj}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RunConfig) validate() error {
	if len(c.X0) == 0 {
		return &ConfigError{Msg: "X0 is empty; an external cache must supply the initial incumbent(s) instead"}
	}
	dim := c.X0[0].Len()
	for _, x := range c.X0 {
		if x.Len() != dim {
			return &ConfigError{Msg: "X0 points have inconsistent dimension"}
		}
	}
	if len(c.LowerBound) != 0 && len(c.LowerBound) != dim {
		return &ConfigError{Msg: fmt.Sprintf("LOWER_BOUND dimension %d != problem dimension %d", len(c.LowerBound), dim)}
	}
	if len(c.UpperBound) != 0 && len(c.UpperBound) != dim {
		return &ConfigError{Msg: fmt.Sprintf("UPPER_BOUND dimension %d != problem dimension %d", len(c.UpperBound), dim)}
	}
	if c.Variant == VariantCoop && c.BBMaxBlockSize > 1 {
		return &ConfigError{Msg: "BB_MAX_BLOCK_SIZE must be 1 for COOP-MADS (block evaluations are forbidden)"}
	}
	if c.Variant == VariantPSD && (c.PSDNbSubproblem <= 0 || c.PSDNbVarInSubproblem <= 0) {
		return &ConfigError{Msg: "PSD_MADS_NB_SUBPROBLEM and PSD_MADS_NB_VAR_IN_SUBPROBLEM must be positive"}
	}
	if c.Variant == VariantSSD && c.SSDNbSubproblem <= 0 {
		return &ConfigError{Msg: "SSD_MADS_NB_SUBPROBLEM must be positive"}
	}
	if c.Variant == VariantCoop && c.CoopNbProblem <= 0 {
		return &ConfigError{Msg: "COOP_MADS_NB_PROBLEM must be positive"}
	}
	return nil
}

// NewRunConfigFromCache builds a RunConfig whose X0 is one point taken from
// a pre-populated cache (spec S2 scenario), returning a *ConfigError when
// the cache is empty. NewRunConfig itself always requires X0 (the simplest
// boot contract); callers seeding purely from a cache use this instead.
func NewRunConfigFromCache(cache *Cache, opts ...Option) (*RunConfig, error) {
	any := cache.FindPredicate(func(ep *EvalPoint) bool { return true })
	if len(any) == 0 {
		return nil, &ConfigError{Msg: "no X0 and empty cache: nothing to seed the barrier from"}
	}
	opts = append([]Option{WithX0(any[0].Point)}, opts...)
	return NewRunConfig(opts...)
}
