package nomad

import "math"

const (
	DefaultRefineFactor  = 0.5
	DefaultEnlargeFactor = 2.0
)

// Mesh is the two-level discrete grid from spec §3/§4.3: a fine mesh size
// δ bounding how finely trial points are discretized, and a coarser frame
// size Δ bounding how far Poll/Search reach from the frame center. The
// granular-mesh law (δ_i = min(Δ_i², Δ_i), clipped to granularity) is the
// default "concrete mesh law" the spec references.
type Mesh struct {
	MeshSize  Vec // δ
	FrameSize Vec // Δ

	Granularity Vec
	MinFrameSize Vec
	MaxFrameSize Vec

	RefineFactor  float64
	EnlargeFactor float64

	AnisotropyFactor float64
	AnisotropicMesh  bool

	initialFrameSize Vec
}

// NewMesh builds a granular mesh with per-coordinate initial frame size
// delta0 and granularity. MeshSize is derived immediately via
// UpdateMeshFromFrame.
func NewMesh(frameSize0, granularity Vec) *Mesh {
	m := &Mesh{
		FrameSize:        frameSize0.Clone(),
		Granularity:      granularity.Clone(),
		RefineFactor:     DefaultRefineFactor,
		EnlargeFactor:    DefaultEnlargeFactor,
		AnisotropyFactor: 0.1,
		initialFrameSize: frameSize0.Clone(),
	}
	m.UpdateMeshFromFrame()
	return m
}

// UpdateMeshFromFrame recomputes δ from Δ using the default granular mesh
// law: δ_i = min(Δ_i², Δ_i), clipped (rounded) to granularity_i.
func (m *Mesh) UpdateMeshFromFrame() {
	out := make(Vec, len(m.FrameSize))
	for i, d := range m.FrameSize {
		if !d.IsDefined() {
			out[i] = Undef()
			continue
		}
		v := d.Value()
		sq := v * v
		step := math.Min(sq, v)
		out[i] = D(step)
		if i < len(m.Granularity) {
			out[i] = out[i].SnapToGranularity(m.Granularity[i])
			if out[i].Value() == 0 && m.Granularity[i].IsDefined() && m.Granularity[i].Value() > 0 {
				out[i] = m.Granularity[i]
			}
		}
	}
	m.MeshSize = out
}

// RefineFrame multiplies every Δ component by RefineFactor and recomputes
// δ (spec §4.3 refineΔ()).
func (m *Mesh) RefineFrame() {
	rf := m.RefineFactor
	if rf == 0 {
		rf = DefaultRefineFactor
	}
	for i := range m.FrameSize {
		if m.FrameSize[i].IsDefined() {
			m.FrameSize[i] = m.FrameSize[i].Mul(D(rf))
		}
	}
	m.clampFrame()
	m.UpdateMeshFromFrame()
}

// EnlargeFrame grows Δ following a successful direction dir. If
// anisotropic mesh scaling is enabled and some coordinate i's normalized
// step |dir_i|/Δ_i exceeds anisoFactor times the max normalized step
// across coordinates, only that coordinate is enlarged; otherwise every
// coordinate is enlarged uniformly. Returns true iff at least one
// coordinate actually grew.
func (m *Mesh) EnlargeFrame(dir Direction, anisoFactor float64, useAniso bool) bool {
	ef := m.EnlargeFactor
	if ef == 0 {
		ef = DefaultEnlargeFactor
	}
	before := m.FrameSize.Clone()
	grewSince := func() bool {
		for i := range m.FrameSize {
			if i < len(before) && m.FrameSize[i].Greater(before[i]) {
				return true
			}
		}
		return false
	}

	if useAniso && len(dir.Vec) == len(m.FrameSize) {
		maxNorm := 0.0
		norms := make([]float64, len(dir.Vec))
		for i, x := range dir.Vec {
			if !x.IsDefined() || !m.FrameSize[i].IsDefined() || m.FrameSize[i].Value() == 0 {
				continue
			}
			norms[i] = math.Abs(x.Value()) / m.FrameSize[i].Value()
			if norms[i] > maxNorm {
				maxNorm = norms[i]
			}
		}
		grew := false
		for i := range m.FrameSize {
			if norms[i] > anisoFactor*maxNorm && maxNorm > 0 {
				m.FrameSize[i] = m.FrameSize[i].Mul(D(ef))
				grew = true
			}
		}
		if grew {
			m.clampFrame()
			m.UpdateMeshFromFrame()
			return grewSince()
		}
	}

	for i := range m.FrameSize {
		if m.FrameSize[i].IsDefined() {
			m.FrameSize[i] = m.FrameSize[i].Mul(D(ef))
		}
	}
	m.clampFrame()
	m.UpdateMeshFromFrame()
	return grewSince()
}

func (m *Mesh) clampFrame() {
	for i := range m.FrameSize {
		if i < len(m.MinFrameSize) && m.MinFrameSize[i].IsDefined() && m.FrameSize[i].Less(m.MinFrameSize[i]) {
			m.FrameSize[i] = m.MinFrameSize[i]
		}
		if i < len(m.MaxFrameSize) && m.MaxFrameSize[i].IsDefined() && m.FrameSize[i].Greater(m.MaxFrameSize[i]) {
			m.FrameSize[i] = m.MaxFrameSize[i]
		}
	}
}

// ProjectOnMesh returns the nearest mesh grid point to p relative to
// center, using per-coordinate step δ.
func (m *Mesh) ProjectOnMesh(p Point, center Point) Point {
	p.mustMatch(center.Vec)
	p.mustMatch(m.MeshSize)

	out := make(Vec, len(p.Vec))
	for i := range p.Vec {
		step := m.MeshSize[i]
		if !step.IsDefined() || step.Value() == 0 || !p.Vec[i].IsDefined() || !center.Vec[i].IsDefined() {
			out[i] = p.Vec[i]
			continue
		}
		rel := p.Vec[i].Value() - center.Vec[i].Value()
		n := math.Round(rel / step.Value())
		out[i] = D(center.Vec[i].Value() + n*step.Value())
	}
	return Point{out}
}

// VerifyOnMesh reports whether p already lies on the mesh grid relative to
// center (within DefaultEps).
func (m *Mesh) VerifyOnMesh(p Point, center Point) bool {
	return m.ProjectOnMesh(p, center).Equal(p)
}

// IsFinerThanInitial reports whether every Δ (frame size) component is <=
// its value at construction time.
func (m *Mesh) IsFinerThanInitial() bool {
	for i := range m.FrameSize {
		if i >= len(m.initialFrameSize) {
			continue
		}
		if !m.initialFrameSize[i].IsDefined() || !m.FrameSize[i].IsDefined() {
			continue
		}
		if m.FrameSize[i].Greater(m.initialFrameSize[i]) {
			return false
		}
	}
	return true
}

// CheckStop sets StopMinMeshReached on reasons when every δ component is
// at or below minMeshSize.
func (m *Mesh) CheckStop(minMeshSize Vec, reasons *StopReasons) {
	if len(minMeshSize) == 0 {
		return
	}
	allBelow := true
	for i, d := range m.MeshSize {
		if i >= len(minMeshSize) || !minMeshSize[i].IsDefined() {
			allBelow = false
			break
		}
		if !d.IsDefined() || d.Greater(minMeshSize[i]) {
			allBelow = false
			break
		}
	}
	if allBelow {
		reasons.Set(StopMinMeshReached)
	}
}
