package nomad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDblEqualEps(t *testing.T) {
	a := D(1.0)
	b := D(1.0 + 1e-14)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(D(1.1)))
	assert.False(t, Undef().Equal(Undef()))
}

func TestDblArithmeticPropagatesUndefined(t *testing.T) {
	assert.False(t, Undef().Add(D(1)).IsDefined())
	assert.False(t, D(1).Add(Undef()).IsDefined())
	assert.True(t, D(1).Add(D(2)).Equal(D(3)))
}

func TestDblGranularity(t *testing.T) {
	assert.True(t, D(1.0).IsMultipleOf(D(0.5)))
	assert.False(t, D(1.2).IsMultipleOf(D(0.5)))
	assert.True(t, D(1.2).IsMultipleOf(Undef()))
	assert.Equal(t, 1.0, D(0.9).SnapToGranularity(D(0.5)).Value())
}

func TestVecSnapToBounds(t *testing.T) {
	v := NewVec(-1, 5, 3)
	lb := NewVec(0, 0, 0)
	ub := NewVec(10, 4, 10)
	out := v.SnapToBounds(lb, ub)
	require.Equal(t, 3, len(out))
	assert.Equal(t, 0.0, out[0].Value())
	assert.Equal(t, 4.0, out[1].Value())
	assert.Equal(t, 3.0, out[2].Value())
}

func TestVecDimensionMismatchPanics(t *testing.T) {
	a := NewVec(1, 2)
	b := NewVec(1, 2, 3)
	assert.Panics(t, func() { a.Add(b) })
}

func TestPointEqual(t *testing.T) {
	p1 := NewPoint(1, 2, 3)
	p2 := NewPoint(1, 2, 3)
	assert.True(t, p1.Equal(p2))
	p3 := p1.Clone()
	p3.Vec[0] = D(99)
	assert.False(t, p1.Equal(p3))
}
