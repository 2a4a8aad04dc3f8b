package nomad

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskCachePutGetRoundTrip(t *testing.T) {
	rule := NewStandardComputeRule()
	types := []BBOutputType{BBOutputObj, BBOutputPB}

	dc, err := OpenDiskCache(filepath.Join(t.TempDir(), "cache.db"), types, rule)
	require.NoError(t, err)
	defer dc.Close()

	ep := NewEvalPoint(NewPoint(1.5, -2.25))
	ep.SetEval(EvalKindBB, NewEval(EvalStatusOK, "3.75 -1", types, rule))
	require.NoError(t, dc.Put(ep, EvalKindBB))

	got, ok, err := dc.Get(NewPoint(1.5, -2.25))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Point.Equal(ep.Point))
	assert.Equal(t, "3.75 -1", got.Eval(EvalKindBB).RawOutputs)
	assert.True(t, got.F(rule).Equal(ep.F(rule)))

	_, ok, err = dc.Get(NewPoint(9, 9))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskCacheFlushAndLoadInto(t *testing.T) {
	rule := NewStandardComputeRule()
	types := []BBOutputType{BBOutputObj, BBOutputPB}
	path := filepath.Join(t.TempDir(), "cache.db")

	cache := NewCache()
	for i := 0; i < 10; i++ {
		p := NewPoint(float64(i), float64(i)/2)
		cache.SmartInsert(p, 1, EvalKindBB)
		cache.Update(p, EvalKindBB, NewEval(EvalStatusOK, ftoa(float64(i))+" 0", types, rule))
	}

	dc, err := OpenDiskCache(path, types, rule)
	require.NoError(t, err)
	n, err := dc.Flush(cache)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	require.NoError(t, dc.Close())

	// restart: replay into a fresh in-memory cache
	dc2, err := OpenDiskCache(path, types, rule)
	require.NoError(t, err)
	defer dc2.Close()

	restored := NewCache()
	n, err = dc2.LoadInto(restored)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	for i := 0; i < 10; i++ {
		p := NewPoint(float64(i), float64(i)/2)
		got, ok := restored.Find(p)
		require.True(t, ok)
		assert.True(t, got.F(rule).EqualEps(D(float64(i)), DefaultEps))
	}
}
