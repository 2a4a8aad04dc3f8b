package nomad

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// DiskCache is a persistent keyed store of evaluated points, used to carry
// a run's cache across process restarts. Records are keyed by the same
// epsilon-truncated coordinate hash the in-memory Cache uses, and valued
// as single spec-format cache records, so a DiskCache and a cache file
// round-trip the same bytes. Unlike a job store there is no eviction: a
// blackbox evaluation is never worth recomputing to save disk.
type DiskCache struct {
	db    *leveldb.DB
	types []BBOutputType
	rule  ComputeRule
}

// OpenDiskCache opens (or creates) the store at path; an empty path opens
// a volatile in-memory store, handy in tests. types and rule are the
// externally configured output layout and compute rule needed to rebuild
// f/h on read, exactly as for ReadCacheFile.
func OpenDiskCache(path string, types []BBOutputType, rule ComputeRule) (*DiskCache, error) {
	var db *leveldb.DB
	var err error
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("nomad: open disk cache %q: %w", path, err)
	}
	return &DiskCache{db: db, types: types, rule: rule}, nil
}

func (d *DiskCache) Close() error { return d.db.Close() }

// Put persists one evaluated point's record for kind; points lacking an
// Eval of that kind are ignored.
func (d *DiskCache) Put(ep *EvalPoint, kind EvalKind) error {
	rec, ok := cacheRecord(ep, kind)
	if !ok {
		return nil
	}
	key := cacheKey(ep.Point)
	return d.db.Put(key[:], []byte(rec), nil)
}

// Get looks up p's persisted record, returning ok=false on a clean miss.
func (d *DiskCache) Get(p Point) (*EvalPoint, bool, error) {
	key := cacheKey(p)
	data, err := d.db.Get(key[:], nil)
	if err == errors.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	ep, err := parseCacheLine(string(data), d.types, d.rule)
	if err != nil {
		return nil, false, err
	}
	return ep, true, nil
}

// LoadInto replays every persisted record into c, returning how many
// points were loaded. Used at boot to seed a run from a previous run's
// evaluations (spec §6 cache file semantics, S2/S6 scenarios).
func (d *DiskCache) LoadInto(c *Cache) (int, error) {
	it := d.db.NewIterator(nil, nil)
	defer it.Release()
	n := 0
	for it.Next() {
		ep, err := parseCacheLine(string(it.Value()), d.types, d.rule)
		if err != nil {
			return n, err
		}
		c.Update(ep.Point, EvalKindBB, ep.Eval(EvalKindBB))
		n++
	}
	return n, it.Error()
}

// Flush persists every completed blackbox evaluation currently in c.
func (d *DiskCache) Flush(c *Cache) (int, error) {
	pts := c.FindPredicate(func(ep *EvalPoint) bool {
		e := ep.Eval(EvalKindBB)
		return e != nil && e.Status != EvalStatusInProgress && e.Status != EvalStatusUndefined
	})
	for i, ep := range pts {
		if err := d.Put(ep, EvalKindBB); err != nil {
			return i, err
		}
	}
	return len(pts), nil
}
