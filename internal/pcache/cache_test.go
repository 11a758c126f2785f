package pcache

import (
	"fmt"
	"os"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

func cacheTestRecord(t *testing.T, vals []int64) arrow.Record {
	sch := arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true}}, nil)
	b := array.NewInt64Builder(memory.DefaultAllocator)
	defer b.Release()
	b.AppendValues(vals, nil)
	col := b.NewArray()
	defer col.Release()
	return array.NewRecord(sch, []arrow.Array{col}, int64(len(vals)))
}

func TestCacheAddEvictsToDisk(t *testing.T) {
	cache := NewLRU(&LRUConfig{InitialSize: 10, DiskPath: t.TempDir()})
	defer cache.Destroy()
	iCache, ok := cache.(*lru)
	require.True(t, ok)

	for i := 0; i < 20; i++ {
		rec := cacheTestRecord(t, []int64{int64(i)})
		cache.Add(fmt.Sprintf("piece-%d", i), rec)
		rec.Release()
	}
	require.Equal(t, 10, len(iCache.pmap))
	require.Equal(t, 10, cache.CurrentSize())
	require.Equal(t, 10, len(iCache.spilled))

	// oldest half was spilled
	for i := 0; i < 10; i++ {
		_, ok := iCache.spilled[fmt.Sprintf("piece-%d", i)]
		require.True(t, ok)
	}
}

func TestCacheGetReloadsSpilled(t *testing.T) {
	cache := NewLRU(&LRUConfig{InitialSize: 2, DiskPath: t.TempDir()})
	defer cache.Destroy()
	iCache, ok := cache.(*lru)
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		rec := cacheTestRecord(t, []int64{int64(i) * 100})
		cache.Add(fmt.Sprintf("piece-%d", i), rec)
		rec.Release()
	}
	spillPath, ok := iCache.spilled["piece-0"]
	require.True(t, ok)
	_, err := os.Stat(spillPath)
	require.Nil(t, err)

	rec, err := cache.Get("piece-0")
	require.Nil(t, err)
	require.EqualValues(t, 1, rec.NumRows())
	require.EqualValues(t, 0, rec.Column(0).(*array.Int64).Value(0))

	// reload removed the spill file and displaced another record
	_, err = os.Stat(spillPath)
	require.True(t, os.IsNotExist(err))
	require.Equal(t, 2, cache.CurrentSize())
	_, ok = iCache.spilled["piece-1"]
	require.True(t, ok)
}

func TestCacheGetPromotes(t *testing.T) {
	cache := NewLRU(&LRUConfig{InitialSize: 2, DiskPath: t.TempDir()})
	defer cache.Destroy()
	iCache, ok := cache.(*lru)
	require.True(t, ok)

	for i := 0; i < 2; i++ {
		rec := cacheTestRecord(t, []int64{int64(i)})
		cache.Add(fmt.Sprintf("piece-%d", i), rec)
		rec.Release()
	}
	_, err := cache.Get("piece-0")
	require.Nil(t, err)

	// piece-0 is now most recent, so piece-1 is evicted next
	rec := cacheTestRecord(t, []int64{2})
	cache.Add("piece-2", rec)
	rec.Release()
	_, ok = iCache.spilled["piece-1"]
	require.True(t, ok)
	_, ok = iCache.pmap["piece-0"]
	require.True(t, ok)
}

func TestCacheGetMissing(t *testing.T) {
	cache := NewLRU(&LRUConfig{InitialSize: 2, DiskPath: t.TempDir()})
	defer cache.Destroy()
	_, err := cache.Get("nope")
	require.NotNil(t, err)
}

func TestCacheResize(t *testing.T) {
	cache := NewLRU(&LRUConfig{InitialSize: 10, DiskPath: t.TempDir()})
	defer cache.Destroy()
	iCache, ok := cache.(*lru)
	require.True(t, ok)

	for i := 0; i < 10; i++ {
		rec := cacheTestRecord(t, []int64{int64(i)})
		cache.Add(fmt.Sprintf("piece-%d", i), rec)
		rec.Release()
	}
	require.Equal(t, 10, len(iCache.pmap))
	require.Equal(t, 10, iCache.recentList.Len())

	require.True(t, cache.Resize(0.5))
	require.Equal(t, 5, len(iCache.pmap))
	require.Equal(t, 5, iCache.recentList.Len())
	require.Equal(t, 5, len(iCache.spilled))

	// shrinking below one record clamps to one
	require.True(t, cache.Resize(0.01))
	require.Equal(t, 1, cache.CurrentSize())
}

func TestCacheDestroyRemovesSpillFiles(t *testing.T) {
	dir := t.TempDir()
	cache := NewLRU(&LRUConfig{InitialSize: 1, DiskPath: dir})
	iCache, ok := cache.(*lru)
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		rec := cacheTestRecord(t, []int64{int64(i)})
		cache.Add(fmt.Sprintf("piece-%d", i), rec)
		rec.Release()
	}
	require.Equal(t, 2, len(iCache.spilled))
	var spillPaths []string
	for _, p := range iCache.spilled {
		spillPaths = append(spillPaths, p)
	}
	cache.Destroy()
	require.Equal(t, 0, cache.CurrentSize())
	for _, p := range spillPaths {
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err))
	}
}
