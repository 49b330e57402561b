package cache_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sheetbridge/persistence/cache"
	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/metrics"
	"github.com/sheetbridge/persistence/models/service"
	"github.com/sheetbridge/persistence/util/logger"
	tu "github.com/sheetbridge/persistence/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mb = 1024 * 1024

// clock is a settable time source.
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func getCache(backend cache.Backend) (*cache.LocalCache, *clock) {
	c := cache.NewLocalCache(backend, logger.DiscardLogger("cache_test"))
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c.SetClock(clk.Now)
	return c, clk
}

func file(name string, size int) *service.FileContent {
	return tu.GetFileContent(name, size)
}

func TestCacheAndLoad(t *testing.T) {
	c, clk := getCache(cache.NewMemoryBackend())
	f := file("order.xlsx", 2048)
	id := cache.DeriveID(f.Name, f.Size(), f.MimeType, constants.PurposeOrder)

	require.True(t, c.Cache(f, id, constants.PurposeOrder))
	entry := c.Load(id, constants.PurposeOrder)
	require.NotNil(t, entry)
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, f.Data, entry.Content)
	assert.Equal(t, "order.xlsx", entry.Metadata.DisplayName)
	assert.EqualValues(t, 2048, entry.Metadata.Size)
	assert.Equal(t, constants.PurposeOrder, entry.Metadata.PurposeTag)
	assert.True(t, clk.now.Equal(entry.Metadata.CachedAt))
	assert.True(t, tu.Bloomsday.Equal(entry.Metadata.LastModified))

	rebuilt := entry.File()
	assert.Equal(t, f.Name, rebuilt.Name)
	assert.Equal(t, f.MimeType, rebuilt.MimeType)
}

func TestLoadMissing(t *testing.T) {
	c, _ := getCache(cache.NewMemoryBackend())
	assert.Nil(t, c.Load("no-such-id", constants.PurposeOrder))
}

func TestCacheRejectsOversizedEntry(t *testing.T) {
	c, _ := getCache(cache.NewMemoryBackend())
	c.MaxEntrySize = 5 * mb
	assert.False(t, c.Cache(file("big.xlsx", 5*mb+1), "big", constants.PurposeOrder))
	assert.Nil(t, c.Load("big", constants.PurposeOrder))
	assert.True(t, c.Cache(file("fits.xlsx", 5*mb), "fits", constants.PurposeOrder))
}

func TestCacheRejectsNil(t *testing.T) {
	c, _ := getCache(cache.NewMemoryBackend())
	assert.False(t, c.Cache(nil, "id", constants.PurposeOrder))
	assert.False(t, c.Cache(file("a", 1), "", constants.PurposeOrder))
}

func TestCacheEvictsOldestScenario(t *testing.T) {
	c, clk := getCache(cache.NewMemoryBackend())
	c.Quota = 6 * mb
	c.MaxEntrySize = 5 * mb

	require.True(t, c.Cache(file("four.xlsx", 4*mb), "four", constants.PurposeOrder))
	clk.Advance(time.Minute)
	require.True(t, c.Cache(file("two.xlsx", 2*mb), "two", constants.PurposeOrder))

	assert.Nil(t, c.Load("four", constants.PurposeOrder))
	assert.NotNil(t, c.Load("two", constants.PurposeOrder))
	stats := c.Stats()
	assert.Equal(t, 1, stats.EntryCount)
	assert.EqualValues(t, 2*mb, stats.TotalBytes)
	assert.True(t, stats.StoredBytes <= c.Quota)
}

func TestCacheEvictsMinimalOldestFirst(t *testing.T) {
	c, clk := getCache(cache.NewMemoryBackend())
	c.Quota = 10 * mb
	c.MaxEntrySize = 5 * mb

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, c.Cache(file(id, 3*mb), id, constants.PurposeOrder))
		clk.Advance(time.Minute)
	}
	// 9MB used; another 3MB needs exactly one eviction, the oldest.
	require.True(t, c.Cache(file("d", 3*mb), "d", constants.PurposeOrder))
	assert.Nil(t, c.Load("a", constants.PurposeOrder))
	for _, id := range []string{"b", "c", "d"} {
		assert.NotNil(t, c.Load(id, constants.PurposeOrder), id)
	}

	// 5MB needs two evictions: b then c.
	clk.Advance(time.Minute)
	require.True(t, c.Cache(file("e", 5*mb), "e", constants.PurposeOrder))
	stats := c.Stats()
	ids := make([]string, 0)
	for _, entry := range stats.Entries {
		ids = append(ids, entry.ID)
	}
	assert.ElementsMatch(t, []string{"d", "e"}, ids)
}

func TestCacheQuotaInvariant(t *testing.T) {
	c, clk := getCache(cache.NewMemoryBackend())
	c.Quota = 7 * mb
	c.MaxEntrySize = 3 * mb
	sizes := []int{mb, 3 * mb, 512 * 1024, 2 * mb, 3 * mb, 100, 3*mb + 1, 2*mb + 7, mb / 3, 3 * mb}
	for i, size := range sizes {
		c.Cache(file("f", size), cache.DeriveID("f", int64(size), "x", constants.PurposeOrder)+string(rune('a'+i)), constants.PurposeOrder)
		clk.Advance(time.Second)
		stats := c.Stats()
		assert.True(t, stats.TotalBytes <= c.Quota)
		assert.True(t, stats.StoredBytes <= c.Quota)
	}
}

func TestCacheEntryAtQuotaWhenCapEqualsQuota(t *testing.T) {
	c, clk := getCache(cache.NewMemoryBackend())
	c.Quota = 5 * mb
	c.MaxEntrySize = 5 * mb

	require.True(t, c.Cache(file("first.xlsx", 5*mb), "first", constants.PurposeOrder))
	clk.Advance(time.Minute)
	require.True(t, c.Cache(file("small.csv", 1024), "small", constants.PurposeSupplier))
	clk.Advance(time.Minute)

	// Everything older goes to make room for a file the size of the quota.
	require.True(t, c.Cache(file("second.xlsx", 5*mb), "second", constants.PurposeOrder))
	assert.Nil(t, c.Load("first", constants.PurposeOrder))
	assert.Nil(t, c.Load("small", constants.PurposeSupplier))
	assert.NotNil(t, c.Load("second", constants.PurposeOrder))
	stats := c.Stats()
	assert.Equal(t, 1, stats.EntryCount)
	assert.True(t, stats.TotalBytes <= c.Quota)

	assert.False(t, c.Cache(file("over.xlsx", 5*mb+1), "over", constants.PurposeOrder))
	assert.NotNil(t, c.Load("second", constants.PurposeOrder))
}

func TestCacheReplacesSameID(t *testing.T) {
	c, clk := getCache(cache.NewMemoryBackend())
	require.True(t, c.Cache(file("v1", 100), "id", constants.PurposeOrder))
	clk.Advance(time.Hour)
	require.True(t, c.Cache(file("v2", 200), "id", constants.PurposeOrder))

	entry := c.Load("id", constants.PurposeOrder)
	require.NotNil(t, entry)
	assert.Equal(t, "v2", entry.Metadata.DisplayName)
	assert.Equal(t, 1, c.Stats().EntryCount)
}

func TestLoadExpired(t *testing.T) {
	c, clk := getCache(cache.NewMemoryBackend())
	require.True(t, c.Cache(file("old.xlsx", 100), "old", constants.PurposeOrder))

	clk.Advance(7 * 24 * time.Hour)
	assert.NotNil(t, c.Load("old", constants.PurposeOrder))

	clk.Advance(time.Second)
	assert.Nil(t, c.Load("old", constants.PurposeOrder))
	// Expired entries are removed, not just hidden.
	assert.Equal(t, 0, c.Stats().EntryCount)
}

func TestLoadPurposeMismatch(t *testing.T) {
	c, _ := getCache(cache.NewMemoryBackend())
	require.True(t, c.Cache(file("shared.xlsx", 100), "shared", constants.PurposeOrder))

	assert.Nil(t, c.Load("shared", constants.PurposeSupplier))
	// The mismatched entry is evicted.
	assert.Nil(t, c.Load("shared", constants.PurposeOrder))
}

func TestLoadCorruptMetadata(t *testing.T) {
	backend := cache.NewMemoryBackend()
	c, _ := getCache(backend)
	require.True(t, c.Cache(file("x.xlsx", 100), "x", constants.PurposeOrder))
	require.Nil(t, backend.Set(constants.CacheMetaKeyPrefix+"x", []byte("{not json")))

	assert.Nil(t, c.Load("x", constants.PurposeOrder))
	_, found, _ := backend.Get(constants.CacheContentKeyPrefix + "x")
	assert.False(t, found)
}

func TestLoadTruncatedContent(t *testing.T) {
	backend := cache.NewMemoryBackend()
	c, _ := getCache(backend)
	require.True(t, c.Cache(file("x.xlsx", 100), "x", constants.PurposeOrder))
	require.Nil(t, backend.Set(constants.CacheContentKeyPrefix+"x", []byte("short")))

	assert.Nil(t, c.Load("x", constants.PurposeOrder))
	_, found, _ := backend.Get(constants.CacheMetaKeyPrefix + "x")
	assert.False(t, found)
}

func TestCacheBackendFull(t *testing.T) {
	backend := cache.NewMemoryBackend()
	backend.MaxBytes = 1000
	c, _ := getCache(backend)

	assert.False(t, c.Cache(file("x.xlsx", 2000), "x", constants.PurposeOrder))
	assert.Nil(t, c.Load("x", constants.PurposeOrder))
	keys, err := backend.Keys("")
	require.Nil(t, err)
	assert.Empty(t, keys)
}

func TestRemove(t *testing.T) {
	c, _ := getCache(cache.NewMemoryBackend())
	require.True(t, c.Cache(file("x.xlsx", 100), "x", constants.PurposeOrder))
	c.Remove("x")
	assert.Nil(t, c.Load("x", constants.PurposeOrder))
	// Removing twice is fine.
	c.Remove("x")
}

func TestUpdateMetadata(t *testing.T) {
	c, clk := getCache(cache.NewMemoryBackend())
	require.True(t, c.Cache(file("x.xlsx", 100), "x", constants.PurposeOrder))
	cachedAt := clk.now
	clk.Advance(time.Hour)

	ok := c.UpdateMetadata("x", func(meta *service.CacheMetadata) {
		meta.SetExtra(constants.ExtraRemoteKey, "files/orderFile-17-2459.xlsx")
		meta.SetExtra(constants.ExtraTotalRowCount, 42)
		meta.CachedAt = clk.now
		meta.PurposeTag = constants.PurposeSupplier
	})
	require.True(t, ok)

	entry := c.Load("x", constants.PurposeOrder)
	require.NotNil(t, entry)
	assert.Equal(t, "files/orderFile-17-2459.xlsx", entry.Metadata.ExtraString(constants.ExtraRemoteKey))
	assert.EqualValues(t, 42, entry.Metadata.Extra[constants.ExtraTotalRowCount])
	assert.True(t, cachedAt.Equal(entry.Metadata.CachedAt))

	assert.False(t, c.UpdateMetadata("missing", func(meta *service.CacheMetadata) {}))
}

func TestUpdateMetadataCanOverrunQuota(t *testing.T) {
	c, clk := getCache(cache.NewMemoryBackend())
	c.Quota = 4000
	c.MaxEntrySize = 4000
	require.True(t, c.Cache(file("a.csv", 3000), "a", constants.PurposeSupplier))
	clk.Advance(time.Minute)

	preview := strings.Repeat("sku,qty,price\n", 200)
	require.True(t, c.UpdateMetadata("a", func(meta *service.CacheMetadata) {
		meta.SetExtra("preview", preview)
	}))
	stats := c.Stats()
	assert.True(t, stats.StoredBytes > c.Quota)
	assert.True(t, stats.UsagePercent > 100)

	// The next write evicts back under the quota.
	require.True(t, c.Cache(file("b.csv", 100), "b", constants.PurposeSupplier))
	assert.Nil(t, c.Load("a", constants.PurposeSupplier))
	stats = c.Stats()
	assert.Equal(t, 1, stats.EntryCount)
	assert.True(t, stats.StoredBytes <= c.Quota)
}

func TestStats(t *testing.T) {
	c, clk := getCache(cache.NewMemoryBackend())
	c.Quota = 10000
	c.MaxEntrySize = 5000
	require.True(t, c.Cache(file("a.xlsx", 1000), "a", constants.PurposeOrder))
	clk.Advance(time.Hour)
	require.True(t, c.Cache(file("b.csv", 3000), "b", constants.PurposeSupplier))

	stats := c.Stats()
	assert.Equal(t, 2, stats.EntryCount)
	assert.EqualValues(t, 4000, stats.TotalBytes)
	assert.True(t, stats.StoredBytes > stats.TotalBytes)
	assert.EqualValues(t, 10000, stats.Quota)
	assert.EqualValues(t, 5000, stats.MaxEntrySize)
	assert.InDelta(t, float64(stats.StoredBytes)/100, stats.UsagePercent, 0.001)
	require.Len(t, stats.Entries, 2)
	for _, entry := range stats.Entries {
		if entry.ID == "a" {
			assert.Equal(t, time.Hour, entry.Age)
			assert.Equal(t, "a.xlsx", entry.DisplayName)
		}
	}
}

func TestSweep(t *testing.T) {
	backend := cache.NewMemoryBackend()
	c, clk := getCache(backend)
	require.True(t, c.Cache(file("old", 100), "old", constants.PurposeOrder))
	clk.Advance(8 * 24 * time.Hour)
	require.True(t, c.Cache(file("new", 100), "new", constants.PurposeOrder))
	require.Nil(t, backend.Set(constants.CacheMetaKeyPrefix+"bad", []byte("garbage")))
	require.Nil(t, backend.Set(constants.CacheContentKeyPrefix+"orphan", []byte("x")))

	assert.Equal(t, 3, c.Sweep())
	assert.NotNil(t, c.Load("new", constants.PurposeOrder))
	keys, err := backend.Keys("")
	require.Nil(t, err)
	assert.ElementsMatch(t, []string{constants.CacheContentKeyPrefix + "new", constants.CacheMetaKeyPrefix + "new"}, keys)
}

func TestClear(t *testing.T) {
	c, _ := getCache(cache.NewMemoryBackend())
	require.True(t, c.Cache(file("a", 100), "a", constants.PurposeOrder))
	require.True(t, c.Cache(file("b", 100), "b", constants.PurposeOrder))
	assert.True(t, c.Clear())
	assert.Equal(t, 0, c.Stats().EntryCount)
}

func TestCacheMetrics(t *testing.T) {
	set := metrics.NewSet()
	c, _ := getCache(cache.NewMemoryBackend())
	c.SetObserver(set.Cache)
	require.True(t, c.Cache(file("a", 100), "a", constants.PurposeOrder))
	c.Load("a", constants.PurposeOrder)
	c.Load("zzz", constants.PurposeOrder)
	c.Load("a", constants.PurposeSupplier)

	// One series each for hit, miss and purpose_mismatch.
	count, err := testutil.GatherAndCount(set.Registry, "sheetbridge_cache_lookups_total")
	require.Nil(t, err)
	assert.Equal(t, 3, count)
	count, err = testutil.GatherAndCount(set.Registry, "sheetbridge_cache_evictions_total")
	require.Nil(t, err)
	assert.Equal(t, 1, count)
}
