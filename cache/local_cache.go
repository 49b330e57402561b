// Package cache implements the size- and TTL-bounded local cache of
// uploaded files. Every operation degrades to false or nil on failure;
// nothing here returns an error to the caller, because the cache is an
// optimization and never the source of truth.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/op/go-logging"
	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/metrics"
	"github.com/sheetbridge/persistence/models/service"
)

// Lookup and eviction labels reported to the observer.
const (
	resultCorrupt         = "corrupt"
	resultExpired         = "expired"
	resultHit             = "hit"
	resultMiss            = "miss"
	resultPurposeMismatch = "purpose_mismatch"
	reasonQuota           = "quota"
	reasonRemoved         = "removed"
	reasonReplaced        = "replaced"
)

// LocalCache stores file content and metadata in a Backend under
// "content:<id>" and "meta:<id>". The quota counts both.
//
// The quota is enforced when an entry is written, by evicting the
// oldest entries until the new one fits. Expiry is checked when an
// entry is read.
type LocalCache struct {
	MaxEntrySize int64
	Quota        int64
	TTL          time.Duration

	backend  Backend
	logger   *logging.Logger
	observer metrics.CacheObserver
	now      func() time.Time
	mutex    sync.Mutex
}

// storedEntry is what the cache knows about an entry without reading
// its content.
type storedEntry struct {
	id       string
	meta     *service.CacheMetadata
	metaSize int64
}

func (e *storedEntry) storedBytes() int64 {
	return e.meta.Size + e.metaSize
}

func NewLocalCache(backend Backend, logger *logging.Logger) *LocalCache {
	return &LocalCache{
		MaxEntrySize: constants.DefaultCacheMaxEntry,
		Quota:        constants.DefaultCacheQuota,
		TTL:          constants.DefaultCacheTTL,
		backend:      backend,
		logger:       logger,
		now:          time.Now,
	}
}

func (c *LocalCache) SetObserver(observer metrics.CacheObserver) {
	c.observer = observer
}

// SetClock replaces the cache's source of the current time.
func (c *LocalCache) SetClock(now func() time.Time) {
	c.now = now
}

// Cache stores file under id, tagged with purposeTag. It returns false
// if the file is larger than MaxEntrySize or cannot be stored. To make
// room, it evicts the oldest entries first, one at a time, and only as
// many as needed. Caching an id that is already cached replaces the
// old entry.
func (c *LocalCache) Cache(file *service.FileContent, id, purposeTag string) bool {
	if file == nil || id == "" {
		c.logger.Warning("[cache] refusing to cache a nil file or an empty id")
		return false
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	size := file.Size()
	if size > c.MaxEntrySize {
		c.logger.Infof("[cache] %s is %d bytes, over the %d byte entry limit; not caching",
			file.Name, size, c.MaxEntrySize)
		return false
	}
	meta := &service.CacheMetadata{
		CachedAt:     c.now().UTC(),
		DisplayName:  file.Name,
		LastModified: file.LastModified,
		MimeType:     file.MimeType,
		PurposeTag:   purposeTag,
		Size:         size,
	}
	metaJson, err := meta.ToJson()
	if err != nil {
		c.logger.Errorf("[cache] cannot serialize metadata for %s: %s", id, err.Error())
		return false
	}
	if size > c.Quota {
		c.logger.Infof("[cache] %s is %d bytes, more than the whole %d byte quota; not caching",
			file.Name, size, c.Quota)
		return false
	}
	// Usage counts metadata too. When the content alone fits but content
	// plus metadata does not, every entry is evicted and the write still
	// goes ahead.
	needed := size + int64(len(metaJson))

	c.removeLocked(id, reasonReplaced)
	entries := c.entriesLocked()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].meta.CachedAt.Before(entries[j].meta.CachedAt)
	})
	var used int64
	for _, entry := range entries {
		used += entry.storedBytes()
	}
	for used+needed > c.Quota && len(entries) > 0 {
		oldest := entries[0]
		entries = entries[1:]
		c.logger.Infof("[cache] evicting %s (%s, %d bytes, cached %s) to make room",
			oldest.id, oldest.meta.DisplayName, oldest.meta.Size, oldest.meta.CachedAt.Format(time.RFC3339))
		c.removeLocked(oldest.id, reasonQuota)
		used -= oldest.storedBytes()
	}

	if err := c.backend.Set(contentKey(id), file.Data); err != nil {
		c.logger.Warningf("[cache] cannot write content for %s: %s", id, err.Error())
		c.deleteKeys(id)
		return false
	}
	if err := c.backend.Set(metaKey(id), metaJson); err != nil {
		c.logger.Warningf("[cache] cannot write metadata for %s: %s", id, err.Error())
		c.deleteKeys(id)
		return false
	}
	c.logger.Debugf("[cache] cached %s as %s (%d bytes, purpose %s)", file.Name, id, size, purposeTag)
	if c.observer != nil {
		c.observer.ObserveUsage(len(entries)+1, used+needed)
	}
	return true
}

// Load returns the entry cached under id, or nil. An entry cached for a
// different purpose, or older than TTL, is removed and nil is returned.
func (c *LocalCache) Load(id, expectedPurposeTag string) *service.CacheEntry {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entryLocked(id)
	if !ok {
		c.observeLookup(resultCorrupt)
		return nil
	}
	if entry == nil {
		c.observeLookup(resultMiss)
		return nil
	}
	if entry.meta.PurposeTag != expectedPurposeTag {
		c.logger.Infof("[cache] %s was cached for purpose %q, not %q; removing",
			id, entry.meta.PurposeTag, expectedPurposeTag)
		c.removeLocked(id, resultPurposeMismatch)
		c.observeLookup(resultPurposeMismatch)
		return nil
	}
	if c.expired(entry.meta) {
		c.logger.Infof("[cache] %s expired (cached %s); removing", id, entry.meta.CachedAt.Format(time.RFC3339))
		c.removeLocked(id, resultExpired)
		c.observeLookup(resultExpired)
		return nil
	}
	content, found, err := c.backend.Get(contentKey(id))
	if err != nil || !found || int64(len(content)) != entry.meta.Size {
		c.logger.Warningf("[cache] content for %s is missing or damaged; removing", id)
		c.removeLocked(id, resultCorrupt)
		c.observeLookup(resultCorrupt)
		return nil
	}
	c.observeLookup(resultHit)
	return &service.CacheEntry{
		Content:  content,
		ID:       id,
		Metadata: entry.meta,
	}
}

// Remove deletes the entry cached under id, if any.
func (c *LocalCache) Remove(id string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.removeLocked(id, reasonRemoved)
}

// UpdateMetadata lets fn amend the metadata of the entry cached under
// id, for example to add headers read in the background. The id,
// cachedAt, size and purpose cannot be changed. Returns false if there
// is no such entry.
//
// The quota is not rechecked here, so larger metadata can push usage
// past the quota until the next Cache call evicts to make room.
func (c *LocalCache) UpdateMetadata(id string, fn func(meta *service.CacheMetadata)) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entryLocked(id)
	if !ok || entry == nil {
		return false
	}
	meta := entry.meta
	cachedAt, size, purpose := meta.CachedAt, meta.Size, meta.PurposeTag
	fn(meta)
	meta.CachedAt, meta.Size, meta.PurposeTag = cachedAt, size, purpose
	metaJson, err := meta.ToJson()
	if err != nil {
		c.logger.Warningf("[cache] cannot serialize updated metadata for %s: %s", id, err.Error())
		return false
	}
	if err := c.backend.Set(metaKey(id), metaJson); err != nil {
		c.logger.Warningf("[cache] cannot write updated metadata for %s: %s", id, err.Error())
		return false
	}
	return true
}

// Stats describes what is in the cache. It is for display only.
func (c *LocalCache) Stats() *service.CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	entries := c.entriesLocked()
	stats := &service.CacheStats{
		Entries:      make([]*service.CacheEntryStats, 0, len(entries)),
		EntryCount:   len(entries),
		MaxEntrySize: c.MaxEntrySize,
		Quota:        c.Quota,
	}
	for _, entry := range entries {
		stats.TotalBytes += entry.meta.Size
		stats.StoredBytes += entry.storedBytes()
		stats.Entries = append(stats.Entries, &service.CacheEntryStats{
			Age:         entry.meta.Age(now),
			CachedAt:    entry.meta.CachedAt,
			DisplayName: entry.meta.DisplayName,
			ID:          entry.id,
			PurposeTag:  entry.meta.PurposeTag,
			Size:        entry.meta.Size,
			StoredBytes: entry.storedBytes(),
		})
	}
	if c.Quota > 0 {
		stats.UsagePercent = float64(stats.StoredBytes) * 100 / float64(c.Quota)
	}
	return stats
}

// Sweep removes expired entries, entries whose metadata cannot be read
// and content left behind without metadata. It returns the number of
// entries removed.
func (c *LocalCache) Sweep() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	ids, err := c.idsLocked(constants.CacheMetaKeyPrefix)
	if err != nil {
		c.logger.Warningf("[cache] sweep cannot list entries: %s", err.Error())
		return 0
	}
	live := make(map[string]bool, len(ids))
	for _, id := range ids {
		entry, ok := c.entryLocked(id)
		switch {
		case !ok:
			c.removeLocked(id, resultCorrupt)
			removed++
		case entry != nil && c.expired(entry.meta):
			c.removeLocked(id, resultExpired)
			removed++
		default:
			live[id] = true
		}
	}
	contentIDs, err := c.idsLocked(constants.CacheContentKeyPrefix)
	if err == nil {
		for _, id := range contentIDs {
			if !live[id] {
				c.deleteKeys(id)
				removed++
			}
		}
	}
	if removed > 0 {
		c.logger.Infof("[cache] sweep removed %d entries", removed)
	}
	return removed
}

// Clear removes every entry. The cache version marker is kept.
func (c *LocalCache) Clear() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.clearLocked()
}

func (c *LocalCache) clearLocked() bool {
	ok := true
	for _, prefix := range []string{constants.CacheMetaKeyPrefix, constants.CacheContentKeyPrefix} {
		keys, err := c.backend.Keys(prefix)
		if err != nil {
			c.logger.Warningf("[cache] cannot list %s keys: %s", prefix, err.Error())
			ok = false
			continue
		}
		for _, key := range keys {
			if err := c.backend.Delete(key); err != nil {
				ok = false
			}
		}
	}
	if c.observer != nil {
		c.observer.ObserveUsage(0, 0)
	}
	return ok
}

// entryLocked reads the metadata for id. It returns nil, true if there
// is no entry and nil, false if the metadata is unreadable.
func (c *LocalCache) entryLocked(id string) (*storedEntry, bool) {
	data, found, err := c.backend.Get(metaKey(id))
	if err != nil {
		c.logger.Warningf("[cache] cannot read metadata for %s: %s", id, err.Error())
		return nil, false
	}
	if !found {
		return nil, true
	}
	meta, err := service.CacheMetadataFromJson(data)
	if err != nil || meta.CachedAt.IsZero() {
		c.logger.Warningf("[cache] discarding %s: metadata is corrupt", id)
		c.removeLocked(id, resultCorrupt)
		return nil, false
	}
	return &storedEntry{id: id, meta: meta, metaSize: int64(len(data))}, true
}

// entriesLocked returns every readable entry. Corrupt entries are
// discarded along the way.
func (c *LocalCache) entriesLocked() []*storedEntry {
	ids, err := c.idsLocked(constants.CacheMetaKeyPrefix)
	if err != nil {
		c.logger.Warningf("[cache] cannot list entries: %s", err.Error())
		return []*storedEntry{}
	}
	entries := make([]*storedEntry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := c.entryLocked(id); ok && entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (c *LocalCache) idsLocked(prefix string) ([]string, error) {
	keys, err := c.backend.Keys(prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(keys))
	for i, key := range keys {
		ids[i] = strings.TrimPrefix(key, prefix)
	}
	return ids, nil
}

func (c *LocalCache) removeLocked(id, reason string) {
	data, found, _ := c.backend.Get(metaKey(id))
	if !found {
		// Content without metadata is still cleaned up.
		c.deleteKeys(id)
		return
	}
	freed := int64(len(data))
	if meta, err := service.CacheMetadataFromJson(data); err == nil {
		freed += meta.Size
	}
	c.deleteKeys(id)
	if c.observer != nil {
		c.observer.ObserveEviction(reason, freed)
	}
}

func (c *LocalCache) deleteKeys(id string) {
	if err := c.backend.Delete(contentKey(id)); err != nil {
		c.logger.Warningf("[cache] cannot delete content for %s: %s", id, err.Error())
	}
	if err := c.backend.Delete(metaKey(id)); err != nil {
		c.logger.Warningf("[cache] cannot delete metadata for %s: %s", id, err.Error())
	}
}

func (c *LocalCache) expired(meta *service.CacheMetadata) bool {
	return c.now().Sub(meta.CachedAt) > c.TTL
}

func (c *LocalCache) observeLookup(result string) {
	if c.observer != nil {
		c.observer.ObserveLookup(result)
	}
}

func contentKey(id string) string {
	return constants.CacheContentKeyPrefix + id
}

func metaKey(id string) string {
	return constants.CacheMetaKeyPrefix + id
}
