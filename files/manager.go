// Package files ties the remote store, the resolver and the local cache
// into the upload and read flows the rest of the application uses.
package files

import (
	"context"
	"path"
	"time"

	"github.com/op/go-logging"
	"github.com/sheetbridge/persistence/cache"
	"github.com/sheetbridge/persistence/constants"
	"github.com/sheetbridge/persistence/models/service"
	"github.com/sheetbridge/persistence/network"
	"github.com/sheetbridge/persistence/resolver"
	"github.com/sheetbridge/persistence/util"
)

// UploadResult describes a finished upload. Reference is what the
// caller should hold on to; it is also the cache id.
type UploadResult struct {
	Key       string
	Reference string
	Cached    bool
	Mapped    bool
	Attempts  int
	Error     error
}

func (r *UploadResult) OK() bool {
	return r.Error == nil
}

// FetchResult describes a finished read.
type FetchResult struct {
	File      *service.FileContent
	Key       string
	FromCache bool
	Strategy  string
	Error     error
}

func (r *FetchResult) OK() bool {
	return r.Error == nil
}

// Manager runs the read and write paths: writes go to the remote store
// first and then to the cache and the mapping store; reads try the
// cache, then resolve the reference and read from the remote store.
type Manager struct {
	cache    *cache.LocalCache
	logger   *logging.Logger
	resolver *resolver.Resolver
	store    *network.RemoteObjectStore
	now      func() time.Time
}

func NewManager(store *network.RemoteObjectStore, fileResolver *resolver.Resolver, localCache *cache.LocalCache, logger *logging.Logger) *Manager {
	return &Manager{
		cache:    localCache,
		logger:   logger,
		resolver: fileResolver,
		store:    store,
		now:      time.Now,
	}
}

// Upload stores file in bucket under a new canonical key, caches a
// local copy and records a mapping from the returned Reference to the
// key. Only the remote write can fail the upload.
func (m *Manager) Upload(ctx context.Context, file *service.FileContent, purpose, bucket string) *UploadResult {
	reference := cache.DeriveID(file.Name, file.Size(), file.MimeType, purpose)
	key := constants.NamespacedKeyPrefix + service.NewObjectKey(
		constants.TypePrefixFor(purpose), "", util.FileExtension(file.Name), m.now())
	result := &UploadResult{Key: key, Reference: reference}

	resp := m.store.Put(ctx, file.Data, key, bucket, file.MimeType)
	result.Attempts = resp.Attempts
	if !resp.OK() {
		result.Error = resp.Error
		return result
	}

	if m.cache != nil {
		result.Cached = m.cache.Cache(file, reference, purpose)
		if result.Cached {
			m.cache.UpdateMetadata(reference, func(meta *service.CacheMetadata) {
				meta.SetExtra(constants.ExtraRemoteKey, key)
			})
		}
	}

	record := service.NewFileMappingRecord(reference, key, file.Name, bucket)
	record.MimeType = file.MimeType
	record.Size = file.Size()
	if err := m.resolver.RecordMapping(ctx, record); err != nil {
		m.logger.Warningf("[files] uploaded %s as %s but could not record the mapping: %s", file.Name, key, err.Error())
	} else {
		result.Mapped = true
	}
	m.logger.Infof("[files] uploaded %s to %s/%s (reference %s)", file.Name, bucket, key, reference)
	return result
}

// Fetch returns the file behind reference. A cache hit does no remote
// I/O. On a miss, the reference is resolved, the object read from the
// remote store and a copy cached under reference.
func (m *Manager) Fetch(ctx context.Context, reference, purpose, bucket, typeHint string) *FetchResult {
	result := &FetchResult{}
	if m.cache != nil {
		if entry := m.cache.Load(reference, purpose); entry != nil {
			result.File = entry.File()
			result.Key = entry.Metadata.ExtraString(constants.ExtraRemoteKey)
			result.FromCache = true
			return result
		}
	}

	resolution := m.resolver.Resolve(ctx, reference, bucket, typeHint)
	if !resolution.OK() {
		result.Error = resolution.Error
		return result
	}
	result.Strategy = resolution.Strategy

	resp := m.store.Get(ctx, resolution.Key, bucket)
	if !resp.OK() {
		result.Error = resp.Error
		return result
	}
	obj := resp.Object
	result.Key = resp.Key
	result.File = &service.FileContent{
		Data:         obj.Content,
		LastModified: obj.CreatedAt,
		MimeType:     obj.ContentType,
		Name:         path.Base(resp.Key),
	}
	if record, err := m.resolver.Mapping(ctx, reference); err == nil && record != nil && record.OriginalFileName != "" {
		result.File.Name = record.OriginalFileName
	}
	if m.cache != nil && m.cache.Cache(result.File, reference, purpose) {
		m.cache.UpdateMetadata(reference, func(meta *service.CacheMetadata) {
			meta.SetExtra(constants.ExtraRemoteKey, resp.Key)
		})
	}
	return result
}

// Discard deletes the stored object behind key (best effort) and drops
// the cached copy held under reference.
func (m *Manager) Discard(ctx context.Context, reference, key, bucket string) *network.StoreResponse {
	if m.cache != nil && reference != "" {
		m.cache.Remove(reference)
	}
	return m.store.Delete(ctx, key, bucket)
}
