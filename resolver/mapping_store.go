package resolver

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sheetbridge/persistence/models/service"
)

// MappingStore persists FileMappingRecords. MappingGet returns nil, nil
// when there is no record. network.RedisClient implements this.
type MappingStore interface {
	MappingGet(ctx context.Context, originalID string) (*service.FileMappingRecord, error)
	MappingSave(ctx context.Context, record *service.FileMappingRecord) error
}

// CachedMappingStore keeps recently used records in memory in front of
// another MappingStore. Records are never mutated in place, so a cached
// record stays valid until the same reference is saved again, which
// goes through here and replaces it.
type CachedMappingStore struct {
	store MappingStore
	memo  *lru.Cache[string, *service.FileMappingRecord]
}

func NewCachedMappingStore(store MappingStore, size int) (*CachedMappingStore, error) {
	memo, err := lru.New[string, *service.FileMappingRecord](size)
	if err != nil {
		return nil, err
	}
	return &CachedMappingStore{
		store: store,
		memo:  memo,
	}, nil
}

func (s *CachedMappingStore) MappingGet(ctx context.Context, originalID string) (*service.FileMappingRecord, error) {
	if record, ok := s.memo.Get(originalID); ok {
		return record, nil
	}
	record, err := s.store.MappingGet(ctx, originalID)
	if err != nil || record == nil {
		return record, err
	}
	s.memo.Add(originalID, record)
	return record, nil
}

func (s *CachedMappingStore) MappingSave(ctx context.Context, record *service.FileMappingRecord) error {
	if err := s.store.MappingSave(ctx, record); err != nil {
		return err
	}
	s.memo.Add(record.OriginalID, record)
	return nil
}

// Len returns the number of memoized records.
func (s *CachedMappingStore) Len() int {
	return s.memo.Len()
}
