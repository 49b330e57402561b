package cache

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrStorageFull is returned by a Backend that refuses a write for lack
// of space, the way browser storage throws on quota exhaustion.
var ErrStorageFull = errors.New("storage is full")

// Backend is the key/value storage under the local cache. Values are
// opaque bytes. Get returns false if the key does not exist.
type Backend interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
	Close() error
}

// MemoryBackend keeps everything in a map. If MaxBytes is positive,
// writes that would push the total size of all values past it fail
// with ErrStorageFull.
type MemoryBackend struct {
	MaxBytes int64

	mutex sync.RWMutex
	data  map[string][]byte
	used  int64
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string][]byte),
	}
}

func (b *MemoryBackend) Get(key string) ([]byte, bool, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	value, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (b *MemoryBackend) Set(key string, value []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	newUsed := b.used - int64(len(b.data[key])) + int64(len(value))
	if b.MaxBytes > 0 && newUsed > b.MaxBytes {
		return ErrStorageFull
	}
	b.data[key] = append([]byte(nil), value...)
	b.used = newUsed
	return nil
}

func (b *MemoryBackend) Delete(key string) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.used -= int64(len(b.data[key]))
	delete(b.data, key)
	return nil
}

func (b *MemoryBackend) Keys(prefix string) ([]string, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	keys := make([]string, 0)
	for key := range b.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
