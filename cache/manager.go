package cache

import (
	"context"
	"time"

	"github.com/op/go-logging"
	"github.com/sheetbridge/persistence/constants"
)

// Manager owns the cache's lifecycle: the version check at startup and
// the optional background sweep.
type Manager struct {
	Cache *LocalCache

	logger *logging.Logger
}

func NewManager(cache *LocalCache, logger *logging.Logger) *Manager {
	return &Manager{
		Cache:  cache,
		logger: logger,
	}
}

// Init compares currentVersion with the version recorded by the last
// Init and wipes the cache if they differ, so entries written by an
// older release are never read by a newer one. Call it once at startup,
// before anything else touches the cache. It returns true if the cache
// was wiped.
func (m *Manager) Init(currentVersion string) bool {
	c := m.Cache
	c.mutex.Lock()
	defer c.mutex.Unlock()

	lastSeen, found, err := c.backend.Get(constants.CacheVersionKey)
	if err != nil {
		m.logger.Warningf("[cache] cannot read cache version: %s", err.Error())
	}
	if found && string(lastSeen) == currentVersion {
		m.logger.Debugf("[cache] cache version %s is current", currentVersion)
		return false
	}
	m.logger.Infof("[cache] cache version changed from %q to %q; clearing cache", string(lastSeen), currentVersion)
	c.clearLocked()
	if err := c.backend.Set(constants.CacheVersionKey, []byte(currentVersion)); err != nil {
		m.logger.Warningf("[cache] cannot record cache version: %s", err.Error())
	}
	return true
}

// RunSweeper calls Sweep every interval until ctx is done. It blocks,
// so run it in its own goroutine.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cache.Sweep()
		}
	}
}

// Close closes the cache's backend.
func (m *Manager) Close() error {
	return m.Cache.backend.Close()
}
