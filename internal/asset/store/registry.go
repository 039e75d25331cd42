package store

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// handleCacheSize bounds how many open *Store handles the registry keeps
// resident at once, evicting the least recently used on overflow. Grounded
// on the LRU-bounded cache pattern pulled from the example pack's
// hashicorp/golang-lru/v2 dependency (present but unused directly in
// AKJUS-bsc-erigon's own sources; adopted here for its intended purpose).
const handleCacheSize = 64

// Registry is the process-wide owner of every open *Store handle, keyed by
// file path, plus a per-user lock held by the legacy-store split (§4.8) and
// by the package-removed and user-removed reactions. Pipeline operations do
// not take the per-user lock.
type Registry struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *Store]
	dataDir string

	userLocksMu sync.Mutex
	userLocks   map[int32]*sync.Mutex
}

// NewRegistry constructs a Registry rooted at dataDir.
func NewRegistry(dataDir string) (*Registry, error) {
	cache, err := lru.NewWithEvict[string, *Store](handleCacheSize, func(_ string, s *Store) {
		_ = s.Close()
	})
	if err != nil {
		return nil, err
	}
	return &Registry{
		cache:     cache,
		dataDir:   dataDir,
		userLocks: make(map[int32]*sync.Mutex),
	}, nil
}

// Get returns the cached *Store for path, opening it on first use.
func (r *Registry) Get(path string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.cache.Get(path); ok {
		return s, nil
	}
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	r.cache.Add(path, s)
	return s, nil
}

// Evict closes and drops path's cached handle, if any. No code in the
// service calls it.
func (r *Registry) Evict(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.cache.Peek(path); ok {
		_ = s.Close()
		r.cache.Remove(path)
	}
}

// UserLock returns userID's per-user mutex. The legacy-store split (§4.8)
// and the package-removed and user-removed reactions hold it; pipeline
// operations do not.
func (r *Registry) UserLock(userID int32) *sync.Mutex {
	r.userLocksMu.Lock()
	defer r.userLocksMu.Unlock()
	l, ok := r.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.userLocks[userID] = l
	}
	return l
}

// DataDir returns the registry's root data directory.
func (r *Registry) DataDir() string { return r.dataDir }
