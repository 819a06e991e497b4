package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CacheManager serves PermissionCache snapshots from a CacheStore and
// rebuilds them through the Loader. At most one rebuild per user runs at a
// time, and a rebuild that started before an invalidation never publishes.
type CacheManager struct {
	store   CacheStore
	loader  *Loader
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time

	sf singleflight.Group

	// publishes and invalidations of a user serialize on its stripe
	stripes []genStripe
	epoch   atomic.Uint64
}

const cacheLockStripes = 64

type genStripe struct {
	mu   sync.Mutex
	gens map[string]uint64
}

// NewCacheManager wires a store to a loader. logger and metrics may be nil.
func NewCacheManager(store CacheStore, loader *Loader, logger *zap.Logger, metrics *Metrics) *CacheManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &CacheManager{
		store:   store,
		loader:  loader,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		stripes: make([]genStripe, cacheLockStripes),
	}
	for i := range m.stripes {
		m.stripes[i].gens = map[string]uint64{}
	}
	return m
}

// Get returns a valid snapshot for userID, loading it on a miss.
func (m *CacheManager) Get(ctx context.Context, userID string) (*PermissionCache, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	cache, err := m.store.Get(ctx, userID)
	switch {
	case err == nil && !cache.Expired(m.now()):
		m.metrics.cacheResult(cacheHit)
		return cache, nil
	case err == nil:
		m.metrics.cacheResult(cacheExpired)
	case errors.Is(err, ErrCacheMiss):
		m.metrics.cacheResult(cacheMiss)
	default:
		m.metrics.cacheResult(cacheError)
		m.logger.Warn("permission cache store read failed, rebuilding",
			zap.String("user_id", userID), zap.Error(err))
	}

	// keying flights by generation keeps callers arriving after an
	// invalidation from joining a rebuild that started before it
	gen := m.generation(userID)
	ch := m.sf.DoChan(fmt.Sprintf("%s#%d", userID, gen), func() (any, error) {
		return m.rebuild(context.WithoutCancel(ctx), userID, gen)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*PermissionCache), nil
	}
}

func (m *CacheManager) rebuild(ctx context.Context, userID string, gen uint64) (*PermissionCache, error) {
	start := m.now()
	cache, err := m.loader.Load(ctx, userID)
	m.metrics.observeLoad(start)
	if err != nil {
		return nil, err
	}

	// the stripe lock orders this publish against Invalidate's bump and delete
	st := m.stripe(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if m.currentLocked(st, userID) != gen {
		m.logger.Debug("discarding permission cache built before invalidation",
			zap.String("user_id", userID))
		return cache, nil
	}
	if err := m.store.Set(ctx, cache); err != nil {
		m.logger.Warn("permission cache store write failed",
			zap.String("user_id", userID), zap.Error(err))
	}
	return cache, nil
}

func (m *CacheManager) stripe(userID string) *genStripe {
	return &m.stripes[xxhash.Sum64String(userID)%uint64(len(m.stripes))]
}

func (m *CacheManager) generation(userID string) uint64 {
	st := m.stripe(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return m.currentLocked(st, userID)
}

func (m *CacheManager) currentLocked(st *genStripe, userID string) uint64 {
	return m.epoch.Load() + st.gens[userID]
}

// Invalidate drops userID's snapshot. Reads after Invalidate returns load a
// fresh snapshot.
func (m *CacheManager) Invalidate(ctx context.Context, userID string) error {
	st := m.stripe(userID)
	st.mu.Lock()
	st.gens[userID]++
	err := m.store.Invalidate(ctx, userID)
	st.mu.Unlock()
	m.metrics.invalidation()
	if err != nil {
		return fmt.Errorf("invalidate permission cache for %s: %w", userID, err)
	}
	return nil
}

// InvalidateAll drops every snapshot.
func (m *CacheManager) InvalidateAll(ctx context.Context) error {
	for i := range m.stripes {
		m.stripes[i].mu.Lock()
	}
	m.epoch.Add(1)
	err := m.store.Clear(ctx)
	for i := range m.stripes {
		m.stripes[i].mu.Unlock()
	}
	m.metrics.invalidation()
	if err != nil {
		return fmt.Errorf("clear permission caches: %w", err)
	}
	return nil
}
