package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/vmihailenco/msgpack/v5"
)

// CacheStore holds PermissionCache snapshots keyed by user ID. Get returns
// ErrCacheMiss when no usable entry exists.
type CacheStore interface {
	Get(ctx context.Context, userID string) (*PermissionCache, error)
	Set(ctx context.Context, cache *PermissionCache) error
	Invalidate(ctx context.Context, userID string) error
	Clear(ctx context.Context) error
}

const defaultShardCount = 16

// MemoryCacheStore keeps snapshots in process, spread over go-cache shards
// so that users on different shards never contend.
type MemoryCacheStore struct {
	shards []*gocache.Cache
}

// NewMemoryCacheStore creates a store with shardCount shards. Entries are
// dropped by go-cache when their snapshot expires.
func NewMemoryCacheStore(shardCount int, cleanupInterval time.Duration) *MemoryCacheStore {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	s := &MemoryCacheStore{shards: make([]*gocache.Cache, shardCount)}
	for i := range s.shards {
		s.shards[i] = gocache.New(gocache.NoExpiration, cleanupInterval)
	}
	return s
}

func (s *MemoryCacheStore) shard(userID string) *gocache.Cache {
	return s.shards[xxhash.Sum64String(userID)%uint64(len(s.shards))]
}

func (s *MemoryCacheStore) Get(_ context.Context, userID string) (*PermissionCache, error) {
	v, ok := s.shard(userID).Get(userID)
	if !ok {
		return nil, ErrCacheMiss
	}
	cache, ok := v.(*PermissionCache)
	if !ok || cache == nil {
		return nil, ErrCacheMiss
	}
	return cache, nil
}

func (s *MemoryCacheStore) Set(_ context.Context, cache *PermissionCache) error {
	if cache == nil || cache.UserID == "" {
		return fmt.Errorf("%w: cache without user id", ErrInvalidInput)
	}
	ttl := time.Until(cache.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	s.shard(cache.UserID).Set(cache.UserID, cache, ttl)
	return nil
}

func (s *MemoryCacheStore) Invalidate(_ context.Context, userID string) error {
	s.shard(userID).Delete(userID)
	return nil
}

func (s *MemoryCacheStore) Clear(context.Context) error {
	for _, shard := range s.shards {
		shard.Flush()
	}
	return nil
}

// Len returns the number of entries across all shards, expired ones
// included until the janitor removes them.
func (s *MemoryCacheStore) Len() int {
	n := 0
	for _, shard := range s.shards {
		n += shard.ItemCount()
	}
	return n
}

// RedisCacheStore keeps msgpack-encoded snapshots in Redis with a key TTL
// matching the snapshot's expiry.
type RedisCacheStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCacheStore creates a store whose keys start with prefix.
func NewRedisCacheStore(client redis.UniversalClient, prefix string) *RedisCacheStore {
	if prefix == "" {
		prefix = "rbac:"
	}
	return &RedisCacheStore{client: client, prefix: prefix}
}

func (s *RedisCacheStore) key(userID string) string {
	return s.prefix + "perm:user:" + userID
}

func (s *RedisCacheStore) Get(ctx context.Context, userID string) (*PermissionCache, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var w wireCache
	if err := msgpack.Unmarshal(raw, &w); err != nil {
		// corrupt entries read as a miss and get rebuilt
		return nil, fmt.Errorf("%w: decode: %v", ErrCacheMiss, err)
	}
	return w.toCache(), nil
}

func (s *RedisCacheStore) Set(ctx context.Context, cache *PermissionCache) error {
	if cache == nil || cache.UserID == "" {
		return fmt.Errorf("%w: cache without user id", ErrInvalidInput)
	}
	ttl := time.Until(cache.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := msgpack.Marshal(newWireCache(cache))
	if err != nil {
		return fmt.Errorf("encode permission cache: %w", err)
	}
	return s.client.Set(ctx, s.key(cache.UserID), raw, ttl).Err()
}

func (s *RedisCacheStore) Invalidate(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}

func (s *RedisCacheStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"perm:user:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) > 0 {
		return s.client.Del(ctx, keys...).Err()
	}
	return nil
}

// wireCache is the msgpack layout of a PermissionCache.
type wireCache struct {
	UserID        string         `msgpack:"u"`
	LoadedAt      time.Time      `msgpack:"la"`
	ExpiresAt     time.Time      `msgpack:"ea"`
	Permissions   []string       `msgpack:"p"`
	UnitGrants    []wireUnit     `msgpack:"ug"`
	Roles         []AssignedRole `msgpack:"r"`
	Tags          []string       `msgpack:"t"`
	TagGrants     []TagRule      `msgpack:"tg"`
	TagDenies     []TagRule      `msgpack:"td"`
	Departments   []string       `msgpack:"od"`
	LOBs          []string       `msgpack:"ol"`
	Divisions     []string       `msgpack:"ov"`
	Locations     []string       `msgpack:"oc"`
	DirectReports []string       `msgpack:"dr"`
	Supervisors   []string       `msgpack:"sv"`
}

type wireUnit struct {
	Kind        OrgUnitKind `msgpack:"k"`
	UnitID      string      `msgpack:"id"`
	Permissions []string    `msgpack:"p"`
}

func newWireCache(c *PermissionCache) wireCache {
	return wireCache{
		UserID:        c.UserID,
		LoadedAt:      c.LoadedAt,
		ExpiresAt:     c.ExpiresAt,
		Permissions:   c.Permissions.Sorted(),
		UnitGrants: lo.Map(c.UnitGrants, func(g UnitGrant, _ int) wireUnit {
			return wireUnit{Kind: g.Kind, UnitID: g.UnitID, Permissions: g.Permissions.Sorted()}
		}),
		Roles:         c.Roles,
		Tags:          c.Tags.Sorted(),
		TagGrants:     c.TagGrants,
		TagDenies:     c.TagDenies,
		Departments:   c.OrgContext.Departments.Sorted(),
		LOBs:          c.OrgContext.LOBs.Sorted(),
		Divisions:     c.OrgContext.Divisions.Sorted(),
		Locations:     c.OrgContext.Locations.Sorted(),
		DirectReports: c.OrgContext.DirectReports.Sorted(),
		Supervisors:   c.OrgContext.Supervisors.Sorted(),
	}
}

func (w wireCache) toCache() *PermissionCache {
	return &PermissionCache{
		UserID:      w.UserID,
		LoadedAt:    w.LoadedAt,
		ExpiresAt:   w.ExpiresAt,
		Permissions: NewStringSet(w.Permissions...),
		UnitGrants: lo.Map(w.UnitGrants, func(u wireUnit, _ int) UnitGrant {
			return UnitGrant{Kind: u.Kind, UnitID: u.UnitID, Permissions: NewStringSet(u.Permissions...)}
		}),
		Roles:       w.Roles,
		Tags:        NewStringSet(w.Tags...),
		TagGrants:   w.TagGrants,
		TagDenies:   w.TagDenies,
		OrgContext: OrgContext{
			UserID:        w.UserID,
			Departments:   NewStringSet(w.Departments...),
			LOBs:          NewStringSet(w.LOBs...),
			Divisions:     NewStringSet(w.Divisions...),
			Locations:     NewStringSet(w.Locations...),
			DirectReports: NewStringSet(w.DirectReports...),
			Supervisors:   NewStringSet(w.Supervisors...),
		},
	}
}
