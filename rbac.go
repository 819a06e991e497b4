package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CacheBackend selects where permission snapshots are kept.
type CacheBackend string

const (
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendRedis  CacheBackend = "redis"
)

// Config holds the configuration for the RBAC service
type Config struct {
	DB          *gorm.DB
	RedisClient redis.UniversalClient
	// Source replaces the database-backed DataSource when set.
	Source       DataSource
	CacheTTL     time.Duration
	CachePrefix  string
	CacheBackend CacheBackend
	CacheShards  int
	// SensitivityRefresh is how often Run reloads field overrides. Zero
	// disables periodic refresh.
	SensitivityRefresh time.Duration
	Logger             *zap.Logger
	Metrics            *Metrics
	AutoMigrate        bool
	EnableAuditLogging bool
}

// RBACService is the main service struct for the RBAC framework
type RBACService struct {
	db           *gorm.DB
	source       DataSource
	caches       *CacheManager
	registry     *SensitivityRegistry
	logger       *zap.Logger
	metrics      *Metrics
	refresh      time.Duration
	auditEnabled bool
}

// NewRBACService initializes a new RBAC service
func NewRBACService(ctx context.Context, cfg Config) (*RBACService, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DB == nil && cfg.Source == nil {
		return nil, fmt.Errorf("%w: a database or a data source is required", ErrInvalidInput)
	}
	if cfg.EnableAuditLogging && cfg.DB == nil {
		return nil, fmt.Errorf("%w: audit logging requires a database", ErrInvalidInput)
	}

	if cfg.AutoMigrate && cfg.DB != nil {
		if err := cfg.DB.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate: %w", err)
		}
	}

	source := cfg.Source
	if source == nil {
		gs, err := NewGormSource(cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		source = gs
	}

	var store CacheStore
	switch cfg.CacheBackend {
	case CacheBackendRedis:
		if cfg.RedisClient == nil {
			return nil, fmt.Errorf("%w: redis cache backend requires a redis client", ErrInvalidInput)
		}
		store = NewRedisCacheStore(cfg.RedisClient, cfg.CachePrefix)
	case CacheBackendMemory, "":
		store = NewMemoryCacheStore(cfg.CacheShards, 0)
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", ErrInvalidInput, cfg.CacheBackend)
	}

	s := &RBACService{
		db:           cfg.DB,
		source:       source,
		caches:       NewCacheManager(store, NewLoader(source, cfg.CacheTTL, logger), logger, cfg.Metrics),
		registry:     NewSensitivityRegistry(source, logger),
		logger:       logger,
		metrics:      cfg.Metrics,
		refresh:      cfg.SensitivityRefresh,
		auditEnabled: cfg.EnableAuditLogging,
	}
	if err := s.registry.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Run keeps field sensitivities fresh until ctx is done.
func (s *RBACService) Run(ctx context.Context) {
	s.registry.Run(ctx, s.refresh)
}

// Registry returns the field sensitivity registry.
func (s *RBACService) Registry() *SensitivityRegistry { return s.registry }

// PermissionCache returns the current snapshot for userID.
func (s *RBACService) PermissionCache(ctx context.Context, userID string) (*PermissionCache, error) {
	return s.caches.Get(ctx, userID)
}

// TargetContext describes targetUserID for checks against them.
func (s *RBACService) TargetContext(ctx context.Context, targetUserID string) (CheckContext, error) {
	if targetUserID == "" {
		return CheckContext{}, ErrInvalidInput
	}
	return s.source.TargetContext(ctx, targetUserID)
}

// CheckPermission decides whether userID may use code against the target.
func (s *RBACService) CheckPermission(ctx context.Context, userID, code string, cctx CheckContext) (CheckResult, error) {
	p, err := ParsePermission(code)
	if err != nil {
		return CheckResult{Reason: "malformed permission code"}, err
	}
	return s.Check(ctx, userID, p, cctx)
}

// Check is CheckPermission for an already parsed permission.
func (s *RBACService) Check(ctx context.Context, userID string, p Permission, cctx CheckContext) (CheckResult, error) {
	cache, err := s.caches.Get(ctx, userID)
	if err != nil {
		return CheckResult{}, err
	}
	res := Check(cache, p, cctx)
	s.metrics.decision(p, res.Allowed)
	if s.auditEnabled {
		s.logAudit(ctx, userID, "check_permission", "user", cctx.TargetUserID, res.Allowed,
			fmt.Sprintf("%s: %s", p, res.Reason))
	}
	return res, nil
}

// CanAccessDataLevel reports whether userID may use resource.action at level.
func (s *RBACService) CanAccessDataLevel(ctx context.Context, userID, resource, action string, level DataLevel, cctx CheckContext) (bool, error) {
	cache, err := s.caches.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return CanAccessDataLevel(cache, resource, action, level, cctx), nil
}

// GetMaxDataLevel returns the most restrictive tier userID may reach for
// resource.action on the target.
func (s *RBACService) GetMaxDataLevel(ctx context.Context, userID, resource, action string, cctx CheckContext) (DataLevel, bool, error) {
	cache, err := s.caches.Get(ctx, userID)
	if err != nil {
		return "", false, err
	}
	level, ok := GetMaxDataLevel(cache, resource, action, cctx)
	return level, ok, nil
}

// AllowedFields filters fields to those userID may view unmasked.
func (s *RBACService) AllowedFields(ctx context.Context, userID, resource string, fields []string, cctx CheckContext) ([]string, error) {
	cache, err := s.caches.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return GetAllowedFields(cache, s.registry, resource, fields, cctx), nil
}

// EditableFields filters fields to those userID may edit.
func (s *RBACService) EditableFields(ctx context.Context, userID, resource string, fields []string, cctx CheckContext) ([]string, error) {
	cache, err := s.caches.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return GetEditableFields(cache, s.registry, resource, fields, cctx), nil
}

// CanEditColumn reports whether userID may edit one field on the target.
func (s *RBACService) CanEditColumn(ctx context.Context, userID, resource, field string, cctx CheckContext) (bool, error) {
	cache, err := s.caches.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return CanEditColumn(cache, s.registry, resource, field, cctx), nil
}

// MaskUserData masks one record about the target for viewerID.
func (s *RBACService) MaskUserData(ctx context.Context, viewerID, resource string, record map[string]any, cctx CheckContext, opts MaskOptions) (map[string]any, error) {
	cache, err := s.caches.Get(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return NewRecordMasker(cache, s.registry, resource, cctx).MaskRecord(record, opts), nil
}

// MaskUsersData masks records about several users for viewerID. Each
// record's target is resolved from its idField value.
func (s *RBACService) MaskUsersData(ctx context.Context, viewerID, resource, idField string, records []map[string]any, opts MaskOptions) ([]map[string]any, error) {
	cache, err := s.caches.Get(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(records))
	for i, record := range records {
		cctx, err := s.recordTarget(ctx, record, idField)
		if err != nil {
			return nil, err
		}
		out[i] = NewRecordMasker(cache, s.registry, resource, cctx).MaskRecord(record, opts)
	}
	return out, nil
}

// VisibleUsersData is MaskUsersData for listings: records whose target
// viewerID may not view at all are dropped instead of masked. Records
// about the viewer are always kept.
func (s *RBACService) VisibleUsersData(ctx context.Context, viewerID, resource, idField string, records []map[string]any, opts MaskOptions) ([]map[string]any, error) {
	cache, err := s.caches.Get(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	view := Permission{Resource: resource, Action: actionView}
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		cctx, err := s.recordTarget(ctx, record, idField)
		if err != nil {
			return nil, err
		}
		if !isSelfTarget(cache, cctx) {
			res := Check(cache, view, cctx)
			s.metrics.decision(view, res.Allowed)
			if !res.Allowed {
				continue
			}
		}
		out = append(out, NewRecordMasker(cache, s.registry, resource, cctx).MaskRecord(record, opts))
	}
	return out, nil
}

func (s *RBACService) recordTarget(ctx context.Context, record map[string]any, idField string) (CheckContext, error) {
	id := stringify(record[idField])
	if id == "" {
		return CheckContext{}, nil
	}
	cctx, err := s.source.TargetContext(ctx, id)
	if err != nil {
		return CheckContext{}, fmt.Errorf("resolve target %s: %w", id, err)
	}
	return cctx, nil
}

// InvalidateUser drops userID's snapshot. Call it whenever roles, tags or
// scoped assignments of userID change.
func (s *RBACService) InvalidateUser(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidInput
	}
	return s.caches.Invalidate(ctx, userID)
}

// InvalidateAll drops every snapshot.
func (s *RBACService) InvalidateAll(ctx context.Context) error {
	return s.caches.InvalidateAll(ctx)
}
