package rbac

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// logAudit creates an audit log entry. Failures are logged, never returned.
func (s *RBACService) logAudit(ctx context.Context, actorID, action, targetType, targetID string, allowed bool, details string) {
	if s.db == nil {
		return
	}
	audit := &AuditLog{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Allowed:    allowed,
		Details:    details,
		CreatedAt:  time.Now(),
	}
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Create(audit).Error; err != nil {
		s.logger.Warn("audit log write failed",
			zap.String("action", action), zap.String("actor_id", actorID), zap.Error(err))
	}
}

// GetAuditLog retrieves an audit log by ID.
func (s *RBACService) GetAuditLog(ctx context.Context, id string) (*AuditLog, error) {
	if id == "" || s.db == nil {
		return nil, ErrInvalidInput
	}

	var audit AuditLog
	if err := s.db.WithContext(ctx).First(&audit, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &audit, nil
}

// ListAuditLogs retrieves audit logs, optionally filtered by actor or target.
func (s *RBACService) ListAuditLogs(ctx context.Context, actorID, targetID string, limit int) ([]AuditLog, error) {
	if s.db == nil {
		return nil, ErrInvalidInput
	}
	var audits []AuditLog
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if actorID != "" {
		query = query.Where("actor_id = ?", actorID)
	}
	if targetID != "" {
		query = query.Where("target_id = ?", targetID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&audits).Error; err != nil {
		return nil, err
	}
	return audits, nil
}
