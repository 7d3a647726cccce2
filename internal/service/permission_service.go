package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
)

// Permissions checked by the HTTP routes.
const (
	PermAppointmentsCreate   = "appointments:create"
	PermAppointmentsRead     = "appointments:read"
	PermAppointmentsCancel   = "appointments:cancel"
	PermAppointmentsComplete = "appointments:complete"
	PermAppointmentsExport   = "appointments:export"
	PermAvailabilityRead     = "availability:read"
	PermSchedulesRead        = "schedules:read"
	PermSchedulesManage      = "schedules:manage"
	PermTimeOffsCreate       = "timeoffs:create"
	PermTimeOffsRead         = "timeoffs:read"
	PermTimeOffsApprove      = "timeoffs:approve"
)

type permissionRepository interface {
	ListByRole(ctx context.Context, role string) ([]string, error)
}

// PermissionService answers role permission checks from the role_permissions table,
// caching each role's grant list.
type PermissionService struct {
	repo   permissionRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewPermissionService constructs the service. cache may be nil.
func NewPermissionService(repo permissionRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func permissionKey(role models.UserKind) string {
	return fmt.Sprintf("permissions:%s", role)
}

// Permissions returns every permission granted to role.
func (s *PermissionService) Permissions(ctx context.Context, role models.UserKind) ([]string, error) {
	var granted []string
	key := permissionKey(role)
	if hit, _ := s.cache.Get(ctx, key, &granted); hit {
		return granted, nil
	}

	granted, err := s.repo.ListByRole(ctx, string(role))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load permissions")
	}
	if granted == nil {
		granted = []string{}
	}
	_ = s.cache.Set(ctx, key, granted, s.ttl)
	return granted, nil
}

// HasPermission reports whether role holds permission.
func (s *PermissionService) HasPermission(ctx context.Context, role models.UserKind, permission string) (bool, error) {
	granted, err := s.Permissions(ctx, role)
	if err != nil {
		return false, err
	}
	for _, p := range granted {
		if p == permission {
			return true, nil
		}
	}
	s.logger.Debug("permission denied", zap.String("role", string(role)), zap.String("permission", permission))
	return false, nil
}

// Invalidate drops cached grants for every role.
func (s *PermissionService) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx, "permissions:*")
}
