package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
)

type permissionRepoStub struct {
	grants map[string][]string
	calls  int
	err    error
}

func (s *permissionRepoStub) ListByRole(ctx context.Context, role string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.grants[role], nil
}

func TestPermissionServiceChecksAndCaches(t *testing.T) {
	repo := &permissionRepoStub{grants: map[string][]string{
		"DOCTOR": {PermAppointmentsRead, PermAppointmentsComplete},
	}}
	cache := NewCacheService(newMemoryCache(), nil, 0, nil, true)
	svc := NewPermissionService(repo, cache, 0, nil)
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, models.KindDoctor, PermAppointmentsComplete)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasPermission(ctx, models.KindDoctor, PermTimeOffsApprove)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, repo.calls)

	ok, err = svc.HasPermission(ctx, models.KindPatient, PermAppointmentsRead)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.Permissions(ctx, models.KindDoctor)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)
}

func TestPermissionServiceWithoutCache(t *testing.T) {
	repo := &permissionRepoStub{grants: map[string][]string{"ADMIN": {PermTimeOffsApprove}}}
	svc := NewPermissionService(repo, nil, 0, nil)

	for i := 0; i < 2; i++ {
		ok, err := svc.HasPermission(context.Background(), models.KindAdmin, PermTimeOffsApprove)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 2, repo.calls)

	repo.err = errors.New("db down")
	_, err := svc.HasPermission(context.Background(), models.KindAdmin, PermTimeOffsApprove)
	assert.Equal(t, appErrors.ErrInternal.Code, errorCode(t, err))
}
