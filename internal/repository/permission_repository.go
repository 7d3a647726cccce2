package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PermissionRepository reads the role to permission table maintained outside this service.
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository constructs the repository.
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// ListByRole returns the permissions granted to a role.
func (r *PermissionRepository) ListByRole(ctx context.Context, role string) ([]string, error) {
	const query = `SELECT permission FROM role_permissions WHERE role = $1 ORDER BY permission`
	var permissions []string
	if err := r.db.SelectContext(ctx, &permissions, query, role); err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	return permissions, nil
}
