package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// DirectoryService resolves users by email and checks their kind.
type DirectoryService struct {
	users  userRepository
	logger *zap.Logger
}

// NewDirectoryService constructs the service.
func NewDirectoryService(users userRepository, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{users: users, logger: logger}
}

// ResolveUser looks a user up by email.
func (s *DirectoryService) ResolveUser(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "email is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found: "+email)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve user")
	}
	return user, nil
}

// ResolveByID looks a user up by identifier.
func (s *DirectoryService) ResolveByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve user")
	}
	return user, nil
}

// ResolveDoctor resolves a user that can be booked.
func (s *DirectoryService) ResolveDoctor(ctx context.Context, email string) (*models.User, error) {
	return s.resolveKind(ctx, email, (*models.User).IsDoctor, "user is not a doctor")
}

// ResolvePatient resolves a user that can book appointments.
func (s *DirectoryService) ResolvePatient(ctx context.Context, email string) (*models.User, error) {
	return s.resolveKind(ctx, email, (*models.User).IsPatient, "user is not a patient")
}

// ResolveEmployee resolves a staff user that may hold schedules and time-off.
func (s *DirectoryService) ResolveEmployee(ctx context.Context, email string) (*models.User, error) {
	return s.resolveKind(ctx, email, (*models.User).IsEmployee, "user is not an employee")
}

func (s *DirectoryService) resolveKind(ctx context.Context, email string, check func(*models.User) bool, message string) (*models.User, error) {
	user, err := s.ResolveUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if !check(user) {
		s.logger.Debug("user kind rejected", zap.String("email", email), zap.String("kind", string(user.Kind)))
		return nil, appErrors.Clone(appErrors.ErrValidation, message)
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is inactive")
	}
	return user, nil
}
