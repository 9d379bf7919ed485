package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"healthtrack-backend/internal/apps/user/models"
	"healthtrack-backend/internal/apps/user/repository"
	"healthtrack-backend/internal/common/apperror"
	"healthtrack-backend/pkg/password"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserService defines the interface for user business logic
type UserService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, req models.UpdateProfileRequest) (*models.User, error)
	FindOrCreateByPhone(ctx context.Context, phone string) (*models.User, bool, error)
	Register(ctx context.Context, email, plainPassword string, displayName *string) (*models.User, error)
	Authenticate(ctx context.Context, email, plainPassword string) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// userService implements UserService
type userService struct {
	repo   repository.UserRepository
	logger *zap.Logger
}

// NewUserService creates a new instance of UserService
func NewUserService(repo repository.UserRepository, logger *zap.Logger) UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userService{repo: repo, logger: logger}
}

var errInvalidCredentials = apperror.New(apperror.CodeUnauthorized, "invalid email or password")

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnPasswordCheck spends the same time as a real verification so unknown
// emails cannot be told apart by latency
func burnPasswordCheck(plainPassword string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = password.Hash("healthtrack-dummy-password")
	})
	password.Verify(plainPassword, dummyHash)
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// GetByID retrieves a user by ID
func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.New(apperror.CodeNotFound, "user not found")
		}
		return nil, apperror.FromDB(err)
	}
	return user, nil
}

// UpdateProfile changes the editable profile fields
func (s *userService) UpdateProfile(ctx context.Context, id uuid.UUID, req models.UpdateProfileRequest) (*models.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		user.DisplayName = trimmedOrNil(req.DisplayName)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, apperror.FromDB(err)
	}
	return user, nil
}

// FindOrCreateByPhone returns the user owning a normalized phone, creating one
// on first login. created reports whether a new user was inserted.
func (s *userService) FindOrCreateByPhone(ctx context.Context, phone string) (*models.User, bool, error) {
	user, err := s.repo.FindByPhone(ctx, phone)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperror.FromDB(err)
	}

	user = &models.User{Phone: &phone}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, false, apperror.FromDB(err)
	}
	s.logger.Info("user created from phone login", zap.String("user_id", user.ID.String()))
	return user, true, nil
}

// Register creates a password account
func (s *userService) Register(ctx context.Context, email, plainPassword string, displayName *string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, apperror.New(apperror.CodeValidation, "email is required")
	}

	_, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		return nil, apperror.New(apperror.CodeConflict, "an account with this email already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.FromDB(err)
	}

	hash, err := password.Hash(plainPassword)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "internal error", err)
	}

	user := &models.User{
		Email:        &email,
		PasswordHash: &hash,
		DisplayName:  trimmedOrNil(displayName),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		err = apperror.FromDB(err)
		if apperror.CodeOf(err) == apperror.CodeConflict {
			// lost a race with a concurrent registration
			return nil, apperror.New(apperror.CodeConflict, "an account with this email already exists")
		}
		return nil, err
	}
	return user, nil
}

// Authenticate checks email and password
func (s *userService) Authenticate(ctx context.Context, email, plainPassword string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			burnPasswordCheck(plainPassword)
			return nil, errInvalidCredentials
		}
		return nil, apperror.FromDB(err)
	}

	if !user.HasPassword() {
		burnPasswordCheck(plainPassword)
		return nil, errInvalidCredentials
	}
	if !password.Verify(plainPassword, *user.PasswordHash) {
		return nil, errInvalidCredentials
	}
	return user, nil
}

// Delete removes the account
func (s *userService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.New(apperror.CodeNotFound, "user not found")
		}
		return apperror.FromDB(err)
	}
	return nil
}
