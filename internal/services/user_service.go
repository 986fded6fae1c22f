package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/mhalloran/curbshare/internal/models"
	"github.com/mhalloran/curbshare/pkg/crypto"
	apperrors "github.com/mhalloran/curbshare/pkg/errors"
	"github.com/mhalloran/curbshare/pkg/validator"
)

const minPasswordLength = 8

// ErrEmailInUse indicates the email is already registered.
var ErrEmailInUse = apperrors.New("EMAIL_IN_USE", "Email address already registered", http.StatusConflict)

// RegisterInput captures signup fields.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Phone       string
}

// UpdateProfileInput describes mutable profile fields.
type UpdateProfileInput struct {
	DisplayName *string
	Phone       *string
}

// UserService handles registration, authentication, and profiles.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Register creates a new user. Emails are lower-cased before the uniqueness
// check so addresses differing only in case collide.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if !validator.ValidateEmail(email) {
		return nil, apperrors.NewBadRequest("a valid email address is required")
	}

	if len(input.Password) < minPasswordLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Email:       email,
		Password:    hashed,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Phone:       strings.TrimSpace(input.Phone),
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	return user, nil
}

// Authenticate verifies the credentials and returns the matching user.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", normaliseEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}

	return &user, nil
}

// GetByID loads a user by identifier.
func (s *UserService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", strings.TrimSpace(userID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	return &user, nil
}

// UpdateProfile modifies mutable profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*input.DisplayName)
	}
	if input.Phone != nil {
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update profile: %w", err)
	}

	return s.GetByID(ctx, userID)
}
