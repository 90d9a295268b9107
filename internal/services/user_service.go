package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/shopapp/internal/auth"
	"github.com/charlesng35/shopapp/internal/models"
	"github.com/charlesng35/shopapp/pkg/crypto"
	apperrors "github.com/charlesng35/shopapp/pkg/errors"
	"github.com/charlesng35/shopapp/pkg/logger"
	"github.com/charlesng35/shopapp/pkg/metrics"
)

// resetPasswordLength matches the short one-time passwords handed to support staff.
const resetPasswordLength = 5

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrPhoneNumberTaken rejects registrations and updates reusing a phone number.
	ErrPhoneNumberTaken = apperrors.New("USER_PHONE_TAKEN", "Phone number already exists", http.StatusConflict)
	// ErrRoleNotFound rejects unknown role names.
	ErrRoleNotFound = apperrors.New("ROLE_NOT_FOUND", "Role not found", http.StatusBadRequest)
	// ErrPrivilegedRole blocks self-service registration of administrators.
	ErrPrivilegedRole = apperrors.New("ROLE_PRIVILEGED", "You cannot register an admin account", http.StatusForbidden)
)

// SessionInvalidator drops every session of a user.
type SessionInvalidator interface {
	InvalidateAll(ctx context.Context, ownerID string) (int64, error)
}

// RegisterInput describes the fields accepted when creating a user.
type RegisterInput struct {
	PhoneNumber string
	Password    string
	FullName    string
	Address     string
	DateOfBirth *time.Time
	Role        string
	// AllowPrivileged permits the admin role; public registration leaves it false.
	AllowPrivileged bool
}

// UpdateDetailsInput enumerates mutable user attributes. Nil fields are left untouched.
type UpdateDetailsInput struct {
	PhoneNumber *string
	FullName    *string
	Address     *string
	DateOfBirth *time.Time
	Password    *string
}

// ListUsersOptions controls pagination for user listing.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Keyword  string
}

// UserService is the identity store: accounts, credentials and activation.
type UserService struct {
	db       *gorm.DB
	sessions SessionInvalidator
	now      func() time.Time
	log      *zap.Logger
}

// NewUserService constructs a UserService. sessions may be nil in which
// case credential changes do not end existing sessions.
func NewUserService(db *gorm.DB, sessions SessionInvalidator) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{
		db:       db,
		sessions: sessions,
		now:      time.Now,
		log:      logger.WithModule("users"),
	}, nil
}

// Register provisions a new user with a hashed password.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	phone := strings.TrimSpace(input.PhoneNumber)
	if phone == "" {
		return nil, apperrors.NewBadRequest("phone number is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	roleName := strings.ToLower(strings.TrimSpace(input.Role))
	if roleName == "" {
		roleName = models.RoleUser
	}
	if roleName == models.RoleAdmin && !input.AllowPrivileged {
		return nil, ErrPrivilegedRole
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		PhoneNumber: phone,
		Password:    hashed,
		FullName:    strings.TrimSpace(input.FullName),
		Address:     strings.TrimSpace(input.Address),
		DateOfBirth: input.DateOfBirth,
		IsActive:    true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.Where("name = ?", roleName).Take(&role).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return fmt.Errorf("load role: %w", err)
		}

		var taken int64
		if err := tx.Model(&models.User{}).Where("phone_number = ?", phone).Count(&taken).Error; err != nil {
			return fmt.Errorf("check phone number: %w", err)
		}
		if taken > 0 {
			return ErrPhoneNumberTaken
		}

		user.RoleID = role.ID
		user.Role = &role
		return tx.Omit("Role").Create(user).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if isUniqueConstraintError(err) {
			return nil, ErrPhoneNumberTaken
		}
		return nil, fmt.Errorf("user service: register user: %w", err)
	}

	s.log.Info("user registered", zap.String("user_id", user.ID), zap.String("role", roleName))
	return user, nil
}

// EnsureAdmin creates the administrator account when no user holds phone yet.
func (s *UserService) EnsureAdmin(ctx context.Context, phone, password string) (*models.User, error) {
	var existing models.User
	err := s.db.WithContext(ctx).Preload("Role").Where("phone_number = ?", strings.TrimSpace(phone)).Take(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user service: load admin: %w", err)
	}
	return s.Register(ctx, RegisterInput{
		PhoneNumber:     phone,
		Password:        password,
		FullName:        "Administrator",
		Role:            models.RoleAdmin,
		AllowPrivileged: true,
	})
}

// Authenticate verifies phone and password. Unknown phone numbers and wrong
// passwords fail identically; blocked accounts fail with ErrAccountLocked.
func (s *UserService) Authenticate(ctx context.Context, phone, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Role").
		Where("phone_number = ?", strings.TrimSpace(phone)).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("locked").Inc()
		return nil, apperrors.ErrAccountLocked
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		s.log.Warn("failed to record login time", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.LastLoginAt = &now

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &user, nil
}

// GetByID loads a user and its role.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Role").Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// List pages through customer accounts. Administrators are not listed.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	keyword := strings.ToLower(strings.TrimSpace(opts.Keyword))
	customers := func() *gorm.DB {
		query := s.db.WithContext(ctx).Model(&models.User{}).
			Joins("JOIN roles ON roles.id = users.role_id").
			Where("roles.name = ?", models.RoleUser)
		if keyword != "" {
			pattern := "%" + keyword + "%"
			query = query.Where("LOWER(users.full_name) LIKE ? OR users.phone_number LIKE ? OR LOWER(users.address) LIKE ?", pattern, pattern, pattern)
		}
		return query
	}

	var total int64
	if err := customers().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := customers().
		Preload("Role").
		Order("users.created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}
	return users, total, nil
}

// UpdateDetails persists profile changes. A new password ends every
// session of the user.
func (s *UserService) UpdateDetails(ctx context.Context, id string, input UpdateDetailsInput) (*models.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.PhoneNumber != nil {
		if phone := strings.TrimSpace(*input.PhoneNumber); phone != "" && phone != user.PhoneNumber {
			updates["phone_number"] = phone
		}
	}
	if input.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*input.FullName)
	}
	if input.Address != nil {
		updates["address"] = strings.TrimSpace(*input.Address)
	}
	if input.DateOfBirth != nil {
		updates["date_of_birth"] = *input.DateOfBirth
	}
	passwordChanged := input.Password != nil && *input.Password != ""
	if passwordChanged {
		hashed, err := crypto.HashPassword(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("user service: hash password: %w", err)
		}
		updates["password"] = hashed
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrPhoneNumberTaken
		}
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	if passwordChanged {
		if err := s.invalidateSessions(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	return s.GetByID(ctx, user.ID)
}

// ResetPassword replaces the password with a random one, ends every session
// and returns the new password once.
func (s *UserService) ResetPassword(ctx context.Context, id string) (string, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	password, err := crypto.RandomPassword(resetPasswordLength)
	if err != nil {
		return "", fmt.Errorf("user service: generate password: %w", err)
	}
	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("user service: hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password", hashed).Error; err != nil {
		return "", fmt.Errorf("user service: update password: %w", err)
	}
	if err := s.invalidateSessions(ctx, user.ID); err != nil {
		return "", err
	}

	s.log.Info("password reset", zap.String("user_id", user.ID))
	return password, nil
}

// SetActive blocks or re-enables an account. Blocking ends every session.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) (*models.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("user service: update active flag: %w", err)
	}
	user.IsActive = active

	if !active {
		if err := s.invalidateSessions(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	s.log.Info("account activation changed", zap.String("user_id", user.ID), zap.Bool("active", active))
	return user, nil
}

// ResolveSubject implements auth.SubjectResolver. Missing and blocked
// accounts resolve to auth.ErrSubjectUnavailable.
func (s *UserService) ResolveSubject(ctx context.Context, userID string) (auth.Subject, error) {
	user, err := s.GetByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return auth.Subject{}, auth.ErrSubjectUnavailable
	}
	if err != nil {
		return auth.Subject{}, err
	}
	if !user.IsActive {
		return auth.Subject{}, auth.ErrSubjectUnavailable
	}
	return auth.Subject{ID: user.ID, Role: user.RoleName()}, nil
}

func (s *UserService) invalidateSessions(ctx context.Context, userID string) error {
	if s.sessions == nil {
		return nil
	}
	if _, err := s.sessions.InvalidateAll(ctx, userID); err != nil {
		return fmt.Errorf("user service: invalidate sessions: %w", err)
	}
	return nil
}
