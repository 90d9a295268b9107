package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/shopapp/internal/auth"
	"github.com/charlesng35/shopapp/internal/database/testutil"
	"github.com/charlesng35/shopapp/internal/models"
	"github.com/charlesng35/shopapp/pkg/crypto"
	apperrors "github.com/charlesng35/shopapp/pkg/errors"
)

type recordingInvalidator struct {
	calls []string
	err   error
}

func (r *recordingInvalidator) InvalidateAll(_ context.Context, ownerID string) (int64, error) {
	r.calls = append(r.calls, ownerID)
	return 1, r.err
}

func newUserService(t *testing.T) (*UserService, *recordingInvalidator, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	inv := &recordingInvalidator{}
	svc, err := NewUserService(db, inv)
	require.NoError(t, err)
	return svc, inv, db
}

func registerCustomer(t *testing.T, svc *UserService, phone string) *models.User {
	t.Helper()

	user, err := svc.Register(context.Background(), RegisterInput{
		PhoneNumber: phone,
		Password:    "s3cret-pass",
		FullName:    "Nguyen Van A",
		Address:     "12 Tran Hung Dao",
	})
	require.NoError(t, err)
	return user
}

func TestNewUserServiceRequiresDB(t *testing.T) {
	_, err := NewUserService(nil, nil)
	require.Error(t, err)
}

func TestUserServiceRegister(t *testing.T) {
	svc, _, db := newUserService(t)

	user := registerCustomer(t, svc, "0912345678")
	require.NotEmpty(t, user.ID)
	require.Equal(t, models.RoleUser, user.RoleName())
	require.True(t, user.IsActive)
	require.NotEqual(t, "s3cret-pass", user.Password)
	require.True(t, crypto.VerifyPassword(user.Password, "s3cret-pass"))

	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", user.ID).Error)
	require.Equal(t, "0912345678", stored.PhoneNumber)
}

func TestUserServiceRegisterRejectsDuplicatePhone(t *testing.T) {
	svc, _, _ := newUserService(t)
	registerCustomer(t, svc, "0912345678")

	_, err := svc.Register(context.Background(), RegisterInput{PhoneNumber: " 0912345678 ", Password: "other-pass"})
	require.ErrorIs(t, err, ErrPhoneNumberTaken)
}

func TestUserServiceRegisterRoles(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{PhoneNumber: "0900000001", Password: "pw", Role: "admin"})
	require.ErrorIs(t, err, ErrPrivilegedRole)

	_, err = svc.Register(ctx, RegisterInput{PhoneNumber: "0900000002", Password: "pw", Role: "reseller"})
	require.ErrorIs(t, err, ErrRoleNotFound)

	_, err = svc.Register(ctx, RegisterInput{Password: "pw"})
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, apperrors.ErrBadRequest.Code, appErr.Code)
}

func TestUserServiceEnsureAdminIsIdempotent(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	first, err := svc.EnsureAdmin(ctx, "0999999999", "admin-pass")
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, first.RoleName())

	second, err := svc.EnsureAdmin(ctx, "0999999999", "ignored")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.True(t, crypto.VerifyPassword(second.Password, "admin-pass"))
}

func TestUserServiceAuthenticate(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()
	registered := registerCustomer(t, svc, "0912345678")

	fixed := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	user, err := svc.Authenticate(ctx, "0912345678", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, registered.ID, user.ID)
	require.Equal(t, models.RoleUser, user.RoleName())
	require.NotNil(t, user.LastLoginAt)
	require.True(t, fixed.Equal(*user.LastLoginAt))

	_, err = svc.Authenticate(ctx, "0912345678", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "0000000000", "s3cret-pass")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserServiceAuthenticateBlockedAccount(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()
	user := registerCustomer(t, svc, "0912345678")

	_, err := svc.SetActive(ctx, user.ID, false)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "0912345678", "s3cret-pass")
	require.ErrorIs(t, err, apperrors.ErrAccountLocked)

	// a wrong password on a blocked account must not reveal the block
	_, err = svc.Authenticate(ctx, "0912345678", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserServiceGetByIDNotFound(t *testing.T) {
	svc, _, _ := newUserService(t)

	_, err := svc.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserServiceListSkipsAdmins(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.EnsureAdmin(ctx, "0999999999", "admin-pass")
	require.NoError(t, err)
	registerCustomer(t, svc, "0911111111")
	bob, err := svc.Register(ctx, RegisterInput{PhoneNumber: "0922222222", Password: "pw", FullName: "Bob Tran"})
	require.NoError(t, err)

	users, total, err := svc.List(ctx, ListUsersOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, users, 2)

	users, total, err = svc.List(ctx, ListUsersOptions{Keyword: "bob"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, bob.ID, users[0].ID)

	users, total, err = svc.List(ctx, ListUsersOptions{Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, users, 1)
}

func TestUserServiceUpdateDetails(t *testing.T) {
	svc, inv, _ := newUserService(t)
	ctx := context.Background()
	user := registerCustomer(t, svc, "0912345678")

	name := "Tran Thi B"
	updated, err := svc.UpdateDetails(ctx, user.ID, UpdateDetailsInput{FullName: &name})
	require.NoError(t, err)
	require.Equal(t, name, updated.FullName)
	require.Empty(t, inv.calls)

	password := "brand-new-pass"
	updated, err = svc.UpdateDetails(ctx, user.ID, UpdateDetailsInput{Password: &password})
	require.NoError(t, err)
	require.True(t, crypto.VerifyPassword(updated.Password, password))
	require.Equal(t, []string{user.ID}, inv.calls)
}

func TestUserServiceUpdateDetailsPhoneConflict(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()
	registerCustomer(t, svc, "0911111111")
	other := registerCustomer(t, svc, "0922222222")

	phone := "0911111111"
	_, err := svc.UpdateDetails(ctx, other.ID, UpdateDetailsInput{PhoneNumber: &phone})
	require.ErrorIs(t, err, ErrPhoneNumberTaken)
}

func TestUserServiceResetPassword(t *testing.T) {
	svc, inv, _ := newUserService(t)
	ctx := context.Background()
	user := registerCustomer(t, svc, "0912345678")

	password, err := svc.ResetPassword(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, password, resetPasswordLength)
	require.Equal(t, []string{user.ID}, inv.calls)

	_, err = svc.Authenticate(ctx, "0912345678", password)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "0912345678", "s3cret-pass")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserServiceResetPasswordPropagatesInvalidationFailure(t *testing.T) {
	svc, inv, _ := newUserService(t)
	user := registerCustomer(t, svc, "0912345678")
	inv.err = errors.New("store offline")

	_, err := svc.ResetPassword(context.Background(), user.ID)
	require.Error(t, err)
}

func TestUserServiceSetActive(t *testing.T) {
	svc, inv, _ := newUserService(t)
	ctx := context.Background()
	user := registerCustomer(t, svc, "0912345678")

	blocked, err := svc.SetActive(ctx, user.ID, false)
	require.NoError(t, err)
	require.False(t, blocked.IsActive)
	require.Equal(t, []string{user.ID}, inv.calls)

	enabled, err := svc.SetActive(ctx, user.ID, true)
	require.NoError(t, err)
	require.True(t, enabled.IsActive)
	require.Len(t, inv.calls, 1)
}

func TestUserServiceResolveSubject(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()
	user := registerCustomer(t, svc, "0912345678")

	subject, err := svc.ResolveSubject(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, auth.Subject{ID: user.ID, Role: models.RoleUser}, subject)

	_, err = svc.SetActive(ctx, user.ID, false)
	require.NoError(t, err)
	_, err = svc.ResolveSubject(ctx, user.ID)
	require.ErrorIs(t, err, auth.ErrSubjectUnavailable)

	_, err = svc.ResolveSubject(ctx, "missing")
	require.ErrorIs(t, err, auth.ErrSubjectUnavailable)
}

func TestIsUniqueConstraintError(t *testing.T) {
	require.False(t, isUniqueConstraintError(nil))
	require.True(t, isUniqueConstraintError(gorm.ErrDuplicatedKey))
	require.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: users.phone_number")))
	require.False(t, isUniqueConstraintError(errors.New("connection refused")))
}
