package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"medipos/backend/internal/domain"
	"medipos/backend/internal/password"
	"medipos/backend/internal/store/local"
	"medipos/backend/internal/store/memory"
)

func init() {
	password.Cost = bcrypt.MinCost
}

type fixture struct {
	manager *Manager
	store   *local.Store
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := local.New(memory.New(memory.DefaultQuotaBytes))
	require.NoError(t, local.Seed(context.Background(), s, zaptest.NewLogger(t)))

	f := &fixture{store: s, clock: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	f.manager = NewManager(s, "test-secret", zaptest.NewLogger(t))
	f.manager.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) login(t *testing.T, username, secret string, remember bool) domain.AuthResult {
	t.Helper()
	result, err := f.manager.Authenticate(context.Background(), domain.LoginRequest{Username: username, Password: secret, RememberMe: remember})
	require.NoError(t, err)
	return result
}

func TestAuthenticateSessionTTL(t *testing.T) {
	f := newFixture(t)

	short := f.login(t, "admin", "admin123", false)
	require.True(t, short.Success, short.Error)
	assert.Equal(t, 8*time.Hour, short.Session.ExpiresAt.Sub(short.Session.CreatedAt))
	assert.Equal(t, "admin", short.User.Username)
	assert.NotEmpty(t, short.Token)

	long := f.login(t, "admin", "admin123", true)
	require.True(t, long.Success)
	assert.Equal(t, 30*24*time.Hour, long.Session.ExpiresAt.Sub(long.Session.CreatedAt))
	assert.True(t, long.Session.RememberMe)

	current, ok, err := f.manager.CurrentSession(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, long.Session.ID, current.ID)

	user, ok, err := f.store.GetUserByUsername(context.Background(), "admin")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, user.LastLogin)
	assert.True(t, user.LastLogin.Equal(f.clock))
}

func TestAuthenticateFailureReasons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	wrong := f.login(t, "admin", "wrong", false)
	assert.False(t, wrong.Success)
	assert.Equal(t, "Invalid password", wrong.Error)
	assert.ErrorIs(t, wrong.Reason, ErrInvalidCredential)
	assert.Nil(t, wrong.Session)

	_, ok, err := f.manager.CurrentSession(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	history, err := f.manager.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	missing := f.login(t, "nobody", "admin123", false)
	assert.ErrorIs(t, missing.Reason, ErrUserNotFound)

	cashier, ok, err := f.store.GetUserByUsername(ctx, "cashier")
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = f.store.UpdateUser(ctx, cashier.ID, func(u *domain.User) { u.IsActive = false })
	require.NoError(t, err)

	inactive := f.login(t, "cashier", "cashier123", false)
	assert.ErrorIs(t, inactive.Reason, ErrAccountInactive)
	assert.Equal(t, "Account is deactivated", inactive.Error)
}

func TestCurrentSessionExpiresLazily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result := f.login(t, "manager", "manager123", false)
	require.True(t, result.Success)

	f.clock = f.clock.Add(8*time.Hour - time.Second)
	user, ok, err := f.manager.CurrentUser(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "manager", user.Username)

	f.clock = f.clock.Add(2 * time.Second)
	_, ok, err = f.manager.CurrentUser(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, stored, err := f.store.CurrentSession(ctx)
	require.NoError(t, err)
	assert.False(t, stored, "expired session should be removed on read")

	history, err := f.manager.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestResolveToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result := f.login(t, "admin", "admin123", false)
	require.True(t, result.Success)

	actor, err := f.manager.ResolveToken(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, actor.Role)
	assert.Equal(t, result.User.ID, actor.UserID)

	_, err = f.manager.ResolveToken(ctx, result.Token+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, f.manager.Logout(ctx))
	_, err = f.manager.ResolveToken(ctx, result.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)

	again := f.login(t, "admin", "admin123", false)
	f.clock = f.clock.Add(9 * time.Hour)
	_, err = f.manager.ResolveToken(ctx, again.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateUpgradesPlaintextPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.store.CreateUser(ctx, domain.User{Username: "legacy", Password: "legacy-pass", Role: domain.RoleCashier, IsActive: true})
	require.NoError(t, err)

	result := f.login(t, "legacy", "legacy-pass", false)
	require.True(t, result.Success, result.Error)

	stored, ok, err := f.store.GetUser(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, password.IsHash(stored.Password))
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.login(t, "admin", "admin123", false)

	result, err := f.manager.ChangePassword(ctx, admin.User.ID, "nope", "new-secret")
	require.NoError(t, err)
	assert.ErrorIs(t, result.Reason, ErrInvalidCurrentPassword)
	assert.Equal(t, "Current password is incorrect", result.Error)

	result, err = f.manager.ChangePassword(ctx, admin.User.ID, "admin123", "new-secret")
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.False(t, f.login(t, "admin", "admin123", false).Success)
	assert.True(t, f.login(t, "admin", "new-secret", false).Success)
}

func TestUserManagementRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.login(t, "admin", "admin123", false)
	adminActor := domain.Actor{UserID: admin.User.ID, Username: "admin", Role: domain.RoleAdmin}
	cashierActor := domain.Actor{UserID: "cashier-001", Username: "cashier", Role: domain.RoleCashier}

	_, err := f.manager.ListUsers(ctx, cashierActor)
	assert.True(t, errors.Is(err, ErrInsufficientPermissions))

	created, err := f.manager.CreateUser(ctx, adminActor, domain.UserCreateRequest{Username: "pharma1", Password: "secret1", Role: domain.RoleManager})
	require.NoError(t, err)
	assert.True(t, created.Permissions.CanModifyStock)
	assert.False(t, created.Permissions.CanManageUsers)

	_, err = f.manager.CreateUser(ctx, adminActor, domain.UserCreateRequest{Username: "pharma1", Password: "secret1", Role: domain.RoleManager})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = f.manager.CreateUser(ctx, adminActor, domain.UserCreateRequest{Username: "pharma2", Password: "123", Role: domain.RoleCashier})
	assert.ErrorIs(t, err, ErrWeakPassword)

	inactive := false
	updated, err := f.manager.UpdateUser(ctx, adminActor, created.ID, domain.UserUpdateRequest{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = f.manager.UpdateUser(ctx, adminActor, "user-missing", domain.UserUpdateRequest{IsActive: &inactive})
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.ErrorIs(t, f.manager.DeleteUser(ctx, adminActor, admin.User.ID), ErrCannotDeleteSelf)
	require.NoError(t, f.manager.DeleteUser(ctx, adminActor, created.ID))
	assert.ErrorIs(t, f.manager.DeleteUser(ctx, adminActor, created.ID), ErrUserNotFound)

	users, err := f.manager.ListUsers(ctx, adminActor)
	require.NoError(t, err)
	assert.Len(t, users, 3)
}

func TestUpdateProfileOnlyTouchesContactFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cashier := f.login(t, "cashier", "cashier123", false)

	role := domain.RoleAdmin
	name := "Front Desk"
	view, err := f.manager.UpdateProfile(ctx, domain.Actor{UserID: cashier.User.ID, Role: domain.RoleCashier}, domain.UserUpdateRequest{FullName: &name, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, "Front Desk", view.FullName)
	assert.Equal(t, domain.RoleCashier, view.Role)
}
