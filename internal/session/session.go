// Package session authenticates users, tracks the current session and
// manages user accounts.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"medipos/backend/internal/domain"
	"medipos/backend/internal/password"
	"medipos/backend/internal/store"
)

const (
	DefaultTTL  = 8 * time.Hour
	RememberTTL = 30 * 24 * time.Hour
)

var (
	ErrUserNotFound            = errors.New("User not found")
	ErrAccountInactive         = errors.New("Account is deactivated")
	ErrInvalidCredential       = errors.New("Invalid password")
	ErrInsufficientPermissions = errors.New("Insufficient permissions")
	ErrInvalidCurrentPassword  = errors.New("Current password is incorrect")
	ErrUsernameTaken           = errors.New("Username already exists")
	ErrCannotDeleteSelf        = errors.New("Cannot delete your own account")
	ErrWeakPassword            = errors.New("Password must be at least 6 characters")
	ErrInvalidUsername         = errors.New("Username must be at least 3 characters without spaces")
	ErrInvalidRole             = errors.New("Role must be admin, manager or cashier")
	ErrSessionExpired          = errors.New("session expired")
	ErrInvalidToken            = errors.New("invalid or expired token")
)

type Store interface {
	store.UserStore
	store.SessionStore
}

type Manager struct {
	store  Store
	secret []byte
	logger *zap.Logger
	now    func() time.Time
}

type sessionClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewManager(s Store, secret string, logger *zap.Logger) *Manager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  s,
		secret: []byte(secret),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate checks the credentials and, on success, records the login and
// opens a new current session. A failed check creates no session; the reason
// is reported in the result rather than as an error.
func (m *Manager) Authenticate(ctx context.Context, req domain.LoginRequest) (domain.AuthResult, error) {
	username := strings.TrimSpace(req.Username)
	user, ok, err := m.store.GetUserByUsername(ctx, username)
	if err != nil {
		return domain.AuthResult{}, err
	}
	if !ok {
		return Failure(ErrUserNotFound), nil
	}
	if !user.IsActive {
		return Failure(ErrAccountInactive), nil
	}

	valid, upgrade := password.Verify(user.Password, req.Password)
	if !valid {
		return Failure(ErrInvalidCredential), nil
	}

	now := m.now()
	var upgraded string
	if upgrade {
		if upgraded, err = password.Hash(req.Password); err != nil {
			m.logger.Warn("password upgrade failed", zap.String("user_id", user.ID), zap.Error(err))
			upgraded = ""
		}
	}
	updated, _, err := m.store.UpdateUser(ctx, user.ID, func(u *domain.User) {
		u.LastLogin = &now
		if upgraded != "" {
			u.Password = upgraded
		}
	})
	if err != nil {
		return domain.AuthResult{}, err
	}
	if updated != nil {
		user = updated
	}

	ttl := DefaultTTL
	if req.RememberMe {
		ttl = RememberTTL
	}
	session, err := m.store.CreateSession(ctx, domain.Session{
		UserID:     user.ID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		RememberMe: req.RememberMe,
	})
	if err != nil {
		return domain.AuthResult{}, err
	}

	token, err := m.IssueToken(*session, user.Role)
	if err != nil {
		return domain.AuthResult{}, err
	}

	view := user.View()
	m.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("session_id", session.ID),
		zap.Bool("remember_me", req.RememberMe),
	)
	return domain.AuthResult{Success: true, User: &view, Session: session, Token: token}, nil
}

// Failure wraps a reason into an unsuccessful result.
func Failure(reason error) domain.AuthResult {
	return domain.AuthResult{Success: false, Error: reason.Error(), Reason: reason}
}

// CurrentSession returns the current session. An expired session is removed
// when it is read.
func (m *Manager) CurrentSession(ctx context.Context) (*domain.Session, bool, error) {
	session, ok, err := m.store.CurrentSession(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	if session.Expired(m.now()) {
		if err := m.store.ClearCurrentSession(ctx); err != nil {
			return nil, false, err
		}
		m.logger.Info("session expired", zap.String("session_id", session.ID))
		return nil, false, nil
	}
	return session, true, nil
}

func (m *Manager) CurrentUser(ctx context.Context) (*domain.UserView, bool, error) {
	session, ok, err := m.CurrentSession(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	user, ok, err := m.store.GetUser(ctx, session.UserID)
	if err != nil || !ok {
		return nil, false, err
	}
	view := user.View()
	return &view, true, nil
}

// Logout clears the current session pointer. History is kept.
func (m *Manager) Logout(ctx context.Context) error {
	return m.store.ClearCurrentSession(ctx)
}

func (m *Manager) Sessions(ctx context.Context) ([]domain.Session, error) {
	return m.store.ListSessions(ctx)
}

func (m *Manager) ChangePassword(ctx context.Context, userID string, current string, next string) (domain.AuthResult, error) {
	user, ok, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return domain.AuthResult{}, err
	}
	if !ok {
		return Failure(ErrUserNotFound), nil
	}
	if valid, _ := password.Verify(user.Password, current); !valid {
		return Failure(ErrInvalidCurrentPassword), nil
	}
	if len(next) < 6 {
		return Failure(ErrWeakPassword), nil
	}

	hashed, err := password.Hash(next)
	if err != nil {
		return domain.AuthResult{}, err
	}
	updated, ok, err := m.store.UpdateUser(ctx, userID, func(u *domain.User) {
		u.Password = hashed
	})
	if err != nil {
		return domain.AuthResult{}, err
	}
	if !ok {
		return Failure(ErrUserNotFound), nil
	}
	view := updated.View()
	return domain.AuthResult{Success: true, User: &view}, nil
}

// IssueToken signs a bearer token bound to session. It expires with the
// session.
func (m *Manager) IssueToken(session domain.Session, role string) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        session.ID,
			Subject:   session.UserID,
			IssuedAt:  jwtlib.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwtlib.NewNumericDate(session.ExpiresAt),
			Issuer:    "medipos",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ResolveToken validates tokenStr and returns the acting user. The token's
// session must still be the current, unexpired session.
func (m *Manager) ResolveToken(ctx context.Context, tokenStr string) (domain.Actor, error) {
	claims := &sessionClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(m.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}

	current, ok, err := m.CurrentSession(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !ok || current.ID != claims.ID || current.UserID != claims.Subject {
		return domain.Actor{}, ErrSessionExpired
	}

	user, ok, err := m.store.GetUser(ctx, current.UserID)
	if err != nil {
		return domain.Actor{}, err
	}
	if !ok {
		return domain.Actor{}, ErrUserNotFound
	}
	if !user.IsActive {
		return domain.Actor{}, ErrAccountInactive
	}
	return domain.Actor{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

func (m *Manager) ListUsers(ctx context.Context, actor domain.Actor) ([]domain.UserView, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := m.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	return views, nil
}

func (m *Manager) CreateUser(ctx context.Context, actor domain.Actor, req domain.UserCreateRequest) (*domain.UserView, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(req.Username)
	if len(username) < 3 || strings.ContainsAny(username, " \t\r\n") {
		return nil, ErrInvalidUsername
	}
	if len(req.Password) < 6 {
		return nil, ErrWeakPassword
	}
	if !validRole(req.Role) {
		return nil, ErrInvalidRole
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	perms := domain.DefaultPermissions(req.Role)
	if req.Permissions != nil {
		perms = *req.Permissions
	}

	created, err := m.store.CreateUser(ctx, domain.User{
		Username:    username,
		Password:    hashed,
		Email:       strings.TrimSpace(req.Email),
		FullName:    strings.TrimSpace(req.FullName),
		Phone:       strings.TrimSpace(req.Phone),
		Role:        req.Role,
		IsActive:    true,
		Permissions: perms,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, err
	}

	m.logger.Info("user created", zap.String("user_id", created.ID), zap.String("by", actor.Username))
	view := created.View()
	return &view, nil
}

func (m *Manager) UpdateUser(ctx context.Context, actor domain.Actor, id string, req domain.UserUpdateRequest) (*domain.UserView, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if req.Role != nil && !validRole(*req.Role) {
		return nil, ErrInvalidRole
	}

	updated, ok, err := m.store.UpdateUser(ctx, id, func(u *domain.User) {
		applyContact(u, req)
		if req.Role != nil {
			u.Role = *req.Role
			if req.Permissions == nil {
				u.Permissions = domain.DefaultPermissions(u.Role)
			}
		}
		if req.IsActive != nil {
			u.IsActive = *req.IsActive
		}
		if req.Permissions != nil {
			u.Permissions = *req.Permissions
		}
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	view := updated.View()
	return &view, nil
}

func (m *Manager) DeleteUser(ctx context.Context, actor domain.Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if id == actor.UserID {
		return ErrCannotDeleteSelf
	}
	deleted, err := m.store.DeleteUser(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrUserNotFound
	}
	m.logger.Info("user deleted", zap.String("user_id", id), zap.String("by", actor.Username))
	return nil
}

// UpdateProfile lets any user edit their own contact fields.
func (m *Manager) UpdateProfile(ctx context.Context, actor domain.Actor, req domain.UserUpdateRequest) (*domain.UserView, error) {
	updated, ok, err := m.store.UpdateUser(ctx, actor.UserID, func(u *domain.User) {
		applyContact(u, req)
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	view := updated.View()
	return &view, nil
}

func applyContact(u *domain.User, req domain.UserUpdateRequest) {
	if req.Email != nil {
		u.Email = strings.TrimSpace(*req.Email)
	}
	if req.FullName != nil {
		u.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		u.Phone = strings.TrimSpace(*req.Phone)
	}
}

func requireAdmin(actor domain.Actor) error {
	if actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: role %q", ErrInsufficientPermissions, actor.Role)
	}
	return nil
}

func validRole(role string) bool {
	switch role {
	case domain.RoleAdmin, domain.RoleManager, domain.RoleCashier:
		return true
	}
	return false
}
