// Package service holds the session logic shared by the cookie and legacy
// transports: credential checks, registration and token lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/kupapos/kupa/internal/logx"
	"github.com/kupapos/kupa/internal/model"
	"github.com/kupapos/kupa/internal/queue"
	"github.com/kupapos/kupa/internal/repository"
	"github.com/kupapos/kupa/internal/utils"
)

// CredentialStore is the persistence the service needs.  *repository.UserRepo
// implements it.
type CredentialStore interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
	CreateAccount(ctx context.Context, in repository.NewAccount) (model.User, model.Business, error)
}

// EventPublisher receives auth events.  Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuthEvent) error
}

type Credentials struct {
	Email    string
	Password string
}

type Registration struct {
	Email        string
	Password     string
	Name         string
	BusinessName string
	Role         model.Role // defaults to ADMIN
}

// Session is the outcome of login, registration or refresh.
type Session struct {
	User   model.User
	Tokens Tokens
}

type SessionService struct {
	users      CredentialStore
	strategy   Strategy
	events     EventPublisher
	bcryptCost int
	dummyHash  string // burned on unknown email, same cost as real hashes
}

func NewSessionService(users CredentialStore, strategy Strategy, events EventPublisher, bcryptCost int) *SessionService {
	if events == nil {
		events = queue.Discard{}
	}
	return &SessionService{
		users:      users,
		strategy:   strategy,
		events:     events,
		bcryptCost: bcryptCost,
		dummyHash:  utils.NewDummyHash(bcryptCost),
	}
}

// Scheme reports the name of the underlying strategy.
func (s *SessionService) Scheme() string { return s.strategy.Name() }

// Login checks credentials and issues tokens.  Unknown email, inactive
// account and wrong password all yield ErrInvalidCredentials.
func (s *SessionService) Login(ctx context.Context, in Credentials) (Session, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	u, err := s.users.GetByEmail(ctx, in.Email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		utils.BurnPasswordCheck(s.dummyHash, in.Password)
		s.loginFailed(ctx, in.Email, "unknown_email")
		return Session{}, ErrInvalidCredentials
	case err != nil:
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	if !utils.VerifyPassword(u.PasswordHash, in.Password) {
		s.loginFailed(ctx, in.Email, "wrong_password")
		return Session{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		s.loginFailed(ctx, in.Email, "inactive")
		return Session{}, ErrInvalidCredentials
	}

	tokens, err := s.strategy.IssueTokens(ctx, u.Principal())
	if err != nil {
		return Session{}, fmt.Errorf("issue tokens: %w", err)
	}
	s.emit(ctx, queue.EventLoginSucceeded, u)
	return Session{User: u, Tokens: tokens}, nil
}

// Register creates a business and its first user, then logs the user in.
func (s *SessionService) Register(ctx context.Context, in Registration) (Session, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return Session{}, fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}

	switch _, err := s.users.GetByEmail(ctx, email); {
	case err == nil:
		return Session{}, ErrEmailTaken
	case !errors.Is(err, repository.ErrNotFound):
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	bizName := strings.TrimSpace(in.BusinessName)
	if bizName == "" {
		return Session{}, ErrBusinessNameRequired
	}

	role := in.Role
	if role == "" {
		role = model.RoleAdmin
	}
	if !role.Valid() {
		return Session{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	u, _, err := s.users.CreateAccount(ctx, repository.NewAccount{
		BusinessName: bizName,
		Email:        email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         role,
	})
	if errors.Is(err, repository.ErrEmailExists) {
		return Session{}, ErrEmailTaken
	}
	if err != nil {
		return Session{}, fmt.Errorf("create account: %w", err)
	}

	tokens, err := s.strategy.IssueTokens(ctx, u.Principal())
	if err != nil {
		return Session{}, fmt.Errorf("issue tokens: %w", err)
	}
	s.emit(ctx, queue.EventRegistered, u)
	return Session{User: u, Tokens: tokens}, nil
}

// Logout revokes whatever the presented tokens still grant.  It never fails
// from the caller's point of view; store errors are only logged.
func (s *SessionService) Logout(ctx context.Context, accessToken, refreshToken string) {
	p, known := s.strategy.Verify(ctx, accessToken)
	if err := s.strategy.Revoke(ctx, accessToken, refreshToken); err != nil {
		logx.FromContext(ctx).Warn("logout revocation incomplete", "error", err)
	}
	if known {
		s.emit(ctx, queue.EventLogout, model.User{ID: p.ID, BusinessID: p.BusinessID})
	}
}

// Refresh exchanges a current refresh token for a new token pair.  Any
// problem with the token or the account is ErrSessionExpired.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	rot, ok := s.strategy.(Rotator)
	if !ok || refreshToken == "" {
		return Session{}, ErrSessionExpired
	}
	grant, ok := rot.VerifyRefresh(ctx, refreshToken)
	if !ok {
		return Session{}, ErrSessionExpired
	}

	u, err := s.users.GetByID(ctx, grant.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return Session{}, ErrSessionExpired
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !u.IsActive {
		return Session{}, ErrSessionExpired
	}

	tokens, err := rot.Rotate(ctx, grant, u.Principal())
	if err != nil {
		return Session{}, err
	}
	s.emit(ctx, queue.EventRefreshed, u)
	return Session{User: u, Tokens: tokens}, nil
}

// Authenticate resolves an access token to a principal without touching the
// credential store.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (model.Principal, error) {
	if accessToken == "" {
		return model.Principal{}, ErrUnauthenticated
	}
	p, ok := s.strategy.Verify(ctx, accessToken)
	if !ok {
		return model.Principal{}, ErrUnauthenticated
	}
	return p, nil
}

// CurrentUser resolves an access token to the stored user.  Deleted and
// deactivated accounts are unauthenticated even while the token is valid.
func (s *SessionService) CurrentUser(ctx context.Context, accessToken string) (model.User, error) {
	p, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return model.User{}, err
	}
	u, err := s.users.GetByID(ctx, p.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrUnauthenticated
	}
	if err != nil {
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !u.IsActive {
		return model.User{}, ErrUnauthenticated
	}
	return u, nil
}

func (s *SessionService) loginFailed(ctx context.Context, email, reason string) {
	logx.FromContext(ctx).Info("login failed", "reason", reason, "scheme", s.strategy.Name())
	ev := queue.NewAuthEvent(queue.EventLoginFailed, s.strategy.Name())
	ev.Email = strings.ToLower(strings.TrimSpace(email))
	ev.Reason = reason
	s.publish(ctx, ev)
}

func (s *SessionService) emit(ctx context.Context, typ string, u model.User) {
	ev := queue.NewAuthEvent(typ, s.strategy.Name())
	ev.UserID = u.ID
	ev.BusinessID = u.BusinessID
	s.publish(ctx, ev)
}

// publish is detached from the request deadline so a client disconnect does
// not drop the event, but bounded so a slow broker cannot stall a login.
func (s *SessionService) publish(ctx context.Context, ev queue.AuthEvent) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.events.Publish(pctx, ev); err != nil {
		logx.FromContext(ctx).Warn("auth event not published", "type", ev.Type, "error", err)
	}
}
