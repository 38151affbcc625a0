package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kupapos/kupa/internal/database"
	"github.com/kupapos/kupa/internal/model"
	"github.com/kupapos/kupa/internal/queue"
	"github.com/kupapos/kupa/internal/repository"
	"github.com/kupapos/kupa/internal/token"
)

type recorder struct {
	mu     sync.Mutex
	events []queue.AuthEvent
}

func (r *recorder) Publish(_ context.Context, ev queue.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	db     *sql.DB
	users  *repository.UserRepo
	codec  *token.Codec
	mr     *miniredis.Miniredis
	events *recorder
	cookie *SessionService
	legacy *SessionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db, "sqlite"))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	codec, err := token.NewCodec(token.Options{
		Secret:     "test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		LegacyTTL:  time.Hour,
	}, repository.NewRevocationStore(rdb))
	require.NoError(t, err)

	users := repository.NewUserRepo(db)
	events := &recorder{}
	return &harness{
		db:     db,
		users:  users,
		codec:  codec,
		mr:     mr,
		events: events,
		cookie: NewSessionService(users, NewRotatingStrategy(codec), events, bcrypt.MinCost),
		legacy: NewSessionService(users, NewLegacyStrategy(codec), events, bcrypt.MinCost),
	}
}

func (h *harness) register(t *testing.T, email, password string) model.User {
	t.Helper()
	sess, err := h.cookie.Register(context.Background(), Registration{
		Email:        email,
		Password:     password,
		Name:         "Owner",
		BusinessName: "Corner Shop",
	})
	require.NoError(t, err)
	return sess.User
}

func TestLoginIssuesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "owner@shop.io", "Secret123!")

	sess, err := h.cookie.Login(ctx, Credentials{Email: "Owner@Shop.io", Password: "Secret123!"})
	require.NoError(t, err)
	require.Equal(t, u.ID, sess.User.ID)
	require.NotEmpty(t, sess.Tokens.AccessToken)
	require.NotEmpty(t, sess.Tokens.RefreshToken)
	require.NotEmpty(t, sess.Tokens.CSRFToken)
	require.True(t, sess.Tokens.RefreshExpiresAt.After(sess.Tokens.AccessExpiresAt))

	claims, ok := h.codec.VerifyAccess(ctx, sess.Tokens.AccessToken)
	require.True(t, ok)
	require.Equal(t, u.Principal(), claims.Principal())

	_, ok = h.codec.VerifyRefresh(ctx, sess.Tokens.RefreshToken)
	require.True(t, ok)

	require.Equal(t, []string{queue.EventRegistered, queue.EventLoginSucceeded}, h.events.types())
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "owner@shop.io", "Secret123!")

	_, unknown := h.cookie.Login(ctx, Credentials{Email: "nobody@shop.io", Password: "Secret123!"})
	_, wrong := h.cookie.Login(ctx, Credentials{Email: "owner@shop.io", Password: "nope"})

	require.NoError(t, h.users.SetActive(ctx, u.ID, false))
	_, inactive := h.cookie.Login(ctx, Credentials{Email: "owner@shop.io", Password: "Secret123!"})

	for _, err := range []error{unknown, wrong, inactive} {
		require.ErrorIs(t, err, ErrInvalidCredentials)
		require.Equal(t, ErrInvalidCredentials.Error(), err.Error())
	}

	types := h.events.types()
	require.Equal(t, queue.EventLoginFailed, types[len(types)-1])
}

func TestUnknownEmailBurnsHashAtConfiguredCost(t *testing.T) {
	h := newHarness(t)
	u := h.register(t, "owner@shop.io", "Secret123!")

	stored, err := h.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	realCost, err := bcrypt.Cost([]byte(stored.PasswordHash))
	require.NoError(t, err)
	dummyCost, err := bcrypt.Cost([]byte(h.cookie.dummyHash))
	require.NoError(t, err)
	require.Equal(t, realCost, dummyCost)

	svc := NewSessionService(h.users, NewRotatingStrategy(h.codec), nil, bcrypt.MinCost+1)
	dummyCost, err = bcrypt.Cost([]byte(svc.dummyHash))
	require.NoError(t, err)
	require.Equal(t, bcrypt.MinCost+1, dummyCost)
}

func TestLoginRequiresFields(t *testing.T) {
	h := newHarness(t)
	_, err := h.cookie.Login(context.Background(), Credentials{Email: " ", Password: "x"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.cookie.Login(context.Background(), Credentials{Email: "a@b.co"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.cookie.Register(ctx, Registration{
		Email:        "new@shop.io",
		Password:     "Secret123!",
		Name:         "Nia",
		BusinessName: "  Nia's Bakery  ",
	})
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, sess.User.Role)
	require.NotEmpty(t, sess.User.BusinessID)
	require.NotEmpty(t, sess.Tokens.CSRFToken)

	stored, err := h.users.GetByEmail(ctx, "new@shop.io")
	require.NoError(t, err)
	require.NotEqual(t, "Secret123!", stored.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Secret123!")))

	t.Run("email taken wins over missing business", func(t *testing.T) {
		_, err := h.cookie.Register(ctx, Registration{Email: "NEW@shop.io", Password: "x"})
		require.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("business name required", func(t *testing.T) {
		_, err := h.cookie.Register(ctx, Registration{Email: "b@shop.io", Password: "x", BusinessName: "   "})
		require.ErrorIs(t, err, ErrBusinessNameRequired)
		_, err = h.users.GetByEmail(ctx, "b@shop.io")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := h.cookie.Register(ctx, Registration{Email: "", Password: "x", BusinessName: "B"})
		require.ErrorIs(t, err, ErrInvalidInput)
		_, err = h.cookie.Register(ctx, Registration{Email: "not-an-email", Password: "x", BusinessName: "B"})
		require.ErrorIs(t, err, ErrInvalidInput)
		_, err = h.cookie.Register(ctx, Registration{Email: "c@shop.io", Password: "x", BusinessName: "B", Role: "ROOT"})
		require.ErrorIs(t, err, ErrInvalidInput)
	})

	var n int
	require.NoError(t, h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM businesses").Scan(&n))
	require.Equal(t, 1, n)
}

func TestRefreshRotates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "owner@shop.io", "Secret123!")

	first, err := h.cookie.Login(ctx, Credentials{Email: "owner@shop.io", Password: "Secret123!"})
	require.NoError(t, err)

	second, err := h.cookie.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)
	require.Empty(t, second.Tokens.CSRFToken)
	require.Equal(t, first.User.ID, second.User.ID)

	_, err = h.cookie.Refresh(ctx, first.Tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)

	_, err = h.cookie.Refresh(ctx, second.Tokens.RefreshToken)
	require.NoError(t, err)

	_, err = h.cookie.Refresh(ctx, "")
	require.ErrorIs(t, err, ErrSessionExpired)
	_, err = h.cookie.Refresh(ctx, first.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "owner@shop.io", "Secret123!")

	sess, err := h.cookie.Login(ctx, Credentials{Email: "owner@shop.io", Password: "Secret123!"})
	require.NoError(t, err)

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.cookie.Refresh(ctx, sess.Tokens.RefreshToken); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestRefreshRejectsInactiveUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "owner@shop.io", "Secret123!")

	sess, err := h.cookie.Login(ctx, Credentials{Email: "owner@shop.io", Password: "Secret123!"})
	require.NoError(t, err)
	require.NoError(t, h.users.SetActive(ctx, u.ID, false))

	_, err = h.cookie.Refresh(ctx, sess.Tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "owner@shop.io", "Secret123!")

	sess, err := h.cookie.Login(ctx, Credentials{Email: "owner@shop.io", Password: "Secret123!"})
	require.NoError(t, err)
	claims, ok := h.codec.VerifyAccess(ctx, sess.Tokens.AccessToken)
	require.True(t, ok)

	h.cookie.Logout(ctx, sess.Tokens.AccessToken, sess.Tokens.RefreshToken)

	_, err = h.cookie.Authenticate(ctx, sess.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrUnauthenticated)
	_, err = h.cookie.Refresh(ctx, sess.Tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)

	ttl := h.mr.TTL(token.BlacklistKey(claims.ID))
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, h.codec.AccessTTL())

	require.Contains(t, h.events.types(), queue.EventLogout)

	// garbage and empty tokens are tolerated
	h.cookie.Logout(ctx, "", "")
	h.cookie.Logout(ctx, "junk", "junk")
}

func TestCurrentUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "owner@shop.io", "Secret123!")

	sess, err := h.cookie.Login(ctx, Credentials{Email: "owner@shop.io", Password: "Secret123!"})
	require.NoError(t, err)

	got, err := h.cookie.CurrentUser(ctx, sess.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "owner@shop.io", got.Email)

	_, err = h.cookie.CurrentUser(ctx, "")
	require.ErrorIs(t, err, ErrUnauthenticated)

	require.NoError(t, h.users.SetActive(ctx, u.ID, false))
	_, err = h.cookie.CurrentUser(ctx, sess.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrUnauthenticated)

	// the token itself is still valid, only the account is gone
	_, err = h.cookie.Authenticate(ctx, sess.Tokens.AccessToken)
	require.NoError(t, err)
}

func TestLegacySession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "owner@shop.io", "Secret123!")

	sess, err := h.legacy.Login(ctx, Credentials{Email: "owner@shop.io", Password: "Secret123!"})
	require.NoError(t, err)
	require.NotEmpty(t, sess.Tokens.AccessToken)
	require.Empty(t, sess.Tokens.RefreshToken)
	require.Empty(t, sess.Tokens.CSRFToken)
	require.Equal(t, SchemeLegacy, h.legacy.Scheme())

	p, err := h.legacy.Authenticate(ctx, sess.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.Principal(), p)

	_, err = h.legacy.Refresh(ctx, sess.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrSessionExpired)

	// a legacy token carries no jti and is not a cookie session credential
	_, err = h.cookie.Authenticate(ctx, sess.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrUnauthenticated)
	_, err = h.cookie.CurrentUser(ctx, sess.Tokens.AccessToken)
	require.ErrorIs(t, err, ErrUnauthenticated)

	// logout is a no-op for legacy tokens
	h.legacy.Logout(ctx, sess.Tokens.AccessToken, "")
	_, err = h.legacy.Authenticate(ctx, sess.Tokens.AccessToken)
	require.NoError(t, err)
}
