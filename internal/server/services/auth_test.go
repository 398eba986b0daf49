package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/cryptox"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authEnv struct {
	db    *sql.DB
	svc   *AuthService
	store *memStore
	mock  sqlmock.Sqlmock
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	db, mock := newSQLMockDB(t)
	store := newMemStore()
	rm := &fakeRepoManager{s: store}
	cfg := testConfig()
	svc := NewAuthService(db, rm, testHasher(), NewTokenIssuer(rm, cfg), nopLogger{})
	return &authEnv{db: db, svc: svc, store: store, mock: mock}
}

func (e *authEnv) expectTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

func TestRegister_Success(t *testing.T) {
	env := newAuthEnv(t)
	env.expectTx()

	res, err := env.svc.Register(context.Background(), "  Ann@Example.COM ", "correct horse", ptr("Ann"))
	require.NoError(t, err)
	require.NoError(t, env.mock.ExpectationsWereMet())

	require.NotNil(t, res.User.Email)
	assert.Equal(t, "ann@example.com", *res.User.Email)
	assert.True(t, res.User.HasPassword)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)

	stored := env.store.account(res.User.ID)
	require.NotNil(t, stored.PasswordHash)
	assert.NotEqual(t, "correct horse", *stored.PasswordHash)

	sub := env.store.subscription(res.User.ID)
	require.NotNil(t, sub)
	assert.Equal(t, models.TierFree, sub.Tier)
	assert.Equal(t, 1, env.store.sessionCount(res.User.ID))
}

func TestRegister_DuplicateEmailCaseInsensitive(t *testing.T) {
	env := newAuthEnv(t)
	env.expectTx()

	_, err := env.svc.Register(context.Background(), "ann@example.com", "password1", nil)
	require.NoError(t, err)

	_, err = env.svc.Register(context.Background(), "ANN@example.com", "password2", nil)
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, 1, env.store.accountCount())
}

func TestRegister_Validation(t *testing.T) {
	env := newAuthEnv(t)

	tests := []struct {
		name, email, password string
	}{
		{"short password", "a@b.com", "short"},
		{"password over 72 bytes", "long@example.com", strings.Repeat("a", 80)},
		{"empty email", "", "password1"},
		{"malformed email", "not-an-email", "password1"},
		{"display name form", "Ann <a@b.com>", "password1"},
		{"no domain dot", "a@localhost", "password1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Register(context.Background(), tt.email, tt.password, nil)
			assert.Equal(t, common.KindBadRequest, common.KindOf(err))
		})
	}
	assert.Equal(t, 0, env.store.accountCount())
}

func TestRegister_SubscriptionFailureRollsBack(t *testing.T) {
	env := newAuthEnv(t)
	env.mock.ExpectBegin()
	env.mock.ExpectRollback()
	env.store.fail["subscriptions.Create"] = errors.New("db down")

	_, err := env.svc.Register(context.Background(), "a@b.com", "password1", nil)
	assert.Equal(t, common.KindInternal, common.KindOf(err))
	assert.Equal(t, "internal error", common.PublicMessage(err))
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestLogin(t *testing.T) {
	env := newAuthEnv(t)
	hash, err := testHasher().Hash("password1")
	require.NoError(t, err)

	active, _ := env.store.seedAccount(&models.Account{Email: ptr("a@b.com"), PasswordHash: &hash, IsActive: true})
	env.store.seedAccount(&models.Account{Email: ptr("off@b.com"), PasswordHash: &hash, IsActive: false})
	env.store.seedAccount(&models.Account{Email: ptr("sso@b.com"), GoogleID: ptr("g-1"), IsActive: true})

	t.Run("success", func(t *testing.T) {
		res, err := env.svc.Login(context.Background(), "A@B.com", "password1", nil)
		require.NoError(t, err)
		assert.Equal(t, active.ID, res.User.ID)
		assert.NotEmpty(t, res.RefreshToken)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		_, errWrong := env.svc.Login(context.Background(), "a@b.com", "password2", nil)
		_, errMissing := env.svc.Login(context.Background(), "nobody@b.com", "password1", nil)
		_, errSSO := env.svc.Login(context.Background(), "sso@b.com", "password1", nil)

		for _, err := range []error{errWrong, errMissing, errSSO} {
			assert.ErrorIs(t, err, common.Unauthorized("Invalid credentials"))
		}
		assert.Equal(t, errWrong.Error(), errMissing.Error())
	})

	t.Run("disabled", func(t *testing.T) {
		_, err := env.svc.Login(context.Background(), "off@b.com", "password1", nil)
		assert.ErrorIs(t, err, common.Unauthorized("Account is disabled"))
	})

	t.Run("device upsert", func(t *testing.T) {
		_, err := env.svc.Login(context.Background(), "a@b.com", "password1",
			&models.DeviceInfo{DeviceID: "dev-1", Platform: "ios", PushToken: ptr("apns")})
		require.NoError(t, err)
		d := env.store.devices["dev-1"]
		require.NotNil(t, d)
		assert.Equal(t, active.ID, d.AccountID)
		assert.Equal(t, "apns", *d.PushToken)
	})

	t.Run("device failure does not block login", func(t *testing.T) {
		env.store.fail["devices.Upsert"] = errors.New("boom")
		defer delete(env.store.fail, "devices.Upsert")

		_, err := env.svc.Login(context.Background(), "a@b.com", "password1", &models.DeviceInfo{DeviceID: "dev-2"})
		assert.NoError(t, err)
	})
}

func TestLogin_MissSpendsHashWork(t *testing.T) {
	env := newAuthEnv(t)
	env.svc.hasher = cryptox.NewPasswordHasher(10)
	hash, err := env.svc.hasher.Hash("password1")
	require.NoError(t, err)
	env.store.seedAccount(&models.Account{Email: ptr("a@b.com"), PasswordHash: &hash, IsActive: true})
	env.store.seedAccount(&models.Account{Email: ptr("sso@b.com"), AppleID: ptr("apple-1"), IsActive: true})

	env.svc.hasher.CompareDummy("warm")

	elapsed := func(email string) time.Duration {
		start := time.Now()
		_, err := env.svc.Login(context.Background(), email, "password2", nil)
		require.ErrorIs(t, err, common.ErrUnauthorized)
		return time.Since(start)
	}

	wrong := elapsed("a@b.com")
	assert.GreaterOrEqual(t, elapsed("nobody@b.com"), wrong/2)
	assert.GreaterOrEqual(t, elapsed("sso@b.com"), wrong/2)
}

func TestRegisterAnonymous_IdempotentByDevice(t *testing.T) {
	env := newAuthEnv(t)
	env.expectTx()

	first, err := env.svc.RegisterAnonymous(context.Background(), "device-abc", "android")
	require.NoError(t, err)
	require.NoError(t, env.mock.ExpectationsWereMet())
	assert.Nil(t, first.User.Email)
	assert.False(t, first.User.HasPassword)

	second, err := env.svc.RegisterAnonymous(context.Background(), "device-abc", "android")
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, 1, env.store.accountCount())
	assert.Equal(t, models.TierFree, env.store.subscription(first.User.ID).Tier)
}

func TestRegisterAnonymous_Validation(t *testing.T) {
	env := newAuthEnv(t)
	_, err := env.svc.RegisterAnonymous(context.Background(), "", "ios")
	assert.ErrorIs(t, err, common.ErrBadRequest)
	_, err = env.svc.RegisterAnonymous(context.Background(), "dev", "")
	assert.ErrorIs(t, err, common.ErrBadRequest)
}

func TestUpgradeAnonymous(t *testing.T) {
	env := newAuthEnv(t)
	anon, _ := env.store.seedAccount(&models.Account{IsActive: true})
	env.store.seedAccount(&models.Account{Email: ptr("taken@b.com"), IsActive: true})

	_, err := env.svc.UpgradeAnonymous(context.Background(), anon.ID, "Taken@b.com", "password1", nil)
	assert.ErrorIs(t, err, common.ErrConflict)

	p, err := env.svc.UpgradeAnonymous(context.Background(), anon.ID, "new@b.com", "password1", ptr("Neo"))
	require.NoError(t, err)
	assert.Equal(t, "new@b.com", *p.Email)
	assert.Equal(t, "Neo", *p.Name)
	assert.True(t, p.HasPassword)

	// re-upgrading with the account's own email is not a conflict
	_, err = env.svc.UpgradeAnonymous(context.Background(), anon.ID, "new@b.com", "password2", nil)
	assert.NoError(t, err)

	_, err = env.svc.UpgradeAnonymous(context.Background(), "missing", "x@b.com", "password1", nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRefreshTokens_Rotates(t *testing.T) {
	env := newAuthEnv(t)
	acc, _ := env.store.seedAccount(&models.Account{IsActive: true})

	pair, err := env.svc.tokens.Issue(context.Background(), nil, acc.ID)
	require.NoError(t, err)

	env.expectTx()
	next, err := env.svc.RefreshTokens(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	assert.Equal(t, 1, env.store.sessionCount(acc.ID))

	env.mock.ExpectBegin()
	env.mock.ExpectRollback()
	_, err = env.svc.RefreshTokens(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, common.Unauthorized("Invalid refresh token"))
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRefreshTokens_ExpiredSessionLeftIntact(t *testing.T) {
	env := newAuthEnv(t)
	acc, _ := env.store.seedAccount(&models.Account{IsActive: true})

	pair, err := env.svc.tokens.Issue(context.Background(), nil, acc.ID)
	require.NoError(t, err)

	// the JWT is still valid but the server-side session has lapsed
	env.svc.now = func() time.Time { return time.Now().Add(3 * time.Hour) }

	env.mock.ExpectBegin()
	env.mock.ExpectRollback()
	_, err = env.svc.RefreshTokens(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, common.Unauthorized("Invalid refresh token"))
	assert.Equal(t, 1, env.store.sessionCount(acc.ID))
}

func TestRefreshTokens_RejectsAccessTokenAndGarbage(t *testing.T) {
	env := newAuthEnv(t)
	acc, _ := env.store.seedAccount(&models.Account{IsActive: true})
	pair, err := env.svc.tokens.Issue(context.Background(), nil, acc.ID)
	require.NoError(t, err)

	for _, tok := range []string{pair.AccessToken, "garbage", ""} {
		_, err := env.svc.RefreshTokens(context.Background(), tok)
		assert.ErrorIs(t, err, common.Unauthorized("Invalid refresh token"))
	}
	assert.Equal(t, 1, env.store.sessionCount(acc.ID))
}

func TestRefreshTokens_DisabledAccount(t *testing.T) {
	env := newAuthEnv(t)
	acc, _ := env.store.seedAccount(&models.Account{IsActive: false})
	pair, err := env.svc.tokens.Issue(context.Background(), nil, acc.ID)
	require.NoError(t, err)

	env.mock.ExpectBegin()
	env.mock.ExpectRollback()
	_, err = env.svc.RefreshTokens(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, common.Unauthorized("Account is disabled"))
}

func TestRefreshTokens_ConcurrentReplaySucceedsOnce(t *testing.T) {
	env := newAuthEnv(t)
	acc, _ := env.store.seedAccount(&models.Account{IsActive: true})
	pair, err := env.svc.tokens.Issue(context.Background(), nil, acc.ID)
	require.NoError(t, err)

	const n = 8
	// one connection serializes the transactions; the session row decides
	// who wins
	env.db.SetMaxOpenConns(1)
	env.mock.MatchExpectationsInOrder(false)
	for i := 0; i < n; i++ {
		env.mock.ExpectBegin()
	}
	env.mock.ExpectCommit()
	for i := 0; i < n-1; i++ {
		env.mock.ExpectRollback()
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.RefreshTokens(context.Background(), pair.RefreshToken); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, env.store.sessionCount(acc.ID))
}

func TestLogout_Idempotent(t *testing.T) {
	env := newAuthEnv(t)
	acc, _ := env.store.seedAccount(&models.Account{IsActive: true})
	pair, err := env.svc.tokens.Issue(context.Background(), nil, acc.ID)
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(context.Background(), pair.RefreshToken))
	assert.Equal(t, 0, env.store.sessionCount(acc.ID))
	require.NoError(t, env.svc.Logout(context.Background(), pair.RefreshToken))
	require.NoError(t, env.svc.Logout(context.Background(), "never-issued"))

	env.store.fail["sessions.DeleteByHash"] = errors.New("db down")
	assert.Equal(t, common.KindInternal, common.KindOf(env.svc.Logout(context.Background(), "x")))
}

func TestMeAndAuthenticate(t *testing.T) {
	env := newAuthEnv(t)
	acc, _ := env.store.seedAccount(&models.Account{Email: ptr("a@b.com"), PasswordHash: ptr("h"), IsActive: true})
	pair, err := env.svc.tokens.Issue(context.Background(), nil, acc.ID)
	require.NoError(t, err)

	id, err := env.svc.Authenticate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id)

	_, err = env.svc.Authenticate(pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	p, err := env.svc.Me(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, p.HasPassword)

	_, err = env.svc.Me(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
