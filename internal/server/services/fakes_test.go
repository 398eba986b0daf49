package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/cryptox"
	"github.com/dmitrijs2005/wellkeeper/internal/dbx"
	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/dmitrijs2005/wellkeeper/internal/server/config"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/devices"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/subscriptions"
	"github.com/google/uuid"
)

// --- helpers ---

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

func ptr[T any](v T) *T { return &v }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenSecret:            "access-k",
		RefreshTokenSecret:           "refresh-k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
		BcryptCost:                   4,
		PasswordResetURL:             "https://app.test/reset-password",
		MailFrom:                     "no-reply@test",
	}
}

func testHasher() *cryptox.PasswordHasher { return cryptox.NewPasswordHasher(4) }

// --- in-memory repositories ---

// memStore backs every fake repository. It ignores the DBTX it is handed,
// so transactions only show up as sqlmock expectations.
type memStore struct {
	mu sync.Mutex

	accounts      map[string]*models.Account
	sessions      map[string]*models.Session
	subscriptions map[string]*models.Subscription
	entitlements  map[string]*models.Entitlement
	devices       map[string]*models.Device

	fail map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:      map[string]*models.Account{},
		sessions:      map[string]*models.Session{},
		subscriptions: map[string]*models.Subscription{},
		entitlements:  map[string]*models.Entitlement{},
		devices:       map[string]*models.Device{},
		fail:          map[string]error{},
	}
}

func (m *memStore) failure(op string) error { return m.fail[op] }

type fakeRepoManager struct{ s *memStore }

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return (*memAccounts)(f.s) }
func (f *fakeRepoManager) Sessions(dbx.DBTX) sessions.Repository        { return (*memSessions)(f.s) }
func (f *fakeRepoManager) Subscriptions(dbx.DBTX) subscriptions.Repository {
	return (*memSubscriptions)(f.s)
}
func (f *fakeRepoManager) Devices(dbx.DBTX) devices.Repository { return (*memDevices)(f.s) }

func copyAccount(a *models.Account) *models.Account { c := *a; return &c }

type memAccounts memStore

func (r *memAccounts) conflicts(a *models.Account) bool {
	for id, other := range r.accounts {
		if id == a.ID {
			continue
		}
		if a.Email != nil && other.Email != nil && *a.Email == *other.Email {
			return true
		}
		if a.AppleID != nil && other.AppleID != nil && *a.AppleID == *other.AppleID {
			return true
		}
		if a.GoogleID != nil && other.GoogleID != nil && *a.GoogleID == *other.GoogleID {
			return true
		}
	}
	return false
}

func (r *memAccounts) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*memStore)(r).failure("accounts.Create"); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if r.conflicts(a) {
		return nil, common.ErrorAlreadyExists
	}
	a.CreatedAt, a.UpdatedAt = time.Now(), time.Now()
	r.accounts[a.ID] = copyAccount(a)
	return a, nil
}

func (r *memAccounts) find(match func(*models.Account) bool) (*models.Account, error) {
	for _, a := range r.accounts {
		if match(a) {
			return copyAccount(a), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*memStore)(r).failure("accounts.GetByID"); err != nil {
		return nil, err
	}
	return r.find(func(a *models.Account) bool { return a.ID == id })
}

func (r *memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*memStore)(r).failure("accounts.GetByEmail"); err != nil {
		return nil, err
	}
	return r.find(func(a *models.Account) bool { return a.Email != nil && *a.Email == email })
}

func (r *memAccounts) GetByProvider(_ context.Context, p models.Provider, subject string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(a *models.Account) bool {
		id := a.ProviderID(p)
		return id != nil && *id == subject
	})
}

func (r *memAccounts) GetByResetToken(_ context.Context, hash string, now time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(a *models.Account) bool {
		return a.PasswordResetTokenHash != nil && *a.PasswordResetTokenHash == hash &&
			a.PasswordResetExpiresAt != nil && a.PasswordResetExpiresAt.After(now) && a.IsActive
	})
}

func (r *memAccounts) Update(_ context.Context, a *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*memStore)(r).failure("accounts.Update"); err != nil {
		return err
	}
	if _, ok := r.accounts[a.ID]; !ok {
		return common.ErrorNotFound
	}
	if r.conflicts(a) {
		return common.ErrorAlreadyExists
	}
	r.accounts[a.ID] = copyAccount(a)
	return nil
}

type memSessions memStore

func (r *memSessions) Create(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*memStore)(r).failure("sessions.Create"); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	c := *s
	r.sessions[s.RefreshTokenHash] = &c
	return nil
}

func (r *memSessions) Consume(_ context.Context, hash string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[hash]
	if !ok || !s.ExpiresAt.After(now) {
		return "", common.ErrorNotFound
	}
	delete(r.sessions, hash)
	return s.AccountID, nil
}

func (r *memSessions) DeleteByHash(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*memStore)(r).failure("sessions.DeleteByHash"); err != nil {
		return err
	}
	delete(r.sessions, hash)
	return nil
}

func (r *memSessions) DeleteByAccount(_ context.Context, accountID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, s := range r.sessions {
		if s.AccountID == accountID {
			delete(r.sessions, h)
			n++
		}
	}
	return n, nil
}

type memSubscriptions memStore

func copySub(s *models.Subscription) *models.Subscription { c := *s; return &c }

func (r *memSubscriptions) Create(_ context.Context, s *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*memStore)(r).failure("subscriptions.Create"); err != nil {
		return err
	}
	if _, ok := r.subscriptions[s.AccountID]; ok {
		return common.ErrorAlreadyExists
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	r.subscriptions[s.AccountID] = copySub(s)
	return nil
}

func (r *memSubscriptions) GetByAccountID(_ context.Context, accountID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*memStore)(r).failure("subscriptions.GetByAccountID"); err != nil {
		return nil, err
	}
	s, ok := r.subscriptions[accountID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copySub(s), nil
}

func (r *memSubscriptions) GetByGatewaySubscriberID(_ context.Context, id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subscriptions {
		if s.GatewaySubscriberID != nil && *s.GatewaySubscriberID == id {
			return copySub(s), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memSubscriptions) Update(_ context.Context, s *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*memStore)(r).failure("subscriptions.Update"); err != nil {
		return err
	}
	if _, ok := r.subscriptions[s.AccountID]; !ok {
		return common.ErrorNotFound
	}
	r.subscriptions[s.AccountID] = copySub(s)
	return nil
}

func (r *memSubscriptions) UpsertEntitlement(_ context.Context, e *models.Entitlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := e.SubscriptionID + "/" + e.FeatureID
	if old, ok := r.entitlements[key]; ok {
		e.ID = old.ID
	} else if e.ID == "" {
		e.ID = uuid.NewString()
	}
	c := *e
	r.entitlements[key] = &c
	return nil
}

func (r *memSubscriptions) GetEntitlement(_ context.Context, subscriptionID, featureID string) (*models.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entitlements[subscriptionID+"/"+featureID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *e
	return &c, nil
}

func (r *memSubscriptions) ListEntitlements(_ context.Context, subscriptionID string) ([]models.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Entitlement{}
	for _, e := range r.entitlements {
		if e.SubscriptionID == subscriptionID {
			out = append(out, *e)
		}
	}
	return out, nil
}

type memDevices memStore

func (r *memDevices) GetByDeviceID(_ context.Context, deviceID string) (*models.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *d
	return &c, nil
}

func (r *memDevices) Upsert(_ context.Context, d *models.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := (*memStore)(r).failure("devices.Upsert"); err != nil {
		return err
	}
	c := *d
	if old, ok := r.devices[d.DeviceID]; ok {
		c.ID = old.ID
		if c.PushToken == nil {
			c.PushToken = old.PushToken
		}
	}
	r.devices[d.DeviceID] = &c
	return nil
}

// seedAccount stores a with its FREE subscription and returns both.
func (m *memStore) seedAccount(a *models.Account) (*models.Account, *models.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.accounts[a.ID] = copyAccount(a)
	sub := &models.Subscription{ID: uuid.NewString(), AccountID: a.ID, Tier: models.TierFree}
	m.subscriptions[a.ID] = copySub(sub)
	return a, sub
}

func (m *memStore) account(id string) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		return copyAccount(a)
	}
	return nil
}

func (m *memStore) subscription(accountID string) *models.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subscriptions[accountID]; ok {
		return copySub(s)
	}
	return nil
}

func (m *memStore) sessionCount(accountID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.AccountID == accountID {
			n++
		}
	}
	return n
}

func (m *memStore) accountCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}
