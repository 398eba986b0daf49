// Package services contains server-side business logic: credentials and
// sessions, federated identity reconciliation, the password reset flow and
// the subscription entitlement engine. Every returned error is a
// *common.Error whose kind the transport maps to a status.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/cryptox"
	"github.com/dmitrijs2005/wellkeeper/internal/dbx"
	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/wellkeeper/internal/timex"
)

var (
	errInvalidCredentials = common.Unauthorized("Invalid credentials")
	errAccountDisabled    = common.Unauthorized("Account is disabled")
	errInvalidRefresh     = common.Unauthorized("Invalid refresh token")
	errEmailTaken         = common.Conflict("Email already registered")
)

// AuthResult is what every successful sign-in returns: the sanitized
// account and a fresh token pair.
type AuthResult struct {
	User *models.Profile `json:"user"`
	*TokenPair
}

// AuthService owns password credentials and the session lifecycle.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *cryptox.PasswordHasher
	tokens      *TokenIssuer
	logger      logging.Logger
	now         timex.Clock
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, hasher *cryptox.PasswordHasher, tokens *TokenIssuer, logger logging.Logger) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		tokens:      tokens,
		logger:      logger.With("module", "auth_service"),
		now:         timex.SystemClock,
	}
}

// Register creates a password account with its FREE subscription and signs
// it in.
func (s *AuthService) Register(ctx context.Context, email, password string, name *string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, errEmailTaken
	case !errors.Is(err, common.ErrorNotFound):
		return nil, common.Internal(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, common.Internal(err)
	}

	account := &models.Account{
		Email:        &email,
		Name:         optionalString(name),
		PasswordHash: &hash,
		IsActive:     true,
	}

	var result *AuthResult
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		result, err = createAccountWithSubscription(ctx, tx, s.repomanager, s.tokens, account)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, errEmailTaken
		}
		return nil, asServiceError(err)
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID)
	return result, nil
}

// Login checks email and password. Unknown email, passwordless account and
// wrong password are indistinguishable to the caller, in body and in bcrypt
// work spent.
func (s *AuthService) Login(ctx context.Context, email, password string, device *models.DeviceInfo) (*AuthResult, error) {
	account, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.CompareDummy(password)
			return nil, errInvalidCredentials
		}
		return nil, common.Internal(err)
	}
	if account.PasswordHash == nil {
		s.hasher.CompareDummy(password)
		return nil, errInvalidCredentials
	}

	ok, err := s.hasher.Compare(*account.PasswordHash, password)
	if err != nil {
		return nil, common.Internal(err)
	}
	if !ok {
		return nil, errInvalidCredentials
	}
	if !account.IsActive {
		return nil, errAccountDisabled
	}

	if device != nil && device.DeviceID != "" {
		s.touchDevice(ctx, account.ID, device)
	}

	pair, err := s.tokens.Issue(ctx, s.db, account.ID)
	if err != nil {
		return nil, common.Internal(err)
	}
	return &AuthResult{User: account.Sanitize(), TokenPair: pair}, nil
}

// RegisterAnonymous signs in a device without credentials. The same device
// id always maps back to the same account.
func (s *AuthService) RegisterAnonymous(ctx context.Context, deviceID, platform string) (*AuthResult, error) {
	if deviceID == "" {
		return nil, common.BadRequest("deviceId is required")
	}
	if platform == "" {
		return nil, common.BadRequest("platform is required")
	}

	device, err := s.repomanager.Devices(s.db).GetByDeviceID(ctx, deviceID)
	switch {
	case err == nil:
		return s.resumeAnonymous(ctx, device, platform)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, common.Internal(err)
	}

	account := &models.Account{IsActive: true}

	var result *AuthResult
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		result, err = createAccountWithSubscription(ctx, tx, s.repomanager, s.tokens, account)
		if err != nil {
			return err
		}
		return s.repomanager.Devices(tx).Upsert(ctx, &models.Device{
			DeviceID:  deviceID,
			AccountID: account.ID,
			Platform:  platform,
		})
	})
	if err != nil {
		return nil, asServiceError(err)
	}

	s.logger.Info(ctx, "anonymous account created", "account_id", account.ID, "platform", platform)
	return result, nil
}

func (s *AuthService) resumeAnonymous(ctx context.Context, device *models.Device, platform string) (*AuthResult, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, device.AccountID)
	if err != nil {
		return nil, common.Internal(fmt.Errorf("device %s points at missing account: %w", device.DeviceID, err))
	}
	if !account.IsActive {
		return nil, errAccountDisabled
	}

	s.touchDevice(ctx, account.ID, &models.DeviceInfo{DeviceID: device.DeviceID, Platform: platform})

	pair, err := s.tokens.Issue(ctx, s.db, account.ID)
	if err != nil {
		return nil, common.Internal(err)
	}
	return &AuthResult{User: account.Sanitize(), TokenPair: pair}, nil
}

// UpgradeAnonymous attaches an email and password to accountID.
func (s *AuthService) UpgradeAnonymous(ctx context.Context, accountID, email, password string, name *string) (*models.Profile, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	accounts := s.repomanager.Accounts(s.db)

	account, err := accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NotFound("Account not found")
		}
		return nil, common.Internal(err)
	}

	existing, err := accounts.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.ID != account.ID:
		return nil, errEmailTaken
	case err != nil && !errors.Is(err, common.ErrorNotFound):
		return nil, common.Internal(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, common.Internal(err)
	}

	account.Email = &email
	account.PasswordHash = &hash
	if n := optionalString(name); n != nil {
		account.Name = n
	}

	if err := accounts.Update(ctx, account); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, errEmailTaken
		}
		return nil, common.Internal(err)
	}

	s.logger.Info(ctx, "account upgraded", "account_id", account.ID)
	return account.Sanitize(), nil
}

// RefreshTokens redeems a refresh token exactly once. The session row is
// consumed by a single conditional delete, so a replayed or expired token
// fails and an expired row is left in place.
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	subject, err := s.tokens.verifyRefresh(refreshToken)
	if err != nil {
		return nil, errInvalidRefresh
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accountID, err := s.repomanager.Sessions(tx).Consume(ctx, common.HashToken(refreshToken), s.now())
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errInvalidRefresh
			}
			return err
		}
		if accountID != subject {
			return errInvalidRefresh
		}

		account, err := s.repomanager.Accounts(tx).GetByID(ctx, accountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return errAccountDisabled
		}

		pair, err = s.tokens.Issue(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return nil, asServiceError(err)
	}
	return pair, nil
}

// Logout forgets the session for refreshToken. Unknown tokens are fine.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.repomanager.Sessions(s.db).DeleteByHash(ctx, common.HashToken(refreshToken)); err != nil {
		return common.Internal(err)
	}
	return nil
}

// Me returns the caller's sanitized profile.
func (s *AuthService) Me(ctx context.Context, accountID string) (*models.Profile, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NotFound("Account not found")
		}
		return nil, common.Internal(err)
	}
	return account.Sanitize(), nil
}

// Authenticate resolves an access token to its account id.
func (s *AuthService) Authenticate(accessToken string) (string, error) {
	accountID, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return "", common.Unauthorized("Invalid access token")
	}
	return accountID, nil
}

// createAccountWithSubscription inserts account with a FREE subscription and
// issues its first token pair, all through tx.
func createAccountWithSubscription(ctx context.Context, tx dbx.DBTX, m repomanager.RepositoryManager, tokens *TokenIssuer, account *models.Account) (*AuthResult, error) {
	created, err := m.Accounts(tx).Create(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := m.Subscriptions(tx).Create(ctx, &models.Subscription{AccountID: created.ID, Tier: models.TierFree}); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	pair, err := tokens.Issue(ctx, tx, created.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: created.Sanitize(), TokenPair: pair}, nil
}

// touchDevice records the device against accountID. Failures only log.
func (s *AuthService) touchDevice(ctx context.Context, accountID string, info *models.DeviceInfo) {
	platform := info.Platform
	if platform == "" {
		platform = "unknown"
	}
	err := s.repomanager.Devices(s.db).Upsert(ctx, &models.Device{
		DeviceID:   info.DeviceID,
		AccountID:  accountID,
		Platform:   platform,
		PushToken:  info.PushToken,
		AppVersion: info.AppVersion,
	})
	if err != nil {
		s.logger.Warn(ctx, "device upsert failed", "account_id", accountID, "device_id", info.DeviceID, "error", err)
	}
}
