package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/dbx"
	"github.com/dmitrijs2005/wellkeeper/internal/server/auth"
	"github.com/dmitrijs2005/wellkeeper/internal/server/config"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/wellkeeper/internal/timex"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// TokenIssuer mints token pairs and records one session per refresh token.
type TokenIssuer struct {
	repomanager   repomanager.RepositoryManager
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           timex.Clock
}

func NewTokenIssuer(m repomanager.RepositoryManager, cfg *config.Config) *TokenIssuer {
	return &TokenIssuer{
		repomanager:   m,
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenValidityDuration,
		refreshTTL:    cfg.RefreshTokenValidityDuration,
		now:           timex.SystemClock,
	}
}

// Issue signs a new pair for accountID and stores the refresh digest through
// db, which may be a transaction.
func (t *TokenIssuer) Issue(ctx context.Context, db dbx.DBTX, accountID string) (*TokenPair, error) {
	now := t.now()

	access, accessExp, err := auth.GenerateToken(accountID, auth.AccessToken, t.accessSecret, now, t.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExp, err := auth.GenerateToken(accountID, auth.RefreshToken, t.refreshSecret, now, t.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	session := &models.Session{
		AccountID:        accountID,
		RefreshTokenHash: common.HashToken(refresh),
		ExpiresAt:        refreshExp,
	}
	if err := t.repomanager.Sessions(db).Create(ctx, session); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &TokenPair{
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess returns the account id carried by a valid access token.
func (t *TokenIssuer) VerifyAccess(token string) (string, error) {
	return auth.ParseToken(token, auth.AccessToken, t.accessSecret)
}

func (t *TokenIssuer) verifyRefresh(token string) (string, error) {
	return auth.ParseToken(token, auth.RefreshToken, t.refreshSecret)
}

// asServiceError passes classified errors through and hides everything else
// behind Internal.
func asServiceError(err error) error {
	var e *common.Error
	if errors.As(err, &e) {
		return err
	}
	return common.Internal(err)
}
