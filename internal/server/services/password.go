package services

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/cryptox"
	"github.com/dmitrijs2005/wellkeeper/internal/dbx"
	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/dmitrijs2005/wellkeeper/internal/server/config"
	"github.com/dmitrijs2005/wellkeeper/internal/server/mail"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/wellkeeper/internal/timex"
)

// ResetRequestedMessage is returned by every reset request, whatever
// happened, so the endpoint cannot be used to probe for accounts.
const ResetRequestedMessage = "If an account with that email exists, a password reset link has been sent."

const (
	resetTokenBytes    = 32
	resetTokenValidity = time.Hour
)

var errInvalidResetToken = common.BadRequest("Invalid or expired reset token")

// ResetThrottle counts reset requests per identifier.
type ResetThrottle interface {
	Allow(ctx context.Context, identifier string) (bool, error)
}

// TokenCheck is the outcome of VerifyToken.
type TokenCheck struct {
	Valid bool    `json:"valid"`
	Email *string `json:"email,omitempty"`
}

// PasswordService runs the reset token lifecycle and password changes.
type PasswordService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *cryptox.PasswordHasher
	mailer      mail.Mailer
	throttle    ResetThrottle
	resetURL    string
	mailFrom    string
	logger      logging.Logger
	now         timex.Clock
}

// NewPasswordService wires the flow. throttle may be nil to disable request
// throttling.
func NewPasswordService(db *sql.DB, m repomanager.RepositoryManager, hasher *cryptox.PasswordHasher, mailer mail.Mailer, throttle ResetThrottle, cfg *config.Config, logger logging.Logger) *PasswordService {
	return &PasswordService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		mailer:      mailer,
		throttle:    throttle,
		resetURL:    cfg.PasswordResetURL,
		mailFrom:    cfg.MailFrom,
		logger:      logger.With("module", "password_service"),
		now:         timex.SystemClock,
	}
}

// RequestReset issues a reset token for an active account and mails the
// link. The result is ResetRequestedMessage in every case.
func (s *PasswordService) RequestReset(ctx context.Context, email string) string {
	email = normalizeEmail(email)
	if email == "" {
		return ResetRequestedMessage
	}

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, email)
		switch {
		case err != nil:
			s.logger.Warn(ctx, "reset throttle unavailable, allowing request", "error", err)
		case !ok:
			s.logger.Info(ctx, "reset request throttled")
			return ResetRequestedMessage
		}
	}

	account, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "reset lookup failed", "error", err)
		}
		return ResetRequestedMessage
	}
	if !account.IsActive {
		return ResetRequestedMessage
	}

	token, err := common.MakeRandHexString(resetTokenBytes)
	if err != nil {
		s.logger.Error(ctx, "reset token generation failed", "error", err)
		return ResetRequestedMessage
	}

	hash := common.HashToken(token)
	expires := s.now().Add(resetTokenValidity)
	account.PasswordResetTokenHash = &hash
	account.PasswordResetExpiresAt = &expires

	if err := s.repomanager.Accounts(s.db).Update(ctx, account); err != nil {
		s.logger.Error(ctx, "reset token store failed", "account_id", account.ID, "error", err)
		return ResetRequestedMessage
	}

	msg, err := mail.PasswordResetEmail(s.mailFrom, email, derefOr(account.Name, ""), s.resetLink(token))
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.logger.Warn(ctx, "reset email not sent", "account_id", account.ID, "error", err)
	}

	s.logger.Info(ctx, "reset token issued", "account_id", account.ID)
	return ResetRequestedMessage
}

// VerifyToken reports whether rawToken is a live reset token.
func (s *PasswordService) VerifyToken(ctx context.Context, rawToken string) (*TokenCheck, error) {
	if rawToken == "" {
		return &TokenCheck{}, nil
	}
	account, err := s.repomanager.Accounts(s.db).GetByResetToken(ctx, common.HashToken(rawToken), s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &TokenCheck{}, nil
		}
		return nil, common.Internal(err)
	}
	return &TokenCheck{Valid: true, Email: account.Email}, nil
}

// ResetPassword redeems rawToken. The new hash, the cleared token and the
// removal of every session commit together.
func (s *PasswordService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if rawToken == "" {
		return errInvalidResetToken
	}

	var account *models.Account
	var revoked int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		account, err = s.repomanager.Accounts(tx).GetByResetToken(ctx, common.HashToken(rawToken), s.now())
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errInvalidResetToken
			}
			return err
		}

		hash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return err
		}
		account.PasswordHash = &hash
		account.PasswordResetTokenHash = nil
		account.PasswordResetExpiresAt = nil
		if err := s.repomanager.Accounts(tx).Update(ctx, account); err != nil {
			return err
		}

		revoked, err = s.repomanager.Sessions(tx).DeleteByAccount(ctx, account.ID)
		return err
	})
	if err != nil {
		return asServiceError(err)
	}

	s.logger.Info(ctx, "password reset", "account_id", account.ID, "sessions_revoked", revoked)
	s.sendChanged(ctx, account)
	return nil
}

// ChangePassword replaces the password of an account that has one.
func (s *PasswordService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	accounts := s.repomanager.Accounts(s.db)

	account, err := accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NotFound("Account not found")
		}
		return common.Internal(err)
	}
	if account.PasswordHash == nil {
		return common.NotFound("No password is set for this account")
	}

	ok, err := s.hasher.Compare(*account.PasswordHash, currentPassword)
	if err != nil {
		return common.Internal(err)
	}
	if !ok {
		return common.BadRequest("Current password is incorrect")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return common.Internal(err)
	}
	account.PasswordHash = &hash
	if err := accounts.Update(ctx, account); err != nil {
		return common.Internal(err)
	}

	s.logger.Info(ctx, "password changed", "account_id", account.ID)
	s.sendChanged(ctx, account)
	return nil
}

func (s *PasswordService) sendChanged(ctx context.Context, account *models.Account) {
	if account.Email == nil {
		return
	}
	msg, err := mail.PasswordChangedEmail(s.mailFrom, *account.Email, derefOr(account.Name, ""))
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.logger.Warn(ctx, "password confirmation email not sent", "account_id", account.ID, "error", err)
	}
}

func (s *PasswordService) resetLink(token string) string {
	u, err := url.Parse(s.resetURL)
	if err != nil {
		return s.resetURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
