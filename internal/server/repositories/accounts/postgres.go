// Package accounts provides a PostgreSQL-backed repository for identity
// records.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/dbx"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/google/uuid"
)

const columns = `id, email, name, password_hash, apple_id, google_id, is_active, email_verified,
		password_reset_token_hash, password_reset_expires_at, created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts account, assigning an id when none is set.
func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	query := `
		INSERT INTO accounts (id, email, name, password_hash, apple_id, google_id, is_active, email_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		account.ID, account.Email, account.Name, account.PasswordHash,
		account.AppleID, account.GoogleID, account.IsActive, account.EmailVerified,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + columns + `
		FROM accounts
		WHERE id = $1
	`
	return r.get(ctx, query, id)
}

// GetByEmail matches the normalized (lower-cased) email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + columns + `
		FROM accounts
		WHERE email = $1
	`
	return r.get(ctx, query, email)
}

func (r *PostgresRepository) GetByProvider(ctx context.Context, provider models.Provider, subject string) (*models.Account, error) {
	var query string
	switch provider {
	case models.ProviderApple:
		query = `SELECT ` + columns + `
		FROM accounts
		WHERE apple_id = $1
	`
	case models.ProviderGoogle:
		query = `SELECT ` + columns + `
		FROM accounts
		WHERE google_id = $1
	`
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	return r.get(ctx, query, subject)
}

// GetByResetToken finds an active account holding tokenHash whose reset
// window is still open at now.
func (r *PostgresRepository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.Account, error) {
	query := `SELECT ` + columns + `
		FROM accounts
		WHERE password_reset_token_hash = $1
		  AND password_reset_expires_at > $2
		  AND is_active
	`
	return r.get(ctx, query, tokenHash, now)
}

// Update writes every mutable column of account.
func (r *PostgresRepository) Update(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE accounts
		SET email = $2, name = $3, password_hash = $4, apple_id = $5, google_id = $6,
		    is_active = $7, email_verified = $8,
		    password_reset_token_hash = $9, password_reset_expires_at = $10,
		    updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		account.ID, account.Email, account.Name, account.PasswordHash, account.AppleID, account.GoogleID,
		account.IsActive, account.EmailVerified, account.PasswordResetTokenHash, account.PasswordResetExpiresAt,
	)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) get(ctx context.Context, query string, args ...any) (*models.Account, error) {
	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.AppleID, &a.GoogleID, &a.IsActive, &a.EmailVerified,
		&a.PasswordResetTokenHash, &a.PasswordResetExpiresAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}
