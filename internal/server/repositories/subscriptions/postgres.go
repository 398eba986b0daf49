// Package subscriptions provides a PostgreSQL-backed repository for
// subscription state and entitlement grants.
package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/dbx"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/google/uuid"
)

const columns = `id, account_id, tier, is_trialing, trial_started_at, trial_ends_at,
		current_period_start, current_period_end, cancelled_at, gateway_subscriber_id, product_id,
		created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts sub, assigning an id when none is set. An account that
// already has a subscription yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Tier == "" {
		sub.Tier = models.TierFree
	}
	query := `
		INSERT INTO subscriptions (id, account_id, tier, is_trialing)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, sub.ID, sub.AccountID, string(sub.Tier), sub.IsTrialing).
		Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByAccountID(ctx context.Context, accountID string) (*models.Subscription, error) {
	query := `SELECT ` + columns + `
		FROM subscriptions
		WHERE account_id = $1
	`
	return r.get(ctx, query, accountID)
}

func (r *PostgresRepository) GetByGatewaySubscriberID(ctx context.Context, subscriberID string) (*models.Subscription, error) {
	query := `SELECT ` + columns + `
		FROM subscriptions
		WHERE gateway_subscriber_id = $1
		LIMIT 1
	`
	return r.get(ctx, query, subscriberID)
}

// Update writes every mutable column of sub.
func (r *PostgresRepository) Update(ctx context.Context, sub *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET tier = $2, is_trialing = $3, trial_started_at = $4, trial_ends_at = $5,
		    current_period_start = $6, current_period_end = $7, cancelled_at = $8,
		    gateway_subscriber_id = $9, product_id = $10, updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		sub.ID, string(sub.Tier), sub.IsTrialing, sub.TrialStartedAt, sub.TrialEndsAt,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelledAt,
		sub.GatewaySubscriberID, sub.ProductID,
	)
	if err != nil {
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

// UpsertEntitlement inserts e or replaces the expiry and source of the
// existing grant for the same (subscription, feature).
func (r *PostgresRepository) UpsertEntitlement(ctx context.Context, e *models.Entitlement) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `
		INSERT INTO entitlements (id, subscription_id, feature_id, expires_at, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subscription_id, feature_id)
		DO UPDATE SET expires_at = EXCLUDED.expires_at, source = EXCLUDED.source
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, e.ID, e.SubscriptionID, e.FeatureID, e.ExpiresAt, string(e.Source)).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetEntitlement(ctx context.Context, subscriptionID, featureID string) (*models.Entitlement, error) {
	query := `
		SELECT id, subscription_id, feature_id, expires_at, source
		FROM entitlements
		WHERE subscription_id = $1 AND feature_id = $2
	`
	e := &models.Entitlement{}
	var source string
	err := r.db.QueryRowContext(ctx, query, subscriptionID, featureID).
		Scan(&e.ID, &e.SubscriptionID, &e.FeatureID, &e.ExpiresAt, &source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	e.Source = models.EntitlementSource(source)
	return e, nil
}

func (r *PostgresRepository) ListEntitlements(ctx context.Context, subscriptionID string) ([]models.Entitlement, error) {
	query := `
		SELECT id, subscription_id, feature_id, expires_at, source
		FROM entitlements
		WHERE subscription_id = $1
		ORDER BY feature_id
	`
	rows, err := r.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.Entitlement, 0)
	for rows.Next() {
		var e models.Entitlement
		var source string
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &e.FeatureID, &e.ExpiresAt, &source); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.Source = models.EntitlementSource(source)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) get(ctx context.Context, query string, args ...any) (*models.Subscription, error) {
	s := &models.Subscription{}
	var tier string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&s.ID, &s.AccountID, &tier, &s.IsTrialing, &s.TrialStartedAt, &s.TrialEndsAt,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelledAt, &s.GatewaySubscriberID, &s.ProductID,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.Tier = models.Tier(tier)
	return s, nil
}
