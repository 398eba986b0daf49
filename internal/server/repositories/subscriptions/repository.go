package subscriptions

import (
	"context"

	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
)

// Repository persists subscriptions and their per-feature entitlements.
type Repository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetByAccountID(ctx context.Context, accountID string) (*models.Subscription, error)
	GetByGatewaySubscriberID(ctx context.Context, subscriberID string) (*models.Subscription, error)
	Update(ctx context.Context, sub *models.Subscription) error

	UpsertEntitlement(ctx context.Context, e *models.Entitlement) error
	GetEntitlement(ctx context.Context, subscriptionID, featureID string) (*models.Entitlement, error)
	ListEntitlements(ctx context.Context, subscriptionID string) ([]models.Entitlement, error)
}
