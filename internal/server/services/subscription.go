package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/dbx"
	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/dmitrijs2005/wellkeeper/internal/server/gateway"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/wellkeeper/internal/timex"
	"github.com/google/uuid"
)

// DefaultTrialDays is the trial length when the caller gives none.
const DefaultTrialDays = 7

var errSubscriptionNotFound = common.NotFound("Subscription not found")

// ReceiptArchive keeps a copy of each validated receipt.
type ReceiptArchive interface {
	Store(ctx context.Context, accountID, platform string, receipt []byte) (string, error)
}

// SubscriptionView is a subscription together with its entitlements.
type SubscriptionView struct {
	Subscription *models.Subscription `json:"subscription"`
	Entitlements []models.Entitlement `json:"entitlements"`
	IsActive     bool                 `json:"isActive"`
}

// RestoreResult reports whether the gateway had anything to restore.
type RestoreResult struct {
	Restored     bool                 `json:"restored"`
	Subscription *models.Subscription `json:"subscription"`
}

// WebhookResult acknowledges a gateway notification.
type WebhookResult struct {
	Processed bool `json:"processed"`
}

// SubscriptionService is the tier state machine and feature access resolver.
type SubscriptionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	gateway     gateway.Client
	archive     ReceiptArchive
	logger      logging.Logger
	now         timex.Clock
}

// NewSubscriptionService wires the engine. archive may be nil.
func NewSubscriptionService(db *sql.DB, m repomanager.RepositoryManager, gw gateway.Client, archive ReceiptArchive, logger logging.Logger) *SubscriptionService {
	return &SubscriptionService{
		db:          db,
		repomanager: m,
		gateway:     gw,
		archive:     archive,
		logger:      logger.With("module", "subscription_service"),
		now:         timex.SystemClock,
	}
}

func (s *SubscriptionService) GetSubscription(ctx context.Context, accountID string) (*SubscriptionView, error) {
	sub, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	ents, err := s.repomanager.Subscriptions(s.db).ListEntitlements(ctx, sub.ID)
	if err != nil {
		return nil, common.Internal(err)
	}
	active := sub.Tier == models.TierLifetime || (sub.Tier == models.TierPremium && sub.IsActive(s.now()))
	return &SubscriptionView{Subscription: sub, Entitlements: ents, IsActive: active}, nil
}

// StartTrial puts the account on a PREMIUM trial. Each account gets one.
func (s *SubscriptionService) StartTrial(ctx context.Context, accountID string, days int) (*models.Subscription, error) {
	if days <= 0 {
		days = DefaultTrialDays
	}
	sub, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if sub.TrialStartedAt != nil {
		return nil, common.BadRequest("Trial already used")
	}

	now := s.now()
	ends := now.AddDate(0, 0, days)
	sub.Tier = models.TierPremium
	sub.IsTrialing = true
	sub.TrialStartedAt = &now
	sub.TrialEndsAt = &ends

	if err := s.repomanager.Subscriptions(s.db).Update(ctx, sub); err != nil {
		return nil, common.Internal(err)
	}
	s.logger.Info(ctx, "trial started", "account_id", accountID, "ends_at", ends)
	return sub, nil
}

// ValidateReceipt checks receipt with the gateway and applies the purchase.
func (s *SubscriptionService) ValidateReceipt(ctx context.Context, accountID, receipt, platform string, productID *string) (*models.Subscription, error) {
	if receipt == "" {
		return nil, common.BadRequest("receipt is required")
	}
	if platform == "" {
		return nil, common.BadRequest("platform is required")
	}

	sub, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	subscriberID := s.subscriberID(sub)

	res, err := s.gateway.ValidateReceipt(ctx, subscriberID, receipt, platform, productID)
	if err != nil {
		return nil, common.Internal(err)
	}
	if !res.IsValid {
		s.logger.Info(ctx, "receipt rejected", "account_id", accountID, "platform", platform)
		return nil, common.BadRequest("Invalid receipt")
	}

	if res.ProductID == nil {
		res.ProductID = productID
	}
	if err := s.applyPurchase(ctx, sub, subscriberID, res); err != nil {
		return nil, err
	}

	s.archiveReceipt(ctx, accountID, platform, receipt)
	s.logger.Info(ctx, "receipt validated", "account_id", accountID, "tier", sub.Tier)
	return sub, nil
}

// RestorePurchases re-applies whatever the gateway still has on file. An
// empty answer is not an error.
func (s *SubscriptionService) RestorePurchases(ctx context.Context, accountID string) (*RestoreResult, error) {
	sub, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	subscriberID := s.subscriberID(sub)

	res, err := s.gateway.RestorePurchases(ctx, subscriberID)
	if err != nil {
		return nil, common.Internal(err)
	}
	if !res.IsValid {
		return &RestoreResult{Restored: false, Subscription: sub}, nil
	}

	if err := s.applyPurchase(ctx, sub, subscriberID, res); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "purchases restored", "account_id", accountID, "tier", sub.Tier)
	return &RestoreResult{Restored: true, Subscription: sub}, nil
}

// CancelSubscription records the intent to cancel. The tier stays until the
// gateway reports expiration.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, accountID string) (*models.Subscription, error) {
	sub, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sub.CancelledAt = &now
	if err := s.repomanager.Subscriptions(s.db).Update(ctx, sub); err != nil {
		return nil, common.Internal(err)
	}
	return sub, nil
}

// CheckFeatureAccess resolves LIFETIME, then an active PREMIUM period, then
// a per-feature entitlement. A missing subscription means no access.
func (s *SubscriptionService) CheckFeatureAccess(ctx context.Context, accountID, featureID string) (bool, error) {
	repo := s.repomanager.Subscriptions(s.db)

	sub, err := repo.GetByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, common.Internal(err)
	}

	now := s.now()
	switch {
	case sub.Tier == models.TierLifetime:
		return true, nil
	case sub.Tier == models.TierPremium && sub.IsActive(now):
		return true, nil
	}

	ent, err := repo.GetEntitlement(ctx, sub.ID, featureID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, common.Internal(err)
	}
	return ent.ActiveAt(now), nil
}

// HandleWebhook applies a gateway event. Missing or unknown subscribers and
// unknown event kinds are acknowledged with Processed=false.
func (s *SubscriptionService) HandleWebhook(ctx context.Context, ev *models.WebhookEvent) (*WebhookResult, error) {
	if ev.AppUserID == "" {
		s.logger.Warn(ctx, "webhook without subscriber ignored", "type", ev.RawType)
		return &WebhookResult{Processed: false}, nil
	}

	sub, err := s.resolveWebhookTarget(ctx, ev.AppUserID)
	if err != nil {
		return nil, common.Internal(err)
	}
	if sub == nil {
		s.logger.Info(ctx, "webhook for unknown subscriber ignored", "app_user_id", ev.AppUserID, "type", ev.RawType)
		return &WebhookResult{Processed: false}, nil
	}

	now := s.now()
	switch ev.Kind {
	case models.EventInitialPurchase, models.EventRenewal, models.EventProductChange:
		sub.Tier = models.TierPremium
		sub.IsTrialing = false
		sub.ProductID = ev.ProductID
		sub.CurrentPeriodEnd = ev.ExpiresAt
		sub.CancelledAt = nil
	case models.EventCancellation:
		sub.CancelledAt = &now
	case models.EventUncancellation:
		sub.CancelledAt = nil
	case models.EventExpiration, models.EventBillingIssue:
		sub.Tier = models.TierFree
		sub.IsTrialing = false
	case models.EventNonRenewingPurchase:
		sub.Tier = models.TierLifetime
		sub.IsTrialing = false
		sub.CancelledAt = nil
	default:
		s.logger.Info(ctx, "unrecognized webhook event ignored", "type", ev.RawType, "account_id", sub.AccountID)
		return &WebhookResult{Processed: false}, nil
	}

	if err := s.repomanager.Subscriptions(s.db).Update(ctx, sub); err != nil {
		return nil, common.Internal(err)
	}
	s.logger.Info(ctx, "webhook applied", "type", ev.Kind.String(), "account_id", sub.AccountID, "tier", sub.Tier)
	return &WebhookResult{Processed: true}, nil
}

// resolveWebhookTarget matches the app user id against account ids first
// and gateway subscriber ids second. nil, nil means no match.
func (s *SubscriptionService) resolveWebhookTarget(ctx context.Context, appUserID string) (*models.Subscription, error) {
	repo := s.repomanager.Subscriptions(s.db)

	if _, err := uuid.Parse(appUserID); err == nil {
		sub, err := repo.GetByAccountID(ctx, appUserID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
	}

	sub, err := repo.GetByGatewaySubscriberID(ctx, appUserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

// GrantPremium is the admin override. nil days grants LIFETIME.
func (s *SubscriptionService) GrantPremium(ctx context.Context, accountID string, days *int) (*models.Subscription, error) {
	if days != nil && *days <= 0 {
		return nil, common.BadRequest("days must be positive")
	}
	sub, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sub.CurrentPeriodStart = &now
	if days == nil {
		sub.Tier = models.TierLifetime
		sub.CurrentPeriodEnd = nil
	} else {
		end := now.AddDate(0, 0, *days)
		sub.Tier = models.TierPremium
		sub.CurrentPeriodEnd = &end
	}

	if err := s.repomanager.Subscriptions(s.db).Update(ctx, sub); err != nil {
		return nil, common.Internal(err)
	}
	s.logger.Info(ctx, "premium granted", "account_id", accountID, "tier", sub.Tier)
	return sub, nil
}

// RevokePremium drops the account to FREE.
func (s *SubscriptionService) RevokePremium(ctx context.Context, accountID string) (*models.Subscription, error) {
	sub, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	sub.Tier = models.TierFree
	sub.CurrentPeriodEnd = nil

	if err := s.repomanager.Subscriptions(s.db).Update(ctx, sub); err != nil {
		return nil, common.Internal(err)
	}
	s.logger.Info(ctx, "premium revoked", "account_id", accountID)
	return sub, nil
}

// GrantEntitlement gives accountID access to featureID regardless of tier.
// nil days never expires.
func (s *SubscriptionService) GrantEntitlement(ctx context.Context, accountID, featureID string, days *int, source models.EntitlementSource) (*models.Entitlement, error) {
	if featureID == "" {
		return nil, common.BadRequest("featureId is required")
	}
	if !source.Valid() {
		return nil, common.BadRequest("Unknown entitlement source")
	}
	if days != nil && *days <= 0 {
		return nil, common.BadRequest("days must be positive")
	}

	sub, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}

	ent := &models.Entitlement{SubscriptionID: sub.ID, FeatureID: featureID, Source: source}
	if days != nil {
		exp := s.now().AddDate(0, 0, *days)
		ent.ExpiresAt = &exp
	}
	if err := s.repomanager.Subscriptions(s.db).UpsertEntitlement(ctx, ent); err != nil {
		return nil, common.Internal(err)
	}
	s.logger.Info(ctx, "entitlement granted", "account_id", accountID, "feature_id", featureID, "source", source)
	return ent, nil
}

func (s *SubscriptionService) applyPurchase(ctx context.Context, sub *models.Subscription, subscriberID string, res *gateway.Result) error {
	now := s.now()
	if res.HasLifetime() {
		sub.Tier = models.TierLifetime
	} else {
		sub.Tier = models.TierPremium
	}
	sub.IsTrialing = false
	sub.ProductID = res.ProductID
	sub.CurrentPeriodStart = &now
	sub.CurrentPeriodEnd = res.ExpiresAt
	sub.CancelledAt = nil
	sub.GatewaySubscriberID = &subscriberID

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Subscriptions(tx)
		if err := repo.Update(ctx, sub); err != nil {
			return err
		}
		return repo.UpsertEntitlement(ctx, &models.Entitlement{
			SubscriptionID: sub.ID,
			FeatureID:      models.PremiumFeature,
			ExpiresAt:      res.ExpiresAt,
			Source:         models.SourcePurchase,
		})
	})
	if err != nil {
		return common.Internal(err)
	}
	return nil
}

func (s *SubscriptionService) subscriberID(sub *models.Subscription) string {
	if sub.GatewaySubscriberID != nil && *sub.GatewaySubscriberID != "" {
		return *sub.GatewaySubscriberID
	}
	return sub.AccountID
}

func (s *SubscriptionService) archiveReceipt(ctx context.Context, accountID, platform, receipt string) {
	if s.archive == nil {
		return
	}
	key, err := s.archive.Store(ctx, accountID, platform, []byte(receipt))
	if err != nil {
		s.logger.Warn(ctx, "receipt archive failed", "account_id", accountID, "error", err)
		return
	}
	s.logger.Info(ctx, "receipt archived", "account_id", accountID, "key", key)
}

func (s *SubscriptionService) load(ctx context.Context, accountID string) (*models.Subscription, error) {
	sub, err := s.repomanager.Subscriptions(s.db).GetByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, errSubscriptionNotFound
		}
		return nil, common.Internal(err)
	}
	return sub, nil
}
