package models

import "time"

// Tier is the subscription level of an account.
type Tier string

const (
	TierFree     Tier = "FREE"
	TierPremium  Tier = "PREMIUM"
	TierLifetime Tier = "LIFETIME"
)

// Subscription is one-to-one with Account.
type Subscription struct {
	ID                  string     `json:"id"`
	AccountID           string     `json:"accountId"`
	Tier                Tier       `json:"tier"`
	IsTrialing          bool       `json:"isTrialing"`
	TrialStartedAt      *time.Time `json:"trialStartedAt"`
	TrialEndsAt         *time.Time `json:"trialEndsAt"`
	CurrentPeriodStart  *time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd    *time.Time `json:"currentPeriodEnd"`
	CancelledAt         *time.Time `json:"cancelledAt"`
	GatewaySubscriberID *string    `json:"-"`
	ProductID           *string    `json:"productId"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// IsActive reports whether a PREMIUM subscription grants access at now:
// an unexpired trial or an unexpired billing period.
func (s *Subscription) IsActive(now time.Time) bool {
	if s.IsTrialing && s.TrialEndsAt != nil && s.TrialEndsAt.After(now) {
		return true
	}
	return s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.After(now)
}

// EntitlementSource records who granted an entitlement.
type EntitlementSource string

const (
	SourcePurchase EntitlementSource = "purchase"
	SourcePromo    EntitlementSource = "promo"
	SourceAdmin    EntitlementSource = "admin"
)

// Valid reports whether s is one of the known sources.
func (s EntitlementSource) Valid() bool {
	switch s {
	case SourcePurchase, SourcePromo, SourceAdmin:
		return true
	}
	return false
}

// PremiumFeature is the entitlement upserted on a validated purchase.
const PremiumFeature = "premium"

// Entitlement is a per-feature grant, unique per (subscription, feature).
type Entitlement struct {
	ID             string            `json:"id"`
	SubscriptionID string            `json:"subscriptionId"`
	FeatureID      string            `json:"featureId"`
	ExpiresAt      *time.Time        `json:"expiresAt"`
	Source         EntitlementSource `json:"source"`
}

// ActiveAt reports whether e is unexpired at now.
func (e *Entitlement) ActiveAt(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}
