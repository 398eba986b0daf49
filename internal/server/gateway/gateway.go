// Package gateway talks to the in-app purchase gateway: receipt validation,
// purchase restore and decoding of its webhook notifications.
package gateway

import (
	"context"
	"slices"
	"time"
)

// LifetimeEntitlement marks a non-expiring purchase in Result.Entitlements.
const LifetimeEntitlement = "lifetime"

// Result is the gateway's view of a subscriber after validation or restore.
type Result struct {
	IsValid      bool
	ProductID    *string
	ExpiresAt    *time.Time
	Entitlements []string
}

// HasLifetime reports whether the result carries the lifetime marker.
func (r *Result) HasLifetime() bool {
	return slices.Contains(r.Entitlements, LifetimeEntitlement)
}

// Client is the payment gateway contract used by the entitlement engine.
type Client interface {
	ValidateReceipt(ctx context.Context, subscriberID, receipt, platform string, productID *string) (*Result, error)
	RestorePurchases(ctx context.Context, subscriberID string) (*Result, error)
}
