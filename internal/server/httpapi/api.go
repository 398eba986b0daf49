// Package httpapi exposes the identity and entitlement services over a
// JSON REST surface. Handlers decode requests, call a service and map the
// service error kind to an HTTP status; no business rules live here.
package httpapi

import (
	"context"

	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/dmitrijs2005/wellkeeper/internal/server/services"
)

// AuthAPI is the subset of services.AuthService the handlers call.
type AuthAPI interface {
	Register(ctx context.Context, email, password string, name *string) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string, device *models.DeviceInfo) (*services.AuthResult, error)
	RegisterAnonymous(ctx context.Context, deviceID, platform string) (*services.AuthResult, error)
	UpgradeAnonymous(ctx context.Context, accountID, email, password string, name *string) (*models.Profile, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, accountID string) (*models.Profile, error)
	Authenticate(accessToken string) (string, error)
}

// IdentityAPI is the subset of services.IdentityService the handlers call.
type IdentityAPI interface {
	SignInWithApple(ctx context.Context, idToken string, name *string) (*services.FederatedAuthResult, error)
	SignInWithGoogle(ctx context.Context, idToken, platform string) (*services.FederatedAuthResult, error)
	LinkApple(ctx context.Context, accountID, idToken string) (*models.Profile, error)
	LinkGoogle(ctx context.Context, accountID, idToken, platform string) (*models.Profile, error)
	UnlinkProvider(ctx context.Context, accountID string, provider models.Provider) (*models.Profile, error)
}

// PasswordAPI is the subset of services.PasswordService the handlers call.
type PasswordAPI interface {
	RequestReset(ctx context.Context, email string) string
	VerifyToken(ctx context.Context, rawToken string) (*services.TokenCheck, error)
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error
}

// SubscriptionAPI is the subset of services.SubscriptionService the handlers call.
type SubscriptionAPI interface {
	GetSubscription(ctx context.Context, accountID string) (*services.SubscriptionView, error)
	StartTrial(ctx context.Context, accountID string, days int) (*models.Subscription, error)
	ValidateReceipt(ctx context.Context, accountID, receipt, platform string, productID *string) (*models.Subscription, error)
	RestorePurchases(ctx context.Context, accountID string) (*services.RestoreResult, error)
	CancelSubscription(ctx context.Context, accountID string) (*models.Subscription, error)
	CheckFeatureAccess(ctx context.Context, accountID, featureID string) (bool, error)
	HandleWebhook(ctx context.Context, ev *models.WebhookEvent) (*services.WebhookResult, error)
}

var (
	_ AuthAPI         = (*services.AuthService)(nil)
	_ IdentityAPI     = (*services.IdentityService)(nil)
	_ PasswordAPI     = (*services.PasswordService)(nil)
	_ SubscriptionAPI = (*services.SubscriptionService)(nil)
)
