package httpapi

import (
	"context"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/dmitrijs2005/wellkeeper/internal/server/services"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger          { return n }

func ptr[T any](v T) *T { return &v }

const goodAccessToken = "good-access"

type fakeAuth struct {
	register  func(email, password string, name *string) (*services.AuthResult, error)
	login     func(email, password string, device *models.DeviceInfo) (*services.AuthResult, error)
	refresh   func(token string) (*services.TokenPair, error)
	upgraded  string
	loggedOut []string
}

func (f *fakeAuth) Register(_ context.Context, email, password string, name *string) (*services.AuthResult, error) {
	return f.register(email, password, name)
}

func (f *fakeAuth) Login(_ context.Context, email, password string, device *models.DeviceInfo) (*services.AuthResult, error) {
	return f.login(email, password, device)
}

func (f *fakeAuth) RegisterAnonymous(_ context.Context, deviceID, platform string) (*services.AuthResult, error) {
	return sampleAuthResult("anon-" + deviceID), nil
}

func (f *fakeAuth) UpgradeAnonymous(_ context.Context, accountID, email, password string, name *string) (*models.Profile, error) {
	f.upgraded = accountID
	return &models.Profile{ID: accountID, Email: &email, HasPassword: true}, nil
}

func (f *fakeAuth) RefreshTokens(_ context.Context, token string) (*services.TokenPair, error) {
	return f.refresh(token)
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	f.loggedOut = append(f.loggedOut, token)
	return nil
}

func (f *fakeAuth) Me(_ context.Context, accountID string) (*models.Profile, error) {
	if accountID == "missing" {
		return nil, common.NotFound("Account not found")
	}
	return &models.Profile{ID: accountID}, nil
}

func (f *fakeAuth) Authenticate(token string) (string, error) {
	if token != goodAccessToken {
		return "", common.Unauthorized("Invalid access token")
	}
	return "acc-1", nil
}

type fakeIdentity struct {
	unlinked models.Provider
	linked   string
}

func (f *fakeIdentity) SignInWithApple(_ context.Context, idToken string, name *string) (*services.FederatedAuthResult, error) {
	if idToken != "apple-ok" {
		return nil, common.Unauthorized("Invalid Apple token")
	}
	return &services.FederatedAuthResult{AuthResult: *sampleAuthResult("acc-apple"), IsNewUser: true}, nil
}

func (f *fakeIdentity) SignInWithGoogle(_ context.Context, idToken, platform string) (*services.FederatedAuthResult, error) {
	return &services.FederatedAuthResult{AuthResult: *sampleAuthResult("acc-google")}, nil
}

func (f *fakeIdentity) LinkApple(_ context.Context, accountID, idToken string) (*models.Profile, error) {
	f.linked = accountID
	return &models.Profile{ID: accountID, AppleLinked: true}, nil
}

func (f *fakeIdentity) LinkGoogle(_ context.Context, accountID, idToken, platform string) (*models.Profile, error) {
	f.linked = accountID
	return &models.Profile{ID: accountID, GoogleLinked: true}, nil
}

func (f *fakeIdentity) UnlinkProvider(_ context.Context, accountID string, provider models.Provider) (*models.Profile, error) {
	f.unlinked = provider
	if provider != models.ProviderApple && provider != models.ProviderGoogle {
		return nil, common.BadRequest("Unsupported provider")
	}
	return &models.Profile{ID: accountID, HasPassword: true}, nil
}

type fakePassword struct {
	requested string
	changedBy string
}

func (f *fakePassword) RequestReset(_ context.Context, email string) string {
	f.requested = email
	return services.ResetRequestedMessage
}

func (f *fakePassword) VerifyToken(_ context.Context, token string) (*services.TokenCheck, error) {
	if token == "good" {
		return &services.TokenCheck{Valid: true, Email: ptr("a@example.com")}, nil
	}
	return &services.TokenCheck{Valid: false}, nil
}

func (f *fakePassword) ResetPassword(_ context.Context, token, newPassword string) error {
	if token != "good" {
		return common.BadRequest("Invalid or expired reset token")
	}
	return nil
}

func (f *fakePassword) ChangePassword(_ context.Context, accountID, current, next string) error {
	f.changedBy = accountID
	return nil
}

type fakeSubscriptions struct {
	trialDays int
	events    []*models.WebhookEvent
	validated *string
}

func (f *fakeSubscriptions) GetSubscription(_ context.Context, accountID string) (*services.SubscriptionView, error) {
	return &services.SubscriptionView{
		Subscription: &models.Subscription{AccountID: accountID, Tier: models.TierFree},
		Entitlements: []models.Entitlement{},
	}, nil
}

func (f *fakeSubscriptions) StartTrial(_ context.Context, accountID string, days int) (*models.Subscription, error) {
	f.trialDays = days
	return &models.Subscription{AccountID: accountID, Tier: models.TierPremium, IsTrialing: true}, nil
}

func (f *fakeSubscriptions) ValidateReceipt(_ context.Context, accountID, receipt, platform string, productID *string) (*models.Subscription, error) {
	if receipt == "bad" {
		return nil, common.BadRequest("Invalid receipt")
	}
	f.validated = productID
	return &models.Subscription{AccountID: accountID, Tier: models.TierPremium, ProductID: productID}, nil
}

func (f *fakeSubscriptions) RestorePurchases(_ context.Context, accountID string) (*services.RestoreResult, error) {
	return &services.RestoreResult{Restored: false}, nil
}

func (f *fakeSubscriptions) CancelSubscription(_ context.Context, accountID string) (*models.Subscription, error) {
	return nil, common.NotFound("Subscription not found")
}

func (f *fakeSubscriptions) CheckFeatureAccess(_ context.Context, accountID, featureID string) (bool, error) {
	return featureID == "sleep-stories", nil
}

func (f *fakeSubscriptions) HandleWebhook(_ context.Context, ev *models.WebhookEvent) (*services.WebhookResult, error) {
	f.events = append(f.events, ev)
	return &services.WebhookResult{Processed: ev.Kind != models.EventUnrecognized}, nil
}

func sampleAuthResult(accountID string) *services.AuthResult {
	return &services.AuthResult{
		User: &models.Profile{ID: accountID},
		TokenPair: &services.TokenPair{
			AccessToken:  "access-" + accountID,
			RefreshToken: "refresh-" + accountID,
		},
	}
}
