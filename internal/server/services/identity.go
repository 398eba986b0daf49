package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/dbx"
	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/dmitrijs2005/wellkeeper/internal/server/federation"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/dmitrijs2005/wellkeeper/internal/server/repositories/repomanager"
)

type AppleTokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*federation.Identity, error)
}

type GoogleTokenVerifier interface {
	Verify(ctx context.Context, idToken, platform string) (*federation.Identity, error)
}

// FederatedAuthResult is an AuthResult that also says whether the sign-in
// created the account.
type FederatedAuthResult struct {
	AuthResult
	IsNewUser bool `json:"isNewUser"`
}

// IdentityService reconciles verified federated identities with accounts.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *TokenIssuer
	apple       AppleTokenVerifier
	google      GoogleTokenVerifier
	logger      logging.Logger
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, tokens *TokenIssuer, apple AppleTokenVerifier, google GoogleTokenVerifier, logger logging.Logger) *IdentityService {
	return &IdentityService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		apple:       apple,
		google:      google,
		logger:      logger.With("module", "identity_service"),
	}
}

func (s *IdentityService) SignInWithApple(ctx context.Context, idToken string, name *string) (*FederatedAuthResult, error) {
	id, err := s.apple.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return s.SignInWithFederatedIdentity(ctx, id, name)
}

func (s *IdentityService) SignInWithGoogle(ctx context.Context, idToken, platform string) (*FederatedAuthResult, error) {
	id, err := s.google.Verify(ctx, idToken, platform)
	if err != nil {
		return nil, err
	}
	return s.SignInWithFederatedIdentity(ctx, id, nil)
}

func (s *IdentityService) LinkApple(ctx context.Context, accountID, idToken string) (*models.Profile, error) {
	id, err := s.apple.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return s.LinkProvider(ctx, accountID, id)
}

func (s *IdentityService) LinkGoogle(ctx context.Context, accountID, idToken, platform string) (*models.Profile, error) {
	id, err := s.google.Verify(ctx, idToken, platform)
	if err != nil {
		return nil, err
	}
	return s.LinkProvider(ctx, accountID, id)
}

// SignInWithFederatedIdentity finds the account by provider subject, then by
// email, and signs it in; otherwise it creates one. fallbackName is used
// when the identity carries no name.
func (s *IdentityService) SignInWithFederatedIdentity(ctx context.Context, id *federation.Identity, fallbackName *string) (*FederatedAuthResult, error) {
	account, err := s.findAccount(ctx, id)
	if err != nil {
		return nil, common.Internal(err)
	}
	if account == nil {
		return s.createFederated(ctx, id, fallbackName)
	}

	if !account.IsActive {
		return nil, errAccountDisabled
	}

	changed := false
	if account.ProviderID(id.Provider) == nil {
		subject := id.Subject
		account.SetProviderID(id.Provider, &subject)
		changed = true
	}
	if id.EmailVerified && !account.EmailVerified {
		account.EmailVerified = true
		changed = true
	}
	if changed {
		if err := s.repomanager.Accounts(s.db).Update(ctx, account); err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return nil, common.Conflict("Identity is already linked to another account")
			}
			return nil, common.Internal(err)
		}
		s.logger.Info(ctx, "federated identity linked on sign-in", "account_id", account.ID, "provider", id.Provider)
	}

	pair, err := s.tokens.Issue(ctx, s.db, account.ID)
	if err != nil {
		return nil, common.Internal(err)
	}
	return &FederatedAuthResult{AuthResult: AuthResult{User: account.Sanitize(), TokenPair: pair}}, nil
}

// findAccount returns nil, nil when neither the subject nor the email match.
func (s *IdentityService) findAccount(ctx context.Context, id *federation.Identity) (*models.Account, error) {
	accounts := s.repomanager.Accounts(s.db)

	account, err := accounts.GetByProvider(ctx, id.Provider, id.Subject)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	if id.Email == nil {
		return nil, nil
	}
	account, err = accounts.GetByEmail(ctx, normalizeEmail(*id.Email))
	if err == nil {
		return account, nil
	}
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return nil, err
}

func (s *IdentityService) createFederated(ctx context.Context, id *federation.Identity, fallbackName *string) (*FederatedAuthResult, error) {
	subject := id.Subject
	account := &models.Account{
		EmailVerified: id.EmailVerified,
		Name:          optionalString(id.Name),
		IsActive:      true,
	}
	if account.Name == nil {
		account.Name = optionalString(fallbackName)
	}
	if id.Email != nil {
		email := normalizeEmail(*id.Email)
		account.Email = &email
	}
	account.SetProviderID(id.Provider, &subject)

	var result *AuthResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		result, err = createAccountWithSubscription(ctx, tx, s.repomanager, s.tokens, account)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.Conflict("Account already exists")
		}
		return nil, asServiceError(err)
	}

	s.logger.Info(ctx, "account created from federated identity", "account_id", account.ID, "provider", id.Provider)
	return &FederatedAuthResult{AuthResult: *result, IsNewUser: true}, nil
}

// LinkProvider attaches id to accountID unless another account holds it.
func (s *IdentityService) LinkProvider(ctx context.Context, accountID string, id *federation.Identity) (*models.Profile, error) {
	accounts := s.repomanager.Accounts(s.db)
	alreadyLinked := common.BadRequest(fmt.Sprintf("This %s account is already linked to another user", providerLabel(id.Provider)))

	holder, err := accounts.GetByProvider(ctx, id.Provider, id.Subject)
	switch {
	case err == nil && holder.ID != accountID:
		return nil, alreadyLinked
	case err == nil:
		return holder.Sanitize(), nil
	case !errors.Is(err, common.ErrorNotFound):
		return nil, common.Internal(err)
	}

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	subject := id.Subject
	account.SetProviderID(id.Provider, &subject)
	if err := accounts.Update(ctx, account); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, alreadyLinked
		}
		return nil, common.Internal(err)
	}

	s.logger.Info(ctx, "provider linked", "account_id", accountID, "provider", id.Provider)
	return account.Sanitize(), nil
}

// UnlinkProvider clears provider from accountID as long as another login
// method remains.
func (s *IdentityService) UnlinkProvider(ctx context.Context, accountID string, provider models.Provider) (*models.Profile, error) {
	if provider != models.ProviderApple && provider != models.ProviderGoogle {
		return nil, common.BadRequest("Unsupported provider")
	}

	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.LoginMethods() <= 1 {
		return nil, common.BadRequest("need at least one login method")
	}

	account.SetProviderID(provider, nil)
	if err := s.repomanager.Accounts(s.db).Update(ctx, account); err != nil {
		return nil, common.Internal(err)
	}

	s.logger.Info(ctx, "provider unlinked", "account_id", accountID, "provider", provider)
	return account.Sanitize(), nil
}

func (s *IdentityService) loadAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NotFound("Account not found")
		}
		return nil, common.Internal(err)
	}
	return account, nil
}

func providerLabel(p models.Provider) string {
	switch p {
	case models.ProviderApple:
		return "Apple"
	case models.ProviderGoogle:
		return "Google"
	}
	return string(p)
}
