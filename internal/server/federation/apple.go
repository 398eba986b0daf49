package federation

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// AppleIssuer is the fixed iss claim of Sign in with Apple identity tokens.
const AppleIssuer = "https://appleid.apple.com"

type appleClaims struct {
	jwt.RegisteredClaims
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
}

// AppleVerifier checks Sign in with Apple identity tokens: RS256 signature
// against the cached key for the header kid, issuer, audience and expiry.
type AppleVerifier struct {
	clientID string
	keys     *KeyCache
	logger   logging.Logger
	now      func() time.Time
}

func NewAppleVerifier(clientID string, keys *KeyCache, logger logging.Logger) *AppleVerifier {
	return &AppleVerifier{
		clientID: clientID,
		keys:     keys,
		logger:   logger.With("module", "apple_verifier"),
		now:      time.Now,
	}
}

// Verify returns the identity asserted by idToken or
// Unauthorized("Invalid Apple token").
func (v *AppleVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	id, err := v.verify(ctx, idToken)
	if err != nil {
		v.logger.Warn(ctx, "apple token rejected", "error", err)
		return nil, common.Unauthorized("Invalid Apple token")
	}
	return id, nil
}

func (v *AppleVerifier) verify(ctx context.Context, idToken string) (*Identity, error) {
	if v.clientID == "" {
		return nil, errors.New("apple client id is not configured")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(AppleIssuer),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	claims := &appleClaims{}
	_, err := parser.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header missing kid")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return &Identity{
		Provider:      models.ProviderApple,
		Subject:       claims.Subject,
		Email:         optional(claims.Email),
		EmailVerified: bool(claims.EmailVerified),
	}, nil
}
