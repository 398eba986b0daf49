package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
	"golang.org/x/time/rate"
)

// tokenInfo is the subset of the tokeninfo response we read. Google encodes
// numbers and booleans as strings there.
type tokenInfo struct {
	Aud           string   `json:"aud"`
	Sub           string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
	Exp           flexInt  `json:"exp"`
}

// GoogleVerifier trusts Google's tokeninfo endpoint to validate an ID token
// and then checks audience and expiry locally. The audience may match the
// client id of any configured platform, not only the caller's.
type GoogleVerifier struct {
	tokenInfoURL string
	clientIDs    map[string]string
	client       *http.Client
	limiter      *rate.Limiter
	logger       logging.Logger
	now          func() time.Time
}

// NewGoogleVerifier takes the tokeninfo URL and the client ids keyed by
// platform ("ios", "android", "web").
func NewGoogleVerifier(tokenInfoURL string, clientIDs map[string]string, logger logging.Logger) *GoogleVerifier {
	return &GoogleVerifier{
		tokenInfoURL: tokenInfoURL,
		clientIDs:    clientIDs,
		client:       newHTTPClient(),
		// local guard so a burst of sign-ins cannot hammer the endpoint
		limiter: rate.NewLimiter(50, 100),
		logger:  logger.With("module", "google_verifier"),
		now:     time.Now,
	}
}

// Verify returns the identity asserted by idToken or
// Unauthorized("Invalid Google token").
func (v *GoogleVerifier) Verify(ctx context.Context, idToken, platform string) (*Identity, error) {
	id, err := v.verify(ctx, idToken, platform)
	if err != nil {
		v.logger.Warn(ctx, "google token rejected", "platform", platform, "error", err)
		return nil, common.Unauthorized("Invalid Google token")
	}
	return id, nil
}

func (v *GoogleVerifier) verify(ctx context.Context, idToken, platform string) (*Identity, error) {
	if idToken == "" {
		return nil, errors.New("empty token")
	}
	if err := v.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u, err := url.Parse(v.tokenInfoURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("id_token", idToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("tokeninfo status %d", resp.StatusCode)
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode tokeninfo: %w", err)
	}

	if !v.audienceAllowed(ctx, info.Aud, platform) {
		return nil, fmt.Errorf("audience %q not allowed", info.Aud)
	}
	if int64(info.Exp) <= v.now().Unix() {
		return nil, errors.New("token expired")
	}
	if info.Sub == "" {
		return nil, errors.New("token has no subject")
	}

	return &Identity{
		Provider:      models.ProviderGoogle,
		Subject:       info.Sub,
		Email:         optional(info.Email),
		EmailVerified: bool(info.EmailVerified),
		Name:          optional(info.Name),
		Picture:       optional(info.Picture),
	}, nil
}

func (v *GoogleVerifier) audienceAllowed(ctx context.Context, aud, platform string) bool {
	if aud == "" {
		return false
	}
	if expected, ok := v.clientIDs[platform]; ok && expected == aud {
		return true
	}
	for p, id := range v.clientIDs {
		if id == aud {
			v.logger.Debug(ctx, "google audience matched another platform", "requested", platform, "matched", p)
			return true
		}
	}
	return false
}
