package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/logging"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
)

var ErrGatewayUnavailable = errors.New("gateway: unavailable")

type entitlementInfo struct {
	ExpiresDate       *time.Time `json:"expires_date"`
	ProductIdentifier string     `json:"product_identifier"`
}

type subscriberResponse struct {
	Subscriber struct {
		Entitlements map[string]entitlementInfo `json:"entitlements"`
	} `json:"subscriber"`
}

type receiptRequest struct {
	AppUserID  string  `json:"app_user_id"`
	FetchToken string  `json:"fetch_token"`
	ProductID  *string `json:"product_id,omitempty"`
}

// HTTPClient implements Client against a RevenueCat-style REST API
// authenticated with a bearer API key.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  logging.Logger
	now     func() time.Time
}

func NewHTTPClient(baseURL, apiKey string, logger logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger.With("module", "gateway"),
		now:     time.Now,
	}
}

// ValidateReceipt posts receipt for subscriberID. A 4xx answer means the
// receipt was rejected and yields an invalid Result, not an error.
func (c *HTTPClient) ValidateReceipt(ctx context.Context, subscriberID, receipt, platform string, productID *string) (*Result, error) {
	body, err := json.Marshal(receiptRequest{AppUserID: subscriberID, FetchToken: receipt, ProductID: productID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/receipts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Platform", platform)

	return c.do(ctx, req)
}

// RestorePurchases reads the subscriber's current entitlements.
func (c *HTTPClient) RestorePurchases(ctx context.Context, subscriberID string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/subscribers/"+url.PathEscape(subscriberID), nil)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req)
}

func (c *HTTPClient) do(ctx context.Context, req *http.Request) (*Result, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		c.logger.Warn(ctx, "gateway rejected request", "path", req.URL.Path, "status", resp.StatusCode)
		return &Result{IsValid: false}, nil
	}

	var sr subscriberResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	return c.toResult(sr), nil
}

// toResult keeps only entitlements active now. The reported expiry is the
// latest one; a lifetime or non-expiring entitlement reports none.
func (c *HTTPClient) toResult(sr subscriberResponse) *Result {
	now := c.now()
	res := &Result{}

	var latest *entitlementInfo
	unbounded := false
	for name, e := range sr.Subscriber.Entitlements {
		if e.ExpiresDate != nil && !e.ExpiresDate.After(now) {
			continue
		}
		res.Entitlements = append(res.Entitlements, name)

		if e.ExpiresDate == nil {
			unbounded = true
			if e.ProductIdentifier != "" {
				p := e.ProductIdentifier
				res.ProductID = &p
			}
			continue
		}
		if latest == nil || e.ExpiresDate.After(*latest.ExpiresDate) {
			info := e
			latest = &info
		}
	}

	res.IsValid = len(res.Entitlements) > 0
	if latest != nil && !unbounded {
		res.ExpiresAt = latest.ExpiresDate
		if latest.ProductIdentifier != "" {
			p := latest.ProductIdentifier
			res.ProductID = &p
		}
	}
	return res
}
