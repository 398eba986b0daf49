// Package federation verifies identity tokens issued by third-party sign-in
// providers and normalizes them into an Identity.
//
// Apple tokens are verified locally against Apple's published JWKS. Google
// tokens are trusted through Google's remote tokeninfo endpoint. Every
// verification failure surfaces to callers as the same Unauthorized error
// per provider; the detail is only logged.
package federation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
)

// Identity is a verified federated identity assertion.
type Identity struct {
	Provider      models.Provider
	Subject       string
	Email         *string
	EmailVerified bool
	Name          *string
	Picture       *string
}

const defaultHTTPTimeout = 10 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// flexBool decodes either a JSON boolean or the strings "true"/"false".
// Absent means false.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case bool:
		*b = flexBool(x)
	case string:
		parsed, err := strconv.ParseBool(x)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", x)
		}
		*b = flexBool(parsed)
	case nil:
		*b = false
	default:
		return fmt.Errorf("invalid boolean %v", v)
	}
	return nil
}

// flexInt decodes either a JSON number or a decimal string.
type flexInt int64

func (n *flexInt) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*n = flexInt(x)
	case string:
		parsed, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q", x)
		}
		*n = flexInt(parsed)
	default:
		return fmt.Errorf("invalid integer %v", v)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
