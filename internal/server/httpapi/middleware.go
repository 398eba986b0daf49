package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const accountIDKey ctxKey = "accountID"

var (
	errMissingToken    = common.Unauthorized("Missing bearer token")
	errBadWebhookToken = common.Unauthorized("Invalid webhook credentials")
)

// AccountID returns the authenticated account id stored by requireAuth.
func AccountID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDKey).(string)
	return id, ok && id != ""
}

func withAccountID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, accountIDKey, id)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(common.AuthorizationHeaderName)
	n := len(common.BearerPrefix)
	if len(h) < n || !strings.EqualFold(h[:n], common.BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(h[n:])
}

// requireAuth resolves the bearer access token to an account id.
func requireAuth(auth AuthAPI, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(r.Context(), w, logger, errMissingToken)
				return
			}
			accountID, err := auth.Authenticate(token)
			if err != nil {
				writeError(r.Context(), w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withAccountID(r.Context(), accountID)))
		})
	}
}

// requireWebhookSecret checks the shared webhook bearer secret in constant
// time. An empty secret accepts every call.
func requireWebhookSecret(secret string, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" {
				got := bearerToken(r)
				if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
					logger.Warn(r.Context(), "webhook rejected", "remote", r.RemoteAddr)
					writeError(r.Context(), w, logger, errBadWebhookToken)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger writes one line per request with the chi request id.
func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info(r.Context(), "request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
