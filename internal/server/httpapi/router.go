package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const middlewareTimeout = 30 * time.Second

// Handler holds the services behind the REST surface.
type Handler struct {
	auth          AuthAPI
	identity      IdentityAPI
	password      PasswordAPI
	subscriptions SubscriptionAPI
	webhookSecret string
	logger        logging.Logger
}

func NewHandler(auth AuthAPI, identity IdentityAPI, password PasswordAPI, subscriptions SubscriptionAPI, webhookSecret string, logger logging.Logger) *Handler {
	return &Handler{
		auth:          auth,
		identity:      identity,
		password:      password,
		subscriptions: subscriptions,
		webhookSecret: webhookSecret,
		logger:        logger.With("module", "httpapi"),
	}
}

// Router builds the chi route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
		requestLogger(h.logger),
	)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	authed := requireAuth(h.auth, h.logger)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/anonymous", h.anonymous)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Post("/apple", h.signInApple)
		r.Post("/google", h.signInGoogle)
		r.Post("/password/forgot", h.forgotPassword)
		r.Post("/password/verify-token", h.verifyResetToken)
		r.Post("/password/reset", h.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(authed)
			r.Get("/me", h.me)
			r.Post("/upgrade", h.upgrade)
			r.Post("/link/apple", h.linkApple)
			r.Post("/link/google", h.linkGoogle)
			r.Post("/unlink", h.unlink)
			r.Post("/password/change", h.changePassword)
		})
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.With(requireWebhookSecret(h.webhookSecret, h.logger)).Post("/webhook", h.webhook)

		r.Group(func(r chi.Router) {
			r.Use(authed)
			r.Get("/", h.getSubscription)
			r.Post("/trial", h.startTrial)
			r.Post("/validate", h.validateReceipt)
			r.Post("/restore", h.restorePurchases)
			r.Post("/cancel", h.cancelSubscription)
			r.Get("/access/{featureID}", h.checkAccess)
		})
	})

	return r
}

// currentAccount returns the account id set by requireAuth. Routes that
// call it are always mounted behind requireAuth.
func currentAccount(r *http.Request) string {
	id, _ := AccountID(r.Context())
	return id
}
