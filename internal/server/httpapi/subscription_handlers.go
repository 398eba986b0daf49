package httpapi

import (
	"io"
	"net/http"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/server/gateway"
	"github.com/go-chi/chi/v5"
)

var errMalformedWebhook = common.BadRequest("Malformed webhook payload")

type trialRequest struct {
	Days int `json:"days"`
}

type validateRequest struct {
	Receipt   string  `json:"receipt"`
	Platform  string  `json:"platform"`
	ProductID *string `json:"productId"`
}

type accessResponse struct {
	FeatureID string `json:"featureId"`
	HasAccess bool   `json:"hasAccess"`
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := h.subscriptions.GetSubscription(r.Context(), currentAccount(r))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) startTrial(w http.ResponseWriter, r *http.Request) {
	var req trialRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	sub, err := h.subscriptions.StartTrial(r.Context(), currentAccount(r), req.Days)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) validateReceipt(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	sub, err := h.subscriptions.ValidateReceipt(r.Context(), currentAccount(r), req.Receipt, req.Platform, req.ProductID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) restorePurchases(w http.ResponseWriter, r *http.Request) {
	res, err := h.subscriptions.RestorePurchases(r.Context(), currentAccount(r))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.CancelSubscription(r.Context(), currentAccount(r))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) checkAccess(w http.ResponseWriter, r *http.Request) {
	featureID := chi.URLParam(r, "featureID")
	ok, err := h.subscriptions.CheckFeatureAccess(r.Context(), currentAccount(r), featureID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, accessResponse{FeatureID: featureID, HasAccess: ok})
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(r.Context(), w, h.logger, errInvalidBody)
		return
	}
	ev, err := gateway.ParseWebhook(body)
	if err != nil {
		h.logger.Warn(r.Context(), "malformed webhook", "error", err)
		writeError(r.Context(), w, h.logger, errMalformedWebhook)
		return
	}
	res, err := h.subscriptions.HandleWebhook(r.Context(), ev)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
