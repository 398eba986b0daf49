package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/wellkeeper/internal/common"
	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
)

type registerRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
}

type loginRequest struct {
	Email    string             `json:"email"`
	Password string             `json:"password"`
	Device   *models.DeviceInfo `json:"device"`
}

type anonymousRequest struct {
	DeviceID string `json:"deviceId"`
	Platform string `json:"platform"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type appleRequest struct {
	IDToken string  `json:"idToken"`
	Name    *string `json:"name"`
}

type googleRequest struct {
	IDToken  string `json:"idToken"`
	Platform string `json:"platform"`
}

type unlinkRequest struct {
	Provider string `json:"provider"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	User *models.Profile `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	res, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password, req.Device)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) anonymous(w http.ResponseWriter, r *http.Request) {
	var req anonymousRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	if req.DeviceID == "" {
		writeError(r.Context(), w, h.logger, common.BadRequest("deviceId is required"))
		return
	}
	res, err := h.auth.RegisterAnonymous(r.Context(), req.DeviceID, req.Platform)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) upgrade(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	profile, err := h.auth.UpgradeAnonymous(r.Context(), currentAccount(r), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: profile})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	pair, err := h.auth.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.auth.Me(r.Context(), currentAccount(r))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: profile})
}

func (h *Handler) signInApple(w http.ResponseWriter, r *http.Request) {
	var req appleRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	res, err := h.identity.SignInWithApple(r.Context(), req.IDToken, req.Name)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) signInGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	res, err := h.identity.SignInWithGoogle(r.Context(), req.IDToken, req.Platform)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) linkApple(w http.ResponseWriter, r *http.Request) {
	var req appleRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	profile, err := h.identity.LinkApple(r.Context(), currentAccount(r), req.IDToken)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: profile})
}

func (h *Handler) linkGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	profile, err := h.identity.LinkGoogle(r.Context(), currentAccount(r), req.IDToken, req.Platform)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: profile})
}

func (h *Handler) unlink(w http.ResponseWriter, r *http.Request) {
	var req unlinkRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	profile, err := h.identity.UnlinkProvider(r.Context(), currentAccount(r), models.Provider(req.Provider))
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: profile})
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: h.password.RequestReset(r.Context(), req.Email)})
}

func (h *Handler) verifyResetToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	check, err := h.password.VerifyToken(r.Context(), req.Token)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	if err := h.password.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset"})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changeRequest
	if err := decode(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	if err := h.password.ChangePassword(r.Context(), currentAccount(r), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password changed"})
}
