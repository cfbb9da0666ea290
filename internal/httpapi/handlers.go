package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"

	authsystem "github.com/neecatt/UserAuthSystem"
	"github.com/neecatt/UserAuthSystem/middleware"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type challengeRequest struct {
	Challenge string `json:"challenge"`
	Code      string `json:"code"`
}

type assertionRequest struct {
	Assertion string `json:"assertion"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type enrollmentResponse struct {
	Secret        string `json:"secret"`
	EnrollmentURI string `json:"enrollmentUri"`
	QRCode        string `json:"qrCode"`
}

type meResponse struct {
	*authsystem.User
	TwoFactorVerified bool `json:"twoFactorVerified"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// register handles POST /v1/register
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateEmail(req.Email); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validatePassword(req.Password); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.engine.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// login handles POST /v1/login
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeErrorMessage(w, http.StatusBadRequest, "email and password are required")
		return
	}

	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// completeLoginChallenge handles POST /v1/login/2fa/verify
func (h *Handler) completeLoginChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Challenge == "" {
		writeErrorMessage(w, http.StatusBadRequest, "challenge is required")
		return
	}
	if err := validateCode(req.Code); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	assertion, err := h.engine.CompleteLoginChallenge(r.Context(), req.Challenge, req.Code)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assertion)
}

// loginWithTwoFactor handles POST /v1/login/2fa
func (h *Handler) loginWithTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req assertionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Assertion == "" {
		writeErrorMessage(w, http.StatusBadRequest, "assertion is required")
		return
	}

	res, err := h.engine.LoginWithTwoFactor(r.Context(), req.Assertion)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// me handles GET /v1/me
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	user, err := h.engine.GetUser(r.Context(), identity.UserID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: user, TwoFactorVerified: identity.TwoFactorVerified})
}

// changePassword handles POST /v1/password
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" {
		writeErrorMessage(w, http.StatusBadRequest, "currentPassword is required")
		return
	}
	if err := validatePassword(req.NewPassword); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.engine.ChangePassword(r.Context(), identity.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// beginEnrollment handles POST /v1/2fa/enroll
func (h *Handler) beginEnrollment(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	enrollment, err := h.engine.BeginTwoFactorEnrollment(r.Context(), identity.UserID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollmentResponse{
		Secret:        enrollment.Secret,
		EnrollmentURI: enrollment.EnrollmentURI,
		QRCode:        pngDataURL(enrollment.QRCodePNG),
	})
}

// confirmEnrollment handles POST /v1/2fa/confirm
func (h *Handler) confirmEnrollment(w http.ResponseWriter, r *http.Request) {
	h.withCode(w, r, func(userID, code string) error {
		return h.engine.ConfirmTwoFactorEnrollment(r.Context(), userID, code)
	})
}

// disableTwoFactor handles POST /v1/2fa/disable
func (h *Handler) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	h.withCode(w, r, func(userID, code string) error {
		return h.engine.DisableTwoFactor(r.Context(), userID, code)
	})
}

// verifyTwoFactor handles POST /v1/2fa/verify
func (h *Handler) verifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateCode(req.Code); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	assertion, err := h.engine.VerifyTwoFactor(r.Context(), identity.UserID, req.Code)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assertion)
}

// withCode runs fn for the authenticated user with the code from the body and
// answers 204 on success.
func (h *Handler) withCode(w http.ResponseWriter, r *http.Request, fn func(userID, code string) error) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := validateCode(req.Code); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := fn(identity.UserID, req.Code); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(w, r, dest); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	if errors.Is(err, authsystem.ErrBackendUnavailable) {
		w.Header().Set("Retry-After", retryAfter)
	}
	writeErrorMessage(w, status, message)
}

const retryAfter = "5"

func pngDataURL(png []byte) string {
	if len(png) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
