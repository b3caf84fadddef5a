package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

const maxBodyBytes = 1 << 20

// CookieConfig controls the refresh-token cookie attributes.
type CookieConfig struct {
	Path   string
	Secure bool
}

// Handler exposes HTTP endpoints for signup, login, refresh, logout and the
// authenticated identity.
type Handler struct {
	svc    *SessionService
	logger *zap.SugaredLogger
	cookie CookieConfig
}

// NewHandler uses cookie as given; config.FromEnv supplies the defaults.
func NewHandler(svc *SessionService, logger *zap.SugaredLogger, cookie CookieConfig) *Handler {
	return &Handler{svc: svc, logger: logger, cookie: cookie}
}

// Response is the JSON envelope of every auth endpoint.
type Response struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
	Data        any    `json:"data,omitempty"`
}

// SignupRequest request body for signup endpoint.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.svc.Signup(r.Context(), req.Name, req.Email, req.Password)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusCreated, Response{Success: true, Message: "User registered successfully."})
	case errors.Is(err, ErrValidation):
		h.fail(w, http.StatusBadRequest, "All fields are required.")
	case errors.Is(err, ErrConflict):
		// 401 rather than 409 is what existing clients expect
		h.fail(w, http.StatusUnauthorized, fmt.Sprintf("User with this email %s already exists.", normalizeEmail(req.Email)))
	default:
		h.internalError(w, "signup", err)
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, err := h.svc.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		h.setRefreshCookie(w, pair.RefreshToken)
		h.writeJSON(w, http.StatusOK, Response{Success: true, Message: "Login successful.", AccessToken: pair.AccessToken})
	case errors.Is(err, ErrValidation):
		h.fail(w, http.StatusBadRequest, "All fields are required.")
	case errors.Is(err, ErrInvalidCredentials):
		h.logger.Debugw("login failed", "err", err)
		h.fail(w, http.StatusUnauthorized, "Invalid email or password.")
	default:
		h.internalError(w, "login", err)
	}
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Logout(r.Context(), h.refreshCookie(r))
	switch {
	case err == nil:
		h.clearRefreshCookie(w)
		h.writeJSON(w, http.StatusOK, Response{Success: true, Message: "Logout successful."})
	case errors.Is(err, ErrMissingToken):
		h.fail(w, http.StatusBadRequest, "Refresh token not found.")
	default:
		h.internalError(w, "logout", err)
	}
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	pair, err := h.svc.Refresh(r.Context(), h.refreshCookie(r))
	switch {
	case err == nil:
		if pair.IssuedRefresh {
			h.setRefreshCookie(w, pair.RefreshToken)
		}
		h.writeJSON(w, http.StatusOK, Response{Success: true, AccessToken: pair.AccessToken})
	case errors.Is(err, ErrMissingToken):
		h.fail(w, http.StatusUnauthorized, "Refresh token not found.")
	case errors.Is(err, ErrInvalidToken):
		h.fail(w, http.StatusForbidden, "Invalid or expired refresh token.")
	default:
		h.internalError(w, "refresh", err)
	}
}

// Me returns the identity decoded by the auth gate.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.fail(w, http.StatusUnauthorized, "Authorization header missing.")
		return
	}
	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: claims})
}

func (h *Handler) refreshCookie(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     h.cookie.Path,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     h.cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.fail(w, http.StatusBadRequest, "Invalid request body.")
		return false
	}
	return true
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Errorw(op+" failed", "err", err)
	h.fail(w, http.StatusInternalServerError, "Internal Server Error")
}

func (h *Handler) fail(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, Response{Success: false, Message: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
