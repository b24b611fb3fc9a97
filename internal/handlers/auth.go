package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cotidiano/api/internal/platform/auth"
	"github.com/cotidiano/api/internal/platform/httpx"
	"github.com/cotidiano/api/internal/services"
)

const maxAuthBodySize = 16 * 1024

// TokenIssuer mints session tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(identity auth.Identity) (string, error)
}

// AuthHandlers exposes registration, login, and the account self-service
// endpoints.
type AuthHandlers struct {
	authn        *auth.Authenticator
	users        services.UserService
	tokens       TokenIssuer
	loginLimiter rateLimiter
}

// AuthOption customises AuthHandlers construction.
type AuthOption func(*AuthHandlers)

// WithLoginRateLimit throttles login attempts per client IP.
func WithLoginRateLimit(limit int, window time.Duration) AuthOption {
	return func(h *AuthHandlers) {
		h.loginLimiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewAuthHandlers constructs the auth/account handler set.
func NewAuthHandlers(authn *auth.Authenticator, users services.UserService, tokens TokenIssuer, opts ...AuthOption) *AuthHandlers {
	h := &AuthHandlers{
		authn:  authn,
		users:  users,
		tokens: tokens,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// AuthRoutes registers the /auth endpoints.
func (h *AuthHandlers) AuthRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	if h.authn != nil {
		r.With(h.authn.RequireAuth()).Get("/me", h.me)
	}
}

// AccountRoutes registers the authenticated /account endpoints.
func (h *AuthHandlers) AccountRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/profile", h.me)
	r.Patch("/profile", h.updateProfile)
	r.Patch("/password", h.changePassword)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req registerRequest
	if err := decodeJSONBody(r, maxAuthBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Faltan campos", http.StatusBadRequest))
		return
	}

	_, err := h.users.Register(ctx, services.RegisterCommand{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Password: strings.TrimSpace(req.Password),
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"detail":  "Cuenta creada. Espera aprobacion.",
		"pending": true,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil || h.tokens == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.loginLimiter != nil && !h.loginLimiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "Demasiados intentos, proba mas tarde", http.StatusTooManyRequests))
		return
	}

	var req loginRequest
	if err := decodeJSONBody(r, maxAuthBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Email y contrasena son requeridos", http.StatusBadRequest))
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = strings.TrimSpace(req.Username)
	}
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Email y contrasena son requeridos", http.StatusBadRequest))
		return
	}

	user, err := h.users.Authenticate(ctx, services.LoginCommand{Email: email, Password: password})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	token, err := h.tokens.Issue(auth.Identity{
		UID:   user.ID,
		Email: user.Email,
		Role:  string(user.Role),
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("token_error", "failed to issue session token", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  buildUserPayload(user),
	})
}

func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	user, err := h.users.GetByID(ctx, identity.UID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"user": buildUserPayload(user)})
}

type updateProfileRequest struct {
	Name         *string          `json:"name"`
	Email        *string          `json:"email"`
	ProfilePhone *string          `json:"profilePhone"`
	Profile      *profileSection  `json:"profile"`
	Shipping     *shippingSection `json:"shipping"`
}

type profileSection struct {
	Phone *string `json:"phone"`
}

type shippingSection struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	City    *string `json:"city"`
	Zip     *string `json:"zip"`
	Phone   *string `json:"phone"`
}

func (h *AuthHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req updateProfileRequest
	if err := decodeJSONBody(r, maxAuthBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateProfileCommand{
		UserID: identity.UID,
		Name:   req.Name,
		Email:  req.Email,
	}
	// profilePhone overrides profile.phone, then shipping.phone wins last,
	// matching how the storefront merges its form sections.
	if req.Profile != nil && req.Profile.Phone != nil {
		cmd.Phone = req.Profile.Phone
	}
	if req.ProfilePhone != nil {
		cmd.Phone = req.ProfilePhone
	}
	if req.Shipping != nil {
		cmd.ShipName = req.Shipping.Name
		cmd.Address = req.Shipping.Address
		cmd.City = req.Shipping.City
		cmd.Zip = req.Shipping.Zip
		if req.Shipping.Phone != nil {
			cmd.Phone = req.Shipping.Phone
		}
	}

	user, err := h.users.UpdateProfile(ctx, cmd)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"user": buildUserPayload(user)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"newPassword"`
	NewPasswordAlt  string `json:"new_password"`
}

func (h *AuthHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req changePasswordRequest
	if err := decodeJSONBody(r, maxAuthBodySize, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Faltan campos", http.StatusBadRequest))
		return
	}

	current := strings.TrimSpace(req.CurrentPassword)
	if current == "" {
		current = strings.TrimSpace(req.OldPassword)
	}
	newPassword := strings.TrimSpace(req.NewPassword)
	if newPassword == "" {
		newPassword = strings.TrimSpace(req.NewPasswordAlt)
	}
	if current == "" || newPassword == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Faltan campos", http.StatusBadRequest))
		return
	}

	if err := h.users.ChangePassword(ctx, services.ChangePasswordCommand{
		UserID:          identity.UID,
		CurrentPassword: current,
		NewPassword:     newPassword,
	}); err != nil {
		writeUserError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"detail": "Contrasena actualizada"})
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrEmailTaken):
		httpx.WriteError(ctx, w, httpx.NewError("email_taken", "Email ya registrado", http.StatusConflict))
	case errors.Is(err, services.ErrAccountPending):
		httpx.WriteError(ctx, w, httpx.NewError("account_pending", "Cuenta pendiente de aprobacion", http.StatusForbidden))
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "Credenciales invalidas", http.StatusUnauthorized))
	case errors.Is(err, services.ErrWrongPassword):
		httpx.WriteError(ctx, w, httpx.NewError("wrong_password", "Contrasena actual incorrecta", http.StatusBadRequest))
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "Usuario no encontrado", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("user_error", "failed to process account request", http.StatusInternalServerError))
	}
}
