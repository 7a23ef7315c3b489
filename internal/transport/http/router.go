package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/netutil"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
	impl "github.com/AlinSafawi19/SafawiNet-sub002/internal/service/impl"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/store"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the router mounts.
type Deps struct {
	Auth      service.AuthService
	Tokens    service.TokenService
	TwoFactor map[string]service.TwoFactorService
	Sessions  service.SessionService
	Recovery  service.RecoveryService
	Notifier  service.Notifier
	Store     *store.Store
	WS        http.Handler
}

func clientIP(r *http.Request) string {
	// If you put the service behind a proxy later, these will matter.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// XFF can be a list: client, proxy1, proxy2...
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if normalized, ok := netutil.NormalizeIP(ip); ok {
			return normalized
		}
	}
	if xr := r.Header.Get("X-Real-IP"); xr != "" {
		if normalized, ok := netutil.NormalizeIP(xr); ok {
			return normalized
		}
	}
	// Fallback: split host:port
	if normalized, ok := netutil.NormalizeIP(r.RemoteAddr); ok {
		return normalized
	}
	// Last resort: give back whatever we have (may be empty)
	return r.RemoteAddr
}

func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	guard := authGuard{tokens: d.Tokens, sessions: d.Sessions}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	if d.WS != nil {
		mux.Handle("/v1/ws", d.WS)
	}

	mux.HandleFunc("POST /v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var req dto.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		res, err := d.Auth.Register(r.Context(), req, clientIP(r), r.UserAgent())
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	})

	mux.HandleFunc("POST /v1/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		var req dto.VerifyEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		tokens, err := d.Auth.VerifyEmail(r.Context(), req.Token, clientIP(r), r.UserAgent())
		if err != nil {
			writeAuthError(w, err)
			return
		}
		if tokens == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, tokens)
	})

	mux.HandleFunc("POST /v1/auth/verify/resend", func(w http.ResponseWriter, r *http.Request) {
		var req dto.ResendVerificationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := d.Auth.ResendVerification(r.Context(), req.Email); err != nil {
			writeAuthError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req dto.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		res, err := d.Auth.Login(r.Context(), req, clientIP(r), r.UserAgent())
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("POST /v1/auth/2fa/login", func(w http.ResponseWriter, r *http.Request) {
		var req dto.TwoFactorLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		tokens, err := d.Auth.LoginTwoFactor(r.Context(), req, clientIP(r), r.UserAgent())
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tokens)
	})

	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req dto.RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		res, err := d.Tokens.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("POST /v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		var req dto.LogoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := d.Auth.Logout(r.Context(), req.RefreshToken); err != nil {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /v1/auth/forgot-password", func(w http.ResponseWriter, r *http.Request) {
		var req dto.ForgotPasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := d.Auth.ForgotPassword(r.Context(), req.Email); err != nil {
			writeAuthError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("POST /v1/auth/reset-password", func(w http.ResponseWriter, r *http.Request) {
		var req dto.ResetPasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := d.Auth.ResetPassword(r.Context(), req); err != nil {
			writeAuthError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.Handle("POST /v1/auth/password/change", guard.require(func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity) {
		var req dto.ChangePasswordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := d.Auth.ChangePassword(r.Context(), id.UserID.String(), req); err != nil {
			writeAuthError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	// ----- Two-factor management (authenticated) -----

	mux.Handle("POST /v1/auth/2fa/setup", guard.require(func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity) {
		var req dto.TwoFactorSetupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		variant, ok := d.TwoFactor[defaultMethod(req.Method)]
		if !ok {
			http.Error(w, "unknown method", http.StatusBadRequest)
			return
		}
		user, err := d.Store.Users().GetByID(r.Context(), id.UserID)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		res, err := variant.Setup(r.Context(), user)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}))

	mux.Handle("POST /v1/auth/2fa/enable", guard.require(func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity) {
		var req dto.TwoFactorEnableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		variant, ok := d.TwoFactor[defaultMethod(req.Method)]
		if !ok {
			http.Error(w, "unknown method", http.StatusBadRequest)
			return
		}
		user, err := d.Store.Users().GetByID(r.Context(), id.UserID)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := variant.Enable(r.Context(), user, req.Code); err != nil {
			writeAuthError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.Handle("POST /v1/auth/2fa/disable", guard.require(func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity) {
		var req dto.TwoFactorDisableRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		user, err := d.Store.Users().GetByID(r.Context(), id.UserID)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		variant, ok := d.TwoFactor[user.TwoFactorMethod]
		if !ok {
			writeAuthError(w, domain.ErrTwoFactorDisabled)
			return
		}
		proof := req.Password
		if user.TwoFactorMethod == service.TwoFactorEmail {
			proof = req.Code
		}
		if err := variant.Disable(r.Context(), user, proof); err != nil {
			writeAuthError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	// ----- Session management (authenticated) -----

	mux.Handle("GET /v1/sessions", guard.require(func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity) {
		res, err := d.Sessions.List(r.Context(), id.UserID)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}))

	mux.Handle("DELETE /v1/sessions", guard.require(func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity) {
		n, err := d.Sessions.RevokeAll(r.Context(), id.UserID)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"revoked": n})
	}))

	mux.Handle("DELETE /v1/sessions/{id}", guard.require(func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity) {
		sessionID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		if err := d.Sessions.Revoke(r.Context(), id.UserID, sessionID); err != nil {
			writeAuthError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	// ----- Account recovery -----

	mux.HandleFunc("POST /v1/auth/recovery/request", func(w http.ResponseWriter, r *http.Request) {
		var req dto.RecoveryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := d.Recovery.Request(r.Context(), req.RecoveryEmail); err != nil {
			writeAuthError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.Handle("PUT /v1/auth/recovery/email", guard.require(func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity) {
		var req dto.UpdateRecoveryEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := d.Recovery.UpdateRecoveryEmail(r.Context(), id.UserID, req.RecoveryEmail); err != nil {
			writeAuthError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.HandleFunc("POST /v1/auth/recovery/confirm", func(w http.ResponseWriter, r *http.Request) {
		var req dto.RecoveryConfirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		res, err := d.Recovery.Confirm(r.Context(), req)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	// ----- Admin -----

	mux.Handle("DELETE /v1/admin/users/{id}", guard.require(func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity) {
		if !containsRole(id.Roles, "admin") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		userID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}
		if _, err := d.Store.Users().GetByID(r.Context(), userID); err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		// Sessions die first so nothing refreshes while rows are deleted.
		if _, err := d.Tokens.RevokeAllForUser(r.Context(), userID); err != nil {
			writeAuthError(w, err)
			return
		}
		d.Notifier.ForceLogout(userID, "account_deleted", "Your account was deleted.")
		counts, err := d.Store.DeleteUserData(r.Context(), userID)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": counts})
	}))

	mux.Handle("POST /v1/admin/users/{id}/disable", guard.require(func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity) {
		if !containsRole(id.Roles, "admin") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		userID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}
		var req dto.SetUserDisabledRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if _, err := d.Store.Users().GetByID(r.Context(), userID); err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		// The flag flips first so a disabled account cannot log back in
		// between revocation and the flag landing.
		if err := d.Store.Users().SetDisabled(r.Context(), userID, req.Disabled); err != nil {
			writeAuthError(w, err)
			return
		}
		if req.Disabled {
			if _, err := d.Tokens.RevokeAllForUser(r.Context(), userID); err != nil {
				writeAuthError(w, err)
				return
			}
			d.Notifier.ForceLogout(userID, "account_disabled", "Your account was disabled.")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.Handle("POST /v1/admin/broadcast-logout", guard.require(func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity) {
		if !containsRole(id.Roles, "admin") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var req dto.BroadcastLogoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Reason == "" {
			req.Reason = "security_incident"
		}
		d.Notifier.GlobalLogout(req.Reason, req.Message)
		w.WriteHeader(http.StatusAccepted)
	}))

	return mux
}

func defaultMethod(m string) string {
	if m == "" {
		return service.TwoFactorTOTP
	}
	return m
}

func containsRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeAuthError maps domain errors onto the response taxonomy. Anything
// credential-shaped stays a generic 401 so responses never confirm whether
// an account exists.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUserDisabled):
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrAccountLocked):
		http.Error(w, "temporarily locked, try again later", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrDuplicateEmail):
		http.Error(w, "email already registered", http.StatusConflict)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrRateLimited):
		http.Error(w, "too many attempts", http.StatusTooManyRequests)
	case errors.Is(err, domain.ErrTokenInvalid),
		errors.Is(err, domain.ErrInvalidCode),
		errors.Is(err, domain.ErrTwoFactorDisabled),
		errors.Is(err, domain.ErrTwoFactorEnabled),
		errors.Is(err, impl.ErrEmptyEmail),
		errors.Is(err, impl.ErrEmptyPassword),
		errors.Is(err, impl.ErrEmptyCredential),
		errors.Is(err, impl.ErrPasswordLength),
		errors.Is(err, impl.ErrRecoveryIsPrimary):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
