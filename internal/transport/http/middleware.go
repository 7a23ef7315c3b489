package http

import (
	"net/http"
	"strings"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
)

// authGuard authenticates requests: a bearer access token must verify, and
// when the token references a refresh family the session liveness check runs
// too. Tokens without a family reference skip session validation entirely.
type authGuard struct {
	tokens   service.TokenService
	sessions service.SessionService
}

type authedHandler func(w http.ResponseWriter, r *http.Request, id *service.AccessIdentity)

func (g authGuard) require(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		identity, err := g.tokens.VerifyAccess(r.Context(), raw)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if identity.FamilyID != nil && g.sessions != nil {
			if err := g.sessions.Validate(r.Context(), identity.UserID, *identity.FamilyID); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r, identity)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
