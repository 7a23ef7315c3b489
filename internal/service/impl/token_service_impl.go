package impl

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/cache"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/netutil"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/observability/metrics"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/observability/middleware"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/security"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ====== Config ======

type TokenConfig struct {
	Issuer     string
	Audience   string
	AccessTTL  time.Duration // e.g. 15 * time.Minute
	RefreshTTL time.Duration // e.g. 30 * 24h
	SigningKey []byte        // HS256 secret
}

// ====== Claims ======

type AccessClaims struct {
	// RID references the refresh-token family; absent on legacy tokens, in
	// which case per-request session validation is skipped.
	RID      string   `json:"rid,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Verified bool     `json:"ver"`
	jwt.RegisteredClaims
}

// ====== Service ======

// TokenServiceImpl mints HS256 access tokens and opaque refresh secrets.
// A refresh secret is random; only its SHA-256 hash is stored, on a
// RefreshSession row belonging to a token family. Rotation is strict
// single-use: the conditional update in the store guarantees that of two
// concurrent refreshes with the same secret exactly one succeeds.
// Stores are consumed through narrow interfaces so the rotation and
// reuse-detection paths run against in-memory fakes in tests.
type TokenServiceImpl struct {
	cfg      TokenConfig
	refresh  refreshStore
	userSess tokenSessionStore
	users    tokenUserStore
	sec      *security.Service
	sessions *cache.SessionCache
}

type refreshStore interface {
	Create(ctx context.Context, r *domain.RefreshSession) error
	Rotate(ctx context.Context, hash, nextHash []byte, expiresAt time.Time) (*domain.RefreshSession, error)
	GetByHash(ctx context.Context, hash []byte) (*domain.RefreshSession, error)
	DeactivateFamily(ctx context.Context, familyID uuid.UUID) (int64, error)
	DeactivateAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type tokenSessionStore interface {
	Create(ctx context.Context, sess *domain.UserSession) error
	GetByFamily(ctx context.Context, userID, familyID uuid.UUID) (*domain.UserSession, error)
	TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.UserSession, error)
	RevokeByFamily(ctx context.Context, familyID uuid.UUID, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
}

type tokenUserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

func NewTokenServiceHS256(cfg TokenConfig, st *store.Store, sec *security.Service, sessions *cache.SessionCache) *TokenServiceImpl {
	return &TokenServiceImpl{
		cfg:      cfg,
		refresh:  st.RefreshSessions(),
		userSess: st.Sessions(),
		users:    st.Users(),
		sec:      sec,
		sessions: sessions,
	}
}

var _ service.TokenService = (*TokenServiceImpl)(nil)

// Issue opens a new token family: one RefreshSession generation, one
// UserSession row for the sessions UI, a warm cache entry, and a signed
// access/refresh pair.
func (t *TokenServiceImpl) Issue(ctx context.Context, user *domain.User, ip, ua string) (*dto.TokenResponse, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("issue", result).Inc()
	}()
	ip = normalizeIP(ip)
	ua = netutil.TruncateUserAgent(ua)
	now := time.Now().UTC()

	secret, err := t.sec.NewOpaqueToken()
	if err != nil {
		result = "failure"
		return nil, err
	}

	rs := &domain.RefreshSession{
		ID:         uuid.New(),
		FamilyID:   uuid.New(),
		UserID:     user.ID,
		SecretHash: t.sec.HashToken(secret),
		ExpiresAt:  now.Add(t.cfg.RefreshTTL),
		CreatedAt:  now,
	}
	if err := t.refresh.Create(ctx, rs); err != nil {
		result = "failure"
		return nil, err
	}

	device := netutil.ParseUserAgent(ua)
	sess := &domain.UserSession{
		ID:              uuid.New(),
		UserID:          user.ID,
		RefreshFamilyID: rs.FamilyID,
		DeviceType:      device.Type,
		Browser:         device.Browser,
		OS:              device.OS,
		IP:              ip,
		IsCurrent:       true,
		LastActiveAt:    now,
		CreatedAt:       now,
	}
	if err := t.userSess.Create(ctx, sess); err != nil {
		result = "failure"
		return nil, err
	}

	if err := t.sessions.Set(ctx, &cache.SessionEntry{
		SessionID:    sess.ID,
		UserID:       user.ID,
		FamilyID:     rs.FamilyID,
		IsCurrent:    true,
		LastActiveAt: now,
	}); err != nil {
		slog.Warn("session cache warm failed", "user_id", user.ID, "error", err)
	}

	access, err := t.signAccess(user, rs.FamilyID, now)
	if err != nil {
		result = "failure"
		return nil, err
	}

	reqID := middleware.RequestIDFromContext(ctx)
	slog.Info("issued tokens", "session_id", sess.ID, "user_id", user.ID, "family_id", rs.FamilyID, "request_id", reqID)

	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: secret,
		ExpiresIn:    int64(t.cfg.AccessTTL.Seconds()),
	}, nil
}

// Refresh exchanges a refresh secret exactly once. Presenting the hash of an
// already-rotated generation is treated as a theft signal: the whole family
// is revoked before the caller gets the generic invalid-token error.
func (t *TokenServiceImpl) Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("refresh", result).Inc()
	}()
	now := time.Now().UTC()

	if strings.TrimSpace(refreshToken) == "" {
		result = "failure"
		return nil, domain.ErrTokenInvalid
	}
	hash := t.sec.HashToken(refreshToken)

	nextSecret, err := t.sec.NewOpaqueToken()
	if err != nil {
		result = "failure"
		return nil, err
	}

	next, err := t.refresh.Rotate(ctx, hash, t.sec.HashToken(nextSecret), now.Add(t.cfg.RefreshTTL))
	if err != nil {
		result = "failure"
		if errors.Is(err, store.ErrRecordNotFound) {
			t.handleStaleHash(ctx, hash)
			return nil, domain.ErrTokenInvalid
		}
		return nil, err
	}

	user, err := t.users.GetByID(ctx, next.UserID)
	if err != nil {
		result = "failure"
		return nil, domain.ErrTokenInvalid
	}

	access, err := t.signAccess(user, next.FamilyID, now)
	if err != nil {
		result = "failure"
		return nil, err
	}

	// Activity bump is fire-and-forget; never blocks the response.
	go func(userID, familyID uuid.UUID) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sess, err := t.userSess.GetByFamily(ctx, userID, familyID)
		if err != nil {
			return
		}
		_ = t.userSess.TouchLastActive(ctx, sess.ID, time.Now().UTC())
	}(next.UserID, next.FamilyID)

	reqID := middleware.RequestIDFromContext(ctx)
	slog.Info("refreshed tokens", "user_id", next.UserID, "family_id", next.FamilyID, "request_id", reqID)

	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: nextSecret,
		ExpiresIn:    int64(t.cfg.AccessTTL.Seconds()),
	}, nil
}

// handleStaleHash revokes the family when the presented hash belongs to a
// rotated or expired generation. An unknown hash is just noise.
func (t *TokenServiceImpl) handleStaleHash(ctx context.Context, hash []byte) {
	stale, err := t.refresh.GetByHash(ctx, hash)
	if err != nil {
		return
	}
	metrics.RefreshReuseTotal.Inc()
	slog.Warn("refresh token reuse detected, revoking family",
		"user_id", stale.UserID, "family_id", stale.FamilyID)
	if err := t.RevokeFamily(ctx, stale.UserID, stale.FamilyID); err != nil {
		slog.Error("family revocation after reuse failed", "family_id", stale.FamilyID, "error", err)
	}
}

func (t *TokenServiceImpl) VerifyAccess(ctx context.Context, accessToken string) (*service.AccessIdentity, error) {
	claims := &AccessClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	tok, err := parser.ParseWithClaims(accessToken, claims, func(token *jwt.Token) (interface{}, error) {
		return t.cfg.SigningKey, nil
	})
	if err != nil || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	if claims.Issuer != t.cfg.Issuer {
		return nil, domain.ErrTokenInvalid
	}
	if !containsAudience(claims.Audience, t.cfg.Audience) {
		return nil, domain.ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	identity := &service.AccessIdentity{
		UserID:   userID,
		Roles:    claims.Roles,
		Verified: claims.Verified,
	}
	if claims.RID != "" {
		familyID, err := uuid.Parse(claims.RID)
		if err != nil {
			return nil, domain.ErrTokenInvalid
		}
		identity.FamilyID = &familyID
	}
	return identity, nil
}

func (t *TokenServiceImpl) RevokeFamily(ctx context.Context, userID domain.UserID, familyID domain.FamilyID) error {
	now := time.Now().UTC()
	if _, err := t.refresh.DeactivateFamily(ctx, familyID); err != nil {
		return err
	}
	if err := t.userSess.RevokeByFamily(ctx, familyID, now); err != nil {
		return err
	}
	if err := t.sessions.Delete(ctx, userID, familyID); err != nil {
		slog.Warn("session cache invalidation failed", "family_id", familyID, "error", err)
	}
	metrics.SessionsRevokedTotal.Add(1)
	return nil
}

// RevokeAllForUser deactivates every refresh family and session for the user.
// Session revocation on security events is mandatory, so store errors
// propagate; only cache cleanup is best-effort.
func (t *TokenServiceImpl) RevokeAllForUser(ctx context.Context, userID domain.UserID) (int64, error) {
	now := time.Now().UTC()

	sessions, err := t.userSess.ListForUser(ctx, userID)
	if err == nil {
		for _, s := range sessions {
			if cerr := t.sessions.Delete(ctx, userID, s.RefreshFamilyID); cerr != nil {
				slog.Warn("session cache invalidation failed", "session_id", s.ID, "error", cerr)
			}
		}
	}

	revoked, err := t.refresh.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if _, err := t.userSess.RevokeAllForUser(ctx, userID, now); err != nil {
		return revoked, err
	}
	metrics.SessionsRevokedTotal.Add(float64(revoked))
	return revoked, nil
}

// ====== Helpers ======

func (t *TokenServiceImpl) signAccess(user *domain.User, familyID uuid.UUID, now time.Time) (string, error) {
	claims := AccessClaims{
		RID:      familyID.String(),
		Roles:    user.Roles,
		Verified: user.IsVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.cfg.SigningKey)
}

func containsAudience(aud jwt.ClaimStrings, expected string) bool {
	for _, a := range aud {
		if a == expected {
			return true
		}
	}
	return false
}

func normalizeIP(ip string) string {
	if normalized, ok := netutil.NormalizeIP(ip); ok {
		return normalized
	}
	return strings.TrimSpace(ip)
}
