package impl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/cache"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/domain"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/dto"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/observability/metrics"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/store"

	"github.com/google/uuid"
)

// SessionServiceImpl serves the session-management surface and the per-request
// validation check that every authenticated call runs through.
type SessionServiceImpl struct {
	Sessions sessionStore
	Cache    *cache.SessionCache
	TService service.TokenService
	Notifier service.Notifier
}

type sessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSession, error)
	GetByFamily(ctx context.Context, userID, familyID uuid.UUID) (*domain.UserSession, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.UserSession, error)
	TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error
}

func NewSessionServiceImpl(st *store.Store, sessionCache *cache.SessionCache, ts service.TokenService, n service.Notifier) *SessionServiceImpl {
	return &SessionServiceImpl{
		Sessions: st.Sessions(),
		Cache:    sessionCache,
		TService: ts,
		Notifier: n,
	}
}

var _ service.SessionService = (*SessionServiceImpl)(nil)

func (s *SessionServiceImpl) List(ctx context.Context, userID domain.UserID) (*dto.SessionListResponse, error) {
	sessions, err := s.Sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &dto.SessionListResponse{Sessions: make([]dto.SessionInfo, 0, len(sessions))}
	for _, sess := range sessions {
		out.Sessions = append(out.Sessions, dto.SessionInfo{
			ID:           sess.ID.String(),
			DeviceType:   sess.DeviceType,
			Browser:      sess.Browser,
			OS:           sess.OS,
			IP:           sess.IP,
			Location:     sess.Location,
			IsCurrent:    sess.IsCurrent,
			LastActiveAt: sess.LastActiveAt,
			CreatedAt:    sess.CreatedAt,
		})
	}
	return out, nil
}

// Revoke kills one session. The linked refresh family dies with it so the
// revoked device cannot quietly refresh its way back in.
func (s *SessionServiceImpl) Revoke(ctx context.Context, userID domain.UserID, sessionID domain.SessionID) error {
	sess, err := s.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	if sess.UserID != userID {
		return domain.ErrNotFound
	}
	if err := s.TService.RevokeFamily(ctx, userID, sess.RefreshFamilyID); err != nil {
		return err
	}
	metrics.SessionsRevokedTotal.Inc()
	s.Notifier.ForceLogout(userID, "session_revoked", "This session was signed out from another device.")
	return nil
}

func (s *SessionServiceImpl) RevokeAll(ctx context.Context, userID domain.UserID) (int64, error) {
	n, err := s.TService.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.Notifier.ForceLogout(userID, "sessions_revoked", "All sessions were signed out.")
	return n, nil
}

// Validate is the cache-first liveness check. Policy is soft-fail: only a
// session recorded as revoked rejects; a record that cannot be found or an
// unreachable store logs and lets the request proceed on the strength of the
// still-valid access token.
func (s *SessionServiceImpl) Validate(ctx context.Context, userID domain.UserID, familyID domain.FamilyID) error {
	filled := false
	entry, err := s.Cache.GetOrFill(ctx, userID, familyID, func(ctx context.Context) (*cache.SessionEntry, error) {
		filled = true
		metrics.SessionCacheTotal.WithLabelValues("miss").Inc()
		sess, err := s.Sessions.GetByFamily(ctx, userID, familyID)
		if err != nil {
			return nil, err
		}
		if sess.RevokedAt != nil {
			return nil, domain.ErrTokenInvalid
		}
		return &cache.SessionEntry{
			SessionID:    sess.ID,
			UserID:       sess.UserID,
			FamilyID:     sess.RefreshFamilyID,
			IsCurrent:    sess.IsCurrent,
			LastActiveAt: sess.LastActiveAt,
		}, nil
	})
	switch {
	case errors.Is(err, domain.ErrTokenInvalid):
		metrics.SessionCacheTotal.WithLabelValues("revoked").Inc()
		return domain.ErrTokenInvalid
	case errors.Is(err, store.ErrRecordNotFound):
		slog.Warn("session record missing during validation",
			"user_id", userID, "family_id", familyID)
		return nil
	case err != nil:
		slog.Warn("session validation degraded", "error", err)
		return nil
	case entry == nil:
		return nil
	}
	if !filled {
		metrics.SessionCacheTotal.WithLabelValues("hit").Inc()
	}

	// Activity bump happens off the request path.
	sessionID := entry.SessionID
	go func() {
		bctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Sessions.TouchLastActive(bctx, sessionID, time.Now().UTC()); err != nil {
			slog.Debug("session activity bump failed", "session_id", sessionID, "error", err)
		}
	}()
	return nil
}
