package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlinSafawi19/SafawiNet-sub002/internal/cache"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/config"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/observability/logging"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/observability/metrics"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/observability/middleware"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/realtime"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/security"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/service"
	impl "github.com/AlinSafawi19/SafawiNet-sub002/internal/service/impl"
	"github.com/AlinSafawi19/SafawiNet-sub002/internal/store"
	httpx "github.com/AlinSafawi19/SafawiNet-sub002/internal/transport/http"
	"github.com/AlinSafawi19/SafawiNet-sub002/pkg/db"
)

func main() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "auth",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	logger.Info("starting service")

	cfg := config.Load()
	metrics.MustRegister("auth")

	// 1) DB
	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: env == "dev"})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	st := store.New(gdb)

	// 2) Redis (lockout counters, session cache, challenges, broadcast)
	rc := cache.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rc.Close()

	sessionCache := cache.NewSessionCache(rc, cfg.SessionCacheTTL)
	lockout := cache.NewLockout(rc, cache.LockoutConfig{
		Threshold: cfg.LockoutThreshold,
		Window:    cfg.LockoutWindow,
		Duration:  cfg.LockoutDuration,
	})
	challenges := cache.NewChallengeStore(rc, cfg.ChallengeTTL)

	// 3) Services
	sec, err := security.New([]byte(cfg.EncryptionKey))
	if err != nil {
		logger.Error("security init", "error", err)
		os.Exit(1)
	}

	ts := impl.NewTokenServiceHS256(impl.TokenConfig{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		SigningKey: []byte(cfg.SigningKey),
	}, st, sec, sessionCache)

	hub := realtime.NewHub(rc)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go hub.Run(ctx)

	email := impl.NewLogEmailSender()

	totp := impl.NewTwoFactorTOTP(st, sec, cfg.Issuer, ts, hub)
	emailCode := impl.NewTwoFactorEmail(st, sec, challenges, email, ts, hub)
	variants := []service.TwoFactorService{totp, emailCode}

	as := impl.NewAuthServiceImpl(st, sec, ts, email, hub, lockout, sessionCache, variants, impl.AuthConfig{
		VerificationTTL: cfg.VerificationTTL,
		ResetTTL:        cfg.ResetTTL,
		AppURL:          cfg.AppURL,
	})
	ss := impl.NewSessionServiceImpl(st, sessionCache, ts, hub)
	rs := impl.NewRecoveryServiceImpl(st, sec, email, impl.RecoveryConfig{
		TokenTTL:        cfg.RecoveryTokenTTL,
		VerificationTTL: cfg.VerificationTTL,
		AppURL:          cfg.AppURL,
	})

	// 4) HTTP router
	mux := httpx.NewRouter(httpx.Deps{
		Auth:      as,
		Tokens:    ts,
		TwoFactor: map[string]service.TwoFactorService{totp.Method(): totp, emailCode.Method(): emailCode},
		Sessions:  ss,
		Recovery:  rs,
		Notifier:  hub,
		Store:     st,
		WS:        realtime.NewHandler(hub, ts),
	})

	handler := middleware.WithRequestAndTrace(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("auth service listening", "addr", srv.Addr, "issuer", cfg.Issuer)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
