// Package app собирает HTTP сервер: хранилище, хаб, handlers и middleware.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/adminsync/internal/clock"
	"github.com/iudanet/adminsync/internal/crypto"
	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/registry"
	"github.com/iudanet/adminsync/internal/server/config"
	"github.com/iudanet/adminsync/internal/server/handlers"
	"github.com/iudanet/adminsync/internal/server/hub"
	"github.com/iudanet/adminsync/internal/server/middleware"
	"github.com/iudanet/adminsync/internal/server/storage"
	"github.com/iudanet/adminsync/internal/server/storage/sqlite"
	"github.com/iudanet/adminsync/internal/validation"
)

const (
	healthPath        = "/api/v1/health"
	readHeaderTimeout = 10 * time.Second
	rateWindow        = time.Minute
)

// App собранный сервер
type App struct {
	cfg           *config.Config
	logger        *slog.Logger
	store         *sqlite.Storage
	hub           *hub.Hub
	loginLimiter  *middleware.RateLimiter
	publicLimiter *middleware.RateLimiter
	handler       http.Handler
}

// New открывает хранилище, создает администратора из конфигурации и собирает маршруты
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	reg, err := registry.Load(cfg.TypesFile)
	if err != nil {
		return nil, fmt.Errorf("load entity types: %w", err)
	}

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	if err := bootstrapAdmin(ctx, store, cfg, logger); err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &App{
		cfg:           cfg,
		logger:        logger,
		store:         store,
		hub:           hub.New(cfg.RoomNames(), logger),
		loginLimiter:  middleware.NewRateLimiter(cfg.LoginRate, rateWindow, logger),
		publicLimiter: middleware.NewRateLimiter(cfg.PublicRate, rateWindow, logger),
	}
	a.handler = a.routes(reg, clock.New())

	return a, nil
}

func (a *App) routes(reg *registry.Registry, clk *clock.Clock) http.Handler {
	jwtConfig := handlers.JWTConfig{
		Secret:         []byte(a.cfg.JWTSecret),
		AccessTokenTTL: a.cfg.AccessTokenTTL,
	}

	authHandler := handlers.NewAuthHandler(a.logger, a.store, jwtConfig)
	entityHandler := handlers.NewEntityHandler(a.logger, a.store, reg, clk)
	publicHandler := handlers.NewPublicHandler(a.logger, a.store, a.hub, clk)
	wsHandler := handlers.NewWSHandler(a.logger, a.hub)
	healthHandler := handlers.NewHealthHandler(a.logger, a.hub)

	auth := middleware.AuthMiddleware(a.logger, jwtConfig)
	loginLimit := middleware.RateLimitMiddleware(a.loginLimiter)
	publicLimit := middleware.RateLimitMiddleware(a.publicLimiter)

	mux := http.NewServeMux()

	// Публичные маршруты
	mux.Handle("POST /api/v1/auth/login", loginLimit(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/v1/public/contacts", publicLimit(http.HandlerFunc(publicHandler.SubmitContact)))
	mux.HandleFunc("GET "+healthPath, healthHandler.Health)

	// Маршруты администратора
	mux.Handle("GET /api/v1/entities/{type}", auth(http.HandlerFunc(entityHandler.List)))
	mux.Handle("POST /api/v1/entities/{type}", auth(http.HandlerFunc(entityHandler.Create)))
	mux.Handle("GET /api/v1/entities/{type}/{id}", auth(http.HandlerFunc(entityHandler.Get)))
	mux.Handle("PATCH /api/v1/entities/{type}/{id}", auth(http.HandlerFunc(entityHandler.Update)))
	mux.Handle("DELETE /api/v1/entities/{type}/{id}", auth(http.HandlerFunc(entityHandler.Delete)))
	mux.Handle("GET /api/v1/ws", auth(http.HandlerFunc(wsHandler.Serve)))

	return middleware.Chain(mux,
		middleware.RecoveryMiddleware(a.logger),
		middleware.LoggingWithSkip(a.logger, []string{healthPath}),
	)
}

// Handler корневой http.Handler
func (a *App) Handler() http.Handler {
	return a.handler
}

// Hub хаб рассылки
func (a *App) Hub() *hub.Hub {
	return a.hub
}

// ListenAndServe слушает cfg.Addr до отмены ctx
func (a *App) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve обслуживает ln до отмены ctx, затем плавно останавливается.
// Websocket соединения http.Server.Shutdown не закрывает, их закрывает хаб.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(a.logger.Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	a.logger.Info("Server listening", "addr", ln.Addr().String(), "rooms", a.hub.Rooms())
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down server")
		a.hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close освобождает ресурсы
func (a *App) Close() error {
	a.hub.Close()
	a.loginLimiter.Stop()
	a.publicLimiter.Stop()
	return a.store.Close()
}

// Run собирает и запускает сервер до отмены ctx
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to close server resources", "error", err)
		}
	}()

	return a.ListenAndServe(ctx)
}

// bootstrapAdmin создает администратора из конфигурации, если его еще нет.
// Пароль существующей учетной записи не меняется.
func bootstrapAdmin(ctx context.Context, admins storage.AdminStorage, cfg *config.Config, logger *slog.Logger) error {
	if cfg.AdminUsername == "" {
		return nil
	}

	if err := validation.ValidateUsername(cfg.AdminUsername); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	_, err := admins.GetAdminByUsername(ctx, cfg.AdminUsername)
	if err == nil {
		logger.Debug("Bootstrap admin already exists", "username", cfg.AdminUsername)
		return nil
	}
	if !errors.Is(err, storage.ErrAdminNotFound) {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	if err := validation.ValidateCredentials(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	hash, err := crypto.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	admin := &models.Admin{
		ID:           uuid.NewString(),
		Username:     cfg.AdminUsername,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := admins.CreateAdmin(ctx, admin); err != nil && !errors.Is(err, storage.ErrAdminExists) {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	logger.Info("Bootstrap admin created", "username", admin.Username, "admin_id", admin.ID)
	return nil
}
