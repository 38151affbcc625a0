package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/kupapos/kupa/internal/config"
	"github.com/kupapos/kupa/internal/database"
	"github.com/kupapos/kupa/internal/handler"
	"github.com/kupapos/kupa/internal/logx"
	"github.com/kupapos/kupa/internal/middleware"
	"github.com/kupapos/kupa/internal/queue"
	"github.com/kupapos/kupa/internal/repository"
	"github.com/kupapos/kupa/internal/router"
	"github.com/kupapos/kupa/internal/service"
	"github.com/kupapos/kupa/internal/token"
	"github.com/kupapos/kupa/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logx.New(logx.Config{Service: "kupa-auth", Env: cfg.Env, Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(db, cfg.DBDriver); err != nil {
		return err
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()
	store := repository.NewRevocationStore(rdb)

	codec, err := token.NewCodec(token.Options{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		LegacyTTL:  cfg.LegacyTTL,
	}, store)
	if err != nil {
		return err
	}

	var events service.EventPublisher = queue.Discard{}
	if cfg.RabbitMQURL != "" {
		events = queue.NewPublisher(cfg.RabbitMQURL, log)
		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.RabbitMQURL, cfg.AuditLogDir, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", "error", err)
			}
		}()
	} else {
		log.Info("RABBITMQ_URL not set, auth events disabled")
	}

	users := repository.NewUserRepo(db)
	sessions := service.NewSessionService(users, service.NewRotatingStrategy(codec), events, cfg.BcryptCost)
	legacy := service.NewSessionService(users, service.NewLegacyStrategy(codec), events, cfg.BcryptCost)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: utils.NewID}))
	e.Use(middleware.ContextLogger(log))
	e.Use(middleware.RequestLogger(log))

	limit := middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb, log)

	router.RegisterRoutes(e, &handler.HealthHandler{DB: handler.PingFunc(db.PingContext), Store: store})
	router.RegisterAuth(e, handler.NewAuthHandler(sessions, handler.Cookies{
		Secure:     !cfg.IsDevelopment(),
		Domain:     cfg.CookieDomain,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}), limit)
	router.RegisterLegacyAuth(e, handler.NewLegacyAuthHandler(legacy), limit)
	router.RegisterSession(e, sessions)
	router.RegisterLegacySession(e, legacy)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "env", cfg.Env, "db", cfg.DBDriver)
		errCh <- e.StartServer(srv)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
