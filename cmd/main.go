package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/securesteps/auth-service/config"
	"github.com/securesteps/auth-service/db"
	"github.com/securesteps/auth-service/internal/auth/domain"
	"github.com/securesteps/auth-service/internal/auth/handler"
	repo "github.com/securesteps/auth-service/internal/auth/repository/postgres"
	"github.com/securesteps/auth-service/internal/auth/service"
	"github.com/securesteps/auth-service/internal/events"
	"github.com/securesteps/auth-service/internal/notify"
	"github.com/securesteps/auth-service/internal/ratelimit"
	"github.com/securesteps/auth-service/internal/social"
	"go.opentelemetry.io/otel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := db.NewPostgresPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer dbPool.Close()

	userRepo := repo.NewPostgresRepository(dbPool, cfg.TxTimeout())
	followRepo := repo.NewFollowRepository(dbPool, cfg.TxTimeout())

	metrics, err := service.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	hub := events.NewHub(0)
	var (
		limiter   domain.LoginLimiter = ratelimit.NoopLoginLimiter{}
		publisher domain.EventPublisher
	)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		limiter = ratelimit.NewLoginLimiter(rdb, ratelimit.LoginConfig{
			MaxAttempts: cfg.LoginMaxAttempts,
			Window:      time.Duration(cfg.LoginWindowMinutes) * time.Minute,
		})
		publisher = events.NewRedisPublisher(rdb, cfg.EventsChannel)

		relay := events.NewRelay(rdb, cfg.EventsChannel, hub)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("error: event relay stopped: %v", err)
			}
		}()
	} else {
		log.Printf("warn: REDIS_URL not set, login throttling disabled and events stay in-process")
		publisher = events.NewLocalPublisher(hub)
	}

	var notifier domain.Notifier = notify.LogNotifier{}
	if cfg.SMTPHost != "" {
		notifier = notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else if cfg.IsProduction() {
		log.Fatalf("SMTP_HOST is required in production")
	}

	tokenService := service.NewTokenService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessExpiryMin, cfg.RefreshExpiryMin)
	otpService := service.NewOTPService(userRepo, cfg)
	userService := service.NewUserService(userRepo, otpService, notifier, publisher, metrics)
	sessionService := service.NewSessionService(userRepo, tokenService, limiter, publisher, metrics)
	socialService := social.NewService(followRepo, publisher)

	cookies := handler.CookieConfig{
		Secure:     cfg.CookieSecure,
		AccessTTL:  cfg.AccessTokenTTL(),
		RefreshTTL: cfg.RefreshTokenTTL(),
	}
	authHandler := handler.NewAuthHandler(userService, sessionService, cookies)
	mw := handler.NewMiddleware(sessionService, cookies)

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler(cfg.IsProduction()),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	if cfg.CORSOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowCredentials: true,
		}))
	}

	api := handler.RegisterRoutes(app, authHandler, mw, handler.NewStreamHandler(hub, 0))
	social.RegisterRoutes(api, social.NewHandler(socialService), mw.RequireAuth())

	go func() {
		<-ctx.Done()
		log.Printf("shutting down")
		// Open event streams would otherwise hold the server open.
		hub.Close()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Printf("error: shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Printf("error: server stopped: %v", err)
	}
}
