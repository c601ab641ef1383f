package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/vasiliy-maslov/storefront/internal/db"
	"github.com/vasiliy-maslov/storefront/internal/events"
	"github.com/vasiliy-maslov/storefront/internal/handler"
	"github.com/vasiliy-maslov/storefront/internal/identity"
	"github.com/vasiliy-maslov/storefront/internal/idempotency"
	"github.com/vasiliy-maslov/storefront/internal/notify"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/transport"
)

const serviceName = "storefront"

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	log.Info().Msg("Storefront starting...")

	ctx := context.Background()

	if err := db.Migrate(cfg.Postgres); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	var store idempotency.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, idempotency keys disabled")
			_ = client.Close()
		} else {
			defer client.Close()
			store = idempotency.NewRedisStore(client, serviceName, idempotency.DefaultTTL)
		}
	}

	var publisher order.EventPublisher = events.NoopPublisher{}
	if cfg.Rabbit.URL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			log.Warn().Err(err).Msg("RabbitMQ unavailable, order events will not be published")
		} else {
			defer rabbit.Close()
			publisher = rabbit
		}
	}

	if !cfg.Mail.Enabled() {
		log.Warn().Msg("Mail is not configured, order emails will be reported as not sent")
	}
	dispatcher, err := notify.NewDispatcher(notify.NewMailer(cfg.Mail), identity.NewDirectory(pg.Pool), notify.Options{
		ShopName:   cfg.Mail.SenderName,
		AdminEmail: cfg.Mail.AdminEmail,
		Timeout:    cfg.Mail.Timeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build notification dispatcher")
	}

	policy := order.AllowAnyTransition
	if cfg.Orders.StrictTransitions {
		policy = order.StrictTransitions
	}

	cartRepo := cart.NewRepository(pg.Pool)
	cartSvc := cart.NewService(cartRepo)
	orderSvc := order.NewService(order.Deps{
		Repo:       order.NewRepository(pg.Pool),
		Carts:      cartRepo,
		UnitOfWork: db.NewTxManager(pg.Pool),
		Notifier:   dispatcher,
		Publisher:  publisher,
		Policy:     policy,
	})
	catalogSvc := catalog.NewService(catalog.NewRepository(pg.Pool))

	router := transport.NewRouter(transport.Handlers{
		Catalog: handler.NewCatalogHandler(catalogSvc),
		Cart:    handler.NewCartHandler(cartSvc),
		Orders:  handler.NewOrderHandler(orderSvc, store),
		Admin:   handler.NewAdminHandler(orderSvc),
	}, identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer))

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Mail.Timeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	// long enough for an in-flight confirmation email to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Mail.Timeout+5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	if err := orderSvc.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Order emails dropped during shutdown")
	}

	log.Info().Msg("Storefront stopped gracefully")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", serviceName).Logger()
}
