package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-booking/internal/auth"
	"ms-booking/internal/cart"
	cart_api "ms-booking/internal/cart/api"
	cartdb "ms-booking/internal/cart/db"
	"ms-booking/internal/catalog"
	"ms-booking/internal/checkout"
	checkout_api "ms-booking/internal/checkout/api"
	checkoutdb "ms-booking/internal/checkout/db"
	checkoutredis "ms-booking/internal/checkout/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/fulfillment"
	fulfillment_api "ms-booking/internal/fulfillment/api"
	fulfillmentdb "ms-booking/internal/fulfillment/db"
	"ms-booking/internal/fulfillment/qr"
	"ms-booking/internal/gateway"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	payment_api "ms-booking/internal/payment/handler"
	"ms-booking/internal/payment/storage"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// evictionInterval is how often the storage-side intent TTL sweep runs.
const evictionInterval = 5 * time.Minute

func connectDatabase(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Connecting to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		if err = sqldb.Ping(); err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("PostgreSQL connection failed: %v", err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

// buildGateway picks the payment gateway from config. PhonePe is the
// production default; Stripe is the alternate for markets it covers.
func buildGateway(cfg config.GatewayConfig, log *logger.Logger) gateway.PaymentGateway {
	switch cfg.Provider {
	case "stripe":
		log.Info("GATEWAY", "Using Stripe payment gateway")
		return gateway.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, log)
	default:
		log.Info("GATEWAY", "Using PhonePe payment gateway")
		return gateway.NewPhonePe(cfg, log)
	}
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB := connectDatabase(cfg.Database, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	redisClient, err := auth.InitializeRedis(cfg.Redis.Addr, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer redisClient.Close()

	// Kafka
	brokers := cfg.Kafka.Brokers
	if cfg.Kafka.Enabled && !cfg.Kafka.MockMode {
		if err := kafka.EnsureTopicsExist(brokers, kafka.BookingTopics(cfg.Kafka.Topics), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		if topics, err := kafka.ListTopics(brokers); err == nil {
			log.Debug("KAFKA", fmt.Sprintf("Cluster topics: %v", topics))
		}
	}
	producer := kafka.NewProducer(brokers, log)
	defer producer.Close()

	// Catalog access with Keycloak M2M tokens cached in Redis.
	tokenCache := auth.NewRedisTokenCache(redisClient)
	m2m := auth.NewM2MSource(cfg.Auth, httpClient, tokenCache, log)
	cat := catalog.NewFetcher(cfg.Catalog.BaseURL, httpClient, m2m.Token, log)

	// Services
	cartStore := &cartdb.DB{Bun: bunDB}
	intentStore := &checkoutdb.DB{Bun: bunDB}
	intentTTL := checkoutredis.NewRedis(redisClient)

	cartService := cart.NewCartService(cartStore, cat, log)
	checkoutService := checkout.NewCheckoutService(intentStore, cartStore, cat, intentTTL, nil, log)

	paymentStore, err := storage.NewPostgreSQLStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Payment store initialization failed: %v", err))
	}
	defer paymentStore.Close()

	gw := buildGateway(cfg.Gateway, log)
	paymentService := payment.NewPaymentService(paymentStore, intentStore, intentTTL, gw, producer, cfg.Kafka.Topics, cfg.Gateway, log)

	fulfillmentService := fulfillment.NewService(
		&fulfillmentdb.DB{Bun: bunDB},
		intentTTL,
		producer,
		qr.NewQRGenerator(cfg.QRSecret),
		cfg.Kafka.Topics,
		log,
	)

	// payment.success consumer drives fulfillment.
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(brokers, cfg.Kafka.Topics.PaymentSuccess, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		log.LogProcess("FULFILLMENT", fmt.Sprintf("Consuming %s as group %s", cfg.Kafka.Topics.PaymentSuccess, cfg.Kafka.GroupID))
		go consumer.Start(ctx, func(ctx context.Context, event models.PaymentSucceededEvent) error {
			_, err := fulfillmentService.FulfillIntent(ctx, event.CheckoutIntentID)
			return err
		})
	}

	// Storage-side sweep for intents whose payment window lapsed.
	log.LogProcess("EVICTION", fmt.Sprintf("Intent eviction sweep every %s", evictionInterval))
	go func() {
		ticker := time.NewTicker(evictionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := checkoutService.EvictExpired(ctx); err != nil {
					log.Error("CHECKOUT", fmt.Sprintf("Intent eviction sweep failed: %v", err))
				}
			}
		}
	}()

	// Handlers
	cartHandler := cart_api.NewHandler(cartService, log)
	checkoutHandler := checkout_api.NewHandler(checkoutService, log)
	paymentHandler := payment_api.NewHandler(paymentService, log)
	ordersHandler := fulfillment_api.NewHandler(fulfillmentService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// Webhook is authenticated by the gateway credential hash, not user auth.
	r.Post("/api/v1/payments/webhook", paymentHandler.Webhook)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := bunDB.PingContext(req.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := paymentStore.HealthCheck(); err != nil {
			http.Error(w, "payment store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.Issuer))

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Post("/select", cartHandler.SelectForCheckout)
				r.Delete("/items/{itemId}", cartHandler.RemoveItem)

				r.Route("/draft", func(r chi.Router) {
					r.Get("/", cartHandler.GetDraft)
					r.Post("/event", cartHandler.SetDraftEvent)
					r.Post("/address", cartHandler.SetDraftAddress)
					r.Post("/schedule", cartHandler.SetDraftSchedule)
					r.Post("/addons", cartHandler.AddDraftAddon)
					r.Delete("/addons/{addonId}", cartHandler.RemoveDraftAddon)
					r.Post("/promote", cartHandler.PromoteDraft)
				})
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/cart", checkoutHandler.CreateFromCart)
				r.Post("/direct", checkoutHandler.CreateFromDraft)
				r.Get("/{intentId}", checkoutHandler.GetIntent)
			})

			r.Route("/payments", func(r chi.Router) {
				r.Get("/", paymentHandler.ListPayments)
				r.Post("/initiate/{intentId}", paymentHandler.Initiate)
				r.Get("/{merchantOrderId}/status", paymentHandler.Reconcile)
				r.Get("/{paymentId}", paymentHandler.GetPayment)
			})

			r.Get("/orders/user/{userId}", ordersHandler.GetUserOrders)
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Booking Service shutdown complete")
	}
}
