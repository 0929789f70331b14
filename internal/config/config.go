package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
	Catalog  CatalogConfig
	Auth     AuthConfig
	QRSecret string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers  []string
	GroupID  string
	Topics   TopicConfig
	MockMode bool
	Enabled  bool
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type TopicConfig struct {
	OrderCreated     string
	BookingConfirmed string
	PaymentSuccess   string
	PaymentFailed    string
	AlertSend        string
}

// GatewayConfig carries the payment gateway credentials. SaltKey/SaltIndex
// sign outbound initiate calls; WebhookUsername/WebhookPassword are the
// credential pair whose SHA-256 hash authenticates inbound webhooks.
// ExpireAfter bounds the PhonePe pay page validity.
type GatewayConfig struct {
	Provider        string
	BaseURL         string
	MerchantID      string
	SaltKey         string
	SaltIndex       string
	WebhookUsername string
	WebhookPassword string
	CallbackURL     string
	ExpireAfter     time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
}

type CatalogConfig struct {
	BaseURL string
}

// AuthConfig holds the Keycloak endpoints: Issuer verifies inbound user
// tokens, the client credential pair obtains outbound M2M tokens for the
// catalog service. An empty Issuer switches the middleware to unverified
// dev mode.
type AuthConfig struct {
	Issuer       string
	KeycloakURL  string
	Realm        string
	ClientID     string
	ClientSecret string
}

func Load() *Config {
	kafkaEnabled := getEnvBool("KAFKA_ENABLED", true)
	mockMode := getEnvBool("KAFKA_MOCK_MODE", false)

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "booking_user"),
			Password:     getEnv("DB_PASSWORD", "booking_pass"),
			Database:     getEnv("DB_NAME", "booking"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:  []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID:  getEnv("KAFKA_GROUP_ID", "booking-fulfillment"),
			Enabled:  kafkaEnabled,
			MockMode: mockMode,
			Topics: TopicConfig{
				OrderCreated:     getEnv("KAFKA_TOPIC_ORDER_CREATED", "booking.order.created"),
				BookingConfirmed: getEnv("KAFKA_TOPIC_BOOKING_CONFIRMED", "booking.confirmed"),
				PaymentSuccess:   getEnv("KAFKA_TOPIC_PAYMENT_SUCCESS", "payment.success"),
				PaymentFailed:    getEnv("KAFKA_TOPIC_PAYMENT_FAILED", "payment.failed"),
				AlertSend:        getEnv("KAFKA_TOPIC_ALERT", "alert.send"),
			},
		},
		Gateway: GatewayConfig{
			Provider:        getEnv("GATEWAY_PROVIDER", "phonepe"),
			BaseURL:         getEnv("GATEWAY_BASE_URL", "https://api-preprod.phonepe.com/apis/pg-sandbox"),
			MerchantID:      getEnv("GATEWAY_MERCHANT_ID", ""),
			SaltKey:         getEnv("GATEWAY_SALT_KEY", ""),
			SaltIndex:       getEnv("GATEWAY_SALT_INDEX", "1"),
			WebhookUsername: getEnv("GATEWAY_WEBHOOK_USERNAME", ""),
			WebhookPassword: getEnv("GATEWAY_WEBHOOK_PASSWORD", ""),
			CallbackURL:     getEnv("GATEWAY_CALLBACK_URL", "http://localhost:8080/api/v1/payments/webhook"),
			ExpireAfter:     time.Duration(getEnvInt("GATEWAY_EXPIRE_MINUTES", 60)) * time.Minute,

			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Catalog: CatalogConfig{
			BaseURL: getEnv("CATALOG_SERVICE_URL", "http://localhost:8081"),
		},
		Auth: AuthConfig{
			Issuer:       getEnv("OIDC_ISSUER", ""),
			KeycloakURL:  getEnv("KEYCLOAK_URL", "http://localhost:8082"),
			Realm:        getEnv("KEYCLOAK_REALM", "evently"),
			ClientID:     getEnv("KEYCLOAK_CLIENT_ID", "booking-service"),
			ClientSecret: getEnv("KEYCLOAK_CLIENT_SECRET", ""),
		},
		QRSecret: getEnv("QR_SECRET", "booking-qr-secret"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
