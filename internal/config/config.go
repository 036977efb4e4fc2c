package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort   string
	GRPCPort   string
	LogLevel   string
	DB         DBConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Courier    CourierConfig
	Shipper    ShipperConfig
	Auth       AuthConfig
	Telegram   TelegramConfig
	Tracking   TrackingConfig
	Outbox     OutboxConfig
	Webhooks   WebhookConfig
	Encryption EncryptionConfig
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// DSN renders the pgx connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable", c.Host, c.Port, c.User, c.Password, c.Name)
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// CourierConfig holds the environment fallback credentials. They are used
// only when no credentials are stored in the database.
type CourierConfig struct {
	APIKey      string
	Endpoint    string
	HTTPTimeout time.Duration
	BalanceTTL  time.Duration
}

// ShipperConfig is the sender profile passed to the courier on every shipment.
type ShipperConfig struct {
	Name     string
	Phone    string
	Address  string
	Postcode string
	City     string
	State    string
	Country  string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	AdminUser string
	AdminPass string
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

type TrackingConfig struct {
	BatchCeiling     int
	Cooldown         time.Duration
	CallInterval     time.Duration
	RateLimitBackoff time.Duration
	ScheduleInterval time.Duration
	LockTTL          time.Duration
	JobPollInterval  time.Duration
	JobBatchSize     int
	SnapshotTTL      time.Duration
}

type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

type WebhookConfig struct {
	CourierSecret string
	PaymentSecret string
}

type EncryptionConfig struct {
	// CredentialKey is a 64 character hex string (32 bytes).
	CredentialKey string
}

// LoadEnv loads the first .env file found in the working directory or its
// two parents, then tries .example.env in the same places. A missing file is
// not an error: the process environment may already be populated.
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("config: cannot resolve working directory: %v", err)
		return
	}

	possiblePaths := []string{
		filepath.Join(wd, ".env"),
		filepath.Join(wd, "..", ".env"),
		filepath.Join(wd, "..", "..", ".env"),
	}

	for _, envPath := range possiblePaths {
		if err := godotenv.Load(envPath); err == nil {
			log.Printf("Loaded environment variables from %s", envPath)
			return
		}
	}

	for _, envPath := range possiblePaths {
		examplePath := filepath.Join(filepath.Dir(envPath), ".example.env")
		if err := godotenv.Load(examplePath); err == nil {
			log.Printf("Loaded environment variables from %s", examplePath)
			return
		}
	}

	log.Println("No .env file found, using process environment")
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	LoadEnv()

	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "9000"),
		GRPCPort: getEnv("GRPC_PORT", "9001"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getInt("DB_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Name:     getEnv("POSTGRES_DB", "fulfillment"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "fulfillment_events"),
			GroupID: getEnv("KAFKA_GROUP_ID", "fulfillment-notifier"),
		},
		Courier: CourierConfig{
			APIKey:      os.Getenv("COURIER_API_KEY"),
			Endpoint:    os.Getenv("COURIER_API_ENDPOINT"),
			HTTPTimeout: getDuration("COURIER_HTTP_TIMEOUT", 30*time.Second),
			BalanceTTL:  getDuration("COURIER_BALANCE_TTL", 5*time.Minute),
		},
		Shipper: ShipperConfig{
			Name:     getEnv("SHIPPER_NAME", "JRM Store"),
			Phone:    os.Getenv("SHIPPER_PHONE"),
			Address:  os.Getenv("SHIPPER_ADDRESS"),
			Postcode: os.Getenv("SHIPPER_POSTCODE"),
			City:     os.Getenv("SHIPPER_CITY"),
			State:    os.Getenv("SHIPPER_STATE"),
			Country:  getEnv("SHIPPER_COUNTRY", "MY"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  getDuration("JWT_TTL", 12*time.Hour),
			AdminUser: os.Getenv("ADMIN_USERNAME"),
			AdminPass: os.Getenv("ADMIN_PASSWORD"),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   int64(getInt("TELEGRAM_CHAT_ID", 0)),
		},
		Tracking: TrackingConfig{
			BatchCeiling:     getInt("TRACKING_BATCH_CEILING", 50),
			Cooldown:         getDuration("TRACKING_COOLDOWN", time.Hour),
			CallInterval:     getDuration("TRACKING_CALL_INTERVAL", 500*time.Millisecond),
			RateLimitBackoff: getDuration("TRACKING_RATE_LIMIT_BACKOFF", 10*time.Second),
			ScheduleInterval: getDuration("TRACKING_SCHEDULE_INTERVAL", 30*time.Minute),
			LockTTL:          getDuration("TRACKING_LOCK_TTL", 15*time.Minute),
			JobPollInterval:  getDuration("TRACKING_JOB_POLL_INTERVAL", 10*time.Second),
			JobBatchSize:     getInt("TRACKING_JOB_BATCH_SIZE", 20),
			SnapshotTTL:      getDuration("TRACKING_SNAPSHOT_TTL", 6*time.Hour),
		},
		Outbox: OutboxConfig{
			PollInterval: getDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    getInt("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts:  getInt("OUTBOX_MAX_ATTEMPTS", 5),
		},
		Webhooks: WebhookConfig{
			CourierSecret: os.Getenv("COURIER_WEBHOOK_SECRET"),
			PaymentSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		},
		Encryption: EncryptionConfig{
			CredentialKey: os.Getenv("CREDENTIALS_ENCRYPTION_KEY"),
		},
	}

	if cfg.Tracking.BatchCeiling <= 0 {
		return nil, fmt.Errorf("TRACKING_BATCH_CEILING must be positive, got %d", cfg.Tracking.BatchCeiling)
	}

	return cfg, nil
}

// ValidateServer checks the settings only the API process needs.
func (c *Config) ValidateServer() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Webhooks.CourierSecret == "" || c.Webhooks.PaymentSecret == "" {
		log.Println("config: a webhook secret is empty, that webhook will reject every call")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: invalid integer for %s=%q, using %d", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: invalid duration for %s=%q, using %s", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
