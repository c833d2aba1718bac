package config

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ticketera/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
}

func LoadConfig() (*Config, error) {
	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
	}, nil
}

type ProviderConfig struct {
	BaseURL       string
	ClientID      string
	SecretKey     string
	WebhookSecret string
}

func LoadProviderConfig() (*ProviderConfig, error) {
	return &ProviderConfig{
		BaseURL:       os.Getenv("PROVIDER_BASE_URL"),
		ClientID:      os.Getenv("PROVIDER_CLIENT_ID"),
		SecretKey:     os.Getenv("PROVIDER_SECRET_KEY"),
		WebhookSecret: os.Getenv("PROVIDER_WEBHOOK_SECRET"),
	}, nil
}

// EngineConfig carries the timings of the reservation machinery.
type EngineConfig struct {
	ReservationTTL  time.Duration
	SweepInterval   time.Duration
	RateLimit       int64
	RateLimitWindow time.Duration
}

func LoadEngineConfig() (*EngineConfig, error) {
	cfg := &EngineConfig{
		ReservationTTL:  10 * time.Minute,
		SweepInterval:   60 * time.Second,
		RateLimit:       30,
		RateLimitWindow: time.Minute,
	}
	if v := os.Getenv("RESERVATION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RESERVATION_TTL: %w", err)
		}
		cfg.ReservationTTL = ttl
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
		}
		cfg.SweepInterval = interval
	}
	return cfg, nil
}

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	Channel      string
}

func LoadPubNubConfig() (*PubNubConfig, error) {
	return &PubNubConfig{
		PublishKey:   os.Getenv("PUBNUB_PUBLISH_KEY"),
		SubscribeKey: os.Getenv("PUBNUB_SUBSCRIBE_KEY"),
		Channel:      os.Getenv("PUBNUB_CHANNEL"),
	}, nil
}

// InitRedisClient returns nil when REDIS_ADDR is unset; rate limiting is
// then disabled.
func InitRedisClient() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error
}

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := enableUUIDExtension(db); err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.Section{},
		&models.Ticket{},
		&models.Transaction{},
		&models.TransactionDetail{},
		&models.Promotion{},
		&models.TicketVerification{},
		&models.WalletBalance{},
		&models.WalletEntry{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
