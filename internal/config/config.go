// Package config reads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string        `env:"PORT" env-default:"8080"`
	DatabaseURL string        `env:"DATABASE_URL" env-required:"true"`
	JWTSecret   string        `env:"JWT_SECRET" env-required:"true"`
	JWTTTL      time.Duration `env:"JWT_TTL" env-default:"24h"`
	CORSOrigins []string      `env:"CORS_ORIGINS" env-default:"http://localhost:3000"`

	Stripe  Stripe
	Kafka   Kafka
	Redis   Redis
	Booking Booking
	Sweeps  Sweeps

	RiverMaxWorkers int `env:"RIVER_MAX_WORKERS" env-default:"10"`
}

type Stripe struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY" env-required:"true"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET" env-required:"true"`
	Currency      string `env:"STRIPE_CURRENCY" env-default:"usd"`
	APIBaseURL    string `env:"STRIPE_API_BASE_URL"`
}

type Kafka struct {
	Brokers            []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	TopicNotifications string   `env:"KAFKA_TOPIC_NOTIFICATIONS" env-default:"booking.notifications"`
	TopicEmails        string   `env:"KAFKA_TOPIC_EMAILS" env-default:"booking.emails"`
	TopicChatRooms     string   `env:"KAFKA_TOPIC_CHAT_ROOMS" env-default:"booking.chat-rooms"`
}

type Redis struct {
	Addr      string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password  string        `env:"REDIS_PASSWORD"`
	DB        int           `env:"REDIS_DB" env-default:"0"`
	DedupeTTL time.Duration `env:"WEBHOOK_DEDUPE_TTL" env-default:"72h"`
}

type Booking struct {
	MinDurationMinutes int           `env:"MIN_GIG_DURATION_MINUTES" env-default:"60"`
	MinLeadTime        time.Duration `env:"MIN_BOOKING_LEAD_TIME" env-default:"2h"`
}

// Sweeps holds the booking timeouts and how often each sweep runs.
type Sweeps struct {
	PaymentTimeout    time.Duration `env:"PAYMENT_TIMEOUT" env-default:"10m"`
	DJResponseTimeout time.Duration `env:"DJ_RESPONSE_TIMEOUT" env-default:"48h"`
	PayoutDelay       time.Duration `env:"PAYOUT_DELAY" env-default:"72h"`
	RatingWindow      time.Duration `env:"RATING_WINDOW" env-default:"336h"`

	PaymentTimeoutEvery    time.Duration `env:"SWEEP_PAYMENT_TIMEOUT_EVERY" env-default:"1m"`
	DJResponseTimeoutEvery time.Duration `env:"SWEEP_DJ_RESPONSE_EVERY" env-default:"5m"`
	EventStartedEvery      time.Duration `env:"SWEEP_EVENT_STARTED_EVERY" env-default:"5m"`
	PayoutEvery            time.Duration `env:"SWEEP_PAYOUT_EVERY" env-default:"1h"`
	RatingWindowEvery      time.Duration `env:"SWEEP_RATING_WINDOW_EVERY" env-default:"1h"`

	AwaitingAcceptanceRemindersEvery time.Duration `env:"SWEEP_AWAITING_ACCEPTANCE_REMINDERS_EVERY" env-default:"15m"`
	BeforeEventRemindersEvery        time.Duration `env:"SWEEP_BEFORE_EVENT_REMINDERS_EVERY" env-default:"15m"`
	RatingRemindersEvery             time.Duration `env:"SWEEP_RATING_REMINDERS_EVERY" env-default:"15m"`
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
