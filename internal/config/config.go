package config

import (
	"fmt"
	"log"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Environment   string `envconfig:"ENV" default:"development"`
	Storage       string `envconfig:"STORAGE" default:"postgres"`
	DBDSN         string `envconfig:"DB_DSN"`
	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"migrations"`

	// Пустой AMQP_URL: уведомления пишутся в лог, платёжные события не читаются
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"booking.events"`
	PaymentQueue string `envconfig:"PAYMENT_QUEUE" default:"booking-engine.payments"`

	ReminderInterval time.Duration `envconfig:"REMINDER_INTERVAL" default:"6h"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"15m"`

	PaymentRequiredClass   bool `envconfig:"PAYMENT_REQUIRED_CLASS" default:"false"`
	PaymentRequiredService bool `envconfig:"PAYMENT_REQUIRED_SERVICE" default:"false"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	} else {
		log.Println("Loaded configuration from .env file")
	}

	return FromEnv()
}

// FromEnv читает конфигурацию из переменных окружения и проверяет её
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required for %s storage", StoragePostgres)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}

	if c.ReminderInterval <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL and SWEEP_INTERVAL must be positive")
	}

	return nil
}

// PaymentRequired возвращает, для каких видов ресурсов подтверждение требует оплаты
func (c *Config) PaymentRequired() map[model.ResourceKind]bool {
	return map[model.ResourceKind]bool{
		model.ResourceKindClass:   c.PaymentRequiredClass,
		model.ResourceKindService: c.PaymentRequiredService,
	}
}
