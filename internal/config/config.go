// Package config содержит логику чтения конфигурации сервиса обработки заказов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/mmeshcher/retail-orders/internal/validation"
)

// Config содержит параметры конфигурации сервиса обработки заказов.
type Config struct {
	RunAddress    string   `env:"RUN_ADDRESS"`
	DatabaseURI   string   `env:"DATABASE_URI"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	RedisAddr     string   `env:"REDIS_ADDR"`
	BlobBucketURL string   `env:"BLOB_BUCKET_URL"`

	OrderQueue         string `env:"QUEUE_ORDER_NOTIFICATIONS" envDefault:"order-notifications"`
	StockQueue         string `env:"QUEUE_STOCK_UPDATES" envDefault:"stock-updates"`
	InitialStatus      string `env:"ORDER_INITIAL_STATUS" envDefault:"Pending"`
	NotifyBuffer       int    `env:"NOTIFY_BUFFER" envDefault:"256"`
	ConsumerGroup      string `env:"CONSUMER_GROUP" envDefault:"retail-processors"`
	StoreRetryAttempts int    `env:"STORE_RETRY_ATTEMPTS" envDefault:"3"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envKafkaBrokers := cfg.KafkaBrokers
	envRedisAddr := cfg.RedisAddr
	envBlobBucketURL := cfg.BlobBucketURL

	var kafkaBrokers string
	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store when empty")
	flag.StringVar(&kafkaBrokers, "k", "", "comma separated kafka brokers, log-only notifications when empty")
	flag.StringVar(&cfg.RedisAddr, "r", "", "redis address for notification dedupe")
	flag.StringVar(&cfg.BlobBucketURL, "b", "mem://", "blob bucket URL for uploads")

	flag.Parse()

	cfg.KafkaBrokers = splitList(kafkaBrokers)

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if len(envKafkaBrokers) > 0 {
		cfg.KafkaBrokers = splitList(strings.Join(envKafkaBrokers, ","))
	}
	if envRedisAddr != "" {
		cfg.RedisAddr = envRedisAddr
	}
	if envBlobBucketURL != "" {
		cfg.BlobBucketURL = envBlobBucketURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.BlobBucketURL == "" {
		cfg.BlobBucketURL = "mem://"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.NotifyBuffer < 1 {
		errs = append(errs, fmt.Errorf("NOTIFY_BUFFER must be positive, got %d", c.NotifyBuffer))
	}
	if c.StoreRetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("STORE_RETRY_ATTEMPTS must be positive, got %d", c.StoreRetryAttempts))
	}
	if status, ok := validation.NormalizeStatus(c.InitialStatus); ok {
		c.InitialStatus = status
	} else {
		errs = append(errs, fmt.Errorf("ORDER_INITIAL_STATUS must be 1 to %d characters, got %q",
			validation.MaxStatusLength, c.InitialStatus))
	}
	if c.OrderQueue == "" || c.StockQueue == "" {
		errs = append(errs, errors.New("queue names must not be empty"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var res []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}
