package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBConfig struct {
		DBHost     string `env:"CAPS_DB_HOST"`
		DBPort     string `env:"CAPS_DB_PORT"`
		DBUser     string `env:"CAPS_DB_USER"`
		DBPassword string `env:"CAPS_DB_PASSWORD"`
		DBName     string `env:"CAPS_DB_NAME"`
		DBSSLMode  string `env:"CAPS_DB_SSLMODE"`
	}

	KafkaURL           string `env:"KAFKA_BROKER_URL"`
	KafkaGrantTopic    string `env:"KAFKA_GRANT_NOTIFICATION_TOPIC"`
	KafkaConsumerGroup string `env:"KAFKA_CONSUMER_GROUP"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxPollTimeout  time.Duration `env:"OUTBOX_POLL_TIMEOUT"`

	PayFastMerchantID      string        `env:"PAYFAST_MERCHANT_ID"`
	PayFastMerchantKey     string        `env:"PAYFAST_MERCHANT_KEY"`
	PayFastPassphrase      string        `env:"PAYFAST_PASSPHRASE"`
	PayFastSandbox         bool          `env:"PAYFAST_SANDBOX"`
	PayFastValidateTimeout time.Duration `env:"PAYFAST_VALIDATE_TIMEOUT"`

	FrontendURL string `env:"FRONTEND_URL"`
	BackendURL  string `env:"BACKEND_URL"`

	DownloadWindow time.Duration `env:"DOWNLOAD_WINDOW"`
	DownloadQuota  int           `env:"DOWNLOAD_QUOTA"`
	PDFStoragePath string        `env:"PDF_STORAGE_PATH"`

	SMTPHost     string `env:"EMAIL_HOST"`
	SMTPPort     string `env:"EMAIL_PORT"`
	SMTPUser     string `env:"EMAIL_USER"`
	SMTPPassword string `env:"EMAIL_PASSWORD"`

	HTTPPort int `env:"HTTP_PORT"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.DBConfig.DBHost = getEnvOrDefault("CAPS_DB_HOST", "localhost")
	cfg.DBConfig.DBPort = getEnvOrDefault("CAPS_DB_PORT", "5432")
	cfg.DBConfig.DBUser = getEnvOrDefault("CAPS_DB_USER", "postgres")
	cfg.DBConfig.DBPassword = getEnvOrDefault("CAPS_DB_PASSWORD", "postgres")
	cfg.DBConfig.DBName = getEnvOrDefault("CAPS_DB_NAME", "caps_db")
	cfg.DBConfig.DBSSLMode = getEnvOrDefault("CAPS_DB_SSLMODE", "disable")

	cfg.KafkaURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaGrantTopic = getEnvOrDefault("KAFKA_GRANT_NOTIFICATION_TOPIC", "download_grant_notifications")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "caps-store-group")

	var err error
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", "5s"); err != nil {
		return nil, err
	}
	if cfg.OutboxPollTimeout, err = parseDurationEnv("OUTBOX_POLL_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	cfg.PayFastMerchantID = getEnvOrDefault("PAYFAST_MERCHANT_ID", "")
	cfg.PayFastMerchantKey = getEnvOrDefault("PAYFAST_MERCHANT_KEY", "")
	cfg.PayFastPassphrase = getEnvOrDefault("PAYFAST_PASSPHRASE", "")
	cfg.PayFastSandbox = getEnvOrDefault("PAYFAST_SANDBOX", "true") == "true"
	if cfg.PayFastValidateTimeout, err = parseDurationEnv("PAYFAST_VALIDATE_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	cfg.FrontendURL = getEnvOrDefault("FRONTEND_URL", "http://localhost:5173")
	cfg.BackendURL = getEnvOrDefault("BACKEND_URL", "http://localhost:8080")

	if cfg.DownloadWindow, err = parseDurationEnv("DOWNLOAD_WINDOW", "72h"); err != nil {
		return nil, err
	}
	quotaStr := getEnvOrDefault("DOWNLOAD_QUOTA", "5")
	quota, err := strconv.Atoi(quotaStr)
	if err != nil || quota < 1 {
		return nil, fmt.Errorf("invalid DOWNLOAD_QUOTA: %s", quotaStr)
	}
	cfg.DownloadQuota = quota
	cfg.PDFStoragePath = getEnvOrDefault("PDF_STORAGE_PATH", "./storage/pdfs")

	cfg.SMTPHost = getEnvOrDefault("EMAIL_HOST", "localhost")
	cfg.SMTPPort = getEnvOrDefault("EMAIL_PORT", "587")
	cfg.SMTPUser = getEnvOrDefault("EMAIL_USER", "")
	cfg.SMTPPassword = getEnvOrDefault("EMAIL_PASSWORD", "")

	portStr := getEnvOrDefault("HTTP_PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_PORT: %s", portStr)
	}
	cfg.HTTPPort = port

	return cfg, nil
}

func parseDurationEnv(key, defaultValue string) (time.Duration, error) {
	raw := getEnvOrDefault(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.DBHost, c.DBConfig.DBPort, c.DBConfig.DBUser, c.DBConfig.DBPassword, c.DBConfig.DBName, c.DBConfig.DBSSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("%s:%s@%s:%s/%s?sslmode=%s",
		c.DBConfig.DBUser, c.DBConfig.DBPassword, c.DBConfig.DBHost, c.DBConfig.DBPort, c.DBConfig.DBName, c.DBConfig.DBSSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return []string{c.KafkaURL}
}
