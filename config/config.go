package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App   AppConfig
	HTTP  ServerConfig
	MySQL MySQLConfig
	Log   LogConfig
	Mpesa MpesaConfig
	Jobs  JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type MpesaConfig struct {
	ConsumerKey       string
	ConsumerSecret    string
	BaseURL           string
	ShortCode         string
	PassKey           string
	CallbackURL       string
	CountryPrefix     string
	AccountReference  string
	TransactionDesc   string
	Timezone          string
	HTTPTimeout       time.Duration
	TokenSafetyMargin time.Duration
}

type JobsConfig struct {
	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration
	BatchSize           int32
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	mpesa := MpesaConfig{
		ConsumerKey:       os.Getenv("MPESA_CONSUMER_KEY"),
		ConsumerSecret:    os.Getenv("MPESA_CONSUMER_SECRET"),
		BaseURL:           os.Getenv("MPESA_BASE_URL"),
		ShortCode:         os.Getenv("MPESA_SHORT_CODE"),
		PassKey:           os.Getenv("MPESA_PASSKEY"),
		CallbackURL:       os.Getenv("MPESA_CALLBACK_URL"),
		CountryPrefix:     getEnv("MPESA_COUNTRY_PREFIX", "254"),
		AccountReference:  getEnv("MPESA_ACCOUNT_REFERENCE", "account"),
		TransactionDesc:   getEnv("MPESA_TRANSACTION_DESC", "Payment"),
		Timezone:          getEnv("MPESA_TIMEZONE", "Africa/Nairobi"),
		HTTPTimeout:       getSecondsEnv("MPESA_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		TokenSafetyMargin: getSecondsEnv("MPESA_TOKEN_SAFETY_MARGIN_SECONDS", 30*time.Second),
	}

	switch {
	case mpesa.ConsumerKey == "":
		return nil, errors.New("MPESA_CONSUMER_KEY environment variable is required")
	case mpesa.ConsumerSecret == "":
		return nil, errors.New("MPESA_CONSUMER_SECRET environment variable is required")
	case mpesa.BaseURL == "":
		return nil, errors.New("MPESA_BASE_URL environment variable is required")
	case mpesa.ShortCode == "":
		return nil, errors.New("MPESA_SHORT_CODE environment variable is required")
	case mpesa.PassKey == "":
		return nil, errors.New("MPESA_PASSKEY environment variable is required")
	case mpesa.CallbackURL == "":
		return nil, errors.New("MPESA_CALLBACK_URL environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "mpesa-gateway"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Mpesa: mpesa,
		Jobs: JobsConfig{
			ReconcileInterval:   getMinutesEnv("MPESA_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			ReconcileStaleAfter: getMinutesEnv("MPESA_RECONCILE_STALE_AFTER_MINUTES", 5*time.Minute),
			BatchSize:           int32(getIntEnv("MPESA_JOB_BATCH_SIZE", 100)),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
