package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dwarvesf/custody-backend/internal/types/environments"
)

type AppConfig struct {
	Environment environments.Environment
	ApiServer   ApiServerConfig
	Postgres    DBConnection
	Redis       RedisConfig
	Kafka       KafkaConfig
	Explorer    ExplorerConfig
	PriceFeed   PriceFeedConfig
	Rate        RateConfig
	Reconcile   ReconcileConfig
	Referral    ReferralConfig
	Alert       AlertConfig
	Vault       VaultConfig
}

type ApiServerConfig struct {
	Port           string
	AllowedOrigins string
}

type DBConnection struct {
	Host string
	Port string
	User string
	Name string
	Pass string

	SSLMode string
}

// RedisConfig is optional; an empty Addr keeps per-transfer locks in-process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig is optional; without brokers lifecycle events are only logged.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type ExplorerConfig struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
}

type PriceFeedConfig struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type RateConfig struct {
	TTL time.Duration
}

type ReconcileConfig struct {
	Workers      int
	QueueSize    int
	Period       string
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	JobTimeout   time.Duration
	AutoComplete bool
	// ConfirmationDeadline holds a processed transfer for review once it has
	// waited this long for confirmations. Zero disables the cap.
	ConfirmationDeadline time.Duration
}

type ReferralConfig struct {
	// Levels holds the payout percentage per referral level, "5,3,1" style.
	Levels       string
	PayoutPeriod string
}

type AlertConfig struct {
	WebhookURL string
}

// VaultConfig is optional; with an Addr the secrets below are read from
// the KV path at startup and override the environment.
type VaultConfig struct {
	Addr   string
	KVPath string
	Role   string
}

// secretKeys maps Vault KV keys to the config fields they override.
var secretKeys = map[string]func(*AppConfig, string){
	"DB_PASS":           func(c *AppConfig, v string) { c.Postgres.Pass = v },
	"REDIS_PASSWORD":    func(c *AppConfig, v string) { c.Redis.Password = v },
	"EXPLORER_API_KEY":  func(c *AppConfig, v string) { c.Explorer.APIKey = v },
	"PRICE_API_KEY":     func(c *AppConfig, v string) { c.PriceFeed.APIKey = v },
	"ALERT_WEBHOOK_URL": func(c *AppConfig, v string) { c.Alert.WebhookURL = v },
}

func New() *AppConfig {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// this will not override env variables if they already exist
	godotenv.Load(".env." + env)

	return &AppConfig{
		Environment: environments.Environment(env),
		ApiServer: ApiServerConfig{
			Port:           envVarOr("PORT", "8080"),
			AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		},
		Postgres: DBConnection{
			Host:    os.Getenv("DB_HOST"),
			Port:    os.Getenv("DB_PORT"),
			User:    os.Getenv("DB_USER"),
			Name:    os.Getenv("DB_NAME"),
			Pass:    os.Getenv("DB_PASS"),
			SSLMode: os.Getenv("DB_SSL_MODE"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envVarAtoiOr("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: envVarAsList("KAFKA_BROKERS"),
			Topic:   envVarOr("KAFKA_TRANSFER_TOPIC", "transfer-events"),
		},
		Explorer: ExplorerConfig{
			BaseURL:      os.Getenv("EXPLORER_API_URL"),
			APIKey:       os.Getenv("EXPLORER_API_KEY"),
			APIKeyHeader: envVarOr("EXPLORER_API_KEY_HEADER", "TRON-PRO-API-KEY"),
			Timeout:      envVarAsDurationOr("EXPLORER_TIMEOUT", 10*time.Second),
		},
		PriceFeed: PriceFeedConfig{
			BaseURL:  os.Getenv("PRICE_API_URL"),
			APIKey:   os.Getenv("PRICE_API_KEY"),
			Timeout:  envVarAsDurationOr("PRICE_API_TIMEOUT", 5*time.Second),
			CacheTTL: envVarAsDurationOr("PRICE_CACHE_TTL", 5*time.Second),
		},
		Rate: RateConfig{
			TTL: envVarAsDurationOr("RATE_TTL", 30*time.Second),
		},
		Reconcile: ReconcileConfig{
			Workers:              envVarAtoiOr("RECONCILE_WORKERS", 4),
			QueueSize:            envVarAtoiOr("RECONCILE_QUEUE_SIZE", 256),
			Period:               envVarOr("RECONCILE_PERIOD", "@every 30s"),
			MaxAttempts:          envVarAtoiOr("RECONCILE_MAX_ATTEMPTS", 8),
			BaseBackoff:          envVarAsDurationOr("RECONCILE_BASE_BACKOFF", 30*time.Second),
			MaxBackoff:           envVarAsDurationOr("RECONCILE_MAX_BACKOFF", 30*time.Minute),
			JobTimeout:           envVarAsDurationOr("RECONCILE_JOB_TIMEOUT", 30*time.Second),
			AutoComplete:         envVarAsBoolOr("RECONCILE_AUTO_COMPLETE", true),
			ConfirmationDeadline: envVarAsDurationOr("RECONCILE_CONFIRMATION_DEADLINE", 6*time.Hour),
		},
		Referral: ReferralConfig{
			Levels:       envVarOr("REFERRAL_LEVELS", "5,3,1"),
			PayoutPeriod: envVarOr("REFERRAL_PAYOUT_PERIOD", "@every 1m"),
		},
		Alert: AlertConfig{
			WebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		},
		Vault: VaultConfig{
			Addr:   os.Getenv("VAULT_ADDR"),
			KVPath: envVarOr("VAULT_KV_PATH", "secret/data/custody-backend"),
			Role:   envVarOr("VAULT_ROLE", "custody-backend"),
		},
	}
}

// ApplySecrets overrides the secret fields present in secrets and returns
// the keys it applied. Unknown and empty keys are ignored.
func (c *AppConfig) ApplySecrets(secrets map[string]string) []string {
	var applied []string
	for key, set := range secretKeys {
		if v := secrets[key]; v != "" {
			set(c, v)
			applied = append(applied, key)
		}
	}
	sort.Strings(applied)
	return applied
}

func envVarOr(envName, fallback string) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return fallback
}

func envVarAtoiOr(envName string, fallback int) int {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		panic(err)
	}

	return value
}

func envVarAsBoolOr(envName string, fallback bool) bool {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	return valueStr == "true"
}

func envVarAsDurationOr(envName string, fallback time.Duration) time.Duration {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		panic(err)
	}
	return value
}

func envVarAsList(envName string) []string {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
