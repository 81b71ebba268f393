package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	HTTP       ServerConfig
	MySQL      MySQLConfig
	Log        LogConfig
	Daraja     DarajaConfig
	Dealer     DealerConfig
	Aggregator AggregatorConfig
	Notify     NotifyConfig
	Engine     EngineConfig
	Jobs       JobsConfig
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

// DarajaConfig holds the payment rail credentials and endpoints.
type DarajaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string

	ShortCode string
	Passkey   string

	CallbackBaseURL string

	Initiator          string
	InitiatorPassword  string
	CertificatePath    string
	ReversalResultURL  string
	ReversalTimeoutURL string

	HTTPTimeout time.Duration
}

// DealerConfig holds the dealer-direct airtime API credentials.
type DealerConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	GrantURL       string
	AirtimeURL     string
	SenderMsisdn   string

	TokenSafetyMargin time.Duration
	HTTPTimeout       time.Duration
}

// AggregatorConfig holds the third-party aggregator credentials.
type AggregatorConfig struct {
	APIKey     string
	Username   string
	AirtimeURL string

	HTTPTimeout time.Duration
}

// NotifyConfig holds the optional out-of-core notification endpoints.
// Both are best-effort; an empty URL disables the notification.
type NotifyConfig struct {
	AnalyticsURL          string
	OfflineFulfillmentURL string

	HTTPTimeout time.Duration
}

type EngineConfig struct {
	DispatchTimeout time.Duration
}

type JobsConfig struct {
	ReconcileInterval time.Duration
	StuckAfter        time.Duration
	BatchSize         int32
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "airtime-gateway"),
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
		Daraja: DarajaConfig{
			BaseURL:            getEnv("DARAJA_BASE_URL", "https://api.safaricom.co.ke"),
			ConsumerKey:        getEnv("DARAJA_CONSUMER_KEY", ""),
			ConsumerSecret:     getEnv("DARAJA_CONSUMER_SECRET", ""),
			ShortCode:          getEnv("DARAJA_SHORT_CODE", ""),
			Passkey:            getEnv("DARAJA_PASSKEY", ""),
			CallbackBaseURL:    getEnv("DARAJA_CALLBACK_BASE_URL", ""),
			Initiator:          getEnv("DARAJA_INITIATOR", ""),
			InitiatorPassword:  getEnv("DARAJA_INITIATOR_PASSWORD", ""),
			CertificatePath:    getEnv("DARAJA_CERTIFICATE_PATH", ""),
			ReversalResultURL:  getEnv("DARAJA_REVERSAL_RESULT_URL", ""),
			ReversalTimeoutURL: getEnv("DARAJA_REVERSAL_TIMEOUT_URL", ""),
			HTTPTimeout:        getSecondsEnv("DARAJA_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		Dealer: DealerConfig{
			ConsumerKey:       getEnv("DEALER_CONSUMER_KEY", ""),
			ConsumerSecret:    getEnv("DEALER_CONSUMER_SECRET", ""),
			GrantURL:          getEnv("DEALER_GRANT_URL", ""),
			AirtimeURL:        getEnv("DEALER_AIRTIME_URL", ""),
			SenderMsisdn:      getEnv("DEALER_SENDER_MSISDN", ""),
			TokenSafetyMargin: getSecondsEnv("DEALER_TOKEN_SAFETY_MARGIN_SECONDS", 120*time.Second),
			HTTPTimeout:       getSecondsEnv("DEALER_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		Aggregator: AggregatorConfig{
			APIKey:      getEnv("AGGREGATOR_API_KEY", ""),
			Username:    getEnv("AGGREGATOR_USERNAME", ""),
			AirtimeURL:  getEnv("AGGREGATOR_AIRTIME_URL", "https://api.africastalking.com/version1/airtime/send"),
			HTTPTimeout: getSecondsEnv("AGGREGATOR_HTTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		Notify: NotifyConfig{
			AnalyticsURL:          getEnv("ANALYTICS_SERVICE_URL", ""),
			OfflineFulfillmentURL: getEnv("OFFLINE_FULFILLMENT_URL", ""),
			HTTPTimeout:           getSecondsEnv("NOTIFY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Engine: EngineConfig{
			DispatchTimeout: getSecondsEnv("ENGINE_DISPATCH_TIMEOUT_SECONDS", 90*time.Second),
		},
		Jobs: JobsConfig{
			ReconcileInterval: getMinutesEnv("JOBS_RECONCILE_INTERVAL_MINUTES", 5*time.Minute),
			StuckAfter:        getMinutesEnv("JOBS_STUCK_AFTER_MINUTES", 30*time.Minute),
			BatchSize:         int32(getIntEnv("JOBS_BATCH_SIZE", 100)),
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
