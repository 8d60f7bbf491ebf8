package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds a GORM-compatible connection string.
func (c DatabaseConfig) DSN() string {
	return "host=" + c.Host + " port=" + c.Port + " user=" + c.User +
		" password=" + c.Password + " dbname=" + c.DBName + " sslmode=" + c.SSLMode
}

// URL builds a postgres:// URL for the migration runner.
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port +
		"/" + c.DBName + "?sslmode=" + c.SSLMode
}

// KafkaConfig holds broker and consumer-group settings.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// WompiConfig holds Gateway A (Wompi) credentials.
type WompiConfig struct {
	BaseURL         string
	PublicKey       string
	PrivateKey      string
	IntegritySecret string
	EventsSecret    string
}

// PayPalConfig holds Gateway B (PayPal) credentials.
type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
}

// ReconciliationConfig tunes the background reconciliation loops.
type ReconciliationConfig struct {
	SweepInterval   time.Duration
	BatchSize       int
	StaleAfter      time.Duration
	LookbackWindow  time.Duration
	OrphanGrace     time.Duration
	ConsumerMaxMsgs int
	ConsumerWait    time.Duration
}

// ServiceConfig holds all configuration for the payments service.
type ServiceConfig struct {
	Port                  string
	AppEnv                string
	JWTSecret             string
	DBConfig              DatabaseConfig
	KafkaConfig           KafkaConfig
	WompiConfig           WompiConfig
	PayPalConfig          PayPalConfig
	Reconciliation        ReconciliationConfig
	ExchangeRates         map[string]float64
	PlatformCommissionBps int64
	RefundWindowHours     int
	PaymentExpiry         time.Duration
}

// IsProduction reports whether the service runs with production strictness
// (webhook signatures mandatory, tight event max-age).
func (c *ServiceConfig) IsProduction() bool { return c.AppEnv == "production" }

// Load reads configuration from the environment (and an optional .env file)
// and returns a ServiceConfig with defaults applied.
func Load() (*ServiceConfig, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // .env is optional; env vars win
	v.AutomaticEnv()

	v.SetDefault("SERVICE_PORT", ":8084")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_PREFIX", "andestrek.")
	v.SetDefault("WOMPI_BASE_URL", "https://sandbox.wompi.co/v1")
	v.SetDefault("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com")
	v.SetDefault("PLATFORM_COMMISSION_BPS", 1000)
	v.SetDefault("REFUND_WINDOW_HOURS", 48)
	v.SetDefault("PAYMENT_EXPIRY_MINUTES", 15)
	v.SetDefault("RECON_SWEEP_INTERVAL_SECONDS", 300)
	v.SetDefault("RECON_BATCH_SIZE", 100)
	v.SetDefault("RECON_STALE_AFTER_MINUTES", 60)
	v.SetDefault("RECON_LOOKBACK_HOURS", 24)
	v.SetDefault("RECON_ORPHAN_GRACE_MINUTES", 5)
	v.SetDefault("RECON_CONSUMER_MAX_MESSAGES", 10)
	v.SetDefault("RECON_CONSUMER_WAIT_SECONDS", 5)
	// Default rate table, COP per unit of foreign currency. Overridable via
	// EXCHANGE_RATE_<CUR> since rate sourcing lives outside this service.
	v.SetDefault("EXCHANGE_RATE_USD", 4000.0)
	v.SetDefault("EXCHANGE_RATE_EUR", 4350.0)

	rates := map[string]float64{
		"COP": 1.0,
		"USD": v.GetFloat64("EXCHANGE_RATE_USD"),
		"EUR": v.GetFloat64("EXCHANGE_RATE_EUR"),
	}

	return &ServiceConfig{
		Port:      v.GetString("SERVICE_PORT"),
		AppEnv:    v.GetString("APP_ENV"),
		JWTSecret: v.GetString("JWT_SECRET"),
		DBConfig: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		KafkaConfig: KafkaConfig{
			Brokers:     strings.Split(v.GetString("KAFKA_BROKERS"), ","),
			GroupPrefix: v.GetString("KAFKA_GROUP_PREFIX"),
		},
		WompiConfig: WompiConfig{
			BaseURL:         v.GetString("WOMPI_BASE_URL"),
			PublicKey:       v.GetString("WOMPI_PUBLIC_KEY"),
			PrivateKey:      v.GetString("WOMPI_PRIVATE_KEY"),
			IntegritySecret: v.GetString("WOMPI_INTEGRITY_SECRET"),
			EventsSecret:    v.GetString("WOMPI_EVENTS_SECRET"),
		},
		PayPalConfig: PayPalConfig{
			BaseURL:      v.GetString("PAYPAL_BASE_URL"),
			ClientID:     v.GetString("PAYPAL_CLIENT_ID"),
			ClientSecret: v.GetString("PAYPAL_CLIENT_SECRET"),
			WebhookID:    v.GetString("PAYPAL_WEBHOOK_ID"),
		},
		Reconciliation: ReconciliationConfig{
			SweepInterval:   time.Duration(v.GetInt("RECON_SWEEP_INTERVAL_SECONDS")) * time.Second,
			BatchSize:       v.GetInt("RECON_BATCH_SIZE"),
			StaleAfter:      time.Duration(v.GetInt("RECON_STALE_AFTER_MINUTES")) * time.Minute,
			LookbackWindow:  time.Duration(v.GetInt("RECON_LOOKBACK_HOURS")) * time.Hour,
			OrphanGrace:     time.Duration(v.GetInt("RECON_ORPHAN_GRACE_MINUTES")) * time.Minute,
			ConsumerMaxMsgs: v.GetInt("RECON_CONSUMER_MAX_MESSAGES"),
			ConsumerWait:    time.Duration(v.GetInt("RECON_CONSUMER_WAIT_SECONDS")) * time.Second,
		},
		ExchangeRates:         rates,
		PlatformCommissionBps: v.GetInt64("PLATFORM_COMMISSION_BPS"),
		RefundWindowHours:     v.GetInt("REFUND_WINDOW_HOURS"),
		PaymentExpiry:         time.Duration(v.GetInt("PAYMENT_EXPIRY_MINUTES")) * time.Minute,
	}, nil
}
