package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogFormat      string        `mapstructure:"LOG_FORMAT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	KafkaBrokers   []string `mapstructure:"KAFKA_BROKERS"`
	KafkaJobsTopic string   `mapstructure:"KAFKA_JOBS_TOPIC"`
	KafkaGroupID   string   `mapstructure:"KAFKA_GROUP_ID"`

	S3Bucket   string `mapstructure:"S3_BUCKET"`
	S3Endpoint string `mapstructure:"S3_ENDPOINT"`
	AWSRegion  string `mapstructure:"AWS_REGION"`

	EligibilityGRPCAddr   string `mapstructure:"ELIGIBILITY_GRPC_ADDR"`
	EligibilityMaxRetries int    `mapstructure:"ELIGIBILITY_MAX_RETRIES"`

	AlegeusBaseURL      string `mapstructure:"ALEGEUS_BASE_URL"`
	AlegeusTPAID        string `mapstructure:"ALEGEUS_TPA_ID"`
	AlegeusClientID     string `mapstructure:"ALEGEUS_CLIENT_ID"`
	AlegeusClientSecret string `mapstructure:"ALEGEUS_CLIENT_SECRET"`

	BrazeAPIURL     string `mapstructure:"BRAZE_API_URL"`
	BrazeAPIKey     string `mapstructure:"BRAZE_API_KEY"`
	ZendeskBaseURL  string `mapstructure:"ZENDESK_BASE_URL"`
	ZendeskEmail    string `mapstructure:"ZENDESK_EMAIL"`
	ZendeskAPIToken string `mapstructure:"ZENDESK_API_TOKEN"`

	PayerProfilesFile     string `mapstructure:"PAYER_PROFILES_FILE"`
	BookingMinLeadMinutes int    `mapstructure:"BOOKING_MIN_LEAD_MINUTES"`
	AccumulationCron      string `mapstructure:"ACCUMULATION_CRON"`
	DebitSyncCron         string `mapstructure:"DEBIT_SYNC_CRON"`
}

var keys = []string{
	"PORT", "ENV", "LOG_FORMAT", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"KAFKA_BROKERS", "KAFKA_JOBS_TOPIC", "KAFKA_GROUP_ID",
	"S3_BUCKET", "S3_ENDPOINT", "AWS_REGION",
	"ELIGIBILITY_GRPC_ADDR", "ELIGIBILITY_MAX_RETRIES",
	"ALEGEUS_BASE_URL", "ALEGEUS_TPA_ID", "ALEGEUS_CLIENT_ID", "ALEGEUS_CLIENT_SECRET",
	"BRAZE_API_URL", "BRAZE_API_KEY", "ZENDESK_BASE_URL", "ZENDESK_EMAIL", "ZENDESK_API_TOKEN",
	"PAYER_PROFILES_FILE", "BOOKING_MIN_LEAD_MINUTES", "ACCUMULATION_CRON", "DEBIT_SYNC_CRON",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("KAFKA_JOBS_TOPIC", "benefits.jobs")
	v.SetDefault("KAFKA_GROUP_ID", "benefits-worker")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("ELIGIBILITY_GRPC_ADDR", "localhost:50051")
	v.SetDefault("ELIGIBILITY_MAX_RETRIES", 3)
	v.SetDefault("BOOKING_MIN_LEAD_MINUTES", 10)
	v.SetDefault("ACCUMULATION_CRON", "0 6 * * *")
	v.SetDefault("DEBIT_SYNC_CRON", "*/30 * * * *")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development a
// token verifier (signing key or issuer) must be configured.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY or AUTH_ISSUER must be set when ENV=%q", c.Env)
	}
	if c.AuthIssuer != "" && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ISSUER is set without AUTH_SIGNING_KEY")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be \"json\" or \"text\", got %q", c.LogFormat)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.EligibilityMaxRetries < 1 {
		return fmt.Errorf("ELIGIBILITY_MAX_RETRIES must be at least 1")
	}
	if c.AlegeusBaseURL != "" && (c.AlegeusClientID == "" || c.AlegeusClientSecret == "") {
		return fmt.Errorf("ALEGEUS_CLIENT_ID and ALEGEUS_CLIENT_SECRET are required with ALEGEUS_BASE_URL")
	}
	if c.ZendeskBaseURL != "" && (c.ZendeskEmail == "" || c.ZendeskAPIToken == "") {
		return fmt.Errorf("ZENDESK_EMAIL and ZENDESK_API_TOKEN are required with ZENDESK_BASE_URL")
	}
	return nil
}

// BookingMinLead is the minimum time between now and a bookable start.
func (c *Config) BookingMinLead() time.Duration {
	return time.Duration(c.BookingMinLeadMinutes) * time.Minute
}
