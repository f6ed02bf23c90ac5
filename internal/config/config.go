package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "SUNDAE"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "sundae.db"
	defaultLogLevel      = "info"
	defaultCookieName    = "sundae_session"
	defaultSessionIssuer = "sundae"
	defaultAppURL        = "https://sundae.to"
	defaultCacheTTL      = 60

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var whitespacePattern = regexp.MustCompile(`\s`)

// legacyEnv lists unprefixed variables honoured after the SUNDAE_ one, in order.
var legacyEnv = map[string][]string{
	"database.dsn":         {"DATABASE_URL", "POSTGRES_URL", "POSTGRES_URL_NON_POOLING", "POSTGRES_PRISMA_URL"},
	"app.url":              {"APP_URL"},
	"email.resend_api_key": {"RESEND_API_KEY"},
	"email.resend_from":    {"RESEND_FROM"},
	"e2e.enabled":          {"E2E"},
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	DatabaseDriver       string
	DatabasePath         string
	DatabaseDSN          string
	LogLevel             string
	LogFile              string
	SessionSigningSecret string
	SessionCookieName    string
	SessionIssuer        string
	AppURL               string
	ResendAPIKey         string
	ResendFrom           string
	ResendEndpoint       string
	RedisURL             string
	CacheTTL             time.Duration
	AnalyticsIPSalt      string
	MetricsEnabled       bool
	CORSAllowedOrigins   []string
	E2EEnabled           bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	for key, names := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = configViper.BindEnv(append([]string{key, prefixed}, names...)...)
	}

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("cache.ttl_seconds", defaultCacheTTL)
	configViper.SetDefault("metrics.enabled", true)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          strings.TrimSpace(configViper.GetString("http.address")),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:         strings.TrimSpace(configViper.GetString("database.path")),
		DatabaseDSN:          strings.TrimSpace(configViper.GetString("database.dsn")),
		LogLevel:             configViper.GetString("log.level"),
		LogFile:              strings.TrimSpace(configViper.GetString("log.file")),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionCookieName:    strings.TrimSpace(configViper.GetString("session.cookie_name")),
		SessionIssuer:        strings.TrimSpace(configViper.GetString("session.issuer")),
		AppURL:               strings.TrimRight(strings.TrimSpace(configViper.GetString("app.url")), "/"),
		ResendAPIKey:         strings.TrimSpace(configViper.GetString("email.resend_api_key")),
		ResendFrom:           strings.TrimSpace(configViper.GetString("email.resend_from")),
		ResendEndpoint:       strings.TrimSpace(configViper.GetString("email.resend_endpoint")),
		RedisURL:             strings.TrimSpace(configViper.GetString("redis.url")),
		CacheTTL:             time.Duration(configViper.GetInt("cache.ttl_seconds")) * time.Second,
		AnalyticsIPSalt:      configViper.GetString("analytics.ip_salt"),
		MetricsEnabled:       configViper.GetBool("metrics.enabled"),
		CORSAllowedOrigins:   splitList(configViper.GetStringSlice("cors.allowed_origins")),
		E2EEnabled:           configViper.GetBool("e2e.enabled"),
	}
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = DriverSQLite
		if cfg.DatabaseDSN != "" {
			cfg.DatabaseDriver = DriverPostgres
		}
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// PublicBaseURL is the configured app URL or the production default.
func (c AppConfig) PublicBaseURL() string {
	if c.AppURL != "" {
		return c.AppURL
	}
	return defaultAppURL
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if c.SessionCookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.SessionIssuer == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache.ttl_seconds must not be negative")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		return ValidateDatabaseURL(c.DatabaseDSN)
	default:
		return fmt.Errorf("database.driver must be %q or %q", DriverSQLite, DriverPostgres)
	}
	return nil
}

// ValidateDatabaseURL rejects connection strings that are empty or would be misparsed.
func ValidateDatabaseURL(dsn string) error {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return fmt.Errorf("database.dsn is required; set DATABASE_URL (or POSTGRES_URL / POSTGRES_URL_NON_POOLING)")
	}
	if whitespacePattern.MatchString(trimmed) {
		return fmt.Errorf("database url contains whitespace; remove it or URL-encode the password")
	}
	if strings.Count(trimmed, "@") > 1 {
		return fmt.Errorf("database url contains multiple '@' characters; URL-encode '@' in the password as %%40")
	}
	return nil
}

func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
