// Package config provides configuration management for the delivery service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment Environment
	DatabaseURL string
	ListenAddr  string
	// BaseURL is the public address of the service, used in mailed links.
	BaseURL string

	SessionSecret string
	SessionMaxAge int // session lifetime in seconds (default: 86400)

	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
	RoleFile         string

	CORSOrigins       []string
	RateLimitRequests int64
	RateLimitPeriod   string
	RedisURL          string

	SMTP SMTPConfig
	S3   S3Config

	// MaintenanceSchedule is the cron spec for the payment maintenance jobs.
	MaintenanceSchedule        string
	ReproductionMaxDaysPayment int
	ReproductionReminderDays   int
}

// SMTPConfig holds outgoing mail settings. Mail is disabled when Host is empty.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	UseTLS   bool
}

// S3Config holds the object store used for reproduction downloads. Links
// fall back to the service itself when Bucket is empty.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	LinkTTL         time.Duration
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	sessionMaxAge := getEnvInt("SESSION_MAX_AGE", 86400)
	if sessionMaxAge < 0 {
		sessionMaxAge = 86400
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":" + getEnv("PORT", "8080")
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	rateLimitRequests := int64(getEnvInt("RATE_LIMIT_REQUESTS", 100))
	if rateLimitRequests <= 0 {
		rateLimitRequests = 100
	}

	maxDays := getEnvInt("REPRODUCTION_MAX_DAYS_PAYMENT", 21)
	if maxDays <= 0 {
		maxDays = 21
	}
	reminderDays := getEnvInt("REPRODUCTION_REMINDER_DAYS", 14)
	if reminderDays <= 0 || reminderDays >= maxDays {
		reminderDays = maxDays / 3 * 2
	}

	return ServerConfig{
		Environment:   env,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		ListenAddr:    listenAddr,
		BaseURL:       strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionMaxAge: sessionMaxAge,

		OIDCIssuer:       os.Getenv("OIDC_ISSUER"),
		OIDCClientID:     os.Getenv("OIDC_CLIENT_ID"),
		OIDCClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
		OIDCRedirectURL:  os.Getenv("OIDC_REDIRECT_URL"),
		RoleFile:         os.Getenv("ROLE_FILE"),

		CORSOrigins:       origins,
		RateLimitRequests: rateLimitRequests,
		RateLimitPeriod:   getEnv("RATE_LIMIT_PERIOD", "1m"),
		RedisURL:          os.Getenv("REDIS_URL"),

		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "delivery@localhost"),
			FromName: getEnv("SMTP_FROM_NAME", "Reading Room"),
			UseTLS:   getEnvBool("SMTP_TLS", false),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Prefix:          getEnv("S3_PREFIX", "reproductions/"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			LinkTTL:         getEnvDuration("S3_LINK_TTL", 7*24*time.Hour),
		},

		MaintenanceSchedule:        getEnv("MAINTENANCE_SCHEDULE", "0 0 * * 1-5"),
		ReproductionMaxDaysPayment: maxDays,
		ReproductionReminderDays:   reminderDays,
	}
}

// Validate checks the settings the server cannot start without.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if len(c.SessionSecret) < 32 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 32 bytes"))
	}
	if c.OIDCIssuer != "" && (c.OIDCClientID == "" || c.OIDCRedirectURL == "") {
		errs = append(errs, errors.New("OIDC_CLIENT_ID and OIDC_REDIRECT_URL are required with OIDC_ISSUER"))
	}
	return errors.Join(errs...)
}

// OIDCEnabled reports whether staff login through an identity provider is configured.
func (c ServerConfig) OIDCEnabled() bool {
	return c.OIDCIssuer != ""
}

// RoleFile is the optional YAML file mapping identity-provider groups to
// permissions and overriding mail subjects.
type RoleFile struct {
	Groups       map[string][]string `yaml:"groups"`
	MailSubjects map[string]string   `yaml:"mail_subjects"`
}

// LoadRoleFile reads and parses a role file.
func LoadRoleFile(path string) (*RoleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role file: %w", err)
	}
	var rf RoleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse role file %s: %w", path, err)
	}
	if len(rf.Groups) == 0 {
		return nil, fmt.Errorf("role file %s defines no groups", path)
	}
	return &rf, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration reads a Go duration from an environment variable, returning the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
