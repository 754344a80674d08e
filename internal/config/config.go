// Package config loads the service configuration: a YAML file for the
// structural settings, environment variables (optionally via .env) for
// secrets and deployment-specific values. Environment always wins.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Crypto        CryptoConfig        `yaml:"crypto"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	CORS          CORSConfig          `yaml:"cors"`
	HinSchG       HinSchGConfig       `yaml:"hinschg"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CryptoConfig struct {
	// MasterKey derives the per-field encryption keys; >=32 characters.
	MasterKey string `yaml:"master_key"`
	// AuditHMACKey seals the audit chain; >=32 characters.
	AuditHMACKey string `yaml:"audit_hmac_key"`
}

type NotificationsConfig struct {
	// WebhookURL is the mail-relay endpoint. Empty means log-only delivery.
	WebhookURL string `yaml:"webhook_url"`
	Workers    int    `yaml:"workers"`
}

type SchedulerConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	DigestHour      int `yaml:"digest_hour"`
}

type MetricsConfig struct {
	RefreshSeconds int `yaml:"refresh_seconds"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// HinSchGConfig sets the deployment-wide deadline defaults. Tenants may
// still override per tenant; both are validated against the legal bounds.
type HinSchGConfig struct {
	EingangsbestaetigungTage int `yaml:"eingangsbestaetigung_tage"`
	RueckmeldungTage         int `yaml:"rueckmeldung_tage"`
	AufbewahrungJahre        int `yaml:"aufbewahrung_jahre"`
	ReminderVorlaufTage      int `yaml:"reminder_vorlauf_tage"`
}

// LoadConfig reads the YAML file, then applies environment overrides.
// A missing file is fine — everything can come from the environment.
func LoadConfig(path string) (*Config, error) {
	// .env is for development; absence is not an error.
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case os.IsNotExist(err):
			// env-only configuration
		case err != nil:
			return nil, fmt.Errorf("open config %s: %w", path, err)
		default:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:        ServerConfig{Port: "8080", Env: "development"},
		Redis:         RedisConfig{Addr: "localhost:6379"},
		Notifications: NotificationsConfig{Workers: 4},
		Scheduler:     SchedulerConfig{IntervalMinutes: 60, DigestHour: 8},
		Metrics:       MetricsConfig{RefreshSeconds: 60},
		HinSchG: HinSchGConfig{
			EingangsbestaetigungTage: 7,
			RueckmeldungTage:         90,
			AufbewahrungJahre:        3,
			ReminderVorlaufTage:      2,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.Env, "APP_ENV")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.Addr, "REDIS_URL")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setString(&cfg.Crypto.MasterKey, "ENCRYPTION_MASTER_KEY")
	setString(&cfg.Crypto.AuditHMACKey, "AUDIT_HMAC_KEY")
	setString(&cfg.Notifications.WebhookURL, "NOTIFICATION_WEBHOOK_URL")
	setInt(&cfg.Notifications.Workers, "NOTIFICATION_WORKERS")
	setInt(&cfg.Scheduler.IntervalMinutes, "SCHEDULER_INTERVAL_MINUTES")
	setInt(&cfg.Scheduler.DigestHour, "SCHEDULER_DIGEST_HOUR")
	setInt(&cfg.HinSchG.EingangsbestaetigungTage, "HINSCHG_EINGANGSBESTAETIGUNG_TAGE")
	setInt(&cfg.HinSchG.RueckmeldungTage, "HINSCHG_RUECKMELDUNG_TAGE")
	setInt(&cfg.HinSchG.AufbewahrungJahre, "HINSCHG_AUFBEWAHRUNG_JAHRE")
	setInt(&cfg.HinSchG.ReminderVorlaufTage, "HINSCHG_REMINDER_VORLAUF_TAGE")

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, p)
			}
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(c.Crypto.MasterKey) < 32 {
		return fmt.Errorf("ENCRYPTION_MASTER_KEY must be at least 32 characters")
	}
	if len(c.Crypto.AuditHMACKey) < 32 {
		return fmt.Errorf("AUDIT_HMAC_KEY must be at least 32 characters")
	}
	if c.Scheduler.DigestHour < 0 || c.Scheduler.DigestHour > 23 {
		return fmt.Errorf("scheduler digest_hour must be between 0 and 23")
	}
	if c.Notifications.Workers < 1 {
		return fmt.Errorf("notification workers must be at least 1")
	}
	return nil
}
