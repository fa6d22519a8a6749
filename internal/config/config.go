// Package config loads the vault's runtime settings.
//
// Values come from three layers, later ones winning:
//
//	defaults (below) → configs/config.<env>.yaml → SDV_* environment variables
//
// An env var maps to a key by upper-casing it and replacing dots with
// underscores: auth.jwt_secret → SDV_AUTH_JWT_SECRET.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DevEmailKey is the development default for crypto.email_key.
// Rows written by earlier deployments were sealed with this key.
const DevEmailKey = "0123456789abcdef0123456789abcdef"

type Config struct {
	Env       string          `mapstructure:"env"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Mail      MailConfig      `mapstructure:"mail"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Log       LogConfig       `mapstructure:"log"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type CryptoConfig struct {
	EmailKey string `mapstructure:"email_key"`
}

type AuditConfig struct {
	// Scheme is "chain" or "action".
	Scheme string `mapstructure:"scheme"`
}

type MailConfig struct {
	// Provider is "log" or "sendgrid".
	Provider       string `mapstructure:"provider"`
	SendgridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromAddress    string `mapstructure:"from_address"`
	FromName       string `mapstructure:"from_name"`
}

// NATSConfig is optional; an empty URL disables the audit event stream.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// BootstrapConfig seeds the first admin account. It is used only when
// admin_email is set and no admin exists yet.
type BootstrapConfig struct {
	AdminName     string `mapstructure:"admin_name"`
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

type LogConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

var defaults = map[string]any{
	"env":                      "local",
	"server.port":              5000,
	"server.read_timeout":      "15s",
	"server.write_timeout":     "15s",
	"server.cors_origins":      []string{"*"},
	"database.path":            "data/vault.db",
	"auth.jwt_secret":          "",
	"auth.token_ttl":           "1h",
	"auth.bcrypt_cost":         10,
	"crypto.email_key":         DevEmailKey,
	"audit.scheme":             "chain",
	"mail.provider":            "log",
	"mail.sendgrid_api_key":    "",
	"mail.from_address":        "no-reply@studentdatavault.local",
	"mail.from_name":           "Student Data Vault",
	"nats.url":                 "",
	"nats.subject":             "vault.audit",
	"log.format":               "",
	"log.level":                "info",
	"bootstrap.admin_name":     "Administrator",
	"bootstrap.admin_email":    "",
	"bootstrap.admin_password": "",
}

// Load reads configuration for the environment named by SDV_ENV (default "local").
// A missing config file is not an error.
func Load() (*Config, error) {
	env := os.Getenv("SDV_ENV")
	if env == "" {
		env = "local"
	}
	return load(env, "./configs", "/configs")
}

func load(env string, paths ...string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.Set("env", env)

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading file: %w", err)
		}
	}

	v.SetEnvPrefix("SDV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by most deployments.
	_ = v.BindEnv("auth.jwt_secret", "SDV_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("server.port", "SDV_SERVER_PORT", "PORT")
	_ = v.BindEnv("mail.sendgrid_api_key", "SDV_MAIL_SENDGRID_API_KEY", "SENDGRID_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first setting that would prevent the server from starting.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: auth.jwt_secret must be at least 16 characters")
	}
	if len(c.Crypto.EmailKey) != 32 {
		return fmt.Errorf("config: crypto.email_key must be 32 bytes, got %d", len(c.Crypto.EmailKey))
	}
	switch c.Audit.Scheme {
	case "chain", "action":
	default:
		return fmt.Errorf("config: unknown audit.scheme %q", c.Audit.Scheme)
	}
	switch c.Mail.Provider {
	case "log":
	case "sendgrid":
		if c.Mail.SendgridAPIKey == "" {
			return errors.New("config: mail.sendgrid_api_key is required for the sendgrid provider")
		}
	default:
		return fmt.Errorf("config: unknown mail.provider %q", c.Mail.Provider)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	return nil
}
