package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Database struct {
		Host           string `mapstructure:"host" validate:"required"`
		Port           int    `mapstructure:"port" validate:"required,gt=0"`
		User           string `mapstructure:"user" validate:"required"`
		Password       string `mapstructure:"password"`
		Name           string `mapstructure:"name" validate:"required"`
		SSLMode        string `mapstructure:"sslmode"`
		MigrationsPath string `mapstructure:"migrations_path"`
	} `mapstructure:"database"`
	Redis struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Server struct {
		Port string `mapstructure:"port" validate:"required"`
	} `mapstructure:"server"`
	JWT         JWTConfig `mapstructure:"jwt"`
	Blacklist   struct {
		Backend string `mapstructure:"backend" validate:"oneof=postgres redis memory"`
	} `mapstructure:"blacklist"`
	Maintenance struct {
		CleanupInterval      time.Duration `mapstructure:"cleanup_interval" validate:"gte=0"`
		RevokedRetentionDays int           `mapstructure:"revoked_retention_days" validate:"gte=0"`
	} `mapstructure:"maintenance"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	} `mapstructure:"log"`
}

// JWTConfig is the token configuration surface shared by the codec, signer and token service.
type JWTConfig struct {
	Algorithm            string        `mapstructure:"algorithm" validate:"oneof=RS256"`
	PrivateKeyPath       string        `mapstructure:"private_key_path" validate:"required"`
	PublicKeyPath        string        `mapstructure:"public_key_path" validate:"required"`
	AccessTTL            time.Duration `mapstructure:"access_ttl" validate:"gt=0"`
	RefreshTTL           time.Duration `mapstructure:"refresh_ttl" validate:"gt=0"`
	Issuer               string        `mapstructure:"issuer" validate:"required"`
	Audience             string        `mapstructure:"audience" validate:"required"`
	Leeway               time.Duration `mapstructure:"leeway" validate:"gte=0"`
	MaxActiveTokens      int           `mapstructure:"max_active_tokens" validate:"gt=0"`
	CheckAccessBlacklist bool          `mapstructure:"check_access_blacklist"`
	RevokeFamilyOnReuse  bool          `mapstructure:"revoke_family_on_reuse"`
	BindDevice           bool          `mapstructure:"bind_device"`
}

var AppConfig Config

var validate = validator.New()

var defaults = map[string]any{
	"server.port":                        "8080",
	"database.host":                      "localhost",
	"database.port":                      5432,
	"database.user":                      "postgres",
	"database.password":                  "",
	"database.name":                      "auth",
	"database.sslmode":                   "disable",
	"database.migrations_path":           "file://db/migrations",
	"redis.host":                         "localhost",
	"redis.port":                         "6379",
	"redis.password":                     "",
	"redis.db":                           0,
	"jwt.algorithm":                      "RS256",
	"jwt.private_key_path":               "keys/private.pem",
	"jwt.public_key_path":                "keys/public.pem",
	"jwt.access_ttl":                     "15m",
	"jwt.refresh_ttl":                    "720h",
	"jwt.issuer":                         "go-token-auth",
	"jwt.audience":                       "go-token-auth-clients",
	"jwt.leeway":                         "0s",
	"jwt.max_active_tokens":              50,
	"jwt.check_access_blacklist":         true,
	"jwt.revoke_family_on_reuse":         true,
	"jwt.bind_device":                    false,
	"blacklist.backend":                  "postgres",
	"maintenance.cleanup_interval":       "1h",
	"maintenance.revoked_retention_days": 30,
	"log.level":                          "info",
	"log.format":                         "json",
}

// LoadConfig reads config.yml from path (when present), overlays AUTH_* environment
// variables and validates the result. The loaded value is also stored in AppConfig.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.SetEnvPrefix("auth")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &cfg, nil
}

// Validate checks field constraints and the access/refresh lifetime ordering.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.JWT.AccessTTL > cfg.JWT.RefreshTTL {
		return errors.New("invalid configuration: jwt.access_ttl must not exceed jwt.refresh_ttl")
	}
	return nil
}

// DSN builds the lib/pq connection string. When redactPassword is set the password is omitted,
// which is the form used for logging.
func (c *Config) DSN(redactPassword bool) string {
	db := c.Database
	if redactPassword {
		return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
			db.Host, db.Port, db.User, db.Name, db.SSLMode)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.User, db.Password, db.Name, db.SSLMode)
}
