// Package config loads service settings from flags, an optional YAML file,
// the environment and a .env file, in that order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Database struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     string `mapstructure:"port" validate:"required,numeric"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required"`
	SSLMode  string `mapstructure:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	// DSN overrides every other field when set.
	DSN string `mapstructure:"dsn"`
}

// ConnString renders the keyword/value connection string gorm's postgres driver expects.
func (d Database) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type Config struct {
	Port      string   `mapstructure:"port" validate:"required,numeric"`
	LogLevel  string   `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	JWTSecret string   `mapstructure:"jwt_secret" validate:"required,min=16"`
	DB        Database `mapstructure:"db"`
}

var defaults = map[string]any{
	"port":        "8080",
	"log_level":   "info",
	"jwt_secret":  "",
	"db.host":     "localhost",
	"db.port":     "5432",
	"db.user":     "postgres",
	"db.password": "",
	"db.name":     "thumbsup",
	"db.sslmode":  "disable",
	"db.dsn":      "",
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"port":      "port",
	"log-level": "log_level",
	"db-dsn":    "db.dsn",
}

// Load reads configuration. cfgFile may be empty; flags may be nil.
// Environment variables use the upper-cased key with dots replaced by
// underscores, e.g. DB_HOST or JWT_SECRET.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
