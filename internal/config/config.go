// Package config loads service settings from the environment.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Prefix namespaces every variable, e.g. ORDERDESK_SOURCE_URL.
const Prefix = "ORDERDESK"

type Config struct {
	BusinessID  string `envconfig:"BUSINESS_ID" validate:"max=128"`
	SourceURL   string `envconfig:"SOURCE_URL" validate:"required,url"`
	SourceToken string `envconfig:"SOURCE_TOKEN"`

	HTTPAddr       string        `envconfig:"HTTP_ADDR" default:":8080" validate:"required"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"30s" validate:"min=1s"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s" validate:"gt=0"`
	AlertTTL       time.Duration `envconfig:"ALERT_TTL" default:"10s" validate:"gt=0"`
	MutationSlots  int           `envconfig:"MUTATION_SLOTS" default:"4" validate:"min=1,max=64"`

	RedisAddr    string `envconfig:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"orderdesk:new-orders" validate:"required"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error fatal panic"`
	LogJSON  bool   `envconfig:"LOG_JSON" default:"false"`
}

// Load reads envFiles (missing files are skipped) and then the process
// environment. Variables already set in the environment win over files.
// The result is not validated; callers apply overrides and call Validate.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, errors.Wrapf(err, "load %s", f)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "read environment")
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the settings are usable.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
