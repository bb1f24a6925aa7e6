/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"errors"
	"time"

	"github.com/acronis/inference-gateway/config"
	"github.com/acronis/inference-gateway/internal/ratelimit"
)

// MaxConcurrencyEnvVar is an environment variable that may be used for specifying the admission gate capacity.
const MaxConcurrencyEnvVar = "GATEWAY_MAX_CONCURRENCY"

const cfgDefaultKeyPrefix = "gateway"

const (
	cfgKeyMaxConcurrency = "maxConcurrency"
	cfgKeyBacklogLimit   = "backlogLimit"
	cfgKeyBacklogTimeout = "backlogTimeout"
	cfgKeyRetryAfter     = "retryAfter"
	cfgKeyRateLimit      = "rateLimit"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// Config represents a set of configuration parameters of admission control.
type Config struct {
	// MaxConcurrency is the capacity of the admission gate. Zero means unlimited.
	MaxConcurrency int           `mapstructure:"maxConcurrency"`
	BacklogLimit   int           `mapstructure:"backlogLimit"`
	BacklogTimeout time.Duration `mapstructure:"backlogTimeout"`

	// RetryAfter is sent in the Retry-After header of the 503 responses when the admission queue rejects a request.
	RetryAfter time.Duration `mapstructure:"retryAfter"`

	RateLimit ratelimit.Config `mapstructure:"rateLimit"`

	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// The gate capacity may also be taken from the GATEWAY_MAX_CONCURRENCY environment variable.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	_ = dp.BindEnv(cfgKeyMaxConcurrency, MaxConcurrencyEnvVar)
	dp.SetDefault(cfgKeyMaxConcurrency, 0)
	dp.SetDefault(cfgKeyBacklogLimit, 0)
	dp.SetDefault(cfgKeyBacklogTimeout, 0)
	dp.SetDefault(cfgKeyRetryAfter, 0)
	c.RateLimit.SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, cfgKeyRateLimit))
}

// Set sets admission configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.MaxConcurrency, err = dp.GetInt(cfgKeyMaxConcurrency); err != nil {
		return err
	}
	if c.MaxConcurrency < 0 {
		return dp.WrapKeyErr(cfgKeyMaxConcurrency, errors.New("cannot be negative"))
	}
	if c.BacklogLimit, err = dp.GetInt(cfgKeyBacklogLimit); err != nil {
		return err
	}
	if c.BacklogLimit < 0 {
		return dp.WrapKeyErr(cfgKeyBacklogLimit, errors.New("cannot be negative"))
	}
	if c.BacklogTimeout, err = dp.GetDuration(cfgKeyBacklogTimeout); err != nil {
		return err
	}
	if c.BacklogTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyBacklogTimeout, errors.New("cannot be negative"))
	}
	if c.RetryAfter, err = dp.GetDuration(cfgKeyRetryAfter); err != nil {
		return err
	}
	if c.RetryAfter < 0 {
		return dp.WrapKeyErr(cfgKeyRetryAfter, errors.New("cannot be negative"))
	}
	return c.RateLimit.Set(config.NewKeyPrefixedDataProvider(dp, cfgKeyRateLimit))
}
