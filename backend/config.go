/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/acronis/inference-gateway/config"
	"github.com/acronis/inference-gateway/httpclient"
)

// Default values.
const (
	DefaultBaseURL                  = "http://llama-backend:8080"
	DefaultUserAgent                = "inference-gateway"
	DefaultStreamBufferSize         = 32 * 1024
	DefaultMaxErrorBodySize         = 1024 * 1024
	DefaultHealthCheckPath          = "/health"
	DefaultHealthCheckInterval      = 10 * time.Second
	DefaultHealthCheckTimeout       = 2 * time.Second
	DefaultStartupProbeMaxAttempts  = 10
	DefaultStartupProbeInitInterval = 500 * time.Millisecond
)

// BaseURLEnvVar is an environment variable that may be used for specifying the backend base URL.
const BaseURLEnvVar = "BACKEND_BASE_URL"

const cfgDefaultKeyPrefix = "backend"

const (
	cfgKeyBaseURL                     = "baseURL"
	cfgKeyUserAgent                   = "userAgent"
	cfgKeyStreamBufferSize            = "streamBufferSize"
	cfgKeyMaxErrorBodySize            = "maxErrorBodySize"
	cfgKeyHealthCheckEnabled          = "healthCheck.enabled"
	cfgKeyHealthCheckPath             = "healthCheck.path"
	cfgKeyHealthCheckInterval         = "healthCheck.interval"
	cfgKeyHealthCheckTimeout          = "healthCheck.timeout"
	cfgKeyStartupProbeEnabled         = "startupProbe.enabled"
	cfgKeyStartupProbeMaxAttempts     = "startupProbe.maxAttempts"
	cfgKeyStartupProbeInitialInterval = "startupProbe.initialInterval"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// Config represents a set of configuration parameters for the backend client.
type Config struct {
	BaseURL   string `mapstructure:"baseURL"`
	UserAgent string `mapstructure:"userAgent"`

	StreamBufferSize config.BytesCount `mapstructure:"streamBufferSize"`
	MaxErrorBodySize config.BytesCount `mapstructure:"maxErrorBodySize"`

	// HTTPClient.Timeouts.Request bounds buffered (non-streaming) calls only. Zero means no timeout.
	HTTPClient   httpclient.Config  `mapstructure:",squash"`
	HealthCheck  HealthCheckConfig  `mapstructure:"healthCheck"`
	StartupProbe StartupProbeConfig `mapstructure:"startupProbe"`

	keyPrefix string
}

// HealthCheckConfig configures periodic backend health probing.
type HealthCheckConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Path     string        `mapstructure:"path"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StartupProbeConfig configures waiting for the backend readiness before serving.
type StartupProbeConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxAttempts     int           `mapstructure:"maxAttempts"`
	InitialInterval time.Duration `mapstructure:"initialInterval"`
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

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	cfg := NewConfig()
	cfg.BaseURL = DefaultBaseURL
	cfg.UserAgent = DefaultUserAgent
	cfg.StreamBufferSize = DefaultStreamBufferSize
	cfg.MaxErrorBodySize = DefaultMaxErrorBodySize
	cfg.HTTPClient = *httpclient.NewDefaultConfig()
	cfg.HealthCheck = HealthCheckConfig{
		Enabled:  true,
		Path:     DefaultHealthCheckPath,
		Interval: DefaultHealthCheckInterval,
		Timeout:  DefaultHealthCheckTimeout,
	}
	cfg.StartupProbe = StartupProbeConfig{
		MaxAttempts:     DefaultStartupProbeMaxAttempts,
		InitialInterval: DefaultStartupProbeInitInterval,
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// The base URL may also be taken from the BACKEND_BASE_URL environment variable.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	_ = dp.BindEnv(cfgKeyBaseURL, BaseURLEnvVar)
	dp.SetDefault(cfgKeyBaseURL, DefaultBaseURL)
	dp.SetDefault(cfgKeyUserAgent, DefaultUserAgent)
	dp.SetDefault(cfgKeyStreamBufferSize, DefaultStreamBufferSize)
	dp.SetDefault(cfgKeyMaxErrorBodySize, DefaultMaxErrorBodySize)
	dp.SetDefault(cfgKeyHealthCheckEnabled, true)
	dp.SetDefault(cfgKeyHealthCheckPath, DefaultHealthCheckPath)
	dp.SetDefault(cfgKeyHealthCheckInterval, DefaultHealthCheckInterval)
	dp.SetDefault(cfgKeyHealthCheckTimeout, DefaultHealthCheckTimeout)
	dp.SetDefault(cfgKeyStartupProbeMaxAttempts, DefaultStartupProbeMaxAttempts)
	dp.SetDefault(cfgKeyStartupProbeInitialInterval, DefaultStartupProbeInitInterval)
	c.HTTPClient.SetProviderDefaults(dp)
}

// Set sets backend client configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.BaseURL, err = dp.GetString(cfgKeyBaseURL); err != nil {
		return err
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	u, parseErr := url.Parse(c.BaseURL)
	if parseErr != nil {
		return dp.WrapKeyErr(cfgKeyBaseURL, parseErr)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return dp.WrapKeyErr(cfgKeyBaseURL, errors.New("must be an absolute http(s) URL"))
	}

	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}

	if c.StreamBufferSize, err = dp.GetBytesCount(cfgKeyStreamBufferSize); err != nil {
		return err
	}
	if c.StreamBufferSize == 0 {
		return dp.WrapKeyErr(cfgKeyStreamBufferSize, errors.New("must be positive"))
	}
	if c.MaxErrorBodySize, err = dp.GetBytesCount(cfgKeyMaxErrorBodySize); err != nil {
		return err
	}

	if err = c.HTTPClient.Set(dp); err != nil {
		return err
	}
	if err = c.setHealthCheck(dp); err != nil {
		return err
	}
	return c.setStartupProbe(dp)
}

func (c *Config) setHealthCheck(dp config.DataProvider) error {
	var err error
	if c.HealthCheck.Enabled, err = dp.GetBool(cfgKeyHealthCheckEnabled); err != nil {
		return err
	}
	if c.HealthCheck.Path, err = dp.GetString(cfgKeyHealthCheckPath); err != nil {
		return err
	}
	if !strings.HasPrefix(c.HealthCheck.Path, "/") {
		return dp.WrapKeyErr(cfgKeyHealthCheckPath, errors.New("must start with /"))
	}
	if !c.HealthCheck.Enabled {
		return nil
	}
	if c.HealthCheck.Interval, err = dp.GetDuration(cfgKeyHealthCheckInterval); err != nil {
		return err
	}
	if c.HealthCheck.Interval <= 0 {
		return dp.WrapKeyErr(cfgKeyHealthCheckInterval, errors.New("must be positive"))
	}
	if c.HealthCheck.Timeout, err = dp.GetDuration(cfgKeyHealthCheckTimeout); err != nil {
		return err
	}
	if c.HealthCheck.Timeout <= 0 {
		return dp.WrapKeyErr(cfgKeyHealthCheckTimeout, errors.New("must be positive"))
	}
	return nil
}

func (c *Config) setStartupProbe(dp config.DataProvider) error {
	var err error
	if c.StartupProbe.Enabled, err = dp.GetBool(cfgKeyStartupProbeEnabled); err != nil {
		return err
	}
	if !c.StartupProbe.Enabled {
		return nil
	}
	if c.StartupProbe.MaxAttempts, err = dp.GetInt(cfgKeyStartupProbeMaxAttempts); err != nil {
		return err
	}
	if c.StartupProbe.MaxAttempts <= 0 {
		return dp.WrapKeyErr(cfgKeyStartupProbeMaxAttempts, errors.New("must be positive"))
	}
	if c.StartupProbe.InitialInterval, err = dp.GetDuration(cfgKeyStartupProbeInitialInterval); err != nil {
		return err
	}
	if c.StartupProbe.InitialInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyStartupProbeInitialInterval, errors.New("must be positive"))
	}
	return nil
}
