/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"errors"
	"time"

	"github.com/acronis/inference-gateway/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyServerAddress                 = "address"
	cfgKeyServerTimeoutsWrite           = "timeouts.write"
	cfgKeyServerTimeoutsRead            = "timeouts.read"
	cfgKeyServerTimeoutsReadHeader      = "timeouts.readHeader"
	cfgKeyServerTimeoutsIdle            = "timeouts.idle"
	cfgKeyServerTimeoutsShutdown        = "timeouts.shutdown"
	cfgKeyServerLimitsMaxBodySize       = "limits.maxBodySize"
	cfgKeyServerLogRequestStart         = "log.requestStart"
	cfgKeyServerLogRequestHeaders       = "log.requestHeaders"
	cfgKeyServerLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyServerLogSlowRequestThreshold = "log.slowRequestThreshold"
	cfgKeyServerCORS                    = "cors"
	cfgKeyServerCORSEnabled             = "cors.enabled"
	cfgKeyServerCORSAllowedOrigins      = "cors.allowedOrigins"
)

// Write and read timeouts are disabled by default, token streams may last for minutes.
const (
	defaultServerAddress            = ":8080"
	defaultServerTimeoutsReadHeader = time.Second * 10
	defaultServerTimeoutsIdle       = time.Minute
	defaultServerTimeoutsShutdown   = time.Second * 30
	defaultServerLimitsMaxBodySize  = 10 * 1024 * 1024
	defaultSlowRequestThreshold     = time.Second
)

var defaultExcludedEndpoints = []string{"/metrics", "/healthz"}

// Config represents a set of configuration parameters for HTTPServer.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`
	CORS     CORSConfig     `mapstructure:"cors" yaml:"cors" json:"cors"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config with a key prefix.
// This prefix will be used by config.Loader.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	cfg := NewConfig()
	cfg.Address = defaultServerAddress
	cfg.Timeouts = TimeoutsConfig{
		ReadHeader: defaultServerTimeoutsReadHeader,
		Idle:       defaultServerTimeoutsIdle,
		Shutdown:   defaultServerTimeoutsShutdown,
	}
	cfg.Limits = LimitsConfig{MaxBodySizeBytes: defaultServerLimitsMaxBodySize}
	cfg.Log = LogConfig{
		ExcludedEndpoints:    append([]string(nil), defaultExcludedEndpoints...),
		SlowRequestThreshold: defaultSlowRequestThreshold,
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyServerAddress, defaultServerAddress)

	dp.SetDefault(cfgKeyServerTimeoutsWrite, 0)
	dp.SetDefault(cfgKeyServerTimeoutsRead, 0)
	dp.SetDefault(cfgKeyServerTimeoutsReadHeader, defaultServerTimeoutsReadHeader)
	dp.SetDefault(cfgKeyServerTimeoutsIdle, defaultServerTimeoutsIdle)
	dp.SetDefault(cfgKeyServerTimeoutsShutdown, defaultServerTimeoutsShutdown)

	dp.SetDefault(cfgKeyServerLimitsMaxBodySize, defaultServerLimitsMaxBodySize)

	dp.SetDefault(cfgKeyServerLogRequestStart, false)
	dp.SetDefault(cfgKeyServerLogExcludedEndpoints, defaultExcludedEndpoints)
	dp.SetDefault(cfgKeyServerLogSlowRequestThreshold, defaultSlowRequestThreshold)

	dp.SetDefault(cfgKeyServerCORSEnabled, false)
}

// TimeoutsConfig represents a set of configuration parameters for HTTPServer relating to timeouts.
type TimeoutsConfig struct {
	Write      time.Duration `mapstructure:"write" yaml:"write" json:"write"`
	Read       time.Duration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader time.Duration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       time.Duration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   time.Duration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// Set sets timeout server configuration values from config.DataProvider.
func (t *TimeoutsConfig) Set(dp config.DataProvider) error {
	var err error
	if t.Write, err = dp.GetDuration(cfgKeyServerTimeoutsWrite); err != nil {
		return err
	}
	if t.Read, err = dp.GetDuration(cfgKeyServerTimeoutsRead); err != nil {
		return err
	}
	if t.ReadHeader, err = dp.GetDuration(cfgKeyServerTimeoutsReadHeader); err != nil {
		return err
	}
	if t.Idle, err = dp.GetDuration(cfgKeyServerTimeoutsIdle); err != nil {
		return err
	}
	if t.Shutdown, err = dp.GetDuration(cfgKeyServerTimeoutsShutdown); err != nil {
		return err
	}
	return nil
}

// LimitsConfig represents a set of configuration parameters for HTTPServer relating to limits.
type LimitsConfig struct {
	// MaxBodySizeBytes is the maximum size of the request body in bytes. Zero means no limit.
	MaxBodySizeBytes config.BytesCount `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

// Set sets limit server configuration values from config.DataProvider.
func (l *LimitsConfig) Set(dp config.DataProvider) error {
	var err error
	l.MaxBodySizeBytes, err = dp.GetBytesCount(cfgKeyServerLimitsMaxBodySize)
	return err
}

// LogConfig represents a set of configuration parameters for HTTPServer relating to logging.
type LogConfig struct {
	RequestStart         bool          `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	RequestHeaders       []string      `mapstructure:"requestHeaders" yaml:"requestHeaders" json:"requestHeaders"`
	ExcludedEndpoints    []string      `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// Set sets log server configuration values from config.DataProvider.
func (l *LogConfig) Set(dp config.DataProvider) error {
	var err error
	if l.RequestStart, err = dp.GetBool(cfgKeyServerLogRequestStart); err != nil {
		return err
	}
	if l.RequestHeaders, err = dp.GetStringSlice(cfgKeyServerLogRequestHeaders); err != nil {
		return err
	}
	if l.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyServerLogExcludedEndpoints); err != nil {
		return err
	}
	if l.SlowRequestThreshold, err = dp.GetDuration(cfgKeyServerLogSlowRequestThreshold); err != nil {
		return err
	}
	return nil
}

// CORSConfig represents a set of configuration parameters for HTTPServer relating to CORS.
// Browser-based chat UIs call the gateway directly, so cross-origin requests may be allowed.
type CORSConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	AllowedOrigins   []string      `mapstructure:"allowedOrigins" yaml:"allowedOrigins" json:"allowedOrigins"`
	AllowedMethods   []string      `mapstructure:"allowedMethods" yaml:"allowedMethods" json:"allowedMethods"`
	AllowedHeaders   []string      `mapstructure:"allowedHeaders" yaml:"allowedHeaders" json:"allowedHeaders"`
	AllowCredentials bool          `mapstructure:"allowCredentials" yaml:"allowCredentials" json:"allowCredentials"`
	MaxAge           time.Duration `mapstructure:"maxAge" yaml:"maxAge" json:"maxAge"`
}

// Set sets CORS server configuration values from config.DataProvider.
// The whole section is decoded at once and unknown keys are rejected, so a misspelled origin list
// does not silently leave browsers blocked.
func (c *CORSConfig) Set(dp config.DataProvider) error {
	*c = CORSConfig{}
	if err := dp.UnmarshalKey(cfgKeyServerCORS, c, config.WithErrorUnused()); err != nil {
		return err
	}
	if c.Enabled && len(c.AllowedOrigins) == 0 {
		return dp.WrapKeyErr(cfgKeyServerCORSAllowedOrigins, errors.New("at least one origin should be set"))
	}
	return nil
}

// Set sets HTTPServer configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Address, err = dp.GetString(cfgKeyServerAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyServerAddress, errors.New("cannot be empty"))
	}

	if err = c.Timeouts.Set(dp); err != nil {
		return err
	}
	if err = c.Limits.Set(dp); err != nil {
		return err
	}
	if err = c.Log.Set(dp); err != nil {
		return err
	}
	return c.CORS.Set(dp)
}
