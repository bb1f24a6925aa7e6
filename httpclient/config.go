/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"errors"
	"time"

	"github.com/acronis/inference-gateway/config"
)

// Default values.
const (
	DefaultDialTimeout          = 5 * time.Second
	DefaultLogMode              = LoggingModeFailed
	DefaultSlowRequestThreshold = time.Second
)

const (
	cfgKeyTimeoutsDial            = "timeouts.dial"
	cfgKeyTimeoutsResponseHeader  = "timeouts.responseHeader"
	cfgKeyTimeoutsRequest         = "timeouts.request"
	cfgKeyRateLimitsEnabled       = "rateLimits.enabled"
	cfgKeyRateLimitsLimit         = "rateLimits.limit"
	cfgKeyRateLimitsBurst         = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout   = "rateLimits.waitTimeout"
	cfgKeyLogEnabled              = "log.enabled"
	cfgKeyLogMode                 = "log.mode"
	cfgKeyLogSlowRequestThreshold = "log.slowRequestThreshold"
	cfgKeyMetricsEnabled          = "metrics.enabled"
)

var _ config.Config = (*Config)(nil)

// Config represents options for HTTP client configuration.
// It has no key prefix of its own and is meant to be embedded into the configuration of a specific client.
type Config struct {
	Timeouts   TimeoutsConfig  `mapstructure:"timeouts"`
	RateLimits RateLimitConfig `mapstructure:"rateLimits"`
	Log        LogConfig       `mapstructure:"log"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
}

// TimeoutsConfig represents client timeouts.
// Dial and ResponseHeader are set on the transport. Request bounds a whole buffered call and is applied
// per call by the client owner, never on the transport, since responses may be streamed for minutes.
type TimeoutsConfig struct {
	Dial           time.Duration `mapstructure:"dial"`
	ResponseHeader time.Duration `mapstructure:"responseHeader"`
	Request        time.Duration `mapstructure:"request"`
}

// RateLimitConfig represents configuration options for HTTP client rate limits.
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Limit       int           `mapstructure:"limit"`
	Burst       int           `mapstructure:"burst"`
	WaitTimeout time.Duration `mapstructure:"waitTimeout"`
}

// TransportOpts returns transport options.
func (c *RateLimitConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{Burst: c.Burst, WaitTimeout: c.WaitTimeout}
}

// LogConfig represents configuration options for HTTP client logs.
type LogConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Mode                 LoggingMode   `mapstructure:"mode"`
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold"`
}

// TransportOpts returns transport options.
func (c *LogConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{Mode: c.Mode, SlowRequestThreshold: c.SlowRequestThreshold}
}

// MetricsConfig represents configuration options for HTTP client metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Timeouts: TimeoutsConfig{Dial: DefaultDialTimeout},
		Log:      LogConfig{Enabled: true, Mode: DefaultLogMode, SlowRequestThreshold: DefaultSlowRequestThreshold},
		Metrics:  MetricsConfig{Enabled: true},
	}
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeoutsDial, DefaultDialTimeout)
	dp.SetDefault(cfgKeyLogEnabled, true)
	dp.SetDefault(cfgKeyLogMode, string(DefaultLogMode))
	dp.SetDefault(cfgKeyLogSlowRequestThreshold, DefaultSlowRequestThreshold)
	dp.SetDefault(cfgKeyMetricsEnabled, true)
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	for _, fn := range []func(config.DataProvider) error{c.setTimeouts, c.setRateLimits, c.setLog} {
		if err = fn(dp); err != nil {
			return err
		}
	}
	if c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled); err != nil {
		return err
	}
	return nil
}

func (c *Config) setTimeouts(dp config.DataProvider) error {
	var err error
	if c.Timeouts.Dial, err = dp.GetDuration(cfgKeyTimeoutsDial); err != nil {
		return err
	}
	if c.Timeouts.Dial < 0 {
		return dp.WrapKeyErr(cfgKeyTimeoutsDial, errors.New("cannot be negative"))
	}
	if c.Timeouts.ResponseHeader, err = dp.GetDuration(cfgKeyTimeoutsResponseHeader); err != nil {
		return err
	}
	if c.Timeouts.ResponseHeader < 0 {
		return dp.WrapKeyErr(cfgKeyTimeoutsResponseHeader, errors.New("cannot be negative"))
	}
	if c.Timeouts.Request, err = dp.GetDuration(cfgKeyTimeoutsRequest); err != nil {
		return err
	}
	if c.Timeouts.Request < 0 {
		return dp.WrapKeyErr(cfgKeyTimeoutsRequest, errors.New("cannot be negative"))
	}
	return nil
}

func (c *Config) setRateLimits(dp config.DataProvider) error {
	var err error
	if c.RateLimits.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if !c.RateLimits.Enabled {
		return nil
	}
	if c.RateLimits.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.RateLimits.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, errors.New("must be positive"))
	}
	if c.RateLimits.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.RateLimits.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, errors.New("cannot be negative"))
	}
	if c.RateLimits.WaitTimeout, err = dp.GetDuration(cfgKeyRateLimitsWaitTimeout); err != nil {
		return err
	}
	if c.RateLimits.WaitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, errors.New("cannot be negative"))
	}
	return nil
}

func (c *Config) setLog(dp config.DataProvider) error {
	var err error
	if c.Log.Enabled, err = dp.GetBool(cfgKeyLogEnabled); err != nil {
		return err
	}
	if !c.Log.Enabled {
		return nil
	}
	var mode string
	if mode, err = dp.GetStringFromSet(cfgKeyLogMode, availableLoggingModes, true); err != nil {
		return err
	}
	c.Log.Mode = LoggingMode(mode)
	if c.Log.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLogSlowRequestThreshold); err != nil {
		return err
	}
	if c.Log.SlowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLogSlowRequestThreshold, errors.New("cannot be negative"))
	}
	return nil
}
