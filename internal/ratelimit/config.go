/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"errors"
	"time"

	"github.com/acronis/inference-gateway/config"
)

const (
	cfgKeyEnabled    = "enabled"
	cfgKeyAlg        = "alg"
	cfgKeyRate       = "rate"
	cfgKeyPeriod     = "period"
	cfgKeyBurst      = "burst"
	cfgKeyByClientIP = "byClientIP"
	cfgKeyMaxKeys    = "maxKeys"

	cfgKeyTrustForwardedHeaders = "trustForwardedHeaders"
)

var availableAlgs = []string{string(AlgLeakyBucket), string(AlgSlidingWindow)}

// Config represents a configuration of inbound rate limiting.
// It doesn't have a key prefix of its own, the parent configuration wraps the data provider.
type Config struct {
	Enabled    bool          `mapstructure:"enabled"`
	Alg        Alg           `mapstructure:"alg"`
	Rate       int           `mapstructure:"rate"`
	Period     time.Duration `mapstructure:"period"`
	Burst      int           `mapstructure:"burst"`
	ByClientIP bool          `mapstructure:"byClientIP"`
	MaxKeys    int           `mapstructure:"maxKeys"`

	// TrustForwardedHeaders makes the client IP be taken from X-Forwarded-For / X-Real-IP.
	// Enable it only when the gateway is reachable exclusively through a proxy that sets these headers,
	// otherwise clients can pick their own rate limiting key.
	TrustForwardedHeaders bool `mapstructure:"trustForwardedHeaders"`
}

var _ config.Config = (*Config)(nil)

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAlg, string(AlgLeakyBucket))
	dp.SetDefault(cfgKeyPeriod, time.Second)
	dp.SetDefault(cfgKeyMaxKeys, DefaultMaxKeys)
}

// Set sets rate limiting configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	var alg string
	if alg, err = dp.GetStringFromSet(cfgKeyAlg, availableAlgs, true); err != nil {
		return err
	}
	c.Alg = Alg(alg)

	if c.Rate, err = dp.GetInt(cfgKeyRate); err != nil {
		return err
	}
	if c.Rate <= 0 {
		return dp.WrapKeyErr(cfgKeyRate, errors.New("must be positive"))
	}
	if c.Period, err = dp.GetDuration(cfgKeyPeriod); err != nil {
		return err
	}
	if c.Period <= 0 {
		return dp.WrapKeyErr(cfgKeyPeriod, errors.New("must be positive"))
	}
	if c.Burst, err = dp.GetInt(cfgKeyBurst); err != nil {
		return err
	}
	if c.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyBurst, errors.New("cannot be negative"))
	}
	if c.ByClientIP, err = dp.GetBool(cfgKeyByClientIP); err != nil {
		return err
	}
	if c.MaxKeys, err = dp.GetInt(cfgKeyMaxKeys); err != nil {
		return err
	}
	if c.MaxKeys < 0 {
		return dp.WrapKeyErr(cfgKeyMaxKeys, errors.New("cannot be negative"))
	}
	if c.TrustForwardedHeaders, err = dp.GetBool(cfgKeyTrustForwardedHeaders); err != nil {
		return err
	}
	return nil
}
