/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DataType is the format of a configuration source.
type DataType string

// Supported configuration formats. The gateway picks one by the config file extension.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// DataProvider gives typed access to configuration values merged from defaults, files and env vars.
// Every getter wraps its error with the key it failed on.
type DataProvider interface {
	// Sources.
	UseEnvVars(prefix string)
	// BindEnv maps key to explicit env vars that are looked up without the UseEnvVars prefix.
	// The first variable that is set wins. Legacy variables like BACKEND_BASE_URL are bound this way.
	BindEnv(key string, envVars ...string) error
	SetFromFile(path string, dataType DataType) error
	SetFromReader(reader io.Reader, dataType DataType) error

	Set(key string, value interface{})
	SetDefault(key string, value interface{})
	IsSet(key string) bool

	// Typed getters.
	Get(key string) interface{}
	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetFloat64(key string) (float64, error)
	GetString(key string) (string, error)
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetStringSlice(key string) ([]string, error)
	GetDuration(key string) (time.Duration, error)
	GetBytesCount(key string) (BytesCount, error)

	// UnmarshalKey decodes a whole section into a struct using its mapstructure tags.
	UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error

	WrapKeyErr(key string, err error) error
}

// DecoderConfigOption tunes the mapstructure decoder used by UnmarshalKey.
type DecoderConfigOption func(*mapstructure.DecoderConfig)

// WithErrorUnused rejects sections that contain keys unknown to the target struct.
func WithErrorUnused() DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) { dc.ErrorUnused = true }
}
