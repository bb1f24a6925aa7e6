/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/joho/godotenv"
)

// Loader loads configuration values from data provider (with initializing default values before)
// and sets them in configuration objects.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a new configurations loader with an ability to read values from the environment variables.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a new configurations' loader.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{dp}
}

// LoadFromFile loads configuration values from file and sets them in configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// LoadFromReader loads configuration values from reader and sets them in configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// Load sets configuration objects using only defaults and environment variables.
func (l *Loader) Load(cfg Config, cfgs ...Config) error {
	return l.load(append([]Config{cfg}, cfgs...))
}

func (l *Loader) load(cfgs []Config) error {
	for _, cfg := range cfgs {
		cfg.SetProviderDefaults(dataProviderFor(cfg, l.DataProvider))
	}
	for _, cfg := range cfgs {
		if err := cfg.Set(dataProviderFor(cfg, l.DataProvider)); err != nil {
			return err
		}
	}
	return nil
}

// LoadDotEnv reads KEY=VALUE pairs from the given dotenv files into the process environment.
// Variables that are already set are not overridden. Missing files are skipped
// when ignoreMissing is true.
func LoadDotEnv(ignoreMissing bool, paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if ignoreMissing && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load dotenv file %s: %w", path, err)
		}
	}
	return nil
}
