/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
)

// Loader fills configuration objects from a single DataProvider.
// Defaults of all objects are registered first, so a value set for one object is visible to every object
// that reads the same key.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a Loader backed by viper that also reads environment variables
// (e.g. REQBROKER_BROKER_POOLSIZE for the "broker.poolSize" key with the "REQBROKER" prefix).
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a Loader for the given data provider.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// LoadFromFile reads the file of the given type and fills the configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return fmt.Errorf("read configuration file %q: %w", path, err)
	}
	return l.load(cfg, cfgs)
}

// LoadFromReader reads data of the given type and fills the configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return fmt.Errorf("read configuration: %w", err)
	}
	return l.load(cfg, cfgs)
}

// LoadDefaults fills the configuration objects from defaults and values already known to the data provider
// (e.g. environment variables). It's used when the daemon is started without a configuration file.
func (l *Loader) LoadDefaults(cfg Config, cfgs ...Config) error {
	return l.load(cfg, cfgs)
}

func (l *Loader) load(first Config, rest []Config) error {
	all := make([]Config, 0, len(rest)+1)
	all = append(all, first)
	all = append(all, rest...)

	providers := make([]DataProvider, len(all))
	for i, cfg := range all {
		providers[i] = l.providerFor(cfg)
		cfg.SetProviderDefaults(providers[i])
	}
	for i, cfg := range all {
		if err := cfg.Set(providers[i]); err != nil {
			return err
		}
	}
	return nil
}

// providerFor scopes the data provider to the object's key prefix, if it has one.
func (l *Loader) providerFor(cfg Config) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(l.DataProvider, kp.KeyPrefix())
	}
	return l.DataProvider
}
