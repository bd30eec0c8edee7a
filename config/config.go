/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads configuration of the broker components from YAML/JSON files and environment variables.
//
// Every component (logger, broker, agent store, transport, admin server) describes its parameters
// with a type implementing Config. Loader sets defaults for all of them first and then reads
// actual values, so a component never observes a half-initialized data provider.
package config

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing key prefix that will be used for configuration parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}
