/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package transport

import (
	"fmt"

	"github.com/acronis/go-reqbroker/config"
)

const cfgDefaultKeyPrefix = "transport"

const (
	cfgKeyUDPAddress         = "udp.address"
	cfgKeyUDPMaxDatagramSize = "udp.maxDatagramSize"
)

const (
	defaultUDPAddress         = ":1514"
	defaultUDPMaxDatagramSize = 64 * 1024
	minUDPMaxDatagramSize     = 512
)

// Config represents a set of configuration parameters for the agent transport.
type Config struct {
	UDP UDPConfig `mapstructure:"udp" yaml:"udp" json:"udp"`

	keyPrefix string
}

// UDPConfig represents a set of configuration parameters for the UDP transport.
type UDPConfig struct {
	Address         string          `mapstructure:"address" yaml:"address" json:"address"`
	MaxDatagramSize config.ByteSize `mapstructure:"maxDatagramSize" yaml:"maxDatagramSize" json:"maxDatagramSize"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix: cfgDefaultKeyPrefix,
		UDP: UDPConfig{
			Address:         defaultUDPAddress,
			MaxDatagramSize: defaultUDPMaxDatagramSize,
		},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the transport in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyUDPAddress, defaultUDPAddress)
	dp.SetDefault(cfgKeyUDPMaxDatagramSize, defaultUDPMaxDatagramSize)
}

// Set sets transport configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.UDP.Address, err = dp.GetString(cfgKeyUDPAddress); err != nil {
		return err
	}
	if c.UDP.MaxDatagramSize, err = dp.GetByteSize(cfgKeyUDPMaxDatagramSize); err != nil {
		return err
	}
	if c.UDP.MaxDatagramSize < minUDPMaxDatagramSize || c.UDP.MaxDatagramSize > defaultUDPMaxDatagramSize {
		return dp.WrapKeyErr(cfgKeyUDPMaxDatagramSize,
			fmt.Errorf("should be in range [%d, %d] bytes", minUDPMaxDatagramSize, defaultUDPMaxDatagramSize))
	}
	return nil
}
