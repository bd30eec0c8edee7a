/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package agentdb

import (
	"fmt"
	"time"

	"github.com/acronis/go-reqbroker/config"
	"github.com/acronis/go-reqbroker/transport"
)

const cfgDefaultKeyPrefix = "agentdb"

const (
	cfgKeyPath            = "path"
	cfgKeyDefaultMode     = "defaultMode"
	cfgKeyBusyInterval    = "busy.interval"
	cfgKeyBusyMaxAttempts = "busy.maxAttempts"
	cfgKeyVacuumInterval  = "vacuumInterval"
	cfgKeyCacheMaxEntries = "cache.maxEntries"
	cfgKeyCacheTTL        = "cache.ttl"
)

// Default values.
const (
	DefaultPath            = "/var/lib/reqbroker/agents.db"
	DefaultMode            = transport.ModeUDP
	DefaultBusyInterval    = time.Millisecond * 100
	DefaultBusyMaxAttempts = 1000
	DefaultVacuumInterval  = time.Hour * 24
	DefaultCacheMaxEntries = 1024
	DefaultCacheTTL        = time.Minute
)

// Config represents a set of configuration parameters for the agent store.
type Config struct {
	// Path is a path of the SQLite database file. Parent directories are created if needed.
	Path string `mapstructure:"path" yaml:"path" json:"path"`

	// DefaultMode is the transport mode of agents which are not registered or have no protocol recorded.
	DefaultMode transport.Mode `mapstructure:"defaultMode" yaml:"defaultMode" json:"defaultMode"`

	Busy BusyConfig `mapstructure:"busy" yaml:"busy" json:"busy"`

	// VacuumInterval is an interval of periodic database compaction. 0 disables it.
	VacuumInterval config.TimeDuration `mapstructure:"vacuumInterval" yaml:"vacuumInterval" json:"vacuumInterval"`

	Cache CacheConfig `mapstructure:"cache" yaml:"cache" json:"cache"`

	keyPrefix string
}

// CacheConfig controls the in-memory cache of agents used for resolving transport modes and addresses.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached agents. 0 disables the cache.
	MaxEntries int `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`
	// TTL is how long a cached agent is considered up to date. 0 means forever.
	TTL config.TimeDuration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}

// BusyConfig controls how statements are retried while the database is busy or locked.
type BusyConfig struct {
	Interval    config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`
	MaxAttempts int                 `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
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
		keyPrefix:   cfgDefaultKeyPrefix,
		Path:        DefaultPath,
		DefaultMode: DefaultMode,
		Busy: BusyConfig{
			Interval:    config.TimeDuration(DefaultBusyInterval),
			MaxAttempts: DefaultBusyMaxAttempts,
		},
		VacuumInterval: config.TimeDuration(DefaultVacuumInterval),
		Cache: CacheConfig{
			MaxEntries: DefaultCacheMaxEntries,
			TTL:        config.TimeDuration(DefaultCacheTTL),
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

// SetProviderDefaults sets default configuration values for the agent store in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyPath, DefaultPath)
	dp.SetDefault(cfgKeyDefaultMode, string(DefaultMode))
	dp.SetDefault(cfgKeyBusyInterval, DefaultBusyInterval)
	dp.SetDefault(cfgKeyBusyMaxAttempts, DefaultBusyMaxAttempts)
	dp.SetDefault(cfgKeyVacuumInterval, DefaultVacuumInterval)
	dp.SetDefault(cfgKeyCacheMaxEntries, DefaultCacheMaxEntries)
	dp.SetDefault(cfgKeyCacheTTL, DefaultCacheTTL)
}

// Set sets agent store configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Path, err = dp.GetString(cfgKeyPath); err != nil {
		return err
	}
	if c.Path == "" {
		return dp.WrapKeyErr(cfgKeyPath, fmt.Errorf("cannot be empty"))
	}

	var modeStr string
	if modeStr, err = dp.GetStringFromSet(
		cfgKeyDefaultMode, []string{string(transport.ModeUDP), string(transport.ModeTCP)}, true); err != nil {
		return err
	}
	if c.DefaultMode, err = transport.ParseMode(modeStr); err != nil {
		return dp.WrapKeyErr(cfgKeyDefaultMode, err)
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyBusyInterval); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyBusyInterval, fmt.Errorf("should be positive"))
	}
	c.Busy.Interval = config.TimeDuration(dur)
	if c.Busy.MaxAttempts, err = dp.GetInt(cfgKeyBusyMaxAttempts); err != nil {
		return err
	}
	if c.Busy.MaxAttempts < 1 {
		return dp.WrapKeyErr(cfgKeyBusyMaxAttempts, fmt.Errorf("should be >= 1"))
	}

	if dur, err = dp.GetDuration(cfgKeyVacuumInterval); err != nil {
		return err
	}
	if dur < 0 {
		return dp.WrapKeyErr(cfgKeyVacuumInterval, fmt.Errorf("cannot be negative"))
	}
	c.VacuumInterval = config.TimeDuration(dur)

	if c.Cache.MaxEntries, err = dp.GetInt(cfgKeyCacheMaxEntries); err != nil {
		return err
	}
	if c.Cache.MaxEntries < 0 {
		return dp.WrapKeyErr(cfgKeyCacheMaxEntries, fmt.Errorf("cannot be negative"))
	}
	if dur, err = dp.GetDuration(cfgKeyCacheTTL); err != nil {
		return err
	}
	if dur < 0 {
		return dp.WrapKeyErr(cfgKeyCacheTTL, fmt.Errorf("cannot be negative"))
	}
	c.Cache.TTL = config.TimeDuration(dur)

	return nil
}
