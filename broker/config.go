/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package broker

import (
	"fmt"
	"time"

	"github.com/acronis/go-reqbroker/config"
)

const cfgDefaultKeyPrefix = "broker"

const (
	cfgKeyUnixSocketPath             = "unixSocketPath"
	cfgKeyAddress                    = "address"
	cfgKeyPoolSize                   = "poolSize"
	cfgKeyMaxAttempts                = "maxAttempts"
	cfgKeyTimeoutsRequestWait        = "timeouts.requestWait"
	cfgKeyTimeoutsResponse           = "timeouts.response"
	cfgKeyTimeoutsRead               = "timeouts.read"
	cfgKeyTimeoutsWrite              = "timeouts.write"
	cfgKeyTimeoutsShutdown           = "timeouts.shutdown"
	cfgKeyRetransmissionSeconds      = "retransmission.seconds"
	cfgKeyRetransmissionMilliseconds = "retransmission.milliseconds"
	cfgKeyLimitsMaxRequestSize       = "limits.maxRequestSize"
	cfgKeyLimitsMaxPending           = "limits.maxPending"
	cfgKeyLateArrivalLogInterval     = "lateArrivalLogInterval"
)

// Default and restriction values.
const (
	DefaultUnixSocketPath = "/var/run/reqbroker/request.sock"

	DefaultPoolSize = 8
	MinPoolSize     = 1
	MaxPoolSize     = 64

	DefaultMaxAttempts = 4
	MinMaxAttempts     = 1
	MaxMaxAttempts     = 16

	DefaultRequestWaitTimeout = time.Second * 10
	MinRequestWaitTimeout     = time.Second
	MaxRequestWaitTimeout     = time.Second * 600

	DefaultResponseTimeout = time.Second * 60
	MinResponseTimeout     = time.Second
	MaxResponseTimeout     = time.Second * 3600

	DefaultReadTimeout     = time.Second * 5
	DefaultWriteTimeout    = time.Second * 5
	DefaultShutdownTimeout = time.Second * 5

	DefaultRetransmissionSeconds = 1
	MaxRetransmissionSeconds     = 60
	MaxRetransmissionMillis      = 999

	DefaultMaxRequestSize = 64 * 1024
	MinMaxRequestSize     = 1024

	DefaultMaxPending = 1024

	DefaultLateArrivalLogInterval = time.Second * 10
)

// Config represents a set of configuration parameters for the broker.
type Config struct {
	// UnixSocketPath is a path of the local unix socket clients connect to.
	UnixSocketPath string `mapstructure:"unixSocketPath" yaml:"unixSocketPath" json:"unixSocketPath"`
	// Address is a TCP address to listen on instead of the unix socket. Takes precedence over UnixSocketPath.
	Address string `mapstructure:"address" yaml:"address" json:"address"`

	// PoolSize is the number of requests that may be dispatched to agents at the same time.
	PoolSize int `mapstructure:"poolSize" yaml:"poolSize" json:"poolSize"`
	// MaxAttempts bounds both retransmissions of an unacknowledged request
	// and the number of acknowledgments accepted while waiting for the response.
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`

	Timeouts       TimeoutsConfig       `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Retransmission RetransmissionConfig `mapstructure:"retransmission" yaml:"retransmission" json:"retransmission"`
	Limits         LimitsConfig         `mapstructure:"limits" yaml:"limits" json:"limits"`

	// LateArrivalLogInterval is a minimal interval between warnings about replies with unknown identifiers.
	LateArrivalLogInterval config.TimeDuration `mapstructure:"lateArrivalLogInterval" yaml:"lateArrivalLogInterval" json:"lateArrivalLogInterval"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// TimeoutsConfig represents a set of configuration parameters for the broker relating to timeouts.
type TimeoutsConfig struct {
	// RequestWait is how long a new request may wait for a free dispatch slot.
	RequestWait config.TimeDuration `mapstructure:"requestWait" yaml:"requestWait" json:"requestWait"`
	// Response is how long the dispatcher waits for the agent's response after each acknowledgment.
	Response config.TimeDuration `mapstructure:"response" yaml:"response" json:"response"`
	Read     config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	Write    config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Shutdown config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// RetransmissionConfig is the time to wait for the agent's acknowledgment before the request is sent again.
type RetransmissionConfig struct {
	Seconds      int `mapstructure:"seconds" yaml:"seconds" json:"seconds"`
	Milliseconds int `mapstructure:"milliseconds" yaml:"milliseconds" json:"milliseconds"`
}

// Timeout returns the retransmission timeout as time.Duration.
func (r RetransmissionConfig) Timeout() time.Duration {
	return time.Duration(r.Seconds)*time.Second + time.Duration(r.Milliseconds)*time.Millisecond
}

// LimitsConfig represents a set of configuration parameters for the broker relating to limits.
type LimitsConfig struct {
	// MaxRequestSize is the maximum size of the client's request frame.
	MaxRequestSize config.ByteSize `mapstructure:"maxRequestSize" yaml:"maxRequestSize" json:"maxRequestSize"`
	// MaxPending is the maximum number of requests registered in the correlation table (0 means unbounded).
	MaxPending int `mapstructure:"maxPending" yaml:"maxPending" json:"maxPending"`
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
	return &Config{
		keyPrefix:      cfgDefaultKeyPrefix,
		UnixSocketPath: DefaultUnixSocketPath,
		PoolSize:       DefaultPoolSize,
		MaxAttempts:    DefaultMaxAttempts,
		Timeouts: TimeoutsConfig{
			RequestWait: config.TimeDuration(DefaultRequestWaitTimeout),
			Response:    config.TimeDuration(DefaultResponseTimeout),
			Read:        config.TimeDuration(DefaultReadTimeout),
			Write:       config.TimeDuration(DefaultWriteTimeout),
			Shutdown:    config.TimeDuration(DefaultShutdownTimeout),
		},
		Retransmission: RetransmissionConfig{Seconds: DefaultRetransmissionSeconds},
		Limits: LimitsConfig{
			MaxRequestSize: DefaultMaxRequestSize,
			MaxPending:     DefaultMaxPending,
		},
		LateArrivalLogInterval: config.TimeDuration(DefaultLateArrivalLogInterval),
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the broker in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyUnixSocketPath, DefaultUnixSocketPath)
	dp.SetDefault(cfgKeyPoolSize, DefaultPoolSize)
	dp.SetDefault(cfgKeyMaxAttempts, DefaultMaxAttempts)
	dp.SetDefault(cfgKeyTimeoutsRequestWait, DefaultRequestWaitTimeout)
	dp.SetDefault(cfgKeyTimeoutsResponse, DefaultResponseTimeout)
	dp.SetDefault(cfgKeyTimeoutsRead, DefaultReadTimeout)
	dp.SetDefault(cfgKeyTimeoutsWrite, DefaultWriteTimeout)
	dp.SetDefault(cfgKeyTimeoutsShutdown, DefaultShutdownTimeout)
	dp.SetDefault(cfgKeyRetransmissionSeconds, DefaultRetransmissionSeconds)
	dp.SetDefault(cfgKeyRetransmissionMilliseconds, 0)
	dp.SetDefault(cfgKeyLimitsMaxRequestSize, DefaultMaxRequestSize)
	dp.SetDefault(cfgKeyLimitsMaxPending, DefaultMaxPending)
	dp.SetDefault(cfgKeyLateArrivalLogInterval, DefaultLateArrivalLogInterval)
}

// Set sets broker configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.UnixSocketPath, err = dp.GetString(cfgKeyUnixSocketPath); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.UnixSocketPath == "" && c.Address == "" {
		return dp.WrapKeyErr(cfgKeyUnixSocketPath, fmt.Errorf("cannot be empty when %q is not set", cfgKeyAddress))
	}

	if c.PoolSize, err = dp.GetIntInRange(cfgKeyPoolSize, MinPoolSize, MaxPoolSize); err != nil {
		return err
	}
	if c.MaxAttempts, err = dp.GetIntInRange(cfgKeyMaxAttempts, MinMaxAttempts, MaxMaxAttempts); err != nil {
		return err
	}

	if err = c.Timeouts.set(dp); err != nil {
		return err
	}
	if err = c.Retransmission.set(dp); err != nil {
		return err
	}
	if err = c.Limits.set(dp, c.PoolSize); err != nil {
		return err
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyLateArrivalLogInterval); err != nil {
		return err
	}
	if dur < 0 {
		return dp.WrapKeyErr(cfgKeyLateArrivalLogInterval, fmt.Errorf("cannot be negative"))
	}
	c.LateArrivalLogInterval = config.TimeDuration(dur)

	return nil
}

func (t *TimeoutsConfig) set(dp config.DataProvider) error {
	getInRange := func(key string, min, max time.Duration) (config.TimeDuration, error) {
		dur, err := dp.GetDuration(key)
		if err != nil {
			return 0, err
		}
		if dur < min || (max > 0 && dur > max) {
			if max > 0 {
				return 0, dp.WrapKeyErr(key, fmt.Errorf("should be in range [%s, %s], got %s", min, max, dur))
			}
			return 0, dp.WrapKeyErr(key, fmt.Errorf("should be >= %s, got %s", min, dur))
		}
		return config.TimeDuration(dur), nil
	}

	var err error
	if t.RequestWait, err = getInRange(cfgKeyTimeoutsRequestWait, MinRequestWaitTimeout, MaxRequestWaitTimeout); err != nil {
		return err
	}
	if t.Response, err = getInRange(cfgKeyTimeoutsResponse, MinResponseTimeout, MaxResponseTimeout); err != nil {
		return err
	}
	if t.Read, err = getInRange(cfgKeyTimeoutsRead, time.Millisecond, 0); err != nil {
		return err
	}
	if t.Write, err = getInRange(cfgKeyTimeoutsWrite, time.Millisecond, 0); err != nil {
		return err
	}
	if t.Shutdown, err = getInRange(cfgKeyTimeoutsShutdown, time.Millisecond, 0); err != nil {
		return err
	}
	return nil
}

func (r *RetransmissionConfig) set(dp config.DataProvider) error {
	var err error
	if r.Seconds, err = dp.GetIntInRange(cfgKeyRetransmissionSeconds, 0, MaxRetransmissionSeconds); err != nil {
		return err
	}
	if r.Milliseconds, err = dp.GetIntInRange(cfgKeyRetransmissionMilliseconds, 0, MaxRetransmissionMillis); err != nil {
		return err
	}
	if r.Timeout() <= 0 {
		return dp.WrapKeyErr(cfgKeyRetransmissionSeconds,
			fmt.Errorf("retransmission timeout (seconds + milliseconds) should be positive"))
	}
	return nil
}

func (l *LimitsConfig) set(dp config.DataProvider, poolSize int) error {
	var err error
	if l.MaxRequestSize, err = dp.GetByteSize(cfgKeyLimitsMaxRequestSize); err != nil {
		return err
	}
	if l.MaxRequestSize < MinMaxRequestSize {
		return dp.WrapKeyErr(cfgKeyLimitsMaxRequestSize, fmt.Errorf("should be >= %d bytes", MinMaxRequestSize))
	}

	if l.MaxPending, err = dp.GetInt(cfgKeyLimitsMaxPending); err != nil {
		return err
	}
	// Requests waiting for admission are registered too, so the table must fit the pool and at least one waiter.
	if l.MaxPending < 0 || (l.MaxPending > 0 && l.MaxPending <= poolSize) {
		return dp.WrapKeyErr(cfgKeyLimitsMaxPending, fmt.Errorf("should be 0 (unbounded) or > %d (pool size)", poolSize))
	}
	return nil
}
