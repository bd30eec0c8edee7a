/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package broker

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqbroker/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgData     string
		expectedCfg func() *Config
	}{
		{
			name:        "empty config, defaults are used",
			cfgData:     `{}`,
			expectedCfg: NewDefaultConfig,
		},
		{
			name: "yaml config",
			cfgData: `
broker:
  unixSocketPath: /run/reqbroker/req.sock
  poolSize: 64
  maxAttempts: 16
  timeouts:
    requestWait: 1s
    response: 1h
    read: 2s
    write: 3s
    shutdown: 30s
  retransmission:
    seconds: 0
    milliseconds: 250
  limits:
    maxRequestSize: 1MB
    maxPending: 0
  lateArrivalLogInterval: 0s
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.UnixSocketPath = "/run/reqbroker/req.sock"
				cfg.PoolSize = 64
				cfg.MaxAttempts = 16
				cfg.Timeouts = TimeoutsConfig{
					RequestWait: config.TimeDuration(time.Second),
					Response:    config.TimeDuration(time.Hour),
					Read:        config.TimeDuration(time.Second * 2),
					Write:       config.TimeDuration(time.Second * 3),
					Shutdown:    config.TimeDuration(time.Second * 30),
				}
				cfg.Retransmission = RetransmissionConfig{Seconds: 0, Milliseconds: 250}
				cfg.Limits = LimitsConfig{MaxRequestSize: 1024 * 1024, MaxPending: 0}
				cfg.LateArrivalLogInterval = 0
				return cfg
			},
		},
		{
			name: "tcp address",
			cfgData: `
broker:
  address: 127.0.0.1:5555
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Address = "127.0.0.1:5555"
				return cfg
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			require.NoError(t, err)
			require.Equal(t, tt.expectedCfg(), cfg)
		})
	}
}

func TestConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		wantErr string
	}{
		{
			name:    "pool size too big",
			cfgData: "broker:\n  poolSize: 65\n",
			wantErr: "broker.poolSize: should be in range [1, 64], got 65",
		},
		{
			name:    "pool size zero",
			cfgData: "broker:\n  poolSize: 0\n",
			wantErr: "broker.poolSize",
		},
		{
			name:    "max attempts too big",
			cfgData: "broker:\n  maxAttempts: 17\n",
			wantErr: "broker.maxAttempts",
		},
		{
			name:    "request wait too long",
			cfgData: "broker:\n  timeouts:\n    requestWait: 601s\n",
			wantErr: "broker.timeouts.requestWait",
		},
		{
			name:    "response timeout too short",
			cfgData: "broker:\n  timeouts:\n    response: 500ms\n",
			wantErr: "broker.timeouts.response",
		},
		{
			name:    "retransmission milliseconds out of range",
			cfgData: "broker:\n  retransmission:\n    milliseconds: 1000\n",
			wantErr: "broker.retransmission.milliseconds",
		},
		{
			name:    "zero retransmission timeout",
			cfgData: "broker:\n  retransmission:\n    seconds: 0\n    milliseconds: 0\n",
			wantErr: "broker.retransmission.seconds",
		},
		{
			name:    "request size too small",
			cfgData: "broker:\n  limits:\n    maxRequestSize: 512\n",
			wantErr: "broker.limits.maxRequestSize",
		},
		{
			name:    "max pending doesn't fit pool",
			cfgData: "broker:\n  poolSize: 8\n  limits:\n    maxPending: 8\n",
			wantErr: "broker.limits.maxPending",
		},
		{
			name:    "no listening address",
			cfgData: "broker:\n  unixSocketPath: \"\"\n",
			wantErr: "broker.unixSocketPath",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.NewDefaultLoader("").LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, NewConfig())
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestRetransmissionConfig_Timeout(t *testing.T) {
	require.Equal(t, time.Millisecond*1500, RetransmissionConfig{Seconds: 1, Milliseconds: 500}.Timeout())
	require.Equal(t, time.Duration(0), RetransmissionConfig{}.Timeout())
}
