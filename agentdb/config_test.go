/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package agentdb

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqbroker/config"
	"github.com/acronis/go-reqbroker/transport"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgData     string
		expectedCfg func() *Config
		wantErr     string
	}{
		{
			name:        "empty config, defaults are used",
			cfgData:     `{}`,
			expectedCfg: NewDefaultConfig,
		},
		{
			name: "yaml config",
			cfgData: `
agentdb:
  path: /tmp/agents.db
  defaultMode: TCP
  busy:
    interval: 5ms
    maxAttempts: 10
  vacuumInterval: 0
  cache:
    maxEntries: 0
    ttl: 30s
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Path = "/tmp/agents.db"
				cfg.DefaultMode = transport.ModeTCP
				cfg.Busy = BusyConfig{Interval: config.TimeDuration(time.Millisecond * 5), MaxAttempts: 10}
				cfg.VacuumInterval = 0
				cfg.Cache = CacheConfig{MaxEntries: 0, TTL: config.TimeDuration(time.Second * 30)}
				return cfg
			},
		},
		{
			name:    "empty path",
			cfgData: "agentdb:\n  path: \"\"\n",
			wantErr: "agentdb.path: cannot be empty",
		},
		{
			name:    "unknown mode",
			cfgData: "agentdb:\n  defaultMode: sctp\n",
			wantErr: "agentdb.defaultMode",
		},
		{
			name:    "zero busy attempts",
			cfgData: "agentdb:\n  busy:\n    maxAttempts: 0\n",
			wantErr: "agentdb.busy.maxAttempts",
		},
		{
			name:    "negative vacuum interval",
			cfgData: "agentdb:\n  vacuumInterval: -1s\n",
			wantErr: "agentdb.vacuumInterval",
		},
		{
			name:    "negative cache size",
			cfgData: "agentdb:\n  cache:\n    maxEntries: -1\n",
			wantErr: "agentdb.cache.maxEntries",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expectedCfg(), cfg)
		})
	}
}
