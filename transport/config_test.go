/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqbroker/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgData     string
		expectedCfg func() *Config
		wantErr     string
	}{
		{
			name: "yaml config",
			cfgData: `
transport:
  udp:
    address: "0.0.0.0:1515"
    maxDatagramSize: 8KB
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.UDP.Address = "0.0.0.0:1515"
				cfg.UDP.MaxDatagramSize = 8 * 1024
				return cfg
			},
		},
		{
			name:        "empty config, defaults are used",
			cfgData:     `{}`,
			expectedCfg: NewDefaultConfig,
		},
		{
			name: "datagram size too small",
			cfgData: `
transport:
  udp:
    maxDatagramSize: 100
`,
			wantErr: "transport.udp.maxDatagramSize",
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
