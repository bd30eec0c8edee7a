/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

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
	}{
		{
			name: "yaml config",
			cfgData: `
log:
  level: warn
  format: text
  output: file
  file:
    path: /var/log/reqbroker/reqbroker.log
    rotation:
      compress: true
      maxSize: 100M
      maxBackups: 42
  addCaller: true
`,
			expectedCfg: func() *Config {
				cfg := NewDefaultConfig()
				cfg.Level = LevelWarn
				cfg.Format = FormatText
				cfg.Output = OutputFile
				cfg.File.Path = "/var/log/reqbroker/reqbroker.log"
				cfg.File.Rotation.MaxSize = 100 * 1024 * 1024
				cfg.File.Rotation.MaxBackups = 42
				cfg.File.Rotation.Compress = true
				cfg.AddCaller = true
				return cfg
			},
		},
		{
			name:        "empty config, defaults are used",
			cfgData:     `{}`,
			expectedCfg: NewDefaultConfig,
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			require.NoError(t, err)
			require.Equal(t, tt.expectedCfg(), cfg)
		})
	}
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		cfgData        string
		expectedErrMsg string
	}{
		{
			name:           "unknown level",
			cfgData:        "log:\n  level: verbose\n",
			expectedErrMsg: `log.level: unknown value "verbose", should be one of [error warn info debug]`,
		},
		{
			name:           "file output without path",
			cfgData:        "log:\n  output: file\n",
			expectedErrMsg: `log.file.path: cannot be empty when "file" output is used`,
		},
		{
			name:           "too small rotation size",
			cfgData:        "log:\n  file:\n    rotation:\n      maxSize: 1K\n",
			expectedErrMsg: "log.file.rotation.maxSize: should be >= 1M",
		},
	}
	for i := range tests {
		tt := tests[i]
		t.Run(tt.name, func(t *testing.T) {
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, NewConfig())
			require.EqualError(t, err, tt.expectedErrMsg)
		})
	}
}
