/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestByteSize_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"Valid Integer", `1024`, ByteSize(1024), false},
		{"Valid Human-Readable", `"64KB"`, ByteSize(64 * 1024), false},
		{"Valid k8s suffix", `"1Mi"`, ByteSize(1024 * 1024), false},
		{"Invalid Format", `"invalid"`, 0, true},
		{"Negative Value", `"-1024"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b ByteSize
			err := json.Unmarshal([]byte(tt.input), &b)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, b)
		})
	}
}

func TestByteSize_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"Valid Integer", "size: 2048", ByteSize(2048), false},
		{"Valid Human-Readable", "size: 20MB", ByteSize(20 * 1024 * 1024), false},
		{"Valid k8s suffix", "size: 2Gi", ByteSize(2 * 1024 * 1024 * 1024), false},
		{"Invalid Format", "size: invalid", 0, true},
		{"Not a Scalar", "size: [1, 2]", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg struct{ Size ByteSize }
			err := yaml.Unmarshal([]byte(tt.input), &cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg.Size)
		})
	}
}

func TestTimeDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    TimeDuration
		wantErr bool
	}{
		{"Valid Integer", "duration: 2000", TimeDuration(2000), false},
		{"Valid Human-Readable", "duration: 250ms", TimeDuration(250 * time.Millisecond), false},
		{"Invalid Format", "duration: invalid", 0, true},
		{"Negative Value", "duration: -2000", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg struct{ Duration TimeDuration }
			err := yaml.Unmarshal([]byte(tt.input), &cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg.Duration)
		})
	}
}

func TestCustomTypes_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Size    ByteSize
		Timeout TimeDuration
	}{ByteSize(64 * 1024), TimeDuration(90 * time.Second)})
	require.NoError(t, err)
	require.JSONEq(t, `{"Size":"64K","Timeout":"1m30s"}`, string(data))
}
