/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testBrokerConfigYAML = `
broker:
  poolSize: 16
  maxAttempts: 20
  unixSocketPath: /var/run/reqbroker/request.sock
  timeouts:
    response: 90s
  limits:
    maxRequestSize: 64KB
  mode: udp
`

func TestViperAdapter_SetFromReader(t *testing.T) {
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testBrokerConfigYAML), DataTypeYAML))

	path, err := va.GetString("broker.unixSocketPath")
	require.NoError(t, err)
	require.Equal(t, "/var/run/reqbroker/request.sock", path)

	poolSize, err := va.GetInt("broker.poolSize")
	require.NoError(t, err)
	require.Equal(t, 16, poolSize)
}

func TestViperAdapter_SetFromFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "reqbroker.yaml")
	require.NoError(t, os.WriteFile(fname, []byte(testBrokerConfigYAML), 0o600))

	va := NewViperAdapter()
	require.NoError(t, va.SetFromFile(fname, DataTypeYAML))

	dur, err := va.GetDuration("broker.timeouts.response")
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, dur)
}

func TestViperAdapter_UseEnvVars(t *testing.T) {
	t.Setenv("TEST_BROKER_POOLSIZE", "3")

	va := NewViperAdapter()
	va.UseEnvVars("test")
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testBrokerConfigYAML), DataTypeYAML))

	poolSize, err := va.GetInt("broker.poolSize")
	require.NoError(t, err)
	require.Equal(t, 3, poolSize)
}

func TestViperAdapter_GetIntInRange(t *testing.T) {
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testBrokerConfigYAML), DataTypeYAML))

	poolSize, err := va.GetIntInRange("broker.poolSize", 1, 64)
	require.NoError(t, err)
	require.Equal(t, 16, poolSize)

	_, err = va.GetIntInRange("broker.maxAttempts", 1, 16)
	require.EqualError(t, err, "broker.maxAttempts: should be in range [1, 16], got 20")

	va.Set("broker.poolSize", "many")
	_, err = va.GetIntInRange("broker.poolSize", 1, 64)
	require.Error(t, err)
}

func TestViperAdapter_GetStringFromSet(t *testing.T) {
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testBrokerConfigYAML), DataTypeYAML))

	mode, err := va.GetStringFromSet("broker.mode", []string{"UDP", "TCP"}, true)
	require.NoError(t, err)
	require.Equal(t, "udp", mode)

	_, err = va.GetStringFromSet("broker.mode", []string{"UDP", "TCP"}, false)
	require.Error(t, err)
}

func TestViperAdapter_GetByteSize(t *testing.T) {
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testBrokerConfigYAML), DataTypeYAML))

	size, err := va.GetByteSize("broker.limits.maxRequestSize")
	require.NoError(t, err)
	require.Equal(t, ByteSize(64*1024), size)

	va.Set("size.int", 512)
	size, err = va.GetByteSize("size.int")
	require.NoError(t, err)
	require.Equal(t, ByteSize(512), size)

	va.Set("size.negative", -1)
	_, err = va.GetByteSize("size.negative")
	require.Error(t, err)

	size, err = va.GetByteSize("size.missing")
	require.NoError(t, err)
	require.Zero(t, size)
}
