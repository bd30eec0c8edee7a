/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqbroker/adminserver"
	"github.com/acronis/go-reqbroker/agentdb"
	"github.com/acronis/go-reqbroker/broker"
	"github.com/acronis/go-reqbroker/log/logtest"
	"github.com/acronis/go-reqbroker/transport"
)

func TestLoadAppConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadAppConfig("")
		require.NoError(t, err)
		require.Equal(t, broker.DefaultUnixSocketPath, cfg.Broker.UnixSocketPath)
		require.Equal(t, broker.DefaultPoolSize, cfg.Broker.PoolSize)
		require.Equal(t, agentdb.DefaultPath, cfg.AgentDB.Path)
		require.True(t, cfg.AdminServer.Enabled)
	})

	t.Run("file", func(t *testing.T) {
		cfgPath := filepath.Join(t.TempDir(), "reqbroker.yml")
		require.NoError(t, os.WriteFile(cfgPath, []byte(`
log:
  level: debug
broker:
  address: 127.0.0.1:5555
  poolSize: 2
transport:
  udp:
    address: 127.0.0.1:1515
agentdb:
  path: /tmp/reqbroker/agents.db
  defaultMode: tcp
adminServer:
  enabled: false
`), 0o600))

		cfg, err := loadAppConfig(cfgPath)
		require.NoError(t, err)
		require.Equal(t, "127.0.0.1:5555", cfg.Broker.Address)
		require.Equal(t, 2, cfg.Broker.PoolSize)
		require.Equal(t, "127.0.0.1:1515", cfg.Transport.UDP.Address)
		require.Equal(t, transport.ModeTCP, cfg.AgentDB.DefaultMode)
		require.False(t, cfg.AdminServer.Enabled)
	})

	t.Run("invalid file", func(t *testing.T) {
		cfgPath := filepath.Join(t.TempDir(), "reqbroker.yml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("broker:\n  poolSize: 100\n"), 0o600))
		_, err := loadAppConfig(cfgPath)
		require.ErrorContains(t, err, "broker.poolSize")
	})
}

func TestHealthCheck(t *testing.T) {
	logger := logtest.NewRecorder()

	dbCfg := agentdb.NewDefaultConfig()
	dbCfg.Path = filepath.Join(t.TempDir(), "agents.db")
	store, err := agentdb.Open(context.Background(), dbCfg, logger)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	brokerCfg := broker.NewDefaultConfig()
	brokerCfg.Address = "127.0.0.1:0"
	sender := transport.SenderFunc(func(context.Context, string, []byte) error { return nil })
	reqBroker, err := broker.New(brokerCfg, sender, store, logger)
	require.NoError(t, err)

	healthCheck := makeHealthCheck(reqBroker, store)

	res, err := healthCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, adminserver.HealthCheckStatusFail, res["broker"], "broker is not listening yet")
	require.Equal(t, adminserver.HealthCheckStatusOK, res["agentdb"])

	fatalErr := make(chan error, 1)
	go reqBroker.Start(fatalErr)
	select {
	case <-reqBroker.Listening():
	case <-time.After(time.Second * 3):
		t.Fatal("broker is not listening")
	}
	defer func() { require.NoError(t, reqBroker.Stop(true)) }()

	res, err = healthCheck(context.Background())
	require.NoError(t, err)
	require.Equal(t, adminserver.HealthCheckResult{
		"broker":  adminserver.HealthCheckStatusOK,
		"agentdb": adminserver.HealthCheckStatusOK,
	}, res)
}
