/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Command reqbrokerd relays requests of local administrative clients to remote agents
// and returns the agents' replies.
package main

import (
	"context"
	"flag"
	"fmt"
	golog "log"
	"time"

	"github.com/acronis/go-reqbroker/adminserver"
	"github.com/acronis/go-reqbroker/agentdb"
	"github.com/acronis/go-reqbroker/broker"
	"github.com/acronis/go-reqbroker/config"
	"github.com/acronis/go-reqbroker/log"
	"github.com/acronis/go-reqbroker/service"
	"github.com/acronis/go-reqbroker/transport"
)

const (
	envVarsPrefix    = "REQBROKER"
	metricsNamespace = "reqbroker"
)

func main() {
	cfgPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := runApp(*cfgPath); err != nil {
		golog.Fatal(err)
	}
}

func runApp(cfgPath string) error {
	cfg, err := loadAppConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	store, err := agentdb.Open(context.Background(), cfg.AgentDB, logger.With(log.String("component", "agentdb")))
	if err != nil {
		return fmt.Errorf("open agent database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("failed to close agent database", log.Error(closeErr))
		}
	}()
	store.CacheMetrics.MustRegister()
	defer store.CacheMetrics.Unregister()

	// Agents registered in tcp mode are refused by the transport instead of getting unacknowledged datagrams.
	udpTransport := transport.NewUDPTransport(cfg.Transport, store,
		logger.With(log.String("component", "udp-transport")), transport.WithModeResolver(store))
	if err = udpTransport.Listen(); err != nil {
		return err
	}

	reqBroker, err := broker.New(cfg.Broker, udpTransport, store, logger.With(log.String("component", "broker")),
		broker.WithMetricsOptions(broker.PrometheusMetricsOpts{Namespace: metricsNamespace}))
	if err != nil {
		return fmt.Errorf("create broker: %w", err)
	}
	udpTransport.SetHandler(reqBroker)

	// Auxiliary units don't depend on each other and are stopped concurrently, after the request path.
	var auxUnits []service.Unit
	if vacuumInterval := time.Duration(cfg.AgentDB.VacuumInterval); vacuumInterval > 0 {
		auxUnits = append(auxUnits, service.NewWorkerUnit(agentdb.NewVacuumWorker(store, vacuumInterval, logger)))
	}
	if cfg.AdminServer.Enabled {
		auxUnits = append(auxUnits, adminserver.New(cfg.AdminServer, logger.With(log.String("component", "admin-server")),
			adminserver.Opts{HealthCheck: makeHealthCheck(reqBroker, store)}))
	}

	// Units are stopped in reverse order: the broker drains its dispatchers while the transport is still up.
	var units []service.Unit
	if len(auxUnits) != 0 {
		units = append(units, service.NewCompositeUnit(auxUnits...))
	}
	units = append(units,
		service.NewWorkerUnitWithOpts(udpTransport, service.WorkerUnitOpts{
			GracefulStopTimeout: time.Duration(cfg.Broker.Timeouts.Shutdown),
		}),
		reqBroker,
	)

	return service.New(logger, service.NewOrderedCompositeUnit(units...)).Start()
}

func makeHealthCheck(reqBroker *broker.Broker, store *agentdb.Store) adminserver.HealthCheck {
	return func(ctx context.Context) (adminserver.HealthCheckResult, error) {
		res := adminserver.HealthCheckResult{
			"broker":  adminserver.HealthCheckStatusOK,
			"agentdb": adminserver.HealthCheckStatusOK,
		}
		select {
		case <-reqBroker.Listening():
		default:
			res["broker"] = adminserver.HealthCheckStatusFail
		}
		if err := store.Ping(ctx); err != nil {
			res["agentdb"] = adminserver.HealthCheckStatusFail
		}
		return res, ctx.Err()
	}
}

// AppConfig is the daemon's configuration.
type AppConfig struct {
	Log         *log.Config
	Broker      *broker.Config
	Transport   *transport.Config
	AgentDB     *agentdb.Config
	AdminServer *adminserver.Config
}

// NewAppConfig creates a new AppConfig.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:         log.NewConfig(),
		Broker:      broker.NewConfig(),
		Transport:   transport.NewConfig(),
		AgentDB:     agentdb.NewConfig(),
		AdminServer: adminserver.NewConfig(),
	}
}

func (c *AppConfig) all() []config.Config {
	return []config.Config{c.Log, c.Broker, c.Transport, c.AgentDB, c.AdminServer}
}

func loadAppConfig(cfgPath string) (*AppConfig, error) {
	cfgLoader := config.NewDefaultLoader(envVarsPrefix)
	cfg := NewAppConfig()
	cfgs := cfg.all()
	if cfgPath == "" {
		return cfg, cfgLoader.LoadDefaults(cfgs[0], cfgs[1:]...)
	}
	return cfg, cfgLoader.LoadFromFile(cfgPath, config.DataTypeYAML, cfgs[0], cfgs[1:]...)
}
