/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package agentdb keeps the registry of agents the broker talks to in a SQLite database:
// how each agent is connected and where its datagrams should be sent.
package agentdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/acronis/go-reqbroker/log"
	"github.com/acronis/go-reqbroker/retry"
	"github.com/acronis/go-reqbroker/transport"
)

const metricsNamespace = "agentdb"

// SchemaVersion is recorded in the info table of every database created by Open.
const SchemaVersion = "1"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS agent (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	protocol TEXT NOT NULL DEFAULT '',
	last_keepalive INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_agent_name ON agent(name);
CREATE TABLE IF NOT EXISTS info (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// ErrAgentNotFound is returned when the agent is not registered.
var ErrAgentNotFound = errors.New("agent not found")

// Agent is a registered agent.
type Agent struct {
	ID   string
	Name string
	// Address is the agent's datagram address (host:port).
	Address string
	// Mode is the transport mode the agent is connected with. Empty means unknown.
	Mode          transport.Mode
	LastKeepAlive time.Time
}

// Store is the SQLite-backed agent registry.
// It implements transport.ModeResolver and transport.AddressBook.
type Store struct {
	// CacheMetrics is a collector of metrics of the in-memory agents cache. It should be registered by the caller.
	CacheMetrics *CachePrometheusMetrics

	db          *sql.DB
	logger      log.FieldLogger
	busyPolicy  retry.Policy
	defaultMode transport.Mode
	cache       *agentCache
}

var (
	_ transport.ModeResolver = (*Store)(nil)
	_ transport.AddressBook  = (*Store)(nil)
)

// Open opens (or creates) the agent database and makes sure its schema exists.
func Open(ctx context.Context, cfg *Config, logger log.FieldLogger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", cfg.Path, err)
	}
	// Statements of this process are serialized on one connection.
	db.SetMaxOpenConns(1)

	defaultMode := cfg.DefaultMode
	if defaultMode == "" {
		defaultMode = DefaultMode
	}
	cacheMetrics := NewCachePrometheusMetrics(metricsNamespace)
	s := &Store{
		CacheMetrics: cacheMetrics,
		db:           db,
		logger:       logger.With(log.String("db_path", cfg.Path)),
		busyPolicy:   retry.NewConstantBackoffPolicy(time.Duration(cfg.Busy.Interval), cfg.Busy.MaxAttempts),
		defaultMode:  defaultMode,
		cache:        newAgentCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTL), cacheMetrics),
	}

	if err = s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s.logger.Info("agent database opened")
	return s, nil
}

// Ping verifies the database is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema(ctx context.Context) error {
	return s.exec(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err = tx.ExecContext(ctx, schemaSQL); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO info (key, value) VALUES ('db_version', ?)`, SchemaVersion); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// SchemaVersion returns the schema version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (string, error) {
	var version string
	err := s.exec(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT value FROM info WHERE key = 'db_version'`).Scan(&version)
	})
	if err != nil {
		return "", fmt.Errorf("get schema version: %w", err)
	}
	return version, nil
}

// UpsertAgent registers the agent or updates its record.
func (s *Store) UpsertAgent(ctx context.Context, agent Agent) error {
	if agent.ID == "" {
		return fmt.Errorf("upsert agent: empty id")
	}
	err := s.exec(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO agent (id, name, address, protocol, last_keepalive) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				address = excluded.address,
				protocol = excluded.protocol,
				last_keepalive = excluded.last_keepalive`,
			agent.ID, agent.Name, agent.Address, string(agent.Mode), unixOrZero(agent.LastKeepAlive))
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert agent %q: %w", agent.ID, err)
	}
	s.cache.remove(agent.ID)
	return nil
}

// GetAgent returns the agent by its id. ErrAgentNotFound is returned if there is no such agent.
func (s *Store) GetAgent(ctx context.Context, id string) (Agent, error) {
	cacheGen := s.cache.generation()
	var agent Agent
	err := s.exec(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, name, address, protocol, last_keepalive FROM agent WHERE id = ?`, id)
		var scanErr error
		agent, scanErr = scanAgent(row)
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, fmt.Errorf("get agent %q: %w", id, ErrAgentNotFound)
		}
		return Agent{}, fmt.Errorf("get agent %q: %w", id, err)
	}
	s.cache.add(agent, cacheGen)
	return agent, nil
}

// ListAgents returns all registered agents ordered by id.
func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	err := s.exec(ctx, func(ctx context.Context) error {
		agents = agents[:0]
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, name, address, protocol, last_keepalive FROM agent ORDER BY id`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			agent, scanErr := scanAgent(rows)
			if scanErr != nil {
				return scanErr
			}
			agents = append(agents, agent)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// DeleteAgent removes the agent. ErrAgentNotFound is returned if there is no such agent.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	var affected int64
	err := s.exec(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM agent WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete agent %q: %w", id, err)
	}
	s.cache.remove(id)
	if affected == 0 {
		return fmt.Errorf("delete agent %q: %w", id, ErrAgentNotFound)
	}
	return nil
}

// lookupAgent returns the agent from the cache or, on a miss, from the database.
func (s *Store) lookupAgent(ctx context.Context, id string) (Agent, error) {
	if agent, ok := s.cache.get(id); ok {
		return agent, nil
	}
	return s.GetAgent(ctx, id)
}

// Mode returns the transport mode the agent is registered with.
// The configured default mode is returned for unknown agents and on database errors.
// Implements transport.ModeResolver.
func (s *Store) Mode(ctx context.Context, agentID string) transport.Mode {
	agent, err := s.lookupAgent(ctx, agentID)
	if err != nil {
		if !errors.Is(err, ErrAgentNotFound) {
			s.logger.Warn("failed to resolve agent transport mode, default is used",
				log.String("agent", agentID), log.Error(err))
		}
		return s.defaultMode
	}
	if agent.Mode == "" {
		return s.defaultMode
	}
	return agent.Mode
}

// Address returns the datagram address of the agent.
// Implements transport.AddressBook.
func (s *Store) Address(ctx context.Context, agentID string) (string, error) {
	agent, err := s.lookupAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	if agent.Address == "" {
		return "", fmt.Errorf("agent %q has no address", agentID)
	}
	return agent.Address, nil
}

// Vacuum rebuilds the database file repacking it into a minimal amount of disk space.
func (s *Store) Vacuum(ctx context.Context) error {
	startTime := time.Now()
	if err := s.exec(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `VACUUM`)
		return err
	}); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	s.logger.Info("agent database vacuumed", log.DurationIn(time.Since(startTime), time.Millisecond))
	return nil
}

// exec runs fn while the database reports it is busy or locked.
func (s *Store) exec(ctx context.Context, fn retry.RetryableFunc) error {
	return retry.DoWithRetry(ctx, s.busyPolicy, isBusy, func(err error, _ time.Duration) {
		s.logger.Debug("agent database is busy, retrying", log.Error(err))
	}, fn)
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff { // Primary result code.
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (Agent, error) {
	var (
		agent         Agent
		protocol      string
		lastKeepAlive int64
	)
	if err := row.Scan(&agent.ID, &agent.Name, &agent.Address, &protocol, &lastKeepAlive); err != nil {
		return Agent{}, err
	}
	if protocol != "" {
		mode, err := transport.ParseMode(protocol)
		if err != nil {
			return Agent{}, err
		}
		agent.Mode = mode
	}
	if lastKeepAlive != 0 {
		agent.LastKeepAlive = time.Unix(lastKeepAlive, 0)
	}
	return agent, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
