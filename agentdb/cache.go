/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package agentdb

import (
	"container/list"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type cachedAgent struct {
	agent     Agent
	expiresAt time.Time
}

// agentCache keeps recently resolved agents in memory, least recently used ones are evicted first.
// A nil *agentCache is a disabled cache.
//
// Every invalidation bumps the generation. An agent read from the database is cached only if no invalidation
// happened since the read started, so a concurrent update can't be overwritten by the stale record.
type agentCache struct {
	mu         sync.Mutex
	lruList    *list.List
	entries    map[string]*list.Element
	maxEntries int
	ttl        time.Duration
	gen        uint64
	metrics    *CachePrometheusMetrics
}

func newAgentCache(maxEntries int, ttl time.Duration, metrics *CachePrometheusMetrics) *agentCache {
	if maxEntries <= 0 {
		return nil
	}
	return &agentCache{
		lruList:    list.New(),
		entries:    make(map[string]*list.Element, maxEntries),
		maxEntries: maxEntries,
		ttl:        ttl,
		metrics:    metrics,
	}
}

func (c *agentCache) get(id string) (Agent, bool) {
	if c == nil {
		return Agent{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, hit := c.entries[id]
	if !hit {
		c.metrics.MissesTotal.Inc()
		return Agent{}, false
	}
	entry := elem.Value.(*cachedAgent)
	if !entry.expiresAt.IsZero() && entry.expiresAt.Before(time.Now()) {
		c.lruList.Remove(elem)
		delete(c.entries, id)
		c.metrics.EntriesAmount.Set(float64(len(c.entries)))
		c.metrics.MissesTotal.Inc()
		return Agent{}, false
	}
	c.lruList.MoveToFront(elem)
	c.metrics.HitsTotal.Inc()
	return entry.agent, true
}

// generation returns the value to be passed to add for an agent that is about to be read from the database.
func (c *agentCache) generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// add caches the agent unless the cache was invalidated after the given generation had been taken.
func (c *agentCache) add(agent Agent, generation uint64) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != generation {
		return false
	}

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}
	if elem, ok := c.entries[agent.ID]; ok {
		elem.Value = &cachedAgent{agent: agent, expiresAt: expiresAt}
		c.lruList.MoveToFront(elem)
		return true
	}
	c.entries[agent.ID] = c.lruList.PushFront(&cachedAgent{agent: agent, expiresAt: expiresAt})
	if len(c.entries) > c.maxEntries {
		oldest := c.lruList.Back()
		c.lruList.Remove(oldest)
		delete(c.entries, oldest.Value.(*cachedAgent).agent.ID)
		c.metrics.EvictionsTotal.Inc()
	}
	c.metrics.EntriesAmount.Set(float64(len(c.entries)))
	return true
}

func (c *agentCache) remove(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if elem, ok := c.entries[id]; ok {
		c.lruList.Remove(elem)
		delete(c.entries, id)
		c.metrics.EntriesAmount.Set(float64(len(c.entries)))
	}
}

func (c *agentCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CachePrometheusMetrics represents collector of metrics for the in-memory cache of agents.
type CachePrometheusMetrics struct {
	EntriesAmount  prometheus.Gauge
	HitsTotal      prometheus.Counter
	MissesTotal    prometheus.Counter
	EvictionsTotal prometheus.Counter
}

// NewCachePrometheusMetrics creates a new instance of CachePrometheusMetrics.
func NewCachePrometheusMetrics(namespace string) *CachePrometheusMetrics {
	return &CachePrometheusMetrics{
		EntriesAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries_amount",
			Help:      "Total number of agents in the cache.",
		}),
		HitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Number of agents found in the cache.",
		}),
		MissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Number of agents not found in the cache.",
		}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Number of evicted agents.",
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *CachePrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.EntriesAmount,
		pm.HitsTotal,
		pm.MissesTotal,
		pm.EvictionsTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *CachePrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.EntriesAmount)
	prometheus.Unregister(pm.HitsTotal)
	prometheus.Unregister(pm.MissesTotal)
	prometheus.Unregister(pm.EvictionsTotal)
}
