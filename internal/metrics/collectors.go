package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// RedisPoolCollector exports connection pool statistics of the session store
type RedisPoolCollector struct {
	redis *redis.Client

	hits       *prometheus.Desc
	misses     *prometheus.Desc
	timeouts   *prometheus.Desc
	conns      *prometheus.Desc
}

// NewRedisPoolCollector creates a collector over the client's pool
func NewRedisPoolCollector(client *redis.Client) *RedisPoolCollector {
	return &RedisPoolCollector{
		redis: client,

		hits: prometheus.NewDesc(
			"shopbot_redis_pool_hits_total",
			"Times a free connection was found in the pool",
			nil, nil,
		),
		misses: prometheus.NewDesc(
			"shopbot_redis_pool_misses_total",
			"Times a free connection was not found in the pool",
			nil, nil,
		),
		timeouts: prometheus.NewDesc(
			"shopbot_redis_pool_timeouts_total",
			"Times a wait for a connection timed out",
			nil, nil,
		),
		conns: prometheus.NewDesc(
			"shopbot_redis_pool_connections",
			"Connections in the pool",
			[]string{"state"}, // state: total|idle
			nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *RedisPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.timeouts
	ch <- c.conns
}

// Collect implements prometheus.Collector
func (c *RedisPoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.redis.PoolStats()

	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(stats.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stats.TotalConns), "total")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(stats.IdleConns), "idle")
}
