// Package metrics exposes gateway statistics as Prometheus metrics gathered
// at scrape time.
package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds the live counters maintained by the call gateway. A single
// instance is shared between the gateway and the collector.
type Stats struct {
	activeCalls    atomic.Int64
	turnsProcessed atomic.Uint64
	turnsFailed    atomic.Uint64
}

// CallStarted records a new active call.
func (s *Stats) CallStarted() { s.activeCalls.Add(1) }

// CallEnded records the end of an active call.
func (s *Stats) CallEnded() { s.activeCalls.Add(-1) }

// TurnProcessed records a turn that produced a reply.
func (s *Stats) TurnProcessed() { s.turnsProcessed.Add(1) }

// TurnFailed records a turn abandoned by a pipeline failure.
func (s *Stats) TurnFailed() { s.turnsFailed.Add(1) }

// ActiveCalls returns the number of currently connected calls.
func (s *Stats) ActiveCalls() int64 { return s.activeCalls.Load() }

// Turns returns the processed and failed turn counts.
func (s *Stats) Turns() (processed, failed uint64) {
	return s.turnsProcessed.Load(), s.turnsFailed.Load()
}

// CallStatusCounter returns call log counts grouped by final status.
type CallStatusCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// TenantCounter returns the number of configured tenants.
type TenantCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Collector is a prometheus.Collector that gathers gateway metrics at scrape
// time.
type Collector struct {
	stats     *Stats
	callLogs  CallStatusCounter
	tenants   TenantCounter
	startTime time.Time

	// Metric descriptors.
	activeCallsDesc *prometheus.Desc
	turnsDesc       *prometheus.Desc
	callsTotalDesc  *prometheus.Desc
	tenantsDesc     *prometheus.Desc
	uptimeDesc      *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if
// unavailable.
func NewCollector(stats *Stats, callLogs CallStatusCounter, tenants TenantCounter, startTime time.Time) *Collector {
	return &Collector{
		stats:     stats,
		callLogs:  callLogs,
		tenants:   tenants,
		startTime: startTime,

		activeCallsDesc: prometheus.NewDesc(
			"voxgate_active_calls",
			"Number of currently connected calls",
			nil, nil,
		),
		turnsDesc: prometheus.NewDesc(
			"voxgate_turns_total",
			"Total number of caller turns handled, by result",
			[]string{"result"}, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"voxgate_calls_total",
			"Total number of logged calls, by final status",
			[]string{"status"}, nil,
		),
		tenantsDesc: prometheus.NewDesc(
			"voxgate_tenants",
			"Number of configured tenants",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"voxgate_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallsDesc
	ch <- c.turnsDesc
	ch <- c.callsTotalDesc
	ch <- c.tenantsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at scrape
// time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.stats != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeCallsDesc, prometheus.GaugeValue,
			float64(c.stats.ActiveCalls()),
		)
		processed, failed := c.stats.Turns()
		ch <- prometheus.MustNewConstMetric(
			c.turnsDesc, prometheus.CounterValue,
			float64(processed), "processed",
		)
		ch <- prometheus.MustNewConstMetric(
			c.turnsDesc, prometheus.CounterValue,
			float64(failed), "failed",
		)
	}

	if c.callLogs != nil {
		counts, err := c.callLogs.CountByStatus(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by status", "error", err)
		} else {
			for status, count := range counts {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(count), status,
				)
			}
		}
	}

	if c.tenants != nil {
		count, err := c.tenants.Count(ctx)
		if err != nil {
			slog.Error("metrics: failed to count tenants", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.tenantsDesc, prometheus.GaugeValue,
				float64(count),
			)
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
