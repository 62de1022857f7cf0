// Package metrics exposes prometheus collectors for settlements and sweeps.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SettlementOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dues", Name: "settlement_operations_total", Help: "Settlement commands by operation and outcome",
	}, []string{"op", "outcome"})
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dues", Name: "cache_lookups_total", Help: "Due-list cache lookups by result",
	}, []string{"result"})
	OverdueMembers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dues", Name: "overdue_members", Help: "Members with at least one overdue period at the last sweep",
	})
	OverduePeriods = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dues", Name: "overdue_periods", Help: "Overdue periods across all members at the last sweep",
	})
	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dues", Name: "sweep_seconds", Help: "Overdue sweep latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(SettlementOps, CacheLookups, OverdueMembers, OverduePeriods, SweepDuration)
}

func Handler() http.Handler { return promhttp.Handler() }

// ObserveSettlement counts one settlement command.
func ObserveSettlement(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SettlementOps.WithLabelValues(op, outcome).Inc()
}

func ObserveSweep(d time.Duration, members, periods int) {
	SweepDuration.Observe(d.Seconds())
	OverdueMembers.Set(float64(members))
	OverduePeriods.Set(float64(periods))
}
