package http

import (
	"strings"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/zoobzio/metricz"
)

const namespace = "routing"

// promName turns a metricz key such as "orders.created.total" into "orders_created_total".
func promName(key metricz.Key) string {
	return strings.ReplaceAll(string(key), ".", "_")
}

// NewMetricsRegistry exposes the engine's metricz counters and gauges to prometheus.
// Values are read at scrape time.
func NewMetricsRegistry(m *metricz.Registry) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, key := range service.MetricKeys {
		counter := m.Counter(key)
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      promName(key),
			Help:      "Routing engine counter " + string(key) + ".",
		}, counter.Value))
	}
	for _, key := range service.GaugeKeys {
		gauge := m.Gauge(key)
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      promName(key),
			Help:      "Routing engine gauge " + string(key) + ".",
		}, gauge.Value))
	}
	return reg
}
