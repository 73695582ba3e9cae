// Package metrics exposes run counters for a script execution,
// optionally served over HTTP in Prometheus format.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the optional Prometheus endpoint.
type Config struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = ":9090"
	}
}

// Collector aggregates the counters the engine and dispatcher bump
// during a run.
type Collector struct {
	Received      prometheus.Counter
	Published     prometheus.Counter
	PublishErrors prometheus.Counter
	PeriodicTicks prometheus.Counter
	LogErrors     prometheus.Counter
}

// NewCollector registers the run counters on reg. A nil registerer
// defaults to the global Prometheus registerer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cmdscript_messages_received_total",
			Help: "Messages delivered to subscriptions",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cmdscript_messages_published_total",
			Help: "Messages accepted for publishing",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cmdscript_publish_errors_total",
			Help: "Publish attempts rejected by the client",
		}),
		PeriodicTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cmdscript_periodic_ticks_total",
			Help: "Periodic publish task ticks",
		}),
		LogErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cmdscript_log_write_errors_total",
			Help: "Failed log sink writes",
		}),
	}
	for _, col := range []*prometheus.Counter{
		&c.Received, &c.Published, &c.PublishErrors, &c.PeriodicTicks, &c.LogErrors,
	} {
		if err := reg.Register(*col); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				*col = are.ExistingCollector.(prometheus.Counter)
				continue
			}
			return nil, err
		}
	}
	return c, nil
}

// StartServer serves the registry on addr. It blocks, so callers run it
// in a goroutine.
func StartServer(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
