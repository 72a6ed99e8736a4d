// Package metrics exposes orchestration state as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/overseerd/overseer/pkg/logging"
	"github.com/overseerd/overseer/pkg/store"
)

// Collector reads session and pause state from the store on scrape
type Collector struct {
	store store.Store
	log   *logging.Logger

	sessionsDesc *prometheus.Desc
	pausesDesc   *prometheus.Desc
	projectsDesc *prometheus.Desc
}

// NewCollector creates a store-backed collector
func NewCollector(st store.Store, log *logging.Logger) *Collector {
	return &Collector{
		store: st,
		log:   log,
		sessionsDesc: prometheus.NewDesc(
			"overseer_sessions_total",
			"Number of sessions by status",
			[]string{"status"}, nil,
		),
		pausesDesc: prometheus.NewDesc(
			"overseer_pauses_active",
			"Number of unresolved intervention pauses",
			nil, nil,
		),
		projectsDesc: prometheus.NewDesc(
			"overseer_projects_total",
			"Number of projects by status",
			[]string{"status"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionsDesc
	ch <- c.pausesDesc
	ch <- c.projectsDesc
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.store.SessionCounts()
	if err != nil {
		c.log.Error("failed to collect session counts", map[string]interface{}{"error": err.Error()})
	} else {
		for status, count := range counts {
			ch <- prometheus.MustNewConstMetric(
				c.sessionsDesc, prometheus.GaugeValue, float64(count), string(status))
		}
	}

	pauses, err := c.store.ActivePauses("")
	if err != nil {
		c.log.Error("failed to collect active pauses", map[string]interface{}{"error": err.Error()})
	} else {
		ch <- prometheus.MustNewConstMetric(
			c.pausesDesc, prometheus.GaugeValue, float64(len(pauses)))
	}

	projects, err := c.store.ListProjects()
	if err != nil {
		c.log.Error("failed to collect projects", map[string]interface{}{"error": err.Error()})
		return
	}
	byStatus := make(map[string]int)
	for _, p := range projects {
		byStatus[string(p.Status)]++
	}
	for status, count := range byStatus {
		ch <- prometheus.MustNewConstMetric(
			c.projectsDesc, prometheus.GaugeValue, float64(count), status)
	}
}

// Handler returns an HTTP handler exposing the collector in the
// Prometheus text format
func Handler(st store.Store, log *logging.Logger) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(st, log))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mfs, err := registry.Gather()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		contentType := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(contentType))

		enc := expfmt.NewEncoder(w, contentType)
		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				log.Error("failed to encode metric family", map[string]interface{}{"error": err.Error()})
				return
			}
		}
	})
}

var _ prometheus.Collector = (*Collector)(nil)
