package dashboard

import (
	"net/http"
	"strconv"

	"github.com/TheLazyLemur/pathscope/internal/intervention"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// otherTool labels decisions for tools outside the known set, keeping label
// cardinality bounded whatever callers send.
const otherTool = "other"

// Metrics exposes Prometheus collectors for intervention decisions.
type Metrics struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	tools     map[string]bool
}

// NewMetrics creates collectors on a private registry so several servers
// (or tests) never collide on registration. Only the given tools get their
// own label value.
func NewMetrics(tools ...string) *Metrics {
	reg := prometheus.NewRegistry()
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pathscope",
			Name:      "decisions_total",
			Help:      "Intervention decisions by tool and outcome.",
		},
		[]string{"tool", "required"},
	)
	reg.MustRegister(decisions)

	known := make(map[string]bool, len(tools))
	for _, t := range tools {
		known[t] = true
	}
	return &Metrics{registry: reg, decisions: decisions, tools: known}
}

// Observe counts d.
func (m *Metrics) Observe(d intervention.Decision) {
	tool := d.Tool
	if !m.tools[tool] {
		tool = otherTool
	}
	m.decisions.WithLabelValues(tool, strconv.FormatBool(d.Required)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
