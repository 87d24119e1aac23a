package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exports operations through its own registry.
type Prometheus struct {
	reg *prometheus.Registry

	opLatency    *prometheus.HistogramVec
	blockBytes   *prometheus.CounterVec
	lookups      *prometheus.CounterVec
	falseMatches prometheus.Counter
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus registers the cidstore metrics, plus the Go runtime and
// process collectors, on a fresh registry.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "cidstore"
	}
	p := &Prometheus{
		reg: prometheus.NewRegistry(),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of block store operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		blockBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_bytes_total",
			Help:      "Block bytes moved by successful operations",
		}, []string{"op"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_lookups_total",
			Help:      "Archive index probes by outcome",
		}, []string{"result"}),
		falseMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_false_matches_total",
			Help:      "Candidate offsets whose summary matched but whose CID did not",
		}),
	}
	p.reg.MustRegister(
		p.opLatency,
		p.blockBytes,
		p.lookups,
		p.falseMatches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Registry exposes the underlying registry, e.g. for Gather in tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.reg }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (p *Prometheus) RecordPut(d time.Duration, size int, err error) {
	p.opLatency.WithLabelValues("put", status(err)).Observe(d.Seconds())
	if err == nil {
		p.blockBytes.WithLabelValues("put").Add(float64(size))
	}
}

func (p *Prometheus) RecordGet(d time.Duration, size int, err error) {
	p.opLatency.WithLabelValues("get", status(err)).Observe(d.Seconds())
	if err == nil {
		p.blockBytes.WithLabelValues("get").Add(float64(size))
	}
}

func (p *Prometheus) RecordHas(d time.Duration, found bool) {
	st := "miss"
	if found {
		st = "hit"
	}
	p.opLatency.WithLabelValues("has", st).Observe(d.Seconds())
}

func (p *Prometheus) RecordLookup(candidates int, found bool) {
	result := "miss"
	if found {
		result = "hit"
		candidates--
	}
	p.lookups.WithLabelValues(result).Inc()
	if candidates > 0 {
		p.falseMatches.Add(float64(candidates))
	}
}
