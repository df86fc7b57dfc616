// Package metrics is an in-process Prometheus-text metrics registry,
// generalized from the teacher gateway's observability.Metrics: the
// same label-keyed counter/gauge map and text-exposition /metrics
// handler, carrying DeltaStream's own metric names instead of LLM
// request/cost metrics.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Counter struct{ value int64 }

func (c *Counter) Inc()         { atomic.AddInt64(&c.value, 1) }
func (c *Counter) Add(n int64)  { atomic.AddInt64(&c.value, n) }
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.value) }

type Gauge struct{ value int64 } // stored as micros for float precision

func (g *Gauge) Set(v float64)  { atomic.StoreInt64(&g.value, int64(v*1e6)) }
func (g *Gauge) Value() float64 { return float64(atomic.LoadInt64(&g.value)) / 1e6 }

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return strings.Join(parts, ",")
}

// Registry is the process-wide metrics store, wired into the ingest
// subscriber, worker pool, and fan-out gateway.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]map[string]*Counter
	gauges   map[string]map[string]*Gauge
}

func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]map[string]*Counter),
		gauges:   make(map[string]map[string]*Gauge),
	}
}

func (r *Registry) CounterInc(name string, labels map[string]string) {
	r.counter(name, labels).Inc()
}

func (r *Registry) CounterAdd(name string, labels map[string]string, n int64) {
	r.counter(name, labels).Add(n)
}

func (r *Registry) GaugeSet(name string, labels map[string]string, v float64) {
	r.gauge(name, labels).Set(v)
}

func (r *Registry) counter(name string, labels map[string]string) *Counter {
	key := labelKey(labels)
	r.mu.RLock()
	if byLabel, ok := r.counters[name]; ok {
		if c, ok := byLabel[key]; ok {
			r.mu.RUnlock()
			return c
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.counters[name]; !ok {
		r.counters[name] = make(map[string]*Counter)
	}
	if _, ok := r.counters[name][key]; !ok {
		r.counters[name][key] = &Counter{}
	}
	return r.counters[name][key]
}

func (r *Registry) gauge(name string, labels map[string]string) *Gauge {
	key := labelKey(labels)
	r.mu.RLock()
	if byLabel, ok := r.gauges[name]; ok {
		if g, ok := byLabel[key]; ok {
			r.mu.RUnlock()
			return g
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gauges[name]; !ok {
		r.gauges[name] = make(map[string]*Gauge)
	}
	if _, ok := r.gauges[name][key]; !ok {
		r.gauges[name][key] = &Gauge{}
	}
	return r.gauges[name][key]
}

// Domain-specific helpers, named after the counters/gauges SPEC_FULL.md's
// query API exposes at GET /metrics.

func (r *Registry) TrackIngestAccepted(topic string) {
	r.CounterInc("deltastream_ingest_accepted_total", map[string]string{"topic": topic})
}

func (r *Registry) TrackIngestRejected(topic, reason string) {
	r.CounterInc("deltastream_ingest_rejected_total", map[string]string{"topic": topic, "reason": reason})
}

func (r *Registry) TrackIngestPaused(paused bool) {
	v := 0.0
	if paused {
		v = 1.0
	}
	r.GaugeSet("deltastream_ingest_paused", nil, v)
}

func (r *Registry) TrackTaskProcessed(kind string) {
	r.CounterInc("deltastream_tasks_processed_total", map[string]string{"kind": kind})
}

func (r *Registry) TrackTaskRetried(kind string) {
	r.CounterInc("deltastream_tasks_retried_total", map[string]string{"kind": kind})
}

func (r *Registry) TrackTaskDLQ(kind string) {
	r.CounterInc("deltastream_tasks_dlq_total", map[string]string{"kind": kind})
}

func (r *Registry) TrackBrokerDepth(depth int64) {
	r.GaugeSet("deltastream_broker_queue_depth", nil, float64(depth))
}

func (r *Registry) TrackGatewaySessions(n int) {
	r.GaugeSet("deltastream_gateway_sessions", nil, float64(n))
}

func (r *Registry) TrackGatewaySlowConsumerDisconnect() {
	r.CounterInc("deltastream_gateway_slow_consumer_disconnects_total", nil)
}

// Handler serves the registry in Prometheus text exposition format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("# DeltaStream metrics - %s\n\n", time.Now().UTC().Format(time.RFC3339)))

		r.mu.RLock()
		defer r.mu.RUnlock()

		for name, byLabel := range r.counters {
			sb.WriteString(fmt.Sprintf("# TYPE %s counter\n", name))
			for lk, c := range byLabel {
				if lk == "" {
					sb.WriteString(fmt.Sprintf("%s %d\n", name, c.Value()))
				} else {
					sb.WriteString(fmt.Sprintf("%s{%s} %d\n", name, lk, c.Value()))
				}
			}
		}
		for name, byLabel := range r.gauges {
			sb.WriteString(fmt.Sprintf("# TYPE %s gauge\n", name))
			for lk, g := range byLabel {
				if lk == "" {
					sb.WriteString(fmt.Sprintf("%s %f\n", name, g.Value()))
				} else {
					sb.WriteString(fmt.Sprintf("%s{%s} %f\n", name, lk, g.Value()))
				}
			}
		}
		_, _ = w.Write([]byte(sb.String()))
	}
}
