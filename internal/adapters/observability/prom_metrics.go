package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ghalamif/pvarchive/internal/ports"
)

type PromObs struct {
	log      zerolog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

func NewPromObs(logger zerolog.Logger) *PromObs {
	decoded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pvarchive_samples_decoded_total",
		Help: "Samples decoded from archive rows, raw and binned.",
	})
	queries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pvarchive_queries_total",
		Help: "Raw and optimized sample queries started.",
	})
	cancellations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pvarchive_cancellations_total",
		Help: "Statements aborted through CancelAll.",
	})
	decodeErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pvarchive_decode_errors_total",
		Help: "Raw streams ended by a read or decode failure.",
	})
	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pvarchive_inflight_statements",
		Help: "Statements currently registered for cancellation.",
	})
	cacheEntries := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pvarchive_metadata_cache_entries",
		Help: "Channels with cached metadata.",
	})
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pvarchive_connections_in_use",
		Help: "Archive connections currently acquired from the pool.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pvarchive_query_latency_seconds",
		Help:    "Wall time of optimized sample queries.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
	rawOpen := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pvarchive_raw_open_seconds",
		Help:    "Wall time from a raw sample request to its first sample or end of stream.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	// a second PromObs in the same process shares the registered collectors
	decoded = register(decoded)
	queries = register(queries)
	cancellations = register(cancellations)
	decodeErrors = register(decodeErrors)
	inflight = register(inflight)
	cacheEntries = register(cacheEntries)
	connections = register(connections)
	latency = register(latency)
	rawOpen = register(rawOpen)

	return &PromObs{
		log: logger,
		counters: map[string]prometheus.Counter{
			"pvarchive_samples_decoded_total": decoded,
			"pvarchive_queries_total":         queries,
			"pvarchive_cancellations_total":   cancellations,
			"pvarchive_decode_errors_total":   decodeErrors,
		},
		gauges: map[string]prometheus.Gauge{
			"pvarchive_inflight_statements":    inflight,
			"pvarchive_metadata_cache_entries": cacheEntries,
			"pvarchive_connections_in_use":     connections,
		},
		histos: map[string]prometheus.Observer{
			"pvarchive_query_latency_seconds": latency,
			"pvarchive_raw_open_seconds":      rawOpen,
		},
	}
}

func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func withFields(e *zerolog.Event, fields []ports.Field) *zerolog.Event {
	for _, f := range fields {
		e = e.Interface(f.Key, f.Value)
	}
	return e
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	withFields(p.log.Debug(), fields).Msg(msg)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	withFields(p.log.Info(), fields).Msg(msg)
}

func (p *PromObs) LogWarn(msg string, err error, fields ...ports.Field) {
	withFields(p.log.Warn().Err(err), fields).Msg(msg)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	withFields(p.log.Error().Err(err), fields).Msg(msg)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}
