package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/ghalamif/pvarchive/internal/ports"
)

func swapRegistry(t *testing.T) {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
}

func TestPromObsMetrics(t *testing.T) {
	swapRegistry(t)
	obs := NewPromObs(zerolog.Nop())

	obs.IncCounter("pvarchive_samples_decoded_total", 5)
	if got := testutil.ToFloat64(obs.counters["pvarchive_samples_decoded_total"]); got != 5 {
		t.Fatalf("expected decoded counter 5, got %f", got)
	}

	obs.IncCounter("pvarchive_cancellations_total", 2)
	if got := testutil.ToFloat64(obs.counters["pvarchive_cancellations_total"]); got != 2 {
		t.Fatalf("expected cancellation counter 2, got %f", got)
	}

	obs.SetGauge("pvarchive_inflight_statements", 3)
	if got := testutil.ToFloat64(obs.gauges["pvarchive_inflight_statements"]); got != 3 {
		t.Fatalf("expected inflight gauge 3, got %f", got)
	}

	obs.ObserveLatency("pvarchive_query_latency_seconds", 0.5)
	hCollector := obs.histos["pvarchive_query_latency_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.ObserveLatency("pvarchive_raw_open_seconds", 0.01)
	if samples := testutil.CollectAndCount(obs.histos["pvarchive_raw_open_seconds"].(prometheus.Collector)); samples != 1 {
		t.Fatalf("expected raw open histogram, got %d metrics", samples)
	}

	// unknown names are ignored
	obs.IncCounter("no_such_counter", 1)
	obs.SetGauge("no_such_gauge", 1)
}

func TestPromObsLogs(t *testing.T) {
	swapRegistry(t)
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "info")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	obs := NewPromObs(logger)

	obs.LogDebug("channel_resolved", ports.Field{Key: "name", Value: "Sim:Ramp"})
	obs.LogWarn("raw_stream_failed", errors.New("connection reset"), ports.Field{Key: "channel_id", Value: 42})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected debug to be filtered, got %d lines: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["message"] != "raw_stream_failed" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["error"] != "connection reset" || entry["channel_id"] != float64(42) {
		t.Fatalf("missing fields in %v", entry)
	}
	if entry["component"] != "pvarchive" {
		t.Fatalf("missing component in %v", entry)
	}
}

func TestNewLoggerRejectsLevel(t *testing.T) {
	if _, err := NewLogger(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestPromObsSharesCollectors(t *testing.T) {
	swapRegistry(t)
	first := NewPromObs(zerolog.Nop())
	second := NewPromObs(zerolog.Nop())

	first.IncCounter("pvarchive_queries_total", 1)
	second.IncCounter("pvarchive_queries_total", 2)
	if got := testutil.ToFloat64(first.counters["pvarchive_queries_total"]); got != 3 {
		t.Fatalf("expected shared queries counter 3, got %f", got)
	}
}
