package pvarchive

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/pvarchive/internal/ports"
)

// inUser is implemented by gateways that can report acquired connections.
type inUser interface {
	InUse() int
}

// MetricsHandler serves /metrics from the default Prometheus registry and a
// /healthz probe.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ServeMetrics exposes MetricsHandler on cfg.Metrics.Addr until ctx is
// cancelled, then shuts the server down.
func (r *Reader) ServeMetrics(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.cfg.Metrics.Addr)
	if err != nil {
		return err
	}
	return r.serveMetrics(ctx, ln)
}

func (r *Reader) serveMetrics(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := make(chan struct{})
	go r.recordResourceGauges(stop, time.Second)
	defer close(stop)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	r.obs.LogInfo("metrics_server_started", ports.Field{Key: "addr", Value: ln.Addr().String()})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (r *Reader) recordResourceGauges(stop <-chan struct{}, interval time.Duration) {
	pool, ok := r.gw.(inUser)
	if !ok {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge("pvarchive_connections_in_use", float64(pool.InUse()))
		}
	}
}
