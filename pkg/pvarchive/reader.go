package pvarchive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ghalamif/pvarchive/internal/adapters/observability"
	"github.com/ghalamif/pvarchive/internal/adapters/rdb"
	"github.com/ghalamif/pvarchive/internal/app/archive"
	"github.com/ghalamif/pvarchive/internal/ports"
)

// ReaderOption customizes the dependencies used by Reader.
type ReaderOption func(*readerOverrides)

type readerOverrides struct {
	gateway       Gateway
	observability Observability
	logger        *zerolog.Logger
}

// WithGateway makes the reader use gw instead of opening archive.dsn. The
// caller keeps ownership of gw and closes it after the reader.
func WithGateway(gw Gateway) ReaderOption {
	return func(o *readerOverrides) {
		o.gateway = gw
	}
}

// WithObservability plugs in a custom observability backend instead of the
// Prometheus + zerolog default.
func WithObservability(obs Observability) ReaderOption {
	return func(o *readerOverrides) {
		o.observability = obs
	}
}

// WithLogger replaces the default JSON logger on stderr.
func WithLogger(logger zerolog.Logger) ReaderOption {
	return func(o *readerOverrides) {
		o.logger = &logger
	}
}

// Reader answers channel and sample queries against one archive database.
// It is safe for concurrent use.
type Reader struct {
	cfg    *Config
	obs    ports.Observability
	gw     ports.Gateway
	pool   *rdb.Pool
	engine *archive.Engine
}

// Open connects to the archive described by cfg, loads the severity and
// status tables and returns a ready Reader.
func Open(ctx context.Context, cfg *Config, opts ...ReaderOption) (*Reader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides readerOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		var logger zerolog.Logger
		if overrides.logger != nil {
			logger = *overrides.logger
		} else {
			var err error
			logger, err = observability.NewLogger(os.Stderr, cfg.Log.Level)
			if err != nil {
				return nil, err
			}
		}
		obs = observability.NewPromObs(logger)
	}

	r := &Reader{cfg: cfg, obs: obs, gw: overrides.gateway}
	if r.gw == nil {
		a := cfg.Archive
		pool, err := rdb.Open(ctx, a.Driver, a.DSN, a.Dialect, a.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		r.pool = pool
		r.gw = pool
	}

	engine, err := archive.NewEngine(ctx, r.gw, obs, archive.Options{
		SchemaPrefix:       cfg.Archive.SchemaPrefix,
		FetchSize:          cfg.Archive.FetchSize,
		Timeout:            cfg.Archive.Timeout,
		StoredProcedure:    cfg.Archive.StoredProcedure,
		EquivalentPrefixes: cfg.Archive.EquivalentPVPrefixes,
		KeepIntegers:       cfg.Archive.KeepIntegers,
		ArrayTable:         !cfg.Archive.ArrayBlobs(),
	})
	if err != nil {
		if r.pool != nil {
			_ = r.pool.Close()
		}
		return nil, err
	}
	r.engine = engine

	obs.LogInfo("archive_reader_opened",
		ports.Field{Key: "dialect", Value: r.gw.Dialect()},
		ports.Field{Key: "stored_procedure", Value: cfg.Archive.StoredProcedure})
	return r, nil
}

// Config returns the configuration the reader was opened with.
func (r *Reader) Config() *Config { return r.cfg }

// Resolve returns the channel id for name. "#1234" selects channel 1234
// directly; other names are tried with the configured equivalent prefixes.
func (r *Reader) Resolve(ctx context.Context, name string) (ChannelID, error) {
	return r.engine.Resolve(ctx, name)
}

// ListNames returns channel names matching a shell glob such as "Sim:*".
func (r *Reader) ListNames(ctx context.Context, glob string) ([]string, error) {
	return r.engine.ListNames(ctx, glob)
}

// Metadata returns the display or enum metadata of a channel.
func (r *Reader) Metadata(ctx context.Context, id ChannelID) (*Metadata, error) {
	return r.engine.Metadata(ctx, id)
}

// FetchRaw streams the samples of channel id in [start, end], beginning
// with the last sample at or before start. Close the iterator when done.
func (r *Reader) FetchRaw(ctx context.Context, id ChannelID, start, end time.Time) (*RawIterator, error) {
	return r.engine.FetchRaw(ctx, id, start, end)
}

// FetchRawByName resolves name, then behaves like FetchRaw.
func (r *Reader) FetchRawByName(ctx context.Context, name string, start, end time.Time) (*RawIterator, error) {
	return r.engine.FetchRawByName(ctx, name, start, end)
}

// FetchOptimized returns about buckets samples summarising [start, end].
// buckets must be greater than 1.
func (r *Reader) FetchOptimized(ctx context.Context, id ChannelID, start, end time.Time, buckets int) ([]Sample, error) {
	return r.engine.FetchOptimized(ctx, id, start, end, buckets)
}

// FetchOptimizedByName resolves name, then behaves like FetchOptimized.
func (r *Reader) FetchOptimizedByName(ctx context.Context, name string, start, end time.Time, buckets int) ([]Sample, error) {
	return r.engine.FetchOptimizedByName(ctx, name, start, end, buckets)
}

// CancelAll aborts every running statement. Open iterators end as if their
// data had run out. It returns the number of statements cancelled.
func (r *Reader) CancelAll() int {
	return r.engine.CancelAll()
}

// Close cancels running statements and closes the connection pool the
// reader opened itself.
func (r *Reader) Close() error {
	var errs []error
	if err := r.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.pool != nil {
		if err := r.pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
