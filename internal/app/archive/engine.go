package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ghalamif/pvarchive/internal/domain"
	"github.com/ghalamif/pvarchive/internal/ports"
)

const DefaultFetchSize = 10000

// Options configure an Engine. Metadata and Alarms may be shared between
// engines reading the same archive; nil gives the engine its own.
type Options struct {
	SchemaPrefix string
	// FetchSize is the number of rows read per round trip on raw streams.
	FetchSize int
	// Timeout bounds single statements. Raw streams only end with the
	// caller's context or CancelAll.
	Timeout time.Duration
	// StoredProcedure names the server side binning function. Empty selects
	// client side averaging.
	StoredProcedure    string
	EquivalentPrefixes []string
	KeepIntegers       bool
	// ArrayTable reads array elements from the array_val table, for
	// archives written without sample blobs.
	ArrayTable bool

	Metadata *MetadataCache
	Alarms   *AlarmTables
}

// Engine answers channel, raw and optimized queries against one archive.
// It is safe for concurrent use; each query holds its own connection.
type Engine struct {
	gw   ports.Gateway
	obs  ports.Observability
	opts Options

	stmts    *statements
	reg      *Registry
	cache    *MetadataCache
	alarms   *AlarmTables
	decoder  *Decoder
	resolver *Resolver
	loader   *metadataLoader
	isCancel func(error) bool

	closed atomic.Bool
}

// NewEngine builds an engine and loads the severity and status tables.
func NewEngine(ctx context.Context, gw ports.Gateway, obs ports.Observability, opts Options) (*Engine, error) {
	dialect := gw.Dialect()
	if !dialect.Valid() {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if opts.FetchSize <= 0 {
		opts.FetchSize = DefaultFetchSize
	}
	if opts.Metadata == nil {
		opts.Metadata = NewMetadataCache()
	}
	if opts.Alarms == nil {
		opts.Alarms = NewAlarmTables(obs)
	}

	isCancel := func(err error) bool { return errors.Is(err, context.Canceled) }
	if c, ok := gw.(ports.CancellationClassifier); ok {
		isCancel = c.IsCancellation
	}

	stmts := newStatements(dialect, opts.SchemaPrefix, opts.StoredProcedure, opts.ArrayTable)
	reg := NewRegistry(obs)
	e := &Engine{
		gw:       gw,
		obs:      obs,
		opts:     opts,
		stmts:    stmts,
		reg:      reg,
		cache:    opts.Metadata,
		alarms:   opts.Alarms,
		decoder:  NewDecoder(dialect, opts.Alarms, opts.KeepIntegers),
		loader:   &metadataLoader{stmts: stmts, reg: reg, timeout: opts.Timeout},
		isCancel: isCancel,
		resolver: &Resolver{
			stmts:    stmts,
			reg:      reg,
			obs:      obs,
			prefixes: opts.EquivalentPrefixes,
			timeout:  opts.Timeout,
			isCancel: isCancel,
		},
	}

	if !e.alarms.Loaded() {
		conn, err := gw.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire connection: %w", err)
		}
		defer gw.Release(conn)
		if err := e.alarms.Load(ctx, conn, reg, stmts); err != nil {
			return nil, fmt.Errorf("load alarm tables: %w", err)
		}
	}
	return e, nil
}

// Registry returns the engine's cancellation registry.
func (e *Engine) Registry() *Registry { return e.reg }

func (e *Engine) Dialect() ports.Dialect { return e.stmts.dialect }

// Resolve returns the id of the channel called name.
func (e *Engine) Resolve(ctx context.Context, name string) (domain.ChannelID, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	conn, err := e.gw.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer e.gw.Release(conn)
	return e.resolver.Resolve(ctx, conn, name)
}

// ListNames returns the channel names matching a shell glob.
func (e *Engine) ListNames(ctx context.Context, glob string) ([]string, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	conn, err := e.gw.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer e.gw.Release(conn)
	return e.resolver.ListNames(ctx, conn, glob)
}

// Metadata returns the cached metadata of a channel, reading it on first use.
func (e *Engine) Metadata(ctx context.Context, id domain.ChannelID) (*domain.Metadata, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	conn, err := e.gw.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer e.gw.Release(conn)
	return e.metadata(ctx, conn, id)
}

func (e *Engine) metadata(ctx context.Context, conn *sql.Conn, id domain.ChannelID) (*domain.Metadata, error) {
	load := func() (*domain.Metadata, error) {
		return e.loader.load(ctx, conn, id)
	}
	meta, err := e.cache.GetOrLoad(id, load)
	if err != nil && e.isCancel(err) && ctx.Err() == nil {
		// the shared load ran under another caller's context, which ended
		meta, err = e.cache.GetOrLoad(id, load)
	}
	if err != nil {
		if e.isCancel(err) {
			e.obs.LogDebug("metadata_cancelled", ports.Field{Key: "channel_id", Value: id})
			return nil, fmt.Errorf("metadata for channel %d: %w", id, ErrCancelled)
		}
		return nil, err
	}
	e.obs.SetGauge("pvarchive_metadata_cache_entries", float64(e.cache.Len()))
	return meta, nil
}

// FetchRaw opens a raw sample stream for [start, end]. The stream starts at
// the last sample at or before start when there is one.
func (e *Engine) FetchRaw(ctx context.Context, id domain.ChannelID, start, end time.Time) (*RawIterator, error) {
	if err := e.guard(start, end); err != nil {
		return nil, err
	}
	e.obs.IncCounter("pvarchive_queries_total", 1)
	began := time.Now()
	defer func() {
		e.obs.ObserveLatency("pvarchive_raw_open_seconds", time.Since(began).Seconds())
	}()
	return e.fetchRaw(ctx, id, start, end)
}

func (e *Engine) fetchRaw(ctx context.Context, id domain.ChannelID, start, end time.Time) (*RawIterator, error) {
	conn, err := e.gw.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return newRawIterator(ctx, e, conn, id, start, end)
}

// FetchRawByName resolves name and opens its raw sample stream.
func (e *Engine) FetchRawByName(ctx context.Context, name string, start, end time.Time) (*RawIterator, error) {
	id, err := e.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.FetchRaw(ctx, id, start, end)
}

// FetchOptimizedByName resolves name and fetches its optimized samples.
func (e *Engine) FetchOptimizedByName(ctx context.Context, name string, start, end time.Time, buckets int) ([]domain.Sample, error) {
	if buckets <= 1 {
		return nil, ErrInvalidBucketCount
	}
	id, err := e.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.FetchOptimized(ctx, id, start, end, buckets)
}

// initialTime returns the time of the last sample at or before start, or
// start itself when there is none.
func (e *Engine) initialTime(ctx context.Context, conn *sql.Conn, id domain.ChannelID, start time.Time) (time.Time, error) {
	sctx, st := e.reg.Begin(ctx, fmt.Sprintf("initial time #%d", id), e.opts.Timeout)
	defer st.Done()

	var row Row
	dest := []any{&row.Time}
	args := []any{int64(id), start}
	if !e.stmts.dialect.NanosInTimestamp() {
		dest = append(dest, &row.Nanos)
		sec := start.Truncate(time.Second)
		args = []any{int64(id), sec, sec, sec.Add(time.Second), int64(start.Nanosecond())}
	}
	err := conn.QueryRowContext(sctx, e.stmts.initialTime, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return start, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	snapped := e.decoder.Timestamp(&row)
	if snapped.After(start) {
		return start, nil
	}
	return snapped, nil
}

// bindTime is the lower bound handed to the sample query. Where nanoseconds
// live in their own column the bound drops to the full second and rows
// before the snapped start are skipped after decoding.
func (e *Engine) bindTime(t time.Time) time.Time {
	if e.stmts.dialect.NanosInTimestamp() {
		return t
	}
	return t.Truncate(time.Second)
}

func (e *Engine) guard(start, end time.Time) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if end.Before(start) {
		return ErrInvalidRange
	}
	return nil
}

// CancelAll aborts every statement currently running on this engine.
// Streams see the abort as an ordinary end of data.
func (e *Engine) CancelAll() int {
	n := e.reg.CancelAll()
	if n > 0 {
		e.obs.LogInfo("statements_cancelled", ports.Field{Key: "count", Value: n})
	}
	return n
}

// Close cancels running statements and rejects further queries. Iterators
// that are still open must be closed by their owners.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.CancelAll()
	return nil
}
