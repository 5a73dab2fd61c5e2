package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/pvarchive/internal/domain"
	"github.com/ghalamif/pvarchive/internal/ports"
)

// FetchOptimized returns at most about buckets samples for the range. With
// a stored procedure configured the reduction runs in the database;
// otherwise raw samples are counted and, when there are more than buckets,
// averaged on the client.
func (e *Engine) FetchOptimized(ctx context.Context, id domain.ChannelID, start, end time.Time, buckets int) ([]domain.Sample, error) {
	if buckets <= 1 {
		return nil, ErrInvalidBucketCount
	}
	if err := e.guard(start, end); err != nil {
		return nil, err
	}
	e.obs.IncCounter("pvarchive_queries_total", 1)
	began := time.Now()
	defer func() {
		e.obs.ObserveLatency("pvarchive_query_latency_seconds", time.Since(began).Seconds())
	}()

	if e.stmts.optimized != "" {
		return e.fetchBinned(ctx, id, start, end, buckets)
	}
	return e.fetchAveraged(ctx, id, start, end, buckets)
}

func (e *Engine) fetchBinned(ctx context.Context, id domain.ChannelID, start, end time.Time, buckets int) ([]domain.Sample, error) {
	conn, err := e.gw.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer e.gw.Release(conn)

	meta, err := e.metadata(ctx, conn, id)
	if errors.Is(err, ErrCancelled) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sctx, st := e.reg.Begin(ctx, fmt.Sprintf("optimized #%d", id), e.opts.Timeout)
	defer st.Done()

	rows, err := conn.QueryContext(sctx, e.stmts.optimized, int64(id), start, end, buckets)
	if err != nil {
		if e.isCancel(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("optimized samples of channel %d: %w", id, err)
	}
	defer rows.Close()

	var (
		out []domain.Sample
		bin BinRow
	)
	for rows.Next() {
		bin = BinRow{}
		if err := rows.Scan(bin.dest()...); err != nil {
			return nil, fmt.Errorf("scan bin of channel %d: %w", id, err)
		}
		out = append(out, e.decoder.DecodeBin(&bin, meta))
	}
	if err := rows.Err(); err != nil {
		if e.isCancel(err) {
			e.obs.LogDebug("optimized_query_cancelled",
				ports.Field{Key: "channel_id", Value: id},
				ports.Field{Key: "bins", Value: len(out)})
			return out, nil
		}
		return nil, fmt.Errorf("optimized samples of channel %d: %w", id, err)
	}
	e.obs.IncCounter("pvarchive_samples_decoded_total", float64(len(out)))
	return out, nil
}

func (e *Engine) fetchAveraged(ctx context.Context, id domain.ChannelID, start, end time.Time, buckets int) ([]domain.Sample, error) {
	count, err := e.count(ctx, id, start, end)
	if err != nil {
		if e.isCancel(err) {
			return nil, nil
		}
		return nil, err
	}

	it, err := e.fetchRaw(ctx, id, start, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	if count <= int64(buckets) {
		return Collect(it)
	}
	e.obs.LogDebug("client_side_averaging",
		ports.Field{Key: "channel_id", Value: id},
		ports.Field{Key: "samples", Value: count},
		ports.Field{Key: "buckets", Value: buckets})
	return Average(it, start, end, buckets)
}

func (e *Engine) count(ctx context.Context, id domain.ChannelID, start, end time.Time) (int64, error) {
	conn, err := e.gw.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer e.gw.Release(conn)

	sctx, st := e.reg.Begin(ctx, fmt.Sprintf("count #%d", id), e.opts.Timeout)
	defer st.Done()

	var n int64
	if err := conn.QueryRowContext(sctx, e.stmts.sampleCount, int64(id), start, end).Scan(&n); err != nil {
		return 0, fmt.Errorf("count samples of channel %d: %w", id, err)
	}
	return n, nil
}

// Collect drains src into a slice.
func Collect(src SampleSource) ([]domain.Sample, error) {
	var out []domain.Sample
	for src.HasNext() {
		s, err := src.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
