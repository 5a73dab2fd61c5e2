package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/ghalamif/pvarchive/internal/domain"
	"github.com/ghalamif/pvarchive/internal/ports"
)

// IteratorState is the lifecycle state of a RawIterator.
type IteratorState uint8

const (
	StateInitializing IteratorState = iota
	StateStreaming
	StateExhausted
	StateClosed
	StateErrored
)

func (s IteratorState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// lookahead is the one decoded sample a streaming iterator holds ahead of
// the caller. ok is false once the stream has ended.
type lookahead struct {
	sample domain.Sample
	ok     bool
}

// RawIterator streams one channel's samples in (time, nanosecond) order.
// It holds a connection until it is exhausted or closed. A RawIterator is
// not safe for concurrent use; CancelAll on the engine may be called from
// any goroutine.
type RawIterator struct {
	e       *Engine
	channel domain.ChannelID
	meta    *domain.Metadata
	// start is the snapped start; rows decoding to an earlier time are skipped.
	start time.Time

	conn *sql.Conn
	stmt *Statement
	cur  rowCursor
	row  Row

	// array_val lookups need a connection of their own while cur streams.
	// arrays turns false once a valid scalar shows the channel is not an
	// array channel.
	ctx       context.Context
	arrayConn *sql.Conn
	arrays    bool

	state   IteratorState
	next    lookahead
	pending error
}

// newRawIterator opens the sample cursor on conn, which the iterator owns
// from here on, including on error.
func newRawIterator(ctx context.Context, e *Engine, conn *sql.Conn, id domain.ChannelID, start, end time.Time) (*RawIterator, error) {
	it := &RawIterator{e: e, channel: id, conn: conn, start: start, arrays: e.stmts.arrayVals != ""}
	if err := it.init(ctx, end); err != nil {
		_ = it.Close()
		return nil, err
	}
	return it, nil
}

func (it *RawIterator) init(ctx context.Context, end time.Time) error {
	meta, err := it.e.metadata(ctx, it.conn, it.channel)
	if errors.Is(err, ErrCancelled) {
		it.finish(StateExhausted)
		return nil
	}
	if err != nil {
		return err
	}
	it.meta = meta

	snapped, err := it.e.initialTime(ctx, it.conn, it.channel, it.start)
	if err != nil {
		if it.e.isCancel(err) {
			it.finish(StateExhausted)
			return nil
		}
		return fmt.Errorf("initial sample time for channel %d: %w", it.channel, err)
	}
	it.start = snapped

	// raw streams are bounded by the caller's context only; the statement
	// timeout applies to single round trips
	sctx, st := it.e.reg.Begin(ctx, fmt.Sprintf("raw #%d", it.channel), 0)
	it.stmt = st
	it.ctx = sctx
	cur, err := openCursor(sctx, it.conn, it.e.stmts, it.e.opts.FetchSize,
		int64(it.channel), it.e.bindTime(snapped), end)
	if err != nil {
		if it.e.isCancel(err) {
			it.finish(StateExhausted)
			return nil
		}
		return fmt.Errorf("open samples of channel %d: %w", it.channel, err)
	}
	it.cur = cur
	it.state = StateStreaming
	it.advance()
	return nil
}

// advance decodes the next row into the lookahead slot or ends the stream.
func (it *RawIterator) advance() {
	if it.state != StateStreaming {
		return
	}
	for it.cur.Next() {
		it.row = Row{}
		if err := it.cur.Scan(it.row.dest(it.e.stmts.dialect, it.e.stmts.rawArray)...); err != nil {
			it.fail(err)
			return
		}
		sample, err := it.e.decoder.Decode(&it.row, it.meta)
		if err != nil {
			if errors.Is(err, ErrUnsupportedBlobType) {
				it.e.obs.IncCounter("pvarchive_decode_errors_total", 1)
				it.pending = err
				it.finish(StateErrored)
				return
			}
			it.fail(err)
			return
		}
		if sample.Time.Before(it.start) {
			continue
		}
		if it.arrays && sample.Kind == domain.KindDouble {
			if sample, err = it.withArrayElements(sample); err != nil {
				it.fail(err)
				return
			}
		}
		it.e.obs.IncCounter("pvarchive_samples_decoded_total", 1)
		it.next = lookahead{sample: sample, ok: true}
		return
	}
	if err := it.cur.Err(); err != nil {
		it.fail(err)
		return
	}
	it.finish(StateExhausted)
}

// fail ends the stream after a read or decode error. A recognized
// cancellation is an ordinary end of stream.
func (it *RawIterator) fail(err error) {
	if it.e.isCancel(err) {
		it.e.obs.LogDebug("raw_stream_cancelled", ports.Field{Key: "channel_id", Value: it.channel})
		it.finish(StateExhausted)
		return
	}
	it.e.obs.IncCounter("pvarchive_decode_errors_total", 1)
	it.e.obs.LogWarn("raw_stream_failed", err, ports.Field{Key: "channel_id", Value: it.channel})
	it.finish(StateErrored)
}

func (it *RawIterator) finish(state IteratorState) {
	it.state = state
	it.next = lookahead{}
	if err := it.release(); err != nil {
		it.e.obs.LogWarn("raw_stream_release_failed", err, ports.Field{Key: "channel_id", Value: it.channel})
	}
}

// release frees the cursor, the statement handle and the connection. Each
// is released independently and only once.
func (it *RawIterator) release() error {
	var errs []error
	if it.cur != nil {
		if err := it.cur.Close(); err != nil && !it.e.isCancel(err) {
			errs = append(errs, fmt.Errorf("close cursor: %w", err))
		}
		it.cur = nil
	}
	if it.stmt != nil {
		it.stmt.Done()
		it.stmt = nil
	}
	if it.conn != nil {
		it.e.gw.Release(it.conn)
		it.conn = nil
	}
	if it.arrayConn != nil {
		it.e.gw.Release(it.arrayConn)
		it.arrayConn = nil
	}
	it.ctx = nil
	return errors.Join(errs...)
}

// withArrayElements completes s with the elements an archive without blobs
// keeps in array_val. float_val of the sample row is the first element.
func (it *RawIterator) withArrayElements(s domain.Sample) (domain.Sample, error) {
	if it.arrayConn == nil {
		conn, err := it.e.gw.Acquire(it.ctx)
		if err != nil {
			return s, fmt.Errorf("acquire connection: %w", err)
		}
		it.arrayConn = conn
	}

	args := []any{int64(it.channel), it.row.Time}
	if !it.e.stmts.dialect.NanosInTimestamp() {
		args = append(args, it.row.Nanos.Int64)
	}
	rows, err := it.arrayConn.QueryContext(it.ctx, it.e.stmts.arrayVals, args...)
	if err != nil {
		return s, fmt.Errorf("array elements of channel %d: %w", it.channel, err)
	}
	defer rows.Close()

	values := []float64{s.Double}
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return s, fmt.Errorf("array elements of channel %d: %w", it.channel, err)
		}
		values = append(values, orNaN(v))
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("array elements of channel %d: %w", it.channel, err)
	}

	if len(values) == 1 && s.Alarm.Severity != domain.SeverityUndefined {
		it.arrays = false
	}
	return arrayOrScalar(s.Time, s.Alarm, values, s.Display), nil
}

// State returns the current lifecycle state.
func (it *RawIterator) State() IteratorState { return it.state }

// Metadata returns the channel metadata the samples were decoded with. It
// is nil when the stream ended before metadata was read.
func (it *RawIterator) Metadata() *domain.Metadata { return it.meta }

// HasNext reports whether Next will return a sample or a pending error.
// It never touches the database.
func (it *RawIterator) HasNext() bool {
	return it.next.ok || it.pending != nil
}

// Next returns the buffered sample and reads ahead one row. After the last
// sample it returns ErrExhausted. An undecodable array blob is returned
// once as *UnsupportedBlobTypeError.
func (it *RawIterator) Next() (domain.Sample, error) {
	if it.next.ok {
		s := it.next.sample
		it.next = lookahead{}
		it.advance()
		return s, nil
	}
	if it.pending != nil {
		err := it.pending
		it.pending = nil
		return domain.Sample{}, err
	}
	return domain.Sample{}, ErrExhausted
}

// Close releases all resources. It may be called any number of times, in
// any state.
func (it *RawIterator) Close() error {
	err := it.release()
	it.state = StateClosed
	it.next = lookahead{}
	it.pending = nil
	return err
}

// All iterates over the remaining samples. The iterator is closed when the
// loop ends, early or not.
func (it *RawIterator) All() iter.Seq2[domain.Sample, error] {
	return func(yield func(domain.Sample, error) bool) {
		defer it.Close()
		for it.HasNext() {
			s, err := it.Next()
			if !yield(s, err) {
				return
			}
		}
	}
}
