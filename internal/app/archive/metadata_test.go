package archive

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/pvarchive/internal/domain"
	"github.com/ghalamif/pvarchive/internal/ports"
)

func TestMetadataNumeric(t *testing.T) {
	e, mock, gw, obs := newTestEngine(t, ports.DialectPostgreSQL, Options{})
	expectNumericMeta(mock, e.stmts, 42)

	meta, err := e.Metadata(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, meta.IsEnum())
	require.Equal(t, 100.0, meta.Display.High)
	require.Equal(t, 95.0, meta.Display.AlarmHigh)
	require.True(t, math.IsNaN(meta.Display.WarnLow))
	require.Equal(t, "V", meta.Display.Unit)
	require.Equal(t, 2, meta.Display.Precision)

	again, err := e.Metadata(context.Background(), 42)
	require.NoError(t, err)
	require.Same(t, meta, again)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, 1.0, obs.gauges["pvarchive_metadata_cache_entries"])
	require.Equal(t, 0, gw.inUse())
}

func TestMetadataEnumContiguous(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, ports.DialectPostgreSQL, Options{})
	mock.ExpectQuery(regexp.QuoteMeta(e.stmts.numericMeta)).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows(numCols))
	mock.ExpectQuery(regexp.QuoteMeta(e.stmts.enumMeta)).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(enumCols).AddRow(int64(0), "Off").AddRow(int64(1), "On").AddRow(int64(2), "Fault"))

	meta, err := e.Metadata(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, []string{"Off", "On", "Fault"}, meta.Labels)
	require.Nil(t, meta.Display)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetadataEnumGapIsNotCached(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, ports.DialectPostgreSQL, Options{})
	num := regexp.QuoteMeta(e.stmts.numericMeta)
	enum := regexp.QuoteMeta(e.stmts.enumMeta)

	mock.ExpectQuery(num).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows(numCols))
	mock.ExpectQuery(enum).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(enumCols).AddRow(int64(0), "Off").AddRow(int64(2), "Fault"))

	_, err := e.Metadata(context.Background(), 7)
	require.ErrorIs(t, err, ErrMetadataCorrupt)
	var corrupt *MetadataCorruptError
	require.True(t, errors.As(err, &corrupt))
	require.Equal(t, 1, corrupt.Expected)
	require.Equal(t, int64(2), corrupt.Got)
	_, cached := e.cache.Lookup(7)
	require.False(t, cached)

	// a later lookup goes back to the database
	mock.ExpectQuery(num).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows(numCols))
	mock.ExpectQuery(enum).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows(enumCols))
	meta, err := e.Metadata(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 10.0, meta.Display.High)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetadataCancelledIsNotCached(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, ports.DialectPostgreSQL, Options{})
	// the load is retried once for a caller whose own context is live
	mock.ExpectQuery(regexp.QuoteMeta(e.stmts.numericMeta)).WithArgs(int64(7)).WillReturnError(context.Canceled)
	mock.ExpectQuery(regexp.QuoteMeta(e.stmts.numericMeta)).WithArgs(int64(7)).WillReturnError(context.Canceled)

	_, err := e.Metadata(context.Background(), 7)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, 0, e.cache.Len())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetadataRetriesLoadCancelledElsewhere(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, ports.DialectPostgreSQL, Options{})
	mock.ExpectQuery(regexp.QuoteMeta(e.stmts.numericMeta)).WithArgs(int64(7)).WillReturnError(context.Canceled)
	expectNumericMeta(mock, e.stmts, 7)

	meta, err := e.Metadata(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, meta.Display)
	require.Equal(t, 1, e.cache.Len())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetadataCancelledCallerIsNotRetried(t *testing.T) {
	e, mock, gw, _ := newTestEngine(t, ports.DialectPostgreSQL, Options{})
	conn, err := gw.Acquire(context.Background())
	require.NoError(t, err)
	defer gw.Release(conn)

	// sqlmock reports a cancelled wait with its own error value
	e.isCancel = func(err error) bool {
		return errors.Is(err, context.Canceled) || errors.Is(err, sqlmock.ErrCancelled)
	}
	mock.ExpectQuery(regexp.QuoteMeta(e.stmts.numericMeta)).WithArgs(int64(7)).
		WillDelayFor(time.Minute).
		WillReturnRows(sqlmock.NewRows(numCols))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.metadata(ctx, conn, 7)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, 0, e.cache.Len())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMetadataCacheLoadsOnce(t *testing.T) {
	c := NewMetadataCache()
	var loads atomic.Int32
	release := make(chan struct{})
	want := &domain.Metadata{Display: domain.DefaultDisplay()}

	var wg sync.WaitGroup
	results := make([]*domain.Metadata, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := c.GetOrLoad(3, func() (*domain.Metadata, error) {
				loads.Add(1)
				<-release
				return want, nil
			})
			if err == nil {
				results[i] = m
			}
		}(i)
	}
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), loads.Load())
	for _, m := range results {
		require.Same(t, want, m)
	}
	require.Equal(t, 1, c.Len())
}

func TestMetadataCacheFailureIsRetried(t *testing.T) {
	c := NewMetadataCache()
	_, err := c.GetOrLoad(3, func() (*domain.Metadata, error) { return nil, errors.New("boom") })
	require.Error(t, err)
	require.Equal(t, 0, c.Len())

	m, err := c.GetOrLoad(3, func() (*domain.Metadata, error) { return &domain.Metadata{Labels: []string{"x"}}, nil })
	require.NoError(t, err)
	require.True(t, m.IsEnum())
}
