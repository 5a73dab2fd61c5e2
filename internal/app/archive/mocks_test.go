package archive

import (
	"context"
	"database/sql"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/pvarchive/internal/domain"
	"github.com/ghalamif/pvarchive/internal/ports"
)

// mockGateway hands out connections of a sqlmock database and counts
// acquire/release pairs.
type mockGateway struct {
	db      *sql.DB
	dialect ports.Dialect

	mu             sync.Mutex
	held           map[*sql.Conn]bool
	acquired       int
	released       int
	doubleReleases int
}

func (g *mockGateway) Acquire(ctx context.Context) (*sql.Conn, error) {
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.held[conn] = true
	g.acquired++
	g.mu.Unlock()
	return conn, nil
}

func (g *mockGateway) Release(conn *sql.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held[conn] {
		g.doubleReleases++
		return
	}
	delete(g.held, conn)
	g.released++
	_ = conn.Close()
}

func (g *mockGateway) Dialect() ports.Dialect { return g.dialect }

func (g *mockGateway) inUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}

type logEntry struct {
	msg string
	err error
}

// mockObs records log calls and metric updates.
type mockObs struct {
	mu       sync.Mutex
	debugs   []string
	warns    []logEntry
	errors   []logEntry
	counters map[string]float64
	gauges   map[string]float64
	observed map[string]int
}

func newMockObs() *mockObs {
	return &mockObs{counters: map[string]float64{}, gauges: map[string]float64{}, observed: map[string]int{}}
}

func (o *mockObs) LogDebug(msg string, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.debugs = append(o.debugs, msg)
}

func (o *mockObs) LogInfo(string, ...ports.Field) {}

func (o *mockObs) LogWarn(msg string, err error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warns = append(o.warns, logEntry{msg, err})
}

func (o *mockObs) LogError(msg string, err error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, logEntry{msg, err})
}

func (o *mockObs) IncCounter(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters[name] += v
}

func (o *mockObs) ObserveLatency(name string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observed[name]++
}

func (o *mockObs) SetGauge(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gauges[name] = v
}

func (o *mockObs) warned(msg string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, w := range o.warns {
		if w.msg == msg {
			n++
		}
	}
	return n
}

var (
	t0         = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sampleCols = []string{"smpl_time", "severity_id", "status_id", "num_val", "float_val", "str_val", "nanosecs", "datatype", "array_val"}
	numCols    = []string{"low_disp_rng", "high_disp_rng", "low_warn_lmt", "high_warn_lmt", "low_alarm_lmt", "high_alarm_lmt", "prec", "unit"}
	enumCols   = []string{"enum_nbr", "enum_val"}
)

// loadedAlarms returns tables as read from a typical archive:
// severities 1..4 = OK, MINOR, MAJOR, INVALID and stati 1..3 = NONE,
// Disconnected, Archive_Off.
func loadedAlarms(obs ports.Observability) *AlarmTables {
	a := NewAlarmTables(obs)
	a.severities = map[int64]domain.Severity{
		1: domain.SeverityNone,
		2: domain.SeverityMinor,
		3: domain.SeverityMajor,
		4: domain.SeverityInvalid,
	}
	a.stati = map[int64]string{1: "NONE", 2: "Disconnected", 3: "Archive_Off"}
	a.loaded = true
	return a
}

func expectAlarmTables(mock sqlmock.Sqlmock, stmts *statements) {
	mock.ExpectQuery(regexp.QuoteMeta(stmts.severities)).
		WillReturnRows(sqlmock.NewRows([]string{"severity_id", "name"}).
			AddRow(int64(1), "OK").
			AddRow(int64(2), "MINOR").
			AddRow(int64(3), "MAJOR").
			AddRow(int64(4), "INVALID"))
	mock.ExpectQuery(regexp.QuoteMeta(stmts.stati)).
		WillReturnRows(sqlmock.NewRows([]string{"status_id", "name"}).
			AddRow(int64(1), "NONE").
			AddRow(int64(2), "Disconnected").
			AddRow(int64(3), "Archive_Off"))
}

// expectNumericMeta primes metadata for channel id with a 0..100 V display.
func expectNumericMeta(mock sqlmock.Sqlmock, stmts *statements, id int64) {
	mock.ExpectQuery(regexp.QuoteMeta(stmts.numericMeta)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(numCols).AddRow(0.0, 100.0, nil, nil, 5.0, 95.0, int64(2), "V"))
}

// newTestEngine builds an engine over sqlmock. The alarm table queries run
// during construction and are already satisfied on return.
func newTestEngine(t *testing.T, dialect ports.Dialect, opts Options) (*Engine, sqlmock.Sqlmock, *mockGateway, *mockObs) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gw := &mockGateway{db: db, dialect: dialect, held: map[*sql.Conn]bool{}}
	obs := newMockObs()
	expectAlarmTables(mock, newStatements(dialect, opts.SchemaPrefix, opts.StoredProcedure, opts.ArrayTable))

	e, err := NewEngine(context.Background(), gw, obs, opts)
	require.NoError(t, err)
	require.Equal(t, 0, gw.inUse())
	return e, mock, gw, obs
}

type sliceSource struct {
	samples []domain.Sample
}

func (s *sliceSource) HasNext() bool { return len(s.samples) > 0 }

func (s *sliceSource) Next() (domain.Sample, error) {
	if len(s.samples) == 0 {
		return domain.Sample{}, ErrExhausted
	}
	v := s.samples[0]
	s.samples = s.samples[1:]
	return v, nil
}
