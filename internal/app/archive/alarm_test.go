package archive

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/pvarchive/internal/domain"
	"github.com/ghalamif/pvarchive/internal/ports"
)

func TestDecodeSeverityText(t *testing.T) {
	a := NewAlarmTables(newMockObs())
	cases := map[string]domain.Severity{
		"":             domain.SeverityNone,
		"OK":           domain.SeverityNone,
		"ok":           domain.SeverityNone,
		"NONE":         domain.SeverityNone,
		"MINOR":        domain.SeverityMinor,
		"MAJOR_ALARM":  domain.SeverityMajor,
		"INVALID":      domain.SeverityInvalid,
		"UNDEFINED":    domain.SeverityUndefined,
		"minor":        domain.SeverityUndefined,
		"Disconnected": domain.SeverityUndefined,
	}
	for text, want := range cases {
		require.Equal(t, want, a.decodeSeverityText(text), "text %q", text)
	}
}

func TestAlarmTablesUnknownIDs(t *testing.T) {
	obs := newMockObs()
	a := loadedAlarms(obs)

	require.Equal(t, domain.SeverityUndefined, a.Severity(42))
	require.Equal(t, domain.SeverityUndefined, a.Severity(42))
	require.Equal(t, 1, obs.warned("undefined_severity_id"))

	require.Equal(t, "<17>", a.Status(17))
	require.Equal(t, "<17>", a.Status(17))
	require.Equal(t, 1, obs.warned("undefined_status_id"))

	require.Equal(t, domain.Alarm{Severity: domain.SeverityMinor, Status: "NONE"}, a.Alarm(2, 1))
}

func TestAlarmTablesLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stmts := newStatements(ports.DialectPostgreSQL, "archive.", "", false)
	expectAlarmTables(mock, stmts)

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	a := NewAlarmTables(newMockObs())
	require.NoError(t, a.Load(context.Background(), conn, NewRegistry(newMockObs()), stmts))
	require.True(t, a.Loaded())
	require.Equal(t, domain.SeverityMajor, a.Severity(3))
	require.Equal(t, "Archive_Off", a.Status(3))

	// loaded tables are not read again
	require.NoError(t, a.Load(context.Background(), conn, NewRegistry(newMockObs()), stmts))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAlarmTablesLoadFailureKeepsTablesEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stmts := newStatements(ports.DialectMySQL, "", "", false)
	mock.ExpectQuery(regexp.QuoteMeta(stmts.severities)).WillReturnError(errors.New("connection reset"))

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	a := NewAlarmTables(newMockObs())
	err = a.Load(context.Background(), conn, NewRegistry(newMockObs()), stmts)
	require.ErrorContains(t, err, "connection reset")
	require.False(t, a.Loaded())
	require.NoError(t, mock.ExpectationsWereMet())
}
