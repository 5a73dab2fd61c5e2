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

func TestNameVariants(t *testing.T) {
	prefixes := []string{"ca", "pva"}
	tests := []struct {
		name     string
		prefixes []string
		want     []string
	}{
		{"Sim:Ramp", nil, []string{"Sim:Ramp"}},
		{"Sim:Ramp", prefixes, []string{"Sim:Ramp", "ca://Sim:Ramp", "pva://Sim:Ramp"}},
		{"ca://Sim:Ramp", prefixes, []string{"ca://Sim:Ramp", "Sim:Ramp", "pva://Sim:Ramp"}},
		{"pva://Sim:Ramp", prefixes, []string{"pva://Sim:Ramp", "Sim:Ramp", "ca://Sim:Ramp"}},
		{"loc://x", prefixes, []string{"loc://x"}},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, NameVariants(tc.name, tc.prefixes), "name %q", tc.name)
	}
}

func TestGlobToLike(t *testing.T) {
	require.Equal(t, `Sim:%`, globToLike("Sim:*"))
	require.Equal(t, `Sim\_Ramp_`, globToLike("Sim_Ramp?"))
	require.Equal(t, `%`, globToLike("*"))
}

func TestParseChannelID(t *testing.T) {
	id, ok := parseChannelID("#1234")
	require.True(t, ok)
	require.Equal(t, domain.ChannelID(1234), id)

	for _, name := range []string{"1234", "#", "#12a", " #12", "#-1"} {
		_, ok := parseChannelID(name)
		require.False(t, ok, name)
	}
}

func TestResolveTriesVariantsInOrder(t *testing.T) {
	e, mock, gw, _ := newTestEngine(t, ports.DialectPostgreSQL, Options{EquivalentPrefixes: []string{"ca", "pva"}})
	q := regexp.QuoteMeta(e.stmts.channelByName)

	mock.ExpectQuery(q).WithArgs("pva://Sim:Ramp").WillReturnRows(sqlmock.NewRows([]string{"channel_id"}))
	mock.ExpectQuery(q).WithArgs("Sim:Ramp").WillReturnRows(sqlmock.NewRows([]string{"channel_id"}))
	mock.ExpectQuery(q).WithArgs("ca://Sim:Ramp").WillReturnRows(sqlmock.NewRows([]string{"channel_id"}).AddRow(int64(42)))

	id, err := e.Resolve(context.Background(), "pva://Sim:Ramp")
	require.NoError(t, err)
	require.Equal(t, domain.ChannelID(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, 0, gw.inUse())
	require.Equal(t, 0, e.Registry().Len())
}

func TestResolveUnknownChannel(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, ports.DialectMySQL, Options{})
	mock.ExpectQuery(regexp.QuoteMeta(e.stmts.channelByName)).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"channel_id"}))

	_, err := e.Resolve(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownChannel)
	var unknown *UnknownChannelError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, []string{"nope"}, unknown.Variants)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveByID(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, ports.DialectPostgreSQL, Options{})
	q := regexp.QuoteMeta(e.stmts.channelByID)
	mock.ExpectQuery(q).WithArgs(int64(42)).WillReturnRows(sqlmock.NewRows([]string{"channel_id"}).AddRow(int64(42)))
	mock.ExpectQuery(q).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"channel_id"}))

	id, err := e.Resolve(context.Background(), "#42")
	require.NoError(t, err)
	require.Equal(t, domain.ChannelID(42), id)

	_, err = e.Resolve(context.Background(), "#7")
	require.ErrorIs(t, err, ErrUnknownChannel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListNames(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, ports.DialectPostgreSQL, Options{})
	require.Contains(t, e.stmts.namesByLike, `LIKE $1 ESCAPE '\'`)

	mock.ExpectQuery(regexp.QuoteMeta(e.stmts.namesByLike)).WithArgs(`Sim\_%`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Sim_Ramp").AddRow("Sim_Sine"))
	mock.ExpectQuery(regexp.QuoteMeta(e.stmts.nameByID)).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Sim:Ramp"))

	names, err := e.ListNames(context.Background(), "Sim_*")
	require.NoError(t, err)
	require.Equal(t, []string{"Sim_Ramp", "Sim_Sine"}, names)

	names, err = e.ListNames(context.Background(), "#42")
	require.NoError(t, err)
	require.Equal(t, []string{"Sim:Ramp"}, names)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListNamesCancelledReturnsPartial(t *testing.T) {
	e, mock, _, _ := newTestEngine(t, ports.DialectMySQL, Options{})
	require.NotContains(t, e.stmts.namesByLike, "ESCAPE")

	rows := sqlmock.NewRows([]string{"name"}).AddRow("a").AddRow("b").RowError(1, context.Canceled)
	mock.ExpectQuery(regexp.QuoteMeta(e.stmts.namesByLike)).WillReturnRows(rows)

	names, err := e.ListNames(context.Background(), "*")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, names)
}
