package archive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ghalamif/pvarchive/internal/ports"
)

// cursorName is the server-side cursor used for PostgreSQL raw reads.
const cursorName = "pvarchive_samples"

// statements holds the dialect specific SQL used by the engine.
type statements struct {
	dialect ports.Dialect

	severities string
	stati      string

	channelByName string
	channelByID   string
	nameByID      string
	namesByLike   string

	numericMeta string
	enumMeta    string

	initialTime string
	samples     string
	sampleCount string
	optimized   string
	// arrayVals reads the elements after the first of a sample from the
	// array_val table. Empty when arrays are stored as blobs.
	arrayVals string

	// rawArray is true when the sample table carries the array blob columns.
	rawArray bool
}

// newStatements builds the SQL for dialect. arrayTable selects archives that
// keep array elements in the array_val table instead of sample blobs.
func newStatements(dialect ports.Dialect, prefix, procedure string, arrayTable bool) *statements {
	p := func(i int) string { return placeholder(dialect, i) }
	t := func(name string) string { return prefix + name }

	s := &statements{
		dialect:  dialect,
		rawArray: dialect != ports.DialectTimescaleDB && !arrayTable,
	}

	s.severities = "SELECT severity_id, name FROM " + t("severity")
	s.stati = "SELECT status_id, name FROM " + t("status")

	s.channelByName = "SELECT channel_id FROM " + t("channel") + " WHERE name=" + p(1)
	s.channelByID = "SELECT channel_id FROM " + t("channel") + " WHERE channel_id=" + p(1)
	s.nameByID = "SELECT name FROM " + t("channel") + " WHERE channel_id=" + p(1)
	s.namesByLike = "SELECT name FROM " + t("channel") + " WHERE name LIKE " + p(1) + likeEscape(dialect) + " ORDER BY name"

	s.numericMeta = "SELECT low_disp_rng, high_disp_rng, low_warn_lmt, high_warn_lmt, low_alarm_lmt, high_alarm_lmt, prec, unit FROM " +
		t("num_metadata") + " WHERE channel_id=" + p(1)
	s.enumMeta = "SELECT enum_nbr, enum_val FROM " + t("enum_metadata") + " WHERE channel_id=" + p(1) + " ORDER BY enum_nbr"

	columns := "smpl_time, severity_id, status_id, num_val, float_val, str_val"
	order := "smpl_time, nanosecs"
	if !dialect.NanosInTimestamp() {
		columns += ", nanosecs"
	} else {
		order = "smpl_time"
	}
	if s.rawArray {
		columns += ", datatype, array_val"
	}

	if arrayTable && dialect != ports.DialectTimescaleDB {
		s.arrayVals = "SELECT float_val FROM " + t("array_val") +
			" WHERE channel_id=" + p(1) + " AND smpl_time=" + p(2)
		if !dialect.NanosInTimestamp() {
			s.arrayVals += " AND nanosecs=" + p(3)
		}
		s.arrayVals += " ORDER BY seq_nbr"
	}

	switch dialect {
	case ports.DialectOracle:
		s.initialTime = "SELECT smpl_time FROM (SELECT smpl_time FROM " + t("sample") +
			" WHERE channel_id=" + p(1) + " AND smpl_time<=" + p(2) + " ORDER BY smpl_time DESC) WHERE ROWNUM=1"
	default:
		// the sample time is smpl_time's second plus nanosecs, so rows of the
		// start second only qualify up to the start's nanoseconds
		s.initialTime = "SELECT smpl_time, nanosecs FROM " + t("sample") +
			" WHERE channel_id=" + p(1) + " AND (smpl_time<" + p(2) +
			" OR (smpl_time>=" + p(3) + " AND smpl_time<" + p(4) + " AND nanosecs<=" + p(5) + "))" +
			" ORDER BY smpl_time DESC, nanosecs DESC LIMIT 1"
	}

	s.samples = "SELECT " + columns + " FROM " + t("sample") +
		" WHERE channel_id=" + p(1) + " AND smpl_time BETWEEN " + p(2) + " AND " + p(3) +
		" ORDER BY " + order
	s.sampleCount = "SELECT COUNT(*) FROM " + t("sample") +
		" WHERE channel_id=" + p(1) + " AND smpl_time BETWEEN " + p(2) + " AND " + p(3)

	if procedure != "" {
		const binColumns = "bucket, severity_id, status_id, min, max, avg, num_val, str_val, n"
		switch {
		case dialect.PostgresFamily():
			s.optimized = fmt.Sprintf("SELECT %s FROM %s($1, $2::TIMESTAMPTZ, $3::TIMESTAMPTZ, $4)", binColumns, procedure)
		case dialect == ports.DialectMySQL:
			s.optimized = fmt.Sprintf("CALL %s(?, ?, ?, ?)", procedure)
		default:
			s.optimized = fmt.Sprintf("SELECT %s FROM TABLE(%s(:1, :2, :3, :4))", binColumns, procedure)
		}
	}
	return s
}

// declareCursor wraps the raw sample query into a server-side cursor.
func (s *statements) declareCursor() string {
	return "DECLARE " + cursorName + " NO SCROLL CURSOR FOR " + s.samples
}

func (s *statements) fetchCursor(n int) string {
	return "FETCH FORWARD " + strconv.Itoa(n) + " FROM " + cursorName
}

func placeholder(dialect ports.Dialect, i int) string {
	switch {
	case dialect.PostgresFamily():
		return "$" + strconv.Itoa(i)
	case dialect == ports.DialectOracle:
		return ":" + strconv.Itoa(i)
	default:
		return "?"
	}
}

func likeEscape(dialect ports.Dialect) string {
	if dialect == ports.DialectMySQL {
		// backslash is already MySQL's default LIKE escape and would need doubling here
		return ""
	}
	return ` ESCAPE '\'`
}

// globToLike turns a shell glob into a LIKE pattern. Underscores are escaped
// first because '_' is the LIKE single character wildcard.
func globToLike(glob string) string {
	pattern := strings.ReplaceAll(glob, "_", `\_`)
	pattern = strings.ReplaceAll(pattern, "?", "_")
	return strings.ReplaceAll(pattern, "*", "%")
}
