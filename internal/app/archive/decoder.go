package archive

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ghalamif/pvarchive/internal/domain"
	"github.com/ghalamif/pvarchive/internal/ports"
)

// Row is one row of the sample table. Which of Int, Float and Text is
// non-NULL decides the sample kind.
type Row struct {
	Time       time.Time
	Nanos      sql.NullInt64
	SeverityID int64
	StatusID   int64
	Int        sql.NullInt64
	Float      sql.NullFloat64
	Text       sql.NullString
	ArrayType  sql.NullString
	ArrayBlob  []byte
}

// dest returns scan targets in the column order of statements.samples.
func (r *Row) dest(dialect ports.Dialect, withArray bool) []any {
	d := []any{&r.Time, &r.SeverityID, &r.StatusID, &r.Int, &r.Float, &r.Text}
	if !dialect.NanosInTimestamp() {
		d = append(d, &r.Nanos)
	}
	if withArray {
		d = append(d, &r.ArrayType, &r.ArrayBlob)
	}
	return d
}

// BinRow is one bucket returned by the server side optimization procedure.
type BinRow struct {
	Bucket     time.Time
	SeverityID sql.NullInt64
	StatusID   sql.NullInt64
	Min        sql.NullFloat64
	Max        sql.NullFloat64
	Avg        sql.NullFloat64
	Int        sql.NullInt64
	Text       sql.NullString
	N          int64
}

func (b *BinRow) dest() []any {
	return []any{&b.Bucket, &b.SeverityID, &b.StatusID, &b.Min, &b.Max, &b.Avg, &b.Int, &b.Text, &b.N}
}

// Decoder turns archive rows into samples.
type Decoder struct {
	dialect ports.Dialect
	alarms  *AlarmTables
	// keepIntegers yields KindInteger for non-enum integer values instead
	// of widening them to KindDouble.
	keepIntegers bool
}

func NewDecoder(dialect ports.Dialect, alarms *AlarmTables, keepIntegers bool) *Decoder {
	return &Decoder{dialect: dialect, alarms: alarms, keepIntegers: keepIntegers}
}

// Timestamp returns the full precision sample time of row.
func (d *Decoder) Timestamp(row *Row) time.Time {
	if d.dialect.NanosInTimestamp() || !row.Nanos.Valid {
		return row.Time
	}
	return row.Time.Truncate(time.Second).Add(time.Duration(row.Nanos.Int64))
}

// Decode converts a sample table row. The first matching rule wins:
//
//  1. float_val set and a non-blank array type: array from the blob, or a
//     double when the blob holds a single element
//  2. float_val set: double
//  3. num_val set: enum when the channel has labels, else a number
//  4. otherwise: string from str_val (which may be NULL)
func (d *Decoder) Decode(row *Row, meta *domain.Metadata) (domain.Sample, error) {
	ts := d.Timestamp(row)
	alarm := d.alarms.Alarm(row.SeverityID, row.StatusID)

	switch {
	case row.Float.Valid && row.ArrayType.Valid && strings.TrimSpace(row.ArrayType.String) != "":
		values, err := decodeArrayBlob(row.ArrayType.String, row.ArrayBlob)
		if err != nil {
			return domain.Sample{}, err
		}
		return arrayOrScalar(ts, alarm, values, meta.Display), nil

	case row.Float.Valid:
		return domain.NewDouble(ts, alarm, row.Float.Float64, meta.Display), nil

	case row.Int.Valid:
		return d.integer(ts, alarm, row.Int.Int64, meta), nil

	default:
		return domain.NewString(ts, alarm, row.Text.String), nil
	}
}

// integer decodes num_val. The enum index is not checked against the label
// count; an out of range index is left for the display to deal with.
func (d *Decoder) integer(ts time.Time, alarm domain.Alarm, v int64, meta *domain.Metadata) domain.Sample {
	if meta.IsEnum() {
		return domain.NewEnum(ts, alarm, int(v), meta.Labels)
	}
	if d.keepIntegers {
		return domain.NewInteger(ts, alarm, v, meta.Display)
	}
	return domain.NewDouble(ts, alarm, float64(v), meta.Display)
}

// DecodeBin converts one optimized bucket: text first, then integers, then
// a single raw double (n == 1) or min/max/avg statistics.
func (d *Decoder) DecodeBin(row *BinRow, meta *domain.Metadata) domain.Sample {
	ts := row.Bucket
	switch {
	case row.Text.Valid:
		return domain.NewString(ts, d.alarms.Alarm(row.SeverityID.Int64, row.StatusID.Int64), row.Text.String)

	case row.Int.Valid:
		return d.integer(ts, d.alarms.Alarm(row.SeverityID.Int64, row.StatusID.Int64), row.Int.Int64, meta)

	case row.N == 1:
		return domain.NewDouble(ts, domain.NoAlarm(), row.Avg.Float64, meta.Display)

	default:
		return domain.NewStatistics(ts, domain.NoAlarm(), domain.Statistics{
			Min:   row.Min.Float64,
			Max:   row.Max.Float64,
			Avg:   row.Avg.Float64,
			Count: row.N,
		}, meta.Display)
	}
}

// arrayOrScalar returns a double for a one element array.
func arrayOrScalar(ts time.Time, alarm domain.Alarm, values []float64, display *domain.Display) domain.Sample {
	if len(values) == 1 {
		return domain.NewDouble(ts, alarm, values[0], display)
	}
	return domain.NewDoubleArray(ts, alarm, values, display)
}

// decodeArrayBlob reads a big-endian int32 element count followed by that
// many float64 values. Only the 'd' element type is known.
func decodeArrayBlob(kind string, blob []byte) ([]float64, error) {
	kind = strings.TrimSpace(kind)
	if kind != "d" {
		return nil, &UnsupportedBlobTypeError{Type: kind}
	}
	if len(blob) < 4 {
		return nil, fmt.Errorf("array blob too short: %d bytes", len(blob))
	}
	n := int32(binary.BigEndian.Uint32(blob))
	if n < 0 || len(blob)-4 < int(n)*8 {
		return nil, fmt.Errorf("array blob holds %d bytes, header claims %d elements", len(blob), n)
	}
	values := make([]float64, n)
	for i := range values {
		off := 4 + i*8
		values[i] = math.Float64frombits(binary.BigEndian.Uint64(blob[off:]))
	}
	return values, nil
}

// EncodeArrayBlob is the inverse of the blob decoding, used by tools that
// seed archives.
func EncodeArrayBlob(values []float64) []byte {
	blob := make([]byte, 4+8*len(values))
	binary.BigEndian.PutUint32(blob, uint32(len(values)))
	for i, v := range values {
		binary.BigEndian.PutUint64(blob[4+i*8:], math.Float64bits(v))
	}
	return blob
}
