package pvarchive

import (
	"github.com/ghalamif/pvarchive/internal/app/archive"
	"github.com/ghalamif/pvarchive/internal/domain"
	"github.com/ghalamif/pvarchive/internal/ports"
)

// Sample is one decoded archive value; Kind says which field holds it.
type Sample = domain.Sample

type (
	ChannelID  = domain.ChannelID
	Kind       = domain.Kind
	Alarm      = domain.Alarm
	Severity   = domain.Severity
	Display    = domain.Display
	Metadata   = domain.Metadata
	Statistics = domain.Statistics
)

const (
	KindDouble      = domain.KindDouble
	KindInteger     = domain.KindInteger
	KindEnum        = domain.KindEnum
	KindString      = domain.KindString
	KindDoubleArray = domain.KindDoubleArray
	KindStatistics  = domain.KindStatistics
)

const (
	SeverityNone      = domain.SeverityNone
	SeverityMinor     = domain.SeverityMinor
	SeverityMajor     = domain.SeverityMajor
	SeverityInvalid   = domain.SeverityInvalid
	SeverityUndefined = domain.SeverityUndefined
)

// Dialect names the SQL flavour of the archive database.
type Dialect = ports.Dialect

const (
	DialectPostgreSQL  = ports.DialectPostgreSQL
	DialectTimescaleDB = ports.DialectTimescaleDB
	DialectMySQL       = ports.DialectMySQL
	DialectOracle      = ports.DialectOracle
)

// Gateway hands out archive connections. Supply one with WithGateway to
// reuse an existing *sql.DB or a driver this package does not bundle.
type Gateway = ports.Gateway

// Observability receives logs and metrics from the reader.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// RawIterator streams raw samples; see Reader.FetchRaw.
type RawIterator = archive.RawIterator

// SampleSource is anything Drain can read from, a RawIterator included.
type SampleSource = archive.SampleSource

var (
	ErrUnknownChannel      = archive.ErrUnknownChannel
	ErrMetadataCorrupt     = archive.ErrMetadataCorrupt
	ErrUnsupportedBlobType = archive.ErrUnsupportedBlobType
	ErrCancelled           = archive.ErrCancelled
	ErrInvalidBucketCount  = archive.ErrInvalidBucketCount
	ErrInvalidRange        = archive.ErrInvalidRange
	ErrExhausted           = archive.ErrExhausted
	ErrClosed              = archive.ErrClosed
)
