package pvarchive

import (
	"context"

	"github.com/rs/zerolog"

	base "github.com/ghalamif/pvarchive/pkg/pvarchive"
)

// Re-exported errors for convenience.
var (
	ErrUnknownChannel      = base.ErrUnknownChannel
	ErrMetadataCorrupt     = base.ErrMetadataCorrupt
	ErrUnsupportedBlobType = base.ErrUnsupportedBlobType
	ErrCancelled           = base.ErrCancelled
	ErrInvalidBucketCount  = base.ErrInvalidBucketCount
	ErrInvalidRange        = base.ErrInvalidRange
	ErrExhausted           = base.ErrExhausted
	ErrClosed              = base.ErrClosed
	ErrStreamClosed        = base.ErrStreamClosed
)

// Type aliases so consumers can import github.com/ghalamif/pvarchive directly.
type (
	Config          = base.Config
	ArchiveConfig   = base.ArchiveConfig
	MetricsConfig   = base.MetricsConfig
	LogConfig       = base.LogConfig
	Reader          = base.Reader
	ReaderOption    = base.ReaderOption
	RawIterator     = base.RawIterator
	SampleSource    = base.SampleSource
	SampleBatchFunc = base.SampleBatchFunc
	Sample          = base.Sample
	ChannelID       = base.ChannelID
	Kind            = base.Kind
	Alarm           = base.Alarm
	Severity        = base.Severity
	Display         = base.Display
	Metadata        = base.Metadata
	Statistics      = base.Statistics
	Dialect         = base.Dialect
	Gateway         = base.Gateway
	Observability   = base.Observability
)

const (
	KindDouble      = base.KindDouble
	KindInteger     = base.KindInteger
	KindEnum        = base.KindEnum
	KindString      = base.KindString
	KindDoubleArray = base.KindDoubleArray
	KindStatistics  = base.KindStatistics

	SeverityNone      = base.SeverityNone
	SeverityMinor     = base.SeverityMinor
	SeverityMajor     = base.SeverityMajor
	SeverityInvalid   = base.SeverityInvalid
	SeverityUndefined = base.SeverityUndefined

	DialectPostgreSQL  = base.DialectPostgreSQL
	DialectTimescaleDB = base.DialectTimescaleDB
	DialectMySQL       = base.DialectMySQL
	DialectOracle      = base.DialectOracle
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Open connects to the archive described by cfg.
func Open(ctx context.Context, cfg *Config, opts ...ReaderOption) (*Reader, error) {
	return base.Open(ctx, cfg, opts...)
}

// Conf loads the config at path and opens a reader for it.
func Conf(ctx context.Context, path string, opts ...ReaderOption) (*Reader, error) {
	cfg, err := base.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return base.Open(ctx, cfg, opts...)
}

func WithGateway(gw Gateway) ReaderOption {
	return base.WithGateway(gw)
}

func WithObservability(obs Observability) ReaderOption {
	return base.WithObservability(obs)
}

func WithLogger(logger zerolog.Logger) ReaderOption {
	return base.WithLogger(logger)
}

// Stream helpers.
func Drain(src SampleSource, batchSize int, fn SampleBatchFunc) (int, error) {
	return base.Drain(src, batchSize, fn)
}

func NewChannelStream(ctx context.Context, src SampleSource, batchSize, buffer int) (<-chan []Sample, func() error) {
	return base.NewChannelStream(ctx, src, batchSize, buffer)
}
