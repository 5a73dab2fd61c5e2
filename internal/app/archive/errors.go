package archive

import (
	"errors"
	"fmt"

	"github.com/ghalamif/pvarchive/internal/domain"
)

var (
	// ErrUnknownChannel matches every *UnknownChannelError.
	ErrUnknownChannel = errors.New("archive: unknown channel")
	// ErrMetadataCorrupt matches every *MetadataCorruptError.
	ErrMetadataCorrupt = errors.New("archive: corrupt channel metadata")
	// ErrUnsupportedBlobType matches every *UnsupportedBlobTypeError.
	ErrUnsupportedBlobType = errors.New("archive: unsupported array blob type")
	// ErrCancelled is returned where a statement was aborted by CancelAll
	// and the operation has nothing to hand back.
	ErrCancelled = errors.New("archive: cancelled")

	ErrInvalidBucketCount = errors.New("archive: bucket count must be > 1")
	ErrInvalidRange       = errors.New("archive: end time before start time")
	ErrExhausted          = errors.New("archive: no more samples")
	ErrClosed             = errors.New("archive: engine closed")
)

// UnknownChannelError is returned when no name variant resolves.
type UnknownChannelError struct {
	Name     string
	Variants []string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("archive: unknown channel %q", e.Name)
}

func (e *UnknownChannelError) Is(target error) bool { return target == ErrUnknownChannel }

// MetadataCorruptError reports enum label ids that are not 0, 1, 2, ...
type MetadataCorruptError struct {
	Channel  domain.ChannelID
	Expected int
	Got      int64
}

func (e *MetadataCorruptError) Error() string {
	return fmt.Sprintf("archive: enum ids for channel %d not in sequential order: expected %d, got %d",
		e.Channel, e.Expected, e.Got)
}

func (e *MetadataCorruptError) Is(target error) bool { return target == ErrMetadataCorrupt }

// UnsupportedBlobTypeError reports an array blob with an unknown element tag.
type UnsupportedBlobTypeError struct {
	Type string
}

func (e *UnsupportedBlobTypeError) Error() string {
	return fmt.Sprintf("archive: sample blobs of type %q are not decoded", e.Type)
}

func (e *UnsupportedBlobTypeError) Is(target error) bool { return target == ErrUnsupportedBlobType }
