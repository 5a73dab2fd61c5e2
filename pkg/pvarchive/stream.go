package pvarchive

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStreamClosed is returned to the producer of a channel stream after the
// consumer closed it.
var ErrStreamClosed = errors.New("pvarchive: channel stream closed")

// SampleBatchFunc receives one batch of samples. Returning an error stops
// the drain.
type SampleBatchFunc func(batch []Sample) error

// Drain reads src to the end and hands the samples to fn in batches of at
// most batchSize. It returns the number of samples delivered.
func Drain(src SampleSource, batchSize int, fn SampleBatchFunc) (int, error) {
	if fn == nil {
		return 0, fmt.Errorf("drain: nil handler")
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	n := 0
	batch := make([]Sample, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		n += len(batch)
		batch = make([]Sample, 0, batchSize)
		return nil
	}

	for src.HasNext() {
		s, err := src.Next()
		if err != nil {
			if ferr := flush(); ferr != nil {
				return n, ferr
			}
			return n, err
		}
		batch = append(batch, s)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return n, err
			}
		}
	}
	return n, flush()
}

// NewChannelStream drains src on its own goroutine and exposes the batches
// via a channel, which is closed once src is exhausted. The returned close
// function stops the producer, closes src if it has a Close method and
// reports the error that ended the stream, if any. src must not be touched
// until the close function has returned.
func NewChannelStream(ctx context.Context, src SampleSource, batchSize, buffer int) (<-chan []Sample, func() error) {
	if buffer < 0 {
		buffer = 0
	}
	s := &channelStream{
		ch:     make(chan []Sample, buffer),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run(ctx, src, batchSize)
	return s.ch, s.close
}

type channelStream struct {
	ch     chan []Sample
	closed chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *channelStream) run(ctx context.Context, src SampleSource, batchSize int) {
	defer close(s.done)
	defer close(s.ch)

	_, err := Drain(src, batchSize, func(batch []Sample) error {
		select {
		case <-s.closed:
			return ErrStreamClosed
		default:
		}

		select {
		case <-s.closed:
			return ErrStreamClosed
		case <-ctx.Done():
			return ctx.Err()
		case s.ch <- batch:
			return nil
		}
	})
	if c, ok := src.(interface{ Close() error }); ok {
		err = errors.Join(err, c.Close())
	}
	s.err = err
}

func (s *channelStream) close() error {
	s.once.Do(func() {
		close(s.closed)
	})
	<-s.done
	if errors.Is(s.err, ErrStreamClosed) {
		return nil
	}
	return s.err
}
