package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ghalamif/pvarchive/internal/domain"
)

// MetadataCache keeps channel metadata for the life of the process. Concurrent
// first lookups of one channel share a single load; a failed load is handed
// to every waiter and leaves no entry behind.
type MetadataCache struct {
	group   singleflight.Group
	mu      sync.RWMutex
	entries map[domain.ChannelID]*domain.Metadata
}

func NewMetadataCache() *MetadataCache {
	return &MetadataCache{entries: make(map[domain.ChannelID]*domain.Metadata)}
}

// Lookup returns the cached metadata for id, if any.
func (c *MetadataCache) Lookup(id domain.ChannelID) (*domain.Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[id]
	return m, ok
}

func (c *MetadataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrLoad returns the cached metadata for id or runs load once for all
// concurrent callers.
func (c *MetadataCache) GetOrLoad(id domain.ChannelID, load func() (*domain.Metadata, error)) (*domain.Metadata, error) {
	if m, ok := c.Lookup(id); ok {
		return m, nil
	}
	v, err, _ := c.group.Do(strconv.FormatInt(int64(id), 10), func() (any, error) {
		if m, ok := c.Lookup(id); ok {
			return m, nil
		}
		m, err := load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if have, ok := c.entries[id]; ok {
			m = have
		} else {
			c.entries[id] = m
		}
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Metadata), nil
}

// metadataLoader reads one channel's metadata from the archive.
type metadataLoader struct {
	stmts   *statements
	reg     *Registry
	timeout time.Duration
}

func (l *metadataLoader) load(ctx context.Context, conn *sql.Conn, id domain.ChannelID) (*domain.Metadata, error) {
	sctx, st := l.reg.Begin(ctx, "metadata #"+strconv.FormatInt(int64(id), 10), l.timeout)
	defer st.Done()

	display, err := l.numeric(sctx, conn, id)
	if err != nil {
		return nil, fmt.Errorf("numeric metadata for channel %d: %w", id, err)
	}
	if display != nil {
		return &domain.Metadata{Display: display}, nil
	}

	labels, err := l.labels(sctx, conn, id)
	if err != nil {
		return nil, fmt.Errorf("enum metadata for channel %d: %w", id, err)
	}
	if len(labels) > 0 {
		return &domain.Metadata{Labels: labels}, nil
	}
	return &domain.Metadata{Display: domain.DefaultDisplay()}, nil
}

func (l *metadataLoader) numeric(ctx context.Context, conn *sql.Conn, id domain.ChannelID) (*domain.Display, error) {
	var (
		low, high, warnLow, warnHigh, alarmLow, alarmHigh sql.NullFloat64
		prec                                              sql.NullInt64
		unit                                              sql.NullString
	)
	err := conn.QueryRowContext(ctx, l.stmts.numericMeta, int64(id)).
		Scan(&low, &high, &warnLow, &warnHigh, &alarmLow, &alarmHigh, &prec, &unit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Display{
		Low:       orNaN(low),
		High:      orNaN(high),
		WarnLow:   orNaN(warnLow),
		WarnHigh:  orNaN(warnHigh),
		AlarmLow:  orNaN(alarmLow),
		AlarmHigh: orNaN(alarmHigh),
		Unit:      unit.String,
		Precision: int(prec.Int64),
	}, nil
}

// labels reads enum labels. Ids must arrive as 0, 1, 2, ...
func (l *metadataLoader) labels(ctx context.Context, conn *sql.Conn, id domain.ChannelID) ([]string, error) {
	rows, err := conn.QueryContext(ctx, l.stmts.enumMeta, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var (
			nbr int64
			val sql.NullString
		)
		if err := rows.Scan(&nbr, &val); err != nil {
			return nil, err
		}
		if nbr != int64(len(labels)) {
			return nil, &MetadataCorruptError{Channel: id, Expected: len(labels), Got: nbr}
		}
		labels = append(labels, val.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return labels, nil
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
