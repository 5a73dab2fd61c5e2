package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ghalamif/pvarchive/internal/domain"
	"github.com/ghalamif/pvarchive/internal/ports"
)

var channelIDPattern = regexp.MustCompile(`^#[0-9]+$`)

// Resolver maps channel names onto archive channel ids. Results are not
// cached; every call hits the channel table.
type Resolver struct {
	stmts    *statements
	reg      *Registry
	obs      ports.Observability
	prefixes []string
	timeout  time.Duration
	isCancel func(error) bool
}

// parseChannelID returns the id of a "#1234" style name.
func parseChannelID(name string) (domain.ChannelID, bool) {
	if !channelIDPattern.MatchString(name) {
		return 0, false
	}
	id, err := strconv.ParseInt(name[1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return domain.ChannelID(id), true
}

// Resolve returns the channel id for name, trying each name variant in turn.
func (r *Resolver) Resolve(ctx context.Context, conn *sql.Conn, name string) (domain.ChannelID, error) {
	if id, ok := parseChannelID(name); ok {
		found, err := r.lookupID(ctx, conn, r.stmts.channelByID, int64(id))
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", name, err)
		}
		if !found.Valid {
			return 0, &UnknownChannelError{Name: name, Variants: []string{name}}
		}
		return domain.ChannelID(found.Int64), nil
	}

	variants := NameVariants(name, r.prefixes)
	sctx, st := r.reg.Begin(ctx, "resolve "+name, r.timeout)
	defer st.Done()

	for _, variant := range variants {
		var id int64
		err := conn.QueryRowContext(sctx, r.stmts.channelByName, variant).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", name, err)
		}
		r.obs.LogDebug("channel_resolved",
			ports.Field{Key: "name", Value: name},
			ports.Field{Key: "variant", Value: variant},
			ports.Field{Key: "channel_id", Value: id})
		return domain.ChannelID(id), nil
	}
	return 0, &UnknownChannelError{Name: name, Variants: variants}
}

func (r *Resolver) lookupID(ctx context.Context, conn *sql.Conn, query string, id int64) (sql.NullInt64, error) {
	sctx, st := r.reg.Begin(ctx, "lookup #"+strconv.FormatInt(id, 10), r.timeout)
	defer st.Done()

	var found sql.NullInt64
	err := conn.QueryRowContext(sctx, query, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return sql.NullInt64{}, nil
	}
	return found, err
}

// ListNames returns channel names matching a shell glob. "#1234" returns the
// name of channel 1234. A cancelled listing returns what was read so far.
func (r *Resolver) ListNames(ctx context.Context, conn *sql.Conn, glob string) ([]string, error) {
	query, arg := r.stmts.namesByLike, any(globToLike(glob))
	if id, ok := parseChannelID(glob); ok {
		query, arg = r.stmts.nameByID, int64(id)
	}

	sctx, st := r.reg.Begin(ctx, "names "+glob, r.timeout)
	defer st.Done()

	var names []string
	err := func() error {
		rows, err := conn.QueryContext(sctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
		}
		return rows.Err()
	}()
	if err != nil {
		if r.isCancel(err) {
			r.obs.LogDebug("list_names_cancelled", ports.Field{Key: "pattern", Value: glob})
			return names, nil
		}
		return nil, fmt.Errorf("list names %q: %w", glob, err)
	}
	return names, nil
}

// NameVariants expands name into the ordered list of equivalent names to
// look up. Given prefixes [ca pva], "ca://x" and "x" both expand to
// [name, x, ca://x, pva://x] (without duplicates). Names with a prefix
// outside the list are only looked up as given.
func NameVariants(name string, prefixes []string) []string {
	variants := []string{name}
	if len(prefixes) == 0 {
		return variants
	}

	base := name
	if i := strings.Index(name, "://"); i >= 0 {
		scheme := name[:i]
		equivalent := false
		for _, p := range prefixes {
			if p == scheme {
				equivalent = true
				break
			}
		}
		if !equivalent {
			return variants
		}
		base = name[i+3:]
	}

	add := func(v string) {
		for _, have := range variants {
			if have == v {
				return
			}
		}
		variants = append(variants, v)
	}
	add(base)
	for _, p := range prefixes {
		add(p + "://" + base)
	}
	return variants
}
