package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/pvarchive/internal/domain"
	"github.com/ghalamif/pvarchive/internal/ports"
)

// AlarmTables memoizes the archive's severity and status id tables. Ids
// missing from the tables are inserted on first use (UNDEFINED severity,
// "<id>" status) so each unknown id is only reported once.
type AlarmTables struct {
	mu         sync.RWMutex
	loaded     bool
	severities map[int64]domain.Severity
	stati      map[int64]string
	obs        ports.Observability
}

func NewAlarmTables(obs ports.Observability) *AlarmTables {
	return &AlarmTables{
		severities: make(map[int64]domain.Severity),
		stati:      make(map[int64]string),
		obs:        obs,
	}
}

// Loaded reports whether Load has completed successfully.
func (a *AlarmTables) Loaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loaded
}

// Load reads the severity and status tables once. A failed load leaves the
// tables empty so that the next engine construction tries again.
func (a *AlarmTables) Load(ctx context.Context, conn *sql.Conn, reg *Registry, stmts *statements) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return nil
	}

	severities := make(map[int64]domain.Severity)
	err := queryIDTable(ctx, conn, reg, "read_severities", stmts.severities, func(id int64, text string) {
		severities[id] = a.decodeSeverityText(text)
	})
	if err != nil {
		return fmt.Errorf("read severities: %w", err)
	}
	stati := make(map[int64]string)
	err = queryIDTable(ctx, conn, reg, "read_stati", stmts.stati, func(id int64, text string) {
		stati[id] = text
	})
	if err != nil {
		return fmt.Errorf("read stati: %w", err)
	}

	a.severities = severities
	a.stati = stati
	a.loaded = true
	a.obs.LogInfo("alarm_tables_loaded",
		ports.Field{Key: "severities", Value: len(severities)},
		ports.Field{Key: "stati", Value: len(stati)})
	return nil
}

func queryIDTable(ctx context.Context, conn *sql.Conn, reg *Registry, label, query string, fn func(int64, string)) error {
	sctx, st := reg.Begin(ctx, label, 0)
	defer st.Done()

	rows, err := conn.QueryContext(sctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			text sql.NullString
		)
		if err := rows.Scan(&id, &text); err != nil {
			return err
		}
		fn(id, text.String)
	}
	return rows.Err()
}

// decodeSeverityText maps the archive's severity names onto domain
// severities: case-sensitive prefix of the severity name, "" or "OK" for
// NONE, anything else UNDEFINED.
func (a *AlarmTables) decodeSeverityText(text string) domain.Severity {
	for _, s := range domain.Severities {
		if strings.HasPrefix(text, s.String()) {
			return s
		}
	}
	if text == "" || strings.EqualFold(text, "OK") {
		return domain.SeverityNone
	}
	a.obs.LogDebug("undefined_severity_level", ports.Field{Key: "text", Value: text})
	return domain.SeverityUndefined
}

// Severity returns the severity for id.
func (a *AlarmTables) Severity(id int64) domain.Severity {
	a.mu.RLock()
	s, ok := a.severities[id]
	a.mu.RUnlock()
	if ok {
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.severities[id]; ok {
		return s
	}
	a.obs.LogWarn("undefined_severity_id", nil, ports.Field{Key: "severity_id", Value: id})
	a.severities[id] = domain.SeverityUndefined
	return domain.SeverityUndefined
}

// Status returns the status text for id.
func (a *AlarmTables) Status(id int64) string {
	a.mu.RLock()
	s, ok := a.stati[id]
	a.mu.RUnlock()
	if ok {
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.stati[id]; ok {
		return s
	}
	a.obs.LogWarn("undefined_status_id", nil, ports.Field{Key: "status_id", Value: id})
	s = "<" + strconv.FormatInt(id, 10) + ">"
	a.stati[id] = s
	return s
}

// Alarm decodes a severity/status id pair, applying the no-value override
// after the table lookup.
func (a *AlarmTables) Alarm(severityID, statusID int64) domain.Alarm {
	return domain.NewAlarm(a.Severity(severityID), a.Status(statusID))
}
