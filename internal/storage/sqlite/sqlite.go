// Package sqlite is the SQLite-backed alert store. A partial unique
// index on open fingerprints makes alert deduplication safe even if
// two writers race past the transactional check.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/driftwatch/driftwatch/internal/storage"
	"github.com/driftwatch/driftwatch/internal/types"
)

// SQLiteStorage implements the storage.Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// New opens (creating if necessary) the alert database at path
func New(path string) (*SQLiteStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL keeps readers (status, list) from blocking the scan writer
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the underlying database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// UpsertAlert implements the atomic create-or-increment described on
// storage.Storage
func (s *SQLiteStorage) UpsertAlert(ctx context.Context, alert *types.Alert, window time.Duration) (*types.Alert, bool, bool, error) {
	if err := alert.Validate(); err != nil {
		return nil, false, false, fmt.Errorf("invalid alert: %w", err)
	}

	now := alert.LastSeenAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanAlert(tx.QueryRowContext(ctx,
		selectColumns+` FROM alerts WHERE fingerprint = ? AND resolved = 0`, alert.Fingerprint))
	if err != nil && err != sql.ErrNoRows {
		return nil, false, false, fmt.Errorf("failed to query alert by fingerprint: %w", err)
	}

	if existing != nil {
		// The window is anchored to the last delivery, not the last
		// occurrence: a recurring drift that repeats faster than the
		// window is still re-delivered once per window.
		suppressed := now.Sub(existing.LastDeliveredAt) < window
		delivered := existing.LastDeliveredAt
		if !suppressed {
			delivered = now
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE alerts SET occurrence_count = occurrence_count + 1, last_seen_at = ?, last_delivered_at = ?
			WHERE id = ?`, formatTime(now), formatTime(delivered), existing.ID)
		if err != nil {
			return nil, false, false, fmt.Errorf("failed to record occurrence: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, false, fmt.Errorf("failed to commit occurrence: %w", err)
		}
		existing.OccurrenceCount++
		existing.LastSeenAt = now
		existing.LastDeliveredAt = delivered
		return existing, false, suppressed, nil
	}

	contextJSON, err := marshalContext(alert.Context)
	if err != nil {
		return nil, false, false, err
	}
	deliveryJSON, err := marshalDeliveryLog(alert.DeliveryLog)
	if err != nil {
		return nil, false, false, err
	}

	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alerts (id, type, severity, title, message, context, fingerprint,
			occurrence_count, created_at, last_seen_at, last_delivered_at, resolved, resolution_note, delivery_log)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, 0, '', ?)`,
		alert.ID, alert.Type, alert.Severity, alert.Title, alert.Message,
		contextJSON, alert.Fingerprint, formatTime(createdAt), formatTime(now), formatTime(now), deliveryJSON)
	if err != nil {
		return nil, false, false, fmt.Errorf("failed to insert alert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, false, fmt.Errorf("failed to commit alert: %w", err)
	}

	stored := *alert
	stored.OccurrenceCount = 1
	stored.CreatedAt = createdAt
	stored.LastSeenAt = now
	stored.LastDeliveredAt = now
	stored.Resolved = false
	return &stored, true, false, nil
}

// GetAlert fetches one alert by id
func (s *SQLiteStorage) GetAlert(ctx context.Context, id string) (*types.Alert, error) {
	alert, err := scanAlert(s.db.QueryRowContext(ctx, selectColumns+` FROM alerts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// ListAlerts returns alerts matching the filter, newest first
func (s *SQLiteStorage) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]*types.Alert, error) {
	query := selectColumns + ` FROM alerts`
	var conditions []string
	var args []interface{}

	if filter.Resolved != nil {
		conditions = append(conditions, "resolved = ?")
		if *filter.Resolved {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.MinSeverity != "" {
		allowed := severitiesAtLeast(filter.MinSeverity)
		placeholders := strings.Repeat("?,", len(allowed))
		conditions = append(conditions, fmt.Sprintf("severity IN (%s)", placeholders[:len(placeholders)-1]))
		for _, sev := range allowed {
			args = append(args, sev)
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY last_seen_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*types.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// ResolveAlert marks an alert resolved. Idempotent: resolving twice
// succeeds and keeps the first resolution note.
func (s *SQLiteStorage) ResolveAlert(ctx context.Context, id, note string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts
		SET resolution_note = CASE WHEN resolved = 1 THEN resolution_note ELSE ? END,
		    resolved = 1
		WHERE id = ?`, note, id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check resolve result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetDeliveryLog replaces the alert's delivery log
func (s *SQLiteStorage) SetDeliveryLog(ctx context.Context, id string, log map[string]types.DeliveryResult) error {
	deliveryJSON, err := marshalDeliveryLog(log)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `UPDATE alerts SET delivery_log = ? WHERE id = ?`, deliveryJSON, id)
	if err != nil {
		return fmt.Errorf("failed to update delivery log: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delivery log update: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Summary aggregates counts for the status surface
func (s *SQLiteStorage) Summary(ctx context.Context) (*types.AlertSummary, error) {
	summary := &types.AlertSummary{
		BySeverity: make(map[types.AlertSeverity]int),
		ByType:     make(map[types.AlertType]int),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN resolved = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN resolved = 1 THEN 1 ELSE 0 END), 0)
		FROM alerts`).Scan(&summary.Total, &summary.Open, &summary.Resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT severity, COUNT(*) FROM alerts GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by severity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sev types.AlertSeverity
		var count int
		if err := rows.Scan(&sev, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		summary.BySeverity[sev] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	typeRows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM alerts GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by type: %w", err)
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var at types.AlertType
		var count int
		if err := typeRows.Scan(&at, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		summary.ByType[at] = count
	}
	return summary, typeRows.Err()
}

const selectColumns = `SELECT id, type, severity, title, message, context, fingerprint,
	occurrence_count, created_at, last_seen_at, last_delivered_at, resolved, resolution_note, delivery_log`

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*types.Alert, error) {
	var a types.Alert
	var contextJSON, deliveryJSON, createdAt, lastSeenAt, lastDeliveredAt string
	var resolved int
	err := row.Scan(&a.ID, &a.Type, &a.Severity, &a.Title, &a.Message, &contextJSON,
		&a.Fingerprint, &a.OccurrenceCount, &createdAt, &lastSeenAt, &lastDeliveredAt,
		&resolved, &a.ResolutionNote, &deliveryJSON)
	if err != nil {
		return nil, err
	}
	a.Resolved = resolved != 0
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if a.LastSeenAt, err = parseTime(lastSeenAt); err != nil {
		return nil, fmt.Errorf("invalid last_seen_at: %w", err)
	}
	if a.LastDeliveredAt, err = parseTime(lastDeliveredAt); err != nil {
		return nil, fmt.Errorf("invalid last_delivered_at: %w", err)
	}
	if contextJSON != "" && contextJSON != "{}" {
		if err := json.Unmarshal([]byte(contextJSON), &a.Context); err != nil {
			return nil, fmt.Errorf("invalid context JSON: %w", err)
		}
	}
	if deliveryJSON != "" && deliveryJSON != "{}" {
		if err := json.Unmarshal([]byte(deliveryJSON), &a.DeliveryLog); err != nil {
			return nil, fmt.Errorf("invalid delivery log JSON: %w", err)
		}
	}
	return &a, nil
}

func marshalContext(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal alert context: %w", err)
	}
	return string(data), nil
}

func marshalDeliveryLog(log map[string]types.DeliveryResult) (string, error) {
	if len(log) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(log)
	if err != nil {
		return "", fmt.Errorf("failed to marshal delivery log: %w", err)
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// severitiesAtLeast lists the alert severities at or above min, for
// building IN clauses
func severitiesAtLeast(min types.AlertSeverity) []types.AlertSeverity {
	all := []types.AlertSeverity{types.AlertInfo, types.AlertWarning, types.AlertError, types.AlertCritical}
	var out []types.AlertSeverity
	for _, sev := range all {
		if sev.AtLeast(min) {
			out = append(out, sev)
		}
	}
	return out
}
