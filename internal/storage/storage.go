// Package storage defines the persistence interface for alerts.
// Implementations must make UpsertAlert atomic: concurrent scans racing
// on the same fingerprint produce exactly one open alert row.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/driftwatch/driftwatch/internal/types"
)

// ErrNotFound is returned when an alert id does not exist
var ErrNotFound = errors.New("alert not found")

// Storage persists alerts across restarts
type Storage interface {
	// UpsertAlert creates the alert, or — when an open alert with the
	// same fingerprint already exists — increments its occurrence count
	// and refreshes last_seen_at instead. The stored row is returned.
	//
	// created is true when a new row was inserted. suppressed is true
	// when the suppression window since the existing row's last delivery
	// has not yet elapsed, meaning the caller must not dispatch
	// notifications for it. Suppressed occurrences do not extend the
	// window; last_delivered_at only advances on a non-suppressed return.
	UpsertAlert(ctx context.Context, alert *types.Alert, window time.Duration) (stored *types.Alert, created, suppressed bool, err error)

	// GetAlert fetches one alert by id. Returns ErrNotFound if absent.
	GetAlert(ctx context.Context, id string) (*types.Alert, error)

	// ListAlerts returns alerts matching the filter, newest first
	ListAlerts(ctx context.Context, filter types.AlertFilter) ([]*types.Alert, error)

	// ResolveAlert marks an alert resolved. Resolving an already
	// resolved alert succeeds without modifying the stored note.
	ResolveAlert(ctx context.Context, id, note string) error

	// SetDeliveryLog replaces the alert's per-channel delivery log
	SetDeliveryLog(ctx context.Context, id string, log map[string]types.DeliveryResult) error

	// Summary aggregates counts for the status surface
	Summary(ctx context.Context) (*types.AlertSummary, error)

	// Close releases the underlying database
	Close() error
}
