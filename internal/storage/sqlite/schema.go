package sqlite

const schema = `
-- Alerts table
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL CHECK(type IN ('drift', 'scan_error', 'system')),
    severity TEXT NOT NULL CHECK(severity IN ('info', 'warning', 'error', 'critical')),
    title TEXT NOT NULL CHECK(length(title) <= 500),
    message TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '{}',
    fingerprint TEXT NOT NULL,
    occurrence_count INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    last_seen_at DATETIME NOT NULL,
    last_delivered_at DATETIME NOT NULL,
    resolved INTEGER NOT NULL DEFAULT 0,
    resolution_note TEXT NOT NULL DEFAULT '',
    delivery_log TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_alerts_fingerprint ON alerts(fingerprint);
CREATE INDEX IF NOT EXISTS idx_alerts_resolved_severity ON alerts(resolved, severity);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);

-- At most one open alert per fingerprint; UpsertAlert relies on this
CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open_fingerprint
    ON alerts(fingerprint) WHERE resolved = 0;
`
