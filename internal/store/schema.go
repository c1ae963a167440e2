package store

// schemaVersion is stored in PRAGMA user_version. Bump it whenever the
// statements below change so existing databases are upgraded.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS installed (
    package_name TEXT PRIMARY KEY,
    version TEXT NOT NULL DEFAULT '',
    version_code INTEGER NOT NULL DEFAULT 0,
    signature TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS repositories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    address TEXT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT 1,
    last_modified TEXT NOT NULL DEFAULT '',
    entity_tag TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS jobs (
    job_id INTEGER PRIMARY KEY,
    network INTEGER NOT NULL,
    requires_charging BOOLEAN NOT NULL,
    requires_battery_not_low BOOLEAN NOT NULL,
    requires_storage_not_low BOOLEAN NOT NULL,
    period_ms INTEGER NOT NULL,
    flex_ms INTEGER NOT NULL,
    scheduled_at TIMESTAMP NOT NULL,
    last_run_at TIMESTAMP NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_repositories_enabled ON repositories(enabled);
`
