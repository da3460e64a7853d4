package db

// schemaMigrations is the ordered list of embedded schema migrations.
// The partial unique index on record_locks is the storage-layer guarantee
// behind the "at most one active lock per scope" invariant; the acquire
// path treats a collision on it as "someone else already holds it".
var schemaMigrations = []migration{
	{
		version:     1,
		description: "record_locking_schema",
		up: `
		CREATE TABLE IF NOT EXISTS record_locks (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			organization_id TEXT,
			resource_kind TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			token TEXT NOT NULL,
			strategy TEXT NOT NULL,
			status TEXT NOT NULL,
			locked_by_user_id TEXT NOT NULL,
			locked_by_ip TEXT,
			base_action_log_id TEXT,
			locked_at INTEGER NOT NULL,
			last_heartbeat_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			release_reason TEXT,
			released_by_user_id TEXT,
			released_at INTEGER,
			updated_at INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS ux_record_locks_active_scope
			ON record_locks(tenant_id, COALESCE(organization_id, ''), resource_kind, resource_id)
			WHERE status = 'active';

		CREATE INDEX IF NOT EXISTS idx_record_locks_resource
			ON record_locks(tenant_id, resource_kind, resource_id);

		CREATE INDEX IF NOT EXISTS idx_record_locks_status_updated
			ON record_locks(tenant_id, status, updated_at);

		CREATE TABLE IF NOT EXISTS record_conflicts (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			organization_id TEXT,
			resource_kind TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			status TEXT NOT NULL,
			resolution TEXT,
			base_action_log_id TEXT,
			incoming_action_log_id TEXT,
			conflict_actor_user_id TEXT NOT NULL,
			incoming_actor_user_id TEXT,
			resolved_by_user_id TEXT,
			resolved_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_record_conflicts_resource
			ON record_conflicts(tenant_id, resource_kind, resource_id);

		CREATE INDEX IF NOT EXISTS idx_record_conflicts_status_updated
			ON record_conflicts(tenant_id, status, updated_at);

		CREATE TABLE IF NOT EXISTS action_log (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			organization_id TEXT,
			resource_kind TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			actor_user_id TEXT NOT NULL,
			snapshot_before TEXT,
			snapshot_after TEXT,
			changes TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_action_log_resource
			ON action_log(tenant_id, resource_kind, resource_id, created_at);

		CREATE TABLE IF NOT EXISTS tenant_settings (
			tenant_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (tenant_id, key)
		);
		`,
		down: `
		DROP TABLE IF EXISTS tenant_settings;
		DROP TABLE IF EXISTS action_log;
		DROP TABLE IF EXISTS record_conflicts;
		DROP TABLE IF EXISTS record_locks;
		`,
	},
}
