package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL CHECK(kind IN ('board', 'group', 'column', 'pulse', 'user', 'tag', 'note', 'update')),
	remote_id  TEXT NOT NULL,
	parent_id  TEXT NOT NULL DEFAULT '',
	raw_json   TEXT NOT NULL,
	fetched_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_kind_remote ON snapshots(kind, remote_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_kind_parent ON snapshots(kind, parent_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	board_id    TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	group_count INTEGER NOT NULL DEFAULT 0,
	pulse_count INTEGER NOT NULL DEFAULT 0,
	new_pulses  INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_board ON sync_runs(board_id, started_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
