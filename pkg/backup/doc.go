/*
Package backup captures and restores point-in-time snapshots of the
deployed service's persistent state.

Each backup is a directory under the backup root holding one artifact per
configured component (a datastore file, a config directory) plus a
metadata.json finalization record. The record is written only after every
artifact is in place: a crash mid-copy leaves a directory without it, and
such directories are reported incomplete, refused by Restore, and cleaned
up by Prune once stale.

# Backup Layout

	backups/
	├── backup-20260825-143000/
	│   ├── database           ← copy of the datastore file
	│   ├── config/            ← copy of the config directory
	│   └── metadata.json      ← finalization record (written last)
	├── backup-20260825-150000/
	│   └── ...
	└── pre-restore-20260825-151500/
	    └── ...                ← safety copy taken before a restore

# Fail-Closed Restore

Restore validates before it mutates: the metadata must parse and every
component it lists must exist. On any doubt the restore refuses to
proceed and the live state is untouched. Before overwriting anything the
current live state is snapshotted into a pre-restore backup, so even a
restore can be undone.

# Pruning

Prune removes complete backups beyond the retention count or past the
retention age. Two classes always survive: the newest complete backup and
any backup pinned by an in-flight deployment run.

# Usage

	mgr := backup.NewManager("/var/lib/slipway/backups", components).
		WithEnvironment("production").
		WithGitDir("/opt/payments")

	b, err := mgr.Create(ctx)
	if err != nil {
		// deployment aborts before any mutation
	}
	mgr.Pin(b.ID)
	defer mgr.Unpin(b.ID)
*/
package backup
