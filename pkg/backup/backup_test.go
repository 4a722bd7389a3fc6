package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway-io/slipway/pkg/types"
)

// liveState builds a live tree with one datastore file and one config dir
func liveState(t *testing.T) (string, []types.BackupComponent) {
	t.Helper()
	live := t.TempDir()

	dbPath := filepath.Join(live, "data.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("db-v1-contents"), 0644))

	confDir := filepath.Join(live, "conf")
	require.NoError(t, os.MkdirAll(filepath.Join(confDir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "app.yaml"), []byte("key: one"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "nested", "extra.yaml"), []byte("k: v"), 0600))

	return live, []types.BackupComponent{
		{Name: "database", Path: dbPath},
		{Name: "config", Path: confDir},
	}
}

func TestCreate_CapturesComponents(t *testing.T) {
	_, components := liveState(t)
	mgr := NewManager(t.TempDir(), components).WithEnvironment("test")

	b, err := mgr.Create(context.Background())
	require.NoError(t, err)

	assert.True(t, b.Complete)
	assert.Equal(t, []string{"database", "config"}, b.Meta.Components)
	assert.Equal(t, "test", b.Meta.Environment)

	// Artifacts land under component names
	data, err := os.ReadFile(filepath.Join(b.Dir, "database"))
	require.NoError(t, err)
	assert.Equal(t, "db-v1-contents", string(data))

	data, err = os.ReadFile(filepath.Join(b.Dir, "config", "nested", "extra.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "k: v", string(data))

	// Finalization record exists and parses
	require.NoError(t, mgr.Validate(b.ID))
}

func TestCreate_SkipsMissingComponents(t *testing.T) {
	live, _ := liveState(t)
	components := []types.BackupComponent{
		{Name: "database", Path: filepath.Join(live, "data.db")},
		{Name: "ghost", Path: filepath.Join(live, "does-not-exist")},
	}
	mgr := NewManager(t.TempDir(), components)

	b, err := mgr.Create(context.Background())
	require.NoError(t, err)

	// Only the existing component is recorded
	assert.Equal(t, []string{"database"}, b.Meta.Components)
	require.NoError(t, mgr.Validate(b.ID))
}

func TestValidate_IncompleteBackup(t *testing.T) {
	root := t.TempDir()
	mgr := NewManager(root, nil)

	// A directory without a metadata record is not restorable
	require.NoError(t, os.MkdirAll(filepath.Join(root, "backup-20260101-000000"), 0755))
	assert.Error(t, mgr.Validate("backup-20260101-000000"))

	// Corrupt metadata is treated the same as missing metadata
	dir := filepath.Join(root, "backup-20260102-000000")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte("{not json"), 0644))
	assert.Error(t, mgr.Validate("backup-20260102-000000"))
}

func TestValidate_MissingComponentArtifact(t *testing.T) {
	_, components := liveState(t)
	mgr := NewManager(t.TempDir(), components)

	b, err := mgr.Create(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(b.Dir, "config")))
	assert.Error(t, mgr.Validate(b.ID))
}

func TestRestore_RoundTrip(t *testing.T) {
	live, components := liveState(t)
	mgr := NewManager(t.TempDir(), components)

	b, err := mgr.Create(context.Background())
	require.NoError(t, err)

	// Corrupt the live state after the backup
	dbPath := filepath.Join(live, "data.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("corrupted-beyond-repair"), 0644))
	require.NoError(t, os.RemoveAll(filepath.Join(live, "conf", "nested")))

	require.NoError(t, mgr.Restore(context.Background(), b.ID))

	// Bytes match the original capture exactly
	data, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, "db-v1-contents", string(data))

	data, err = os.ReadFile(filepath.Join(live, "conf", "nested", "extra.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "k: v", string(data))
}

func TestRestore_CreatesSafetyCopy(t *testing.T) {
	live, components := liveState(t)
	mgr := NewManager(t.TempDir(), components)

	b, err := mgr.Create(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(live, "data.db"), []byte("post-backup-state"), 0644))
	require.NoError(t, mgr.Restore(context.Background(), b.ID))

	backups, err := mgr.List()
	require.NoError(t, err)

	var safety *types.Backup
	for i := range backups {
		if backups[i].ID != b.ID && backups[i].Complete {
			safety = &backups[i]
		}
	}
	require.NotNil(t, safety, "expected a pre-restore safety copy")

	// The safety copy holds the state that was live just before restore
	data, err := os.ReadFile(filepath.Join(safety.Dir, "database"))
	require.NoError(t, err)
	assert.Equal(t, "post-backup-state", string(data))
}

func TestRestore_RefusesIncomplete(t *testing.T) {
	root := t.TempDir()
	_, components := liveState(t)
	mgr := NewManager(root, components)

	dir := filepath.Join(root, "backup-20260101-000000")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "database"), []byte("orphan"), 0644))

	err := mgr.Restore(context.Background(), "backup-20260101-000000")
	require.Error(t, err, "restore must fail closed without a finalization record")
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestCreate_ScopedComponents(t *testing.T) {
	_, components := liveState(t)
	mgr := NewManager(t.TempDir(), components)

	b, err := mgr.Create(context.Background(), "database")
	require.NoError(t, err)

	assert.Equal(t, []string{"database"}, b.Meta.Components)
	assert.FileExists(t, filepath.Join(b.Dir, "database"))
	assert.NoDirExists(t, filepath.Join(b.Dir, "config"))
}

func TestCreate_UnknownComponent(t *testing.T) {
	_, components := liveState(t)
	mgr := NewManager(t.TempDir(), components)

	_, err := mgr.Create(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown component")
}

func TestRestore_ScopedComponent(t *testing.T) {
	live, components := liveState(t)
	mgr := NewManager(t.TempDir(), components)

	b, err := mgr.Create(context.Background())
	require.NoError(t, err)

	dbPath := filepath.Join(live, "data.db")
	confPath := filepath.Join(live, "conf", "app.yaml")
	require.NoError(t, os.WriteFile(dbPath, []byte("corrupted-db"), 0644))
	require.NoError(t, os.WriteFile(confPath, []byte("corrupted-conf"), 0644))

	require.NoError(t, mgr.Restore(context.Background(), b.ID, "database"))

	// The scoped component comes back, the rest is left alone
	data, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, "db-v1-contents", string(data))

	data, err = os.ReadFile(confPath)
	require.NoError(t, err)
	assert.Equal(t, "corrupted-conf", string(data))
}

func TestRestore_UnknownScope(t *testing.T) {
	_, components := liveState(t)
	mgr := NewManager(t.TempDir(), components)

	b, err := mgr.Create(context.Background())
	require.NoError(t, err)

	err = mgr.Restore(context.Background(), b.ID, "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not contain component")
}

func TestList_NewestFirst(t *testing.T) {
	root := t.TempDir()
	_, components := liveState(t)
	mgr := NewManager(root, components)

	first, err := mgr.Create(context.Background())
	require.NoError(t, err)

	// Push the second backup's timestamp forward to avoid same-second ties
	second, err := mgr.Create(context.Background())
	require.NoError(t, err)
	bumpMeta(t, mgr, second.ID, time.Now().Add(time.Hour))

	// An unfinalized directory shows up as incomplete
	require.NoError(t, os.MkdirAll(filepath.Join(root, "backup-19990101-000000"), 0755))

	backups, err := mgr.List()
	require.NoError(t, err)
	require.Len(t, backups, 3)

	assert.Equal(t, second.ID, backups[0].ID)
	assert.Equal(t, first.ID, backups[1].ID)
	assert.False(t, backups[2].Complete)
}

func TestPrune_CountAndAge(t *testing.T) {
	root := t.TempDir()
	_, components := liveState(t)
	mgr := NewManager(root, components)

	var ids []string
	base := time.Now().Add(-10 * 24 * time.Hour)
	for i := 0; i < 4; i++ {
		b, err := mgr.Create(context.Background())
		require.NoError(t, err)
		bumpMeta(t, mgr, b.ID, base.Add(time.Duration(i)*24*time.Hour))
		ids = append(ids, b.ID)
	}

	// Keep the newest 2; the rest go
	pruned, err := mgr.Prune(2, 30)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ids[0], ids[1]}, pruned)

	remaining, err := mgr.List()
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestPrune_NeverRemovesPinnedOrNewest(t *testing.T) {
	root := t.TempDir()
	_, components := liveState(t)
	mgr := NewManager(root, components)

	old, err := mgr.Create(context.Background())
	require.NoError(t, err)
	bumpMeta(t, mgr, old.ID, time.Now().AddDate(0, 0, -365))

	newest, err := mgr.Create(context.Background())
	require.NoError(t, err)
	bumpMeta(t, mgr, newest.ID, time.Now())

	mgr.Pin(old.ID)
	defer mgr.Unpin(old.ID)

	pruned, err := mgr.Prune(1, 30)
	require.NoError(t, err)
	assert.Empty(t, pruned, "pinned and newest backups must survive pruning")

	// Unpinned, the ancient backup is fair game
	mgr.Unpin(old.ID)
	pruned, err = mgr.Prune(1, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, pruned)
}

// bumpMeta rewrites a backup's recorded creation time
func bumpMeta(t *testing.T, mgr *Manager, id string, at time.Time) {
	t.Helper()
	b, err := mgr.Get(id)
	require.NoError(t, err)

	meta := b.Meta
	meta.CreatedAt = at

	out, err := json.MarshalIndent(meta, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(b.Dir, MetadataFile), out, 0644))
}
