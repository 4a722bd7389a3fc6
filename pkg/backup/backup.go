package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/slipway-io/slipway/pkg/log"
	"github.com/slipway-io/slipway/pkg/types"
)

// ErrIncomplete marks a backup without a finalized metadata record or with
// missing component artifacts. Restore refuses such backups outright.
var ErrIncomplete = errors.New("backup incomplete")

const (
	// MetadataFile is the finalization record's name inside a backup dir.
	// It is written only after every component artifact is in place, so
	// its absence marks the backup incomplete.
	MetadataFile = "metadata.json"

	// staleIncompleteAge is how old an unfinalized backup directory must
	// be before pruning removes it
	staleIncompleteAge = 24 * time.Hour
)

// Manager creates, validates, restores, and prunes backups of the
// service's persistent state
type Manager struct {
	dir         string
	components  []types.BackupComponent
	environment string
	gitDir      string
	logger      zerolog.Logger

	mu     sync.Mutex
	pinned map[string]bool
}

// NewManager creates a backup manager rooted at dir
func NewManager(dir string, components []types.BackupComponent) *Manager {
	return &Manager{
		dir:        dir,
		components: components,
		logger:     log.WithComponent("backup"),
		pinned:     make(map[string]bool),
	}
}

// WithEnvironment tags new backups with an environment name
func (m *Manager) WithEnvironment(env string) *Manager {
	m.environment = env
	return m
}

// WithGitDir records git commit and branch from the given checkout
func (m *Manager) WithGitDir(dir string) *Manager {
	m.gitDir = dir
	return m
}

// Pin protects a backup from pruning for the duration of a run
func (m *Manager) Pin(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned[id] = true
}

// Unpin releases a pinned backup
func (m *Manager) Unpin(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pinned, id)
}

func (m *Manager) isPinned(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinned[id]
}

// Create captures a point-in-time backup of every configured component,
// or only the named ones when a scope is given. Components whose live path
// does not exist yet are skipped, so the first bootstrap deploy can still
// take a (possibly empty) backup. The metadata record is written last: a
// crash mid-copy leaves a directory that List and Validate treat as
// incomplete.
func (m *Manager) Create(ctx context.Context, only ...string) (*types.Backup, error) {
	for _, name := range only {
		if _, ok := m.component(name); !ok {
			return nil, fmt.Errorf("unknown component %s", name)
		}
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup root: %w", err)
	}

	id := m.newID(time.Now())
	backupDir := filepath.Join(m.dir, id)

	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	captured, err := m.capture(ctx, backupDir, only)
	if err != nil {
		// Remove the partial directory so it cannot be mistaken for
		// a restorable backup
		_ = os.RemoveAll(backupDir)
		return nil, err
	}

	meta := types.BackupMeta{
		ID:          id,
		CreatedAt:   time.Now(),
		Environment: m.environment,
		Components:  captured,
	}
	meta.Hostname, _ = os.Hostname()
	meta.GitCommit, meta.GitBranch = m.gitInfo(ctx)

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.RemoveAll(backupDir)
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(filepath.Join(backupDir, MetadataFile), data, 0644); err != nil {
		_ = os.RemoveAll(backupDir)
		return nil, fmt.Errorf("failed to finalize backup: %w", err)
	}

	m.logger.Info().
		Str("backup_id", id).
		Int("components", len(captured)).
		Msg("backup finalized")

	return &types.Backup{
		ID:        id,
		Dir:       backupDir,
		CreatedAt: meta.CreatedAt,
		Complete:  true,
		Meta:      meta,
	}, nil
}

// capture copies every existing component into backupDir and returns the
// names of those captured. A non-empty scope restricts capture to the
// named components.
func (m *Manager) capture(ctx context.Context, backupDir string, only []string) ([]string, error) {
	captured := make([]string, 0, len(m.components))

	for _, comp := range m.components {
		if len(only) > 0 && !lo.Contains(only, comp.Name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backup cancelled: %w", err)
		}

		info, err := os.Stat(comp.Path)
		if os.IsNotExist(err) {
			m.logger.Warn().
				Str("component", comp.Name).
				Str("path", comp.Path).
				Msg("component missing, skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat component %s: %w", comp.Name, err)
		}

		dest := filepath.Join(backupDir, comp.Name)
		if info.IsDir() {
			err = copyDir(comp.Path, dest)
		} else {
			err = copyFile(comp.Path, dest, info.Mode())
		}
		if err != nil {
			return nil, fmt.Errorf("failed to capture component %s: %w", comp.Name, err)
		}

		captured = append(captured, comp.Name)
	}

	return captured, nil
}

// newID builds a timestamped backup ID, suffixed when a directory for the
// same second already exists
func (m *Manager) newID(now time.Time) string {
	base := "backup-" + now.Format("20060102-150405")
	id := base
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(m.dir, id)); os.IsNotExist(err) {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// gitInfo reads the current commit and branch, best effort
func (m *Manager) gitInfo(ctx context.Context) (commit, branch string) {
	if m.gitDir == "" {
		return "", ""
	}

	out, err := exec.CommandContext(ctx, "git", "-C", m.gitDir, "rev-parse", "--short", "HEAD").Output()
	if err == nil {
		commit = strings.TrimSpace(string(out))
	}

	out, err = exec.CommandContext(ctx, "git", "-C", m.gitDir, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err == nil {
		branch = strings.TrimSpace(string(out))
	}

	return commit, branch
}

// List returns all backups in the root, newest first. Directories without
// a parseable metadata record are reported with Complete false.
func (m *Manager) List() ([]types.Backup, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup root: %w", err)
	}

	backups := make([]types.Backup, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		b := types.Backup{
			ID:  entry.Name(),
			Dir: filepath.Join(m.dir, entry.Name()),
		}

		meta, err := m.readMeta(b.Dir)
		if err == nil {
			b.Complete = true
			b.Meta = *meta
			b.CreatedAt = meta.CreatedAt
		} else if info, statErr := entry.Info(); statErr == nil {
			b.CreatedAt = info.ModTime()
		}

		backups = append(backups, b)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Get returns one backup by ID
func (m *Manager) Get(id string) (*types.Backup, error) {
	backupDir := filepath.Join(m.dir, id)
	if _, err := os.Stat(backupDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("backup not found: %s", id)
	}

	b := types.Backup{ID: id, Dir: backupDir}
	meta, err := m.readMeta(backupDir)
	if err == nil {
		b.Complete = true
		b.Meta = *meta
		b.CreatedAt = meta.CreatedAt
	}

	return &b, nil
}

func (m *Manager) readMeta(backupDir string) (*types.BackupMeta, error) {
	data, err := os.ReadFile(filepath.Join(backupDir, MetadataFile))
	if err != nil {
		return nil, err
	}

	var meta types.BackupMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &meta, nil
}

// Validate confirms a backup is restorable: its metadata record parses and
// every component it lists is present. It never inspects component
// contents beyond existence.
func (m *Manager) Validate(id string) error {
	backupDir := filepath.Join(m.dir, id)

	meta, err := m.readMeta(backupDir)
	if err != nil {
		return fmt.Errorf("backup %s: %w: %v", id, ErrIncomplete, err)
	}

	for _, name := range meta.Components {
		if _, err := os.Stat(filepath.Join(backupDir, name)); err != nil {
			return fmt.Errorf("backup %s: %w: missing component %s", id, ErrIncomplete, name)
		}
	}

	return nil
}

// Restore copies a backup's components back over the live paths, all of
// them or only the named ones. The backup is validated first and the
// restore refuses to proceed on any doubt. Current live state is
// snapshotted into a pre-restore backup before anything is overwritten, so
// even a restore can be undone.
func (m *Manager) Restore(ctx context.Context, id string, only ...string) error {
	if err := m.Validate(id); err != nil {
		return err
	}

	backupDir := filepath.Join(m.dir, id)
	meta, err := m.readMeta(backupDir)
	if err != nil {
		return fmt.Errorf("backup %s: %w: %v", id, ErrIncomplete, err)
	}

	names := meta.Components
	if len(only) > 0 {
		for _, name := range only {
			if !lo.Contains(meta.Components, name) {
				return fmt.Errorf("backup %s does not contain component %s", id, name)
			}
		}
		names = only
	}

	safetyID, err := m.safetyCopy(ctx)
	if err != nil {
		return fmt.Errorf("refusing restore, pre-restore copy failed: %w", err)
	}
	if safetyID != "" {
		m.logger.Info().
			Str("backup_id", id).
			Str("safety_copy", safetyID).
			Msg("pre-restore safety copy created")
	}

	for _, name := range names {
		comp, ok := m.component(name)
		if !ok {
			return fmt.Errorf("backup %s lists unknown component %s", id, name)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("restore cancelled: %w", err)
		}

		src := filepath.Join(backupDir, name)
		if err := restorePath(src, comp.Path); err != nil {
			return fmt.Errorf("failed to restore component %s: %w", name, err)
		}
	}

	m.logger.Info().
		Str("backup_id", id).
		Int("components", len(names)).
		Msg("restore complete")

	return nil
}

// safetyCopy snapshots current live state before a restore. When no
// component exists live there is nothing to preserve and no copy is made.
func (m *Manager) safetyCopy(ctx context.Context) (string, error) {
	anyLive := false
	for _, comp := range m.components {
		if _, err := os.Stat(comp.Path); err == nil {
			anyLive = true
			break
		}
	}
	if !anyLive {
		return "", nil
	}

	id := "pre-restore-" + time.Now().Format("20060102-150405")
	dir := filepath.Join(m.dir, id)
	for n := 2; ; n++ {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			break
		}
		dir = filepath.Join(m.dir, fmt.Sprintf("%s-%d", id, n))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create safety copy dir: %w", err)
	}

	captured, err := m.capture(ctx, dir, nil)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}

	meta := types.BackupMeta{
		ID:          filepath.Base(dir),
		CreatedAt:   time.Now(),
		Environment: m.environment,
		Components:  captured,
	}
	meta.Hostname, _ = os.Hostname()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), data, 0644); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}

	return meta.ID, nil
}

func (m *Manager) component(name string) (types.BackupComponent, bool) {
	for _, comp := range m.components {
		if comp.Name == name {
			return comp, true
		}
	}
	return types.BackupComponent{}, false
}

// Prune removes old backups. The newest complete backup always survives,
// as does any pinned backup. Complete backups are removed beyond
// retainCount or past retainDays; unfinalized directories are removed once
// stale enough to be crash leftovers rather than a copy in progress.
func (m *Manager) Prune(retainCount, retainDays int) ([]string, error) {
	backups, err := m.List()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -retainDays)
	pruned := []string{}

	completeSeen := 0
	for _, b := range backups {
		if m.isPinned(b.ID) {
			if b.Complete {
				completeSeen++
			}
			continue
		}

		if !b.Complete {
			if time.Since(b.CreatedAt) > staleIncompleteAge {
				if err := os.RemoveAll(b.Dir); err != nil {
					return pruned, fmt.Errorf("failed to prune %s: %w", b.ID, err)
				}
				pruned = append(pruned, b.ID)
			}
			continue
		}

		completeSeen++
		if completeSeen == 1 {
			// Newest complete backup always survives
			continue
		}

		if completeSeen > retainCount || b.CreatedAt.Before(cutoff) {
			if err := os.RemoveAll(b.Dir); err != nil {
				return pruned, fmt.Errorf("failed to prune %s: %w", b.ID, err)
			}
			pruned = append(pruned, b.ID)
			m.logger.Info().Str("backup_id", b.ID).Msg("backup pruned")
		}
	}

	return pruned, nil
}
