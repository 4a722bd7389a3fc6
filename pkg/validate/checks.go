package validate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sys/unix"

	"github.com/slipway-io/slipway/pkg/types"
)

// DefaultEngine returns an engine loaded with the standard battery
func DefaultEngine(strict bool) *Engine {
	e := NewEngine(strict)
	e.MustRegister(DiskSpaceCheck())
	e.MustRegister(DataDirCheck())
	e.MustRegister(ComponentPathsCheck())
	e.MustRegister(PermissionsCheck())
	e.MustRegister(CommandsCheck())
	e.MustRegister(DatastoreCheck())
	e.MustRegister(CandidatePortCheck())
	e.MustRegister(ActiveSlotCheck())
	e.MustRegister(ServiceResponseCheck())
	return e
}

// DiskSpaceCheck verifies free space in the data directory against the
// configured floor. Below the floor fails; within twice the floor warns.
func DiskSpaceCheck() CheckSpec {
	return CheckSpec{
		Name:     "disk-space",
		Category: types.CategorySystem,
		Weight:   2,
		Critical: true,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			dir := env.DataDir
			if dir == "" {
				dir = "."
			}

			var st unix.Statfs_t
			if err := unix.Statfs(dir, &st); err != nil {
				return types.CheckWarn, fmt.Sprintf("statfs %s failed: %v", dir, err)
			}

			freeMB := int64(st.Bavail) * st.Bsize / (1 << 20)
			detail := fmt.Sprintf("%d MB free (floor %d MB)", freeMB, env.MinFreeDiskMB)

			switch {
			case freeMB < env.MinFreeDiskMB:
				return types.CheckFail, detail
			case freeMB < 2*env.MinFreeDiskMB:
				return types.CheckWarn, detail
			default:
				return types.CheckPass, detail
			}
		},
	}
}

// DataDirCheck verifies the data directory exists and is writable
func DataDirCheck() CheckSpec {
	return CheckSpec{
		Name:     "data-dir",
		Category: types.CategoryStructure,
		Critical: true,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			if env.DataDir == "" {
				return types.CheckFail, "no data directory configured"
			}

			if err := os.MkdirAll(env.DataDir, 0755); err != nil {
				return types.CheckFail, fmt.Sprintf("cannot create %s: %v", env.DataDir, err)
			}

			probe := filepath.Join(env.DataDir, ".write-probe")
			if err := os.WriteFile(probe, []byte("probe"), 0644); err != nil {
				return types.CheckFail, fmt.Sprintf("%s is not writable: %v", env.DataDir, err)
			}
			_ = os.Remove(probe)

			return types.CheckPass, fmt.Sprintf("%s writable", env.DataDir)
		},
	}
}

// ComponentPathsCheck verifies the backup components exist on disk.
// Missing components warn rather than fail: on a first bootstrap the
// service has not created its state yet.
func ComponentPathsCheck() CheckSpec {
	return CheckSpec{
		Name:     "component-paths",
		Category: types.CategoryStructure,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			if len(env.Components) == 0 {
				return types.CheckPass, "no components configured"
			}

			missing := []string{}
			for _, comp := range env.Components {
				if _, err := os.Stat(comp.Path); err != nil {
					missing = append(missing, comp.Name)
				}
			}

			if len(missing) > 0 {
				return types.CheckWarn, fmt.Sprintf("missing: %s", strings.Join(missing, ", "))
			}
			return types.CheckPass, fmt.Sprintf("%d components present", len(env.Components))
		},
	}
}

// PermissionsCheck flags loose modes on component paths: world-writable
// state fails, group-writable warns
func PermissionsCheck() CheckSpec {
	return CheckSpec{
		Name:     "permissions",
		Category: types.CategorySecurity,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			worldWritable := []string{}
			groupWritable := []string{}

			for _, comp := range env.Components {
				info, err := os.Stat(comp.Path)
				if err != nil {
					continue
				}
				mode := info.Mode().Perm()
				if mode&0002 != 0 {
					worldWritable = append(worldWritable, comp.Name)
				} else if mode&0020 != 0 {
					groupWritable = append(groupWritable, comp.Name)
				}
			}

			if len(worldWritable) > 0 {
				return types.CheckFail, fmt.Sprintf("world-writable: %s", strings.Join(worldWritable, ", "))
			}
			if len(groupWritable) > 0 {
				return types.CheckWarn, fmt.Sprintf("group-writable: %s", strings.Join(groupWritable, ", "))
			}
			return types.CheckPass, "component modes acceptable"
		},
	}
}

// CommandsCheck verifies required executables resolve on PATH
func CommandsCheck() CheckSpec {
	return CheckSpec{
		Name:     "commands",
		Category: types.CategoryDeps,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			if len(env.RequiredCommands) == 0 {
				return types.CheckPass, "no required commands"
			}

			missing := lo.Filter(env.RequiredCommands, func(cmd string, _ int) bool {
				_, err := exec.LookPath(cmd)
				return err != nil
			})

			if len(missing) > 0 {
				return types.CheckFail, fmt.Sprintf("not on PATH: %s", strings.Join(missing, ", "))
			}
			return types.CheckPass, fmt.Sprintf("%d commands resolved", len(env.RequiredCommands))
		},
	}
}

// DatastoreCheck opens the service's bolt datastore read-only and walks
// its buckets. A datastore locked by the running service is expected and
// warns; a file that cannot be parsed fails.
func DatastoreCheck() CheckSpec {
	return CheckSpec{
		Name:     "datastore",
		Category: types.CategoryDatabase,
		Weight:   2,
		Critical: true,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			if env.DatastorePath == "" {
				return types.CheckPass, "no datastore configured"
			}
			if _, err := os.Stat(env.DatastorePath); os.IsNotExist(err) {
				return types.CheckWarn, "datastore not created yet"
			}

			db, err := bolt.Open(env.DatastorePath, 0600, &bolt.Options{
				ReadOnly: true,
				Timeout:  1 * time.Second,
			})
			if err != nil {
				if errors.Is(err, bolt.ErrTimeout) {
					return types.CheckWarn, "datastore locked by running service"
				}
				return types.CheckFail, fmt.Sprintf("cannot open datastore: %v", err)
			}
			defer db.Close()

			buckets := 0
			err = db.View(func(tx *bolt.Tx) error {
				return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
					buckets++
					return nil
				})
			})
			if err != nil {
				return types.CheckFail, fmt.Sprintf("datastore walk failed: %v", err)
			}

			return types.CheckPass, fmt.Sprintf("datastore readable, %d buckets", buckets)
		},
	}
}

// CandidatePortCheck is phase-polar: before a deployment the candidate
// port must be free, after the switch it must be bound
func CandidatePortCheck() CheckSpec {
	return CheckSpec{
		Name:     "candidate-port",
		Category: types.CategoryNetwork,
		Weight:   2,
		Critical: true,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			addr := env.CandidateSlot.Addr()

			if env.Phase == types.PhasePreDeploy {
				ln, err := net.Listen("tcp", addr)
				if err != nil {
					return types.CheckFail, fmt.Sprintf("port %d already in use", env.CandidateSlot.Port)
				}
				ln.Close()
				return types.CheckPass, fmt.Sprintf("port %d free", env.CandidateSlot.Port)
			}

			conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
			if err != nil {
				return types.CheckFail, fmt.Sprintf("port %d not bound: %v", env.CandidateSlot.Port, err)
			}
			conn.Close()
			return types.CheckPass, fmt.Sprintf("port %d bound", env.CandidateSlot.Port)
		},
	}
}

// ActiveSlotCheck confirms the slot serving live traffic still answers.
// During first bootstrap there is no active slot and the check passes.
func ActiveSlotCheck() CheckSpec {
	return CheckSpec{
		Name:     "active-slot",
		Category: types.CategoryNetwork,
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			if env.ActiveSlot == nil {
				return types.CheckPass, "no active slot (bootstrap)"
			}

			addr := env.ActiveSlot.Addr()
			conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
			if err != nil {
				return types.CheckFail, fmt.Sprintf("active slot %s not answering on %s", env.ActiveSlot.ID, addr)
			}
			conn.Close()
			return types.CheckPass, fmt.Sprintf("active slot %s answering", env.ActiveSlot.ID)
		},
	}
}

// ServiceResponseCheck hits the candidate's health endpoint after the
// switch. Runs only in the post phase; the pre phase has no candidate
// process to ask.
func ServiceResponseCheck() CheckSpec {
	return CheckSpec{
		Name:     "service-response",
		Category: types.CategoryService,
		Weight:   3,
		Critical: true,
		Phases:   []types.ValidationPhase{types.PhasePostDeploy},
		Run: func(ctx context.Context, env *Env) (types.CheckOutcome, string) {
			if env.HealthURL == "" {
				return types.CheckWarn, "no health URL configured"
			}

			req, err := http.NewRequestWithContext(ctx, "GET", env.HealthURL, nil)
			if err != nil {
				return types.CheckFail, fmt.Sprintf("bad health URL: %v", err)
			}

			client := &http.Client{Timeout: 3 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return types.CheckFail, fmt.Sprintf("health request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return types.CheckFail, fmt.Sprintf("health endpoint returned %d", resp.StatusCode)
			}
			return types.CheckPass, fmt.Sprintf("health endpoint returned %d", resp.StatusCode)
		},
	}
}
