package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slipway-io/slipway/pkg/types"
)

// reportsDir holds one JSON report per finished run, next to the run
// store. Reports are plain files so operators can read them without
// slipway, and they survive even if the run store is lost.
const reportsDir = "reports"

// writeReport persists the finished run as a pretty-printed JSON report
// and returns the file path
func writeReport(dataDir string, run *types.DeploymentRun) (string, error) {
	dir := filepath.Join(dataDir, reportsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports dir: %w", err)
	}

	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run report: %w", err)
	}

	path := filepath.Join(dir, run.ID+".json")
	if err := os.WriteFile(path, out, 0644); err != nil {
		return "", fmt.Errorf("failed to write run report: %w", err)
	}
	return path, nil
}
