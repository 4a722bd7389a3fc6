package orchestrator

import (
	"errors"
	"fmt"

	"github.com/slipway-io/slipway/pkg/types"
)

// Kind classifies a deployment failure. The kind decides the recovery
// path: everything below KindPostSwitch rolls back automatically, and
// KindRollback is terminal and never retried.
type Kind string

const (
	// KindPrecondition covers failures before anything was mutated:
	// detection conflicts, a held deployment lock, a failed backup
	KindPrecondition Kind = "precondition_failure"

	// KindCandidateStart means the candidate process never became healthy
	KindCandidateStart Kind = "candidate_start_failure"

	// KindValidation means the readiness gate said not_ready
	KindValidation Kind = "validation_failure"

	// KindSwitchAbort means the candidate failed mid-cutover; the
	// coordinator has already pointed traffic back
	KindSwitchAbort Kind = "switch_abort"

	// KindPostSwitch means validation failed after traffic fully moved
	KindPostSwitch Kind = "post_switch_failure"

	// KindRollback means the rollback itself did not restore service
	KindRollback Kind = "rollback_failure"
)

// StageError ties a failure to the stage it happened at. The wrapped
// error stays reachable through errors.Is and errors.As, so a timeout
// deep inside a probe loop still surfaces as context.DeadlineExceeded
// at the CLI.
type StageError struct {
	Kind  Kind
	Stage types.DeployStage
	Err   error

	// Detail carries human-oriented context, like the names of the
	// checks that failed a validation gate
	Detail string
}

// Error implements the error interface
func (e *StageError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s at %s: %v (%s)", e.Kind, e.Stage, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Stage, e.Err)
}

// Unwrap exposes the underlying cause
func (e *StageError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err carries the given failure kind
func IsKind(err error, kind Kind) bool {
	var stageErr *StageError
	return errors.As(err, &stageErr) && stageErr.Kind == kind
}

func newStageError(kind Kind, stage types.DeployStage, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}
