package types

import (
	"errors"
	"fmt"
)

// RunMeta carries run identity.
type RunMeta struct {
	// RunID is the run identifier. Must be non-empty.
	RunID string
	// ConfigPath is the config file the run was built from, if any.
	ConfigPath string
	// Iteration counts reruns in watch mode. Starts at 1.
	Iteration int
}

// Validate checks run identity:
//   - run_id non-empty
//   - iteration >= 1
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	if r.Iteration < 1 {
		return fmt.Errorf("iteration must be >= 1, got %d", r.Iteration)
	}
	return nil
}

// OutcomeStatus is the final status of a run.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates every output was written.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeConfigError indicates the run could not be assembled.
	OutcomeConfigError OutcomeStatus = "config_error"
	// OutcomeSourceFailure indicates records could not be read.
	OutcomeSourceFailure OutcomeStatus = "source_failure"
	// OutcomeSinkFailure indicates an output could not be written.
	OutcomeSinkFailure OutcomeStatus = "sink_failure"
)

// RunOutcome is the final outcome of a run.
type RunOutcome struct {
	Status  OutcomeStatus `json:"status" yaml:"status"`
	Message string        `json:"message" yaml:"message"`
}
