package runtime

import (
	"fmt"

	"github.com/pithecene-io/groupcat/types"
)

// Process exit codes per outcome.
const (
	ExitCodeSuccess       = 0
	ExitCodeConfigError   = 1
	ExitCodeSourceFailure = 2
	ExitCodeSinkFailure   = 3
)

// ExitCode maps an outcome status to the process exit code.
func ExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return ExitCodeSuccess
	case types.OutcomeSourceFailure:
		return ExitCodeSourceFailure
	case types.OutcomeSinkFailure:
		return ExitCodeSinkFailure
	default:
		return ExitCodeConfigError
	}
}

// DetermineOutcome classifies a run error into an outcome.
// A nil error is success. Cancellation is reported as a source failure
// since no output is written for a partially read source.
func DetermineOutcome(err error) *types.RunOutcome {
	if err == nil {
		return &types.RunOutcome{
			Status:  types.OutcomeSuccess,
			Message: "run completed successfully",
		}
	}

	kind, ok := KindOf(err)
	if !ok {
		kind = RunErrorConfig
	}

	switch kind {
	case RunErrorSource:
		return &types.RunOutcome{
			Status:  types.OutcomeSourceFailure,
			Message: fmt.Sprintf("source failure: %v", err),
		}
	case RunErrorCanceled:
		return &types.RunOutcome{
			Status:  types.OutcomeSourceFailure,
			Message: err.Error(),
		}
	case RunErrorSink:
		return &types.RunOutcome{
			Status:  types.OutcomeSinkFailure,
			Message: fmt.Sprintf("sink failure: %v", err),
		}
	default:
		return &types.RunOutcome{
			Status:  types.OutcomeConfigError,
			Message: fmt.Sprintf("config error: %v", err),
		}
	}
}
