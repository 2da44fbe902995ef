package runtime

import (
	"fmt"

	"github.com/justapithecus/ticktape/types"
)

// DetermineOutcome maps the ingestion and final flush errors to a session
// outcome. An ingestion error takes precedence; a flush failure after a
// clean decode is a policy failure.
func DetermineOutcome(ingErr, flushErr error) *types.SessionOutcome {
	switch {
	case ingErr == nil && flushErr == nil:
		return &types.SessionOutcome{
			Status:  types.OutcomeCompleted,
			Message: "capture decoded",
		}
	case ingErr == nil:
		return &types.SessionOutcome{
			Status:  types.OutcomePolicyFailure,
			Message: fmt.Sprintf("policy flush failed: %v", flushErr),
		}
	case IsPolicyError(ingErr):
		return &types.SessionOutcome{
			Status:  types.OutcomePolicyFailure,
			Message: ingErr.Error(),
		}
	case IsCanceledError(ingErr):
		return &types.SessionOutcome{
			Status:  types.OutcomeCanceled,
			Message: fmt.Sprintf("session canceled: %v", ingErr),
		}
	default:
		return &types.SessionOutcome{
			Status:  types.OutcomeCaptureError,
			Message: ingErr.Error(),
		}
	}
}
