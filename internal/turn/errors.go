package turn

import (
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/mascot/internal/assistant"
)

// ErrRequiresAction is returned when a run stops to request tool outputs,
// which this service does not provide.
var ErrRequiresAction = errors.New("Run requires action (tools not handled).")

// RunFailedError is a run that reached a terminal state other than
// completed.
type RunFailedError struct {
	RunID  string
	Status assistant.RunStatus
	Detail string
}

func (e *RunFailedError) Error() string {
	return e.Detail
}

// TimedOut reports whether the run ended because the remote side gave up on
// it rather than because generation failed.
func (e *RunFailedError) TimedOut() bool {
	return e.Status == assistant.RunExpired || e.Status == assistant.RunCancelled
}

func runFailure(run assistant.Run) error {
	switch run.Status {
	case assistant.RunFailed:
		detail := "Assistant run failed"
		if run.LastError != nil && run.LastError.Message != "" {
			detail = run.LastError.Message
		}
		return &RunFailedError{RunID: run.ID, Status: run.Status, Detail: detail}
	case assistant.RunExpired, assistant.RunCancelled, assistant.RunIncomplete:
		return &RunFailedError{RunID: run.ID, Status: run.Status, Detail: fmt.Sprintf("Run %s", run.Status)}
	case assistant.RunRequiresAction:
		return ErrRequiresAction
	default:
		return &RunFailedError{RunID: run.ID, Status: run.Status, Detail: fmt.Sprintf("Run ended with unexpected status %q", run.Status)}
	}
}
