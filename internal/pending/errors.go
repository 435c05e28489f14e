package pending

import (
	"errors"
	"fmt"

	"github.com/modpilot/pkg/models"
)

var (
	// ErrBranchRequired is returned when a submission has no branch name
	ErrBranchRequired = errors.New("branch name is required")
	// ErrNoPendingChanges is returned when a project has nothing to submit
	ErrNoPendingChanges = errors.New("no pending changes")
	// ErrSubmissionInProgress is returned when the project is already being submitted
	ErrSubmissionInProgress = errors.New("submission already in progress")
)

// ValidationError is returned before any network call is made
type ValidationError struct {
	ProjectID int
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("project %d: %v", e.ProjectID, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TransportError means the backend could not be reached
type TransportError struct {
	ProjectID int
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("project %d: backend unreachable: %v", e.ProjectID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BackendError means the backend answered but did not apply the update
type BackendError struct {
	ProjectID     int
	StatusCode    int
	Message       string
	Results       []models.UpdateResult
	// ResultUnknown is set when the backend accepted the request but its
	// answer could not be read; the update may have been applied.
	ResultUnknown bool
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("project %d: backend returned %d: %s", e.ProjectID, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("project %d: update failed: %s", e.ProjectID, e.Message)
}
