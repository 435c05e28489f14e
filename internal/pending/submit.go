package pending

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/modpilot/internal/logging"
	"github.com/modpilot/pkg/models"
)

// Updater sends a project update to the dependency-management backend
type Updater interface {
	UpdateProjectLibraries(ctx context.Context, req *models.ProjectUpdateRequest) (*models.UpdateResponse, error)
}

// OutcomeRecorder keeps the outcomes of successful submissions
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome *Outcome) error
}

// Outcome is the result of a successful submission
type Outcome struct {
	SubmissionID string                `json:"submission_id"`
	ProjectID    int                   `json:"project_id"`
	ProjectName  string                `json:"project_name"`
	BranchName   string                `json:"branch_name"`
	Results      []models.UpdateResult `json:"results"`
	Cleared      ProjectChanges        `json:"cleared"`
	Partial      bool                  `json:"partial"`
	SubmittedAt  time.Time             `json:"submitted_at"`
}

// MergeRequest returns the first merge request reported by the backend
func (o *Outcome) MergeRequest() *models.MergeRequest {
	for _, r := range o.Results {
		if r.MergeRequest != nil {
			return r.MergeRequest
		}
	}
	return nil
}

// Coordinator turns a project's pending changes into one backend update
type Coordinator struct {
	store    *Store
	updater  Updater
	recorder OutcomeRecorder
	names    NameResolver
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[int]struct{}
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithOutcomeRecorder stores every successful outcome
func WithOutcomeRecorder(r OutcomeRecorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// NewCoordinator creates a coordinator for the given store
func NewCoordinator(store *Store, updater Updater, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:    store,
		updater:  updater,
		names:    store.names,
		now:      time.Now,
		inFlight: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildRequest converts pending changes into the backend update payload
func BuildRequest(changes ProjectChanges, branchName string) *models.ProjectUpdateRequest {
	req := &models.ProjectUpdateRequest{
		ProjectID:  changes.ProjectID,
		Updates:    make([]models.LibraryUpdate, 0, len(changes.Libraries)),
		BranchName: branchName,
	}
	for _, lib := range changes.Libraries {
		req.Updates = append(req.Updates, models.LibraryUpdate{
			LibraryName:   lib.Name,
			TargetVersion: lib.To,
			UpdateType:    lib.UpdateType,
		})
	}
	if changes.GoVersion != nil {
		req.GoVersion = changes.GoVersion.To
	}
	return req
}

// Submit sends the project's pending changes as a single update. On success
// the project's record is removed; on failure the store is left untouched.
func (c *Coordinator) Submit(ctx context.Context, projectID int, branchName string) (*Outcome, error) {
	branchName = strings.TrimSpace(branchName)
	if branchName == "" {
		return nil, &ValidationError{ProjectID: projectID, Err: ErrBranchRequired}
	}

	// the guard is taken before the snapshot so a finished submission's
	// record can never be sent again
	if !c.begin(projectID) {
		return nil, &ValidationError{ProjectID: projectID, Err: ErrSubmissionInProgress}
	}
	defer c.end(projectID)

	changes, ok := c.store.Get(projectID)
	if !ok || changes.Empty() {
		return nil, &ValidationError{ProjectID: projectID, Err: ErrNoPendingChanges}
	}

	oplog := logging.StartOperation("submit").
		With("project_id", projectID).
		With("branch", branchName)

	req := BuildRequest(changes, branchName)
	oplog.Log("Submitting %d library updates (go version change: %v)", len(req.Updates), req.GoVersion != "")

	resp, err := c.updater.UpdateProjectLibraries(ctx, req)
	if err != nil {
		err = classify(projectID, err)
		oplog.Finish(err)
		return nil, err
	}

	var results []models.UpdateResult
	if resp != nil {
		results = resp.Results
	}
	succeeded, failed := countResults(results)
	if succeeded == 0 {
		err := &BackendError{ProjectID: projectID, Message: firstFailure(results), Results: results}
		oplog.Finish(err)
		return nil, err
	}

	c.store.Clear(projectID)

	outcome := &Outcome{
		SubmissionID: oplog.ID(),
		ProjectID:    projectID,
		ProjectName:  DisplayName(projectID, c.names),
		BranchName:   branchName,
		Results:      results,
		Cleared:      changes,
		Partial:      failed > 0,
		SubmittedAt:  c.now(),
	}
	if outcome.Partial {
		oplog.Log("Backend applied %d of %d items", succeeded, succeeded+failed)
	}

	if c.recorder != nil {
		if err := c.recorder.RecordOutcome(ctx, outcome); err != nil {
			oplog.LogError("failed to record submission outcome", err)
		}
	}

	oplog.Finish(nil)
	return outcome, nil
}

// InFlight reports whether a submission for the project is running
func (c *Coordinator) InFlight(projectID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[projectID]
	return ok
}

func (c *Coordinator) begin(projectID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[projectID]; busy {
		return false
	}
	c.inFlight[projectID] = struct{}{}
	return true
}

func (c *Coordinator) end(projectID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, projectID)
}

func classify(projectID int, err error) error {
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return &BackendError{ProjectID: projectID, StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	var decodeErr *models.ResponseDecodeError
	if errors.As(err, &decodeErr) {
		return &BackendError{
			ProjectID:     projectID,
			StatusCode:    decodeErr.StatusCode,
			Message:       "result unknown: the backend accepted the update but its response could not be read; check the project before resubmitting",
			ResultUnknown: true,
		}
	}
	return &TransportError{ProjectID: projectID, Err: err}
}

func countResults(results []models.UpdateResult) (succeeded, failed int) {
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

func firstFailure(results []models.UpdateResult) string {
	for _, r := range results {
		if r.Success {
			continue
		}
		if r.Error != "" {
			return r.Error
		}
		if r.Message != "" {
			return r.Message
		}
	}
	if len(results) == 0 {
		return "backend reported no results"
	}
	return "backend reported failure"
}
