package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/modpilot/internal/pending"
	"github.com/modpilot/pkg/models"
)

// EditRequest is the body of a field edit
type EditRequest struct {
	Value    string `json:"value"`
	Original string `json:"original"`
}

// SubmitRequest is the body of a submission
type SubmitRequest struct {
	BranchName string `json:"branch_name"`
}

// ChangesResponse returns a project's remaining changes with the new summary
type ChangesResponse struct {
	ProjectID int                     `json:"project_id"`
	Pending   *pending.ProjectChanges `json:"pending"`
	Summary   pending.AggregateView   `json:"summary"`
}

// SubmitError is returned for failed submissions
type SubmitError struct {
	Error         string                `json:"error"`
	ProjectID     int                   `json:"project_id"`
	StatusCode    int                   `json:"backend_status,omitempty"`
	Results       []models.UpdateResult `json:"results,omitempty"`
	ResultUnknown bool                  `json:"result_unknown,omitempty"`
}

// SubmitAllItem is the result of one project in a submit-all call
type SubmitAllItem struct {
	ProjectID int              `json:"project_id"`
	Status    int              `json:"status"`
	Outcome   *pending.Outcome `json:"outcome,omitempty"`
	Error     *SubmitError     `json:"error,omitempty"`
}

func projectParam(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("project"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid project id")
	}
	return id, nil
}

func (s *Server) changesResponse(projectID int) ChangesResponse {
	resp := ChangesResponse{ProjectID: projectID, Summary: s.deps.Store.Summary()}
	if changes, ok := s.deps.Store.Get(projectID); ok {
		resp.Pending = &changes
	}
	return resp
}

func (s *Server) listChanges(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Store.Summary())
}

func (s *Server) getChanges(c echo.Context) error {
	projectID, err := projectParam(c)
	if err != nil {
		return err
	}

	changes, ok := s.deps.Store.Get(projectID)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no pending changes for project"})
	}
	return c.JSON(http.StatusOK, changes)
}

func (s *Server) recordGoVersion(c echo.Context) error {
	projectID, err := projectParam(c)
	if err != nil {
		return err
	}

	var req EditRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	req.Value = strings.TrimSpace(req.Value)
	if req.Value == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "value is required"})
	}

	s.deps.Store.Record(projectID, pending.GoVersionField(), req.Value, strings.TrimSpace(req.Original))
	return c.JSON(http.StatusOK, s.changesResponse(projectID))
}

func (s *Server) recordLibrary(c echo.Context) error {
	projectID, err := projectParam(c)
	if err != nil {
		return err
	}

	// module paths contain slashes and arrive escaped
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil || strings.TrimSpace(name) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid library name"})
	}

	var req EditRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	req.Value = strings.TrimSpace(req.Value)
	if req.Value == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "value is required"})
	}

	s.deps.Store.Record(projectID, pending.LibraryField(strings.TrimSpace(name)), req.Value, strings.TrimSpace(req.Original))
	return c.JSON(http.StatusOK, s.changesResponse(projectID))
}

func (s *Server) clearChanges(c echo.Context) error {
	projectID, err := projectParam(c)
	if err != nil {
		return err
	}
	s.deps.Store.Clear(projectID)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) clearAllChanges(c echo.Context) error {
	s.deps.Store.ClearAll()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) submit(c echo.Context) error {
	projectID, err := projectParam(c)
	if err != nil {
		return err
	}

	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	outcome, err := s.deps.Coordinator.Submit(c.Request().Context(), projectID, req.BranchName)
	if err != nil {
		status, body := submitFailure(projectID, err)
		return c.JSON(status, body)
	}
	return c.JSON(http.StatusOK, outcome)
}

// submitAll submits every project with pending changes, one after another,
// using the same branch name. A failure does not stop the remaining projects.
func (s *Server) submitAll(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.BranchName) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": pending.ErrBranchRequired.Error()})
	}

	ctx := c.Request().Context()
	items := make([]SubmitAllItem, 0)
	for _, changes := range s.deps.Store.Snapshot() {
		outcome, err := s.deps.Coordinator.Submit(ctx, changes.ProjectID, req.BranchName)
		if err != nil {
			status, body := submitFailure(changes.ProjectID, err)
			items = append(items, SubmitAllItem{ProjectID: changes.ProjectID, Status: status, Error: &body})
			continue
		}
		items = append(items, SubmitAllItem{ProjectID: changes.ProjectID, Status: http.StatusOK, Outcome: outcome})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"results": items,
		"summary": s.deps.Store.Summary(),
	})
}

func submitFailure(projectID int, err error) (int, SubmitError) {
	body := SubmitError{Error: err.Error(), ProjectID: projectID}

	var validationErr *pending.ValidationError
	var backendErr *pending.BackendError
	switch {
	case errors.Is(err, pending.ErrSubmissionInProgress):
		return http.StatusConflict, body
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, body
	case errors.As(err, &backendErr):
		body.StatusCode = backendErr.StatusCode
		body.Results = backendErr.Results
		body.ResultUnknown = backendErr.ResultUnknown
		return http.StatusBadGateway, body
	default:
		return http.StatusBadGateway, body
	}
}
