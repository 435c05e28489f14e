package models

import (
	"fmt"
	"time"
)

// Backend wire types for the dependency-management API

// Project represents a GitLab project as returned by the backend search
type Project struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path_with_namespace"`
	WebURL        string    `json:"web_url,omitempty"`
	Description   string    `json:"description,omitempty"`
	DefaultBranch string    `json:"default_branch,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
	GoVersion     string    `json:"go_version,omitempty"`
	Libraries     []Library `json:"libraries,omitempty"`
}

// Library represents a Go module dependency of a project
type Library struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Path    string `json:"path,omitempty"`
}

// SearchCriteria holds the project search filters understood by the backend
type SearchCriteria struct {
	GoVersion           string `json:"go_version,omitempty"`
	GoVersionComparison string `json:"go_version_comparison,omitempty"`
	Library             string `json:"library,omitempty"`
	Version             string `json:"version,omitempty"`
	VersionComparison   string `json:"version_comparison,omitempty"`
	Group               string `json:"group,omitempty"`
	Tag                 string `json:"tag,omitempty"`
	UseCache            bool   `json:"use_cache,omitempty"`
}

// SearchResponse is the body of a project search
type SearchResponse struct {
	Projects  []Project `json:"projects"`
	Count     int       `json:"count"`
	FromCache bool      `json:"from_cache"`
	CachedAt  string    `json:"cached_at"`
}

// ProjectLibrary is one dependency of a project with its version information
type ProjectLibrary struct {
	ProjectID         int      `json:"project_id"`
	ProjectName       string   `json:"project_name"`
	LibraryName       string   `json:"library_name"`
	CurrentVersion    string   `json:"current_version"`
	LatestVersion     string   `json:"latest_version"`
	AvailableVersions []string `json:"available_versions,omitempty"`
	IsUpdatable       bool     `json:"is_updatable"`
	IsDowngradable    bool     `json:"is_downgradable"`
}

// ProjectLibrariesResponse is the body of GET /library/project/{id}
type ProjectLibrariesResponse struct {
	ProjectID int              `json:"project_id"`
	Libraries []ProjectLibrary `json:"libraries"`
	Count     int              `json:"count"`
}

// LibraryUpdate is one requested library version change
type LibraryUpdate struct {
	LibraryName   string `json:"library_name"`
	TargetVersion string `json:"target_version"`
	UpdateType    string `json:"update_type,omitempty"` // "upgrade", "downgrade", "same"
}

// ProjectUpdateRequest is the body of POST /library/project-update
type ProjectUpdateRequest struct {
	ProjectID  int             `json:"project_id"`
	Updates    []LibraryUpdate `json:"updates"`
	BranchName string          `json:"branch_name,omitempty"`
	GoVersion  string          `json:"go_version,omitempty"`
}

// UpdateResponse is the body returned by POST /library/project-update
type UpdateResponse struct {
	ProjectID int            `json:"project_id"`
	Results   []UpdateResult `json:"results"`
	Count     int            `json:"count"`
}

// UpdateResult is the backend's outcome for one item of an update
type UpdateResult struct {
	ProjectID    int             `json:"project_id,omitempty"`
	ProjectName  string          `json:"project_name,omitempty"`
	Success      bool            `json:"success"`
	Message      string          `json:"message,omitempty"`
	Error        string          `json:"error,omitempty"`
	MergeRequest *MergeRequest   `json:"merge_request,omitempty"`
	Changes      *LibraryChanges `json:"changes,omitempty"`
}

// MergeRequest is the merge request the backend created or updated
type MergeRequest struct {
	ID           int    `json:"id,omitempty"`
	IID          int    `json:"iid"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	WebURL       string `json:"web_url"`
	State        string `json:"state,omitempty"`
	SourceBranch string `json:"source_branch,omitempty"`
}

// LibraryChanges describes the files touched by an update
type LibraryChanges struct {
	GoModChanges string   `json:"go_mod_changes,omitempty"`
	GoSumChanges string   `json:"go_sum_changes,omitempty"`
	FilesChanged []string `json:"files_changed"`
}

// Branch is a repository branch offered as a submission target name
type Branch struct {
	Name      string `json:"name"`
	Default   bool   `json:"default"`
	Protected bool   `json:"protected"`
	WebURL    string `json:"web_url,omitempty"`
}

// APIError is returned for any non-2xx backend response
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend request failed with status %d: %s", e.StatusCode, e.Message)
}

// ResponseDecodeError is returned when a 2xx response body cannot be decoded.
// The request reached the backend and may have been applied.
type ResponseDecodeError struct {
	StatusCode int
	Err        error
}

func (e *ResponseDecodeError) Error() string {
	return fmt.Sprintf("backend returned status %d but the response could not be decoded: %v", e.StatusCode, e.Err)
}

func (e *ResponseDecodeError) Unwrap() error {
	return e.Err
}
