package pending

import (
	"fmt"
	"strings"
	"unicode"
)

// Change kinds listed in a ProjectSummary
const (
	KindGoVersion = "go_version"
	KindLibrary   = "library"
)

// Change is one display line of a project's pending edits
type Change struct {
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	From       string `json:"from"`
	To         string `json:"to"`
	UpdateType string `json:"update_type,omitempty"`
}

// ProjectSummary is the breakdown for one project
type ProjectSummary struct {
	ProjectID int              `json:"project_id"`
	Name      string           `json:"name"`
	GoVersion *GoVersionChange `json:"go_version,omitempty"`
	Libraries []LibraryChange  `json:"libraries"`
	Changes   []Change         `json:"changes"`
}

// AggregateView summarizes every pending edit across projects
type AggregateView struct {
	ProjectsWithChanges int              `json:"projects_with_changes"`
	HasGoVersionChange  bool             `json:"has_go_version_change"`
	TotalLibraryChanges int              `json:"total_library_changes"`
	SingleProject       bool             `json:"single_project"`
	SuggestedBranch     string           `json:"suggested_branch,omitempty"`
	Projects            []ProjectSummary `json:"projects"`
}

// Empty reports whether no project has pending changes
func (v AggregateView) Empty() bool {
	return v.ProjectsWithChanges == 0
}

// Summarize builds the aggregate view of the given records, keeping their order.
// names may be nil.
func Summarize(changes []ProjectChanges, names NameResolver) AggregateView {
	view := AggregateView{
		Projects: make([]ProjectSummary, 0, len(changes)),
	}

	for _, pc := range changes {
		if pc.Empty() {
			continue
		}

		ps := ProjectSummary{
			ProjectID: pc.ProjectID,
			Name:      DisplayName(pc.ProjectID, names),
			Libraries: pc.Libraries,
			Changes:   make([]Change, 0, len(pc.Libraries)+1),
		}
		if ps.Libraries == nil {
			ps.Libraries = []LibraryChange{}
		}

		if pc.GoVersion != nil {
			gv := *pc.GoVersion
			ps.GoVersion = &gv
			view.HasGoVersionChange = true
			ps.Changes = append(ps.Changes, Change{
				Kind:       KindGoVersion,
				Name:       "go",
				From:       gv.From,
				To:         gv.To,
				UpdateType: UpdateType(gv.From, gv.To),
			})
		}
		for _, lib := range pc.Libraries {
			ps.Changes = append(ps.Changes, Change{
				Kind:       KindLibrary,
				Name:       lib.Name,
				From:       lib.From,
				To:         lib.To,
				UpdateType: lib.UpdateType,
			})
		}

		view.TotalLibraryChanges += len(pc.Libraries)
		view.Projects = append(view.Projects, ps)
	}

	view.ProjectsWithChanges = len(view.Projects)
	if view.ProjectsWithChanges == 1 {
		view.SingleProject = true
		view.SuggestedBranch = SuggestBranchName(view.Projects[0].Name)
	}

	return view
}

// DisplayName resolves the project name or falls back to "Project #<id>"
func DisplayName(projectID int, names NameResolver) string {
	if names != nil {
		if name, ok := names.ProjectName(projectID); ok && name != "" {
			return name
		}
	}
	return fmt.Sprintf("Project #%d", projectID)
}

// SuggestBranchName derives a default branch name from a project name
func SuggestBranchName(projectName string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(projectName) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "update-libraries"
	}
	return "update-libraries-" + slug
}
