package pending

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticNames map[int]string

func (n staticNames) ProjectName(id int) (string, bool) {
	name, ok := n[id]
	return name, ok
}

func TestSummarize_TwoProjects(t *testing.T) {
	s := NewStore(WithNameResolver(staticNames{1: "billing-api"}))
	s.Record(1, GoVersionField(), "1.22", "1.21")
	s.Record(2, LibraryField("a"), "v1.1.0", "v1.0.0")
	s.Record(2, LibraryField("b"), "v2.0.0", "v1.0.0")
	s.Record(2, LibraryField("c"), "v0.9.0", "v1.0.0")

	view := s.Summary()

	assert.Equal(t, 2, view.ProjectsWithChanges)
	assert.Equal(t, 3, view.TotalLibraryChanges)
	assert.True(t, view.HasGoVersionChange)
	assert.False(t, view.SingleProject)
	assert.Empty(t, view.SuggestedBranch)

	require.Len(t, view.Projects, 2)
	assert.Equal(t, 1, view.Projects[0].ProjectID)
	assert.Equal(t, "billing-api", view.Projects[0].Name)
	assert.Equal(t, 2, view.Projects[1].ProjectID)
	assert.Equal(t, "Project #2", view.Projects[1].Name)

	changes := view.Projects[1].Changes
	require.Len(t, changes, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{changes[0].Name, changes[1].Name, changes[2].Name})
	assert.Equal(t, "downgrade", changes[2].UpdateType)
}

func TestSummarize_GoVersionListedFirst(t *testing.T) {
	s := NewStore()
	s.Record(5, LibraryField("a"), "v1.1.0", "v1.0.0")
	s.Record(5, GoVersionField(), "1.23", "1.22")

	view := s.Summary()
	require.Len(t, view.Projects, 1)

	changes := view.Projects[0].Changes
	require.Len(t, changes, 2)
	assert.Equal(t, KindGoVersion, changes[0].Kind)
	assert.Equal(t, "upgrade", changes[0].UpdateType)
	assert.Equal(t, KindLibrary, changes[1].Kind)
}

func TestSummarize_SingleProjectMode(t *testing.T) {
	s := NewStore(WithNameResolver(staticNames{9: "Payments Service"}))
	s.Record(9, LibraryField("a"), "v1.1.0", "v1.0.0")

	view := s.Summary()
	assert.True(t, view.SingleProject)
	assert.Equal(t, "update-libraries-payments-service", view.SuggestedBranch)
	assert.False(t, view.HasGoVersionChange)
}

func TestSummarize_Empty(t *testing.T) {
	view := Summarize(nil, nil)

	assert.True(t, view.Empty())
	assert.Equal(t, 0, view.TotalLibraryChanges)
	assert.False(t, view.HasGoVersionChange)
	assert.False(t, view.SingleProject)
	assert.NotNil(t, view.Projects)
	assert.Len(t, view.Projects, 0)
}

func TestSummarize_SkipsEmptyRecords(t *testing.T) {
	view := Summarize([]ProjectChanges{{ProjectID: 1}}, nil)
	assert.True(t, view.Empty())
}

func TestSuggestBranchName(t *testing.T) {
	assert.Equal(t, "update-libraries-group-my-app", SuggestBranchName("group/My_App"))
	assert.Equal(t, "update-libraries-project-12", SuggestBranchName("Project #12"))
	assert.Equal(t, "update-libraries", SuggestBranchName("///"))
}
