package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modpilot/internal/pending"
	"github.com/modpilot/pkg/models"
)

func sampleProjects() []models.Project {
	return []models.Project{
		{
			ID:        11,
			Name:      "billing-api",
			Path:      "payments/billing-api",
			GoVersion: "1.21",
			Libraries: []models.Library{
				{Name: "github.com/rs/zerolog", Version: "v1.33.0"},
			},
		},
		{ID: 12, Path: "payments/ledger"},
	}
}

func TestProjectCache_Lookup(t *testing.T) {
	c := NewProjectCache()
	assert.True(t, c.UpdatedAt().IsZero())

	c.Replace(sampleProjects())

	name, ok := c.ProjectName(11)
	require.True(t, ok)
	assert.Equal(t, "billing-api", name)

	name, ok = c.ProjectName(12)
	require.True(t, ok)
	assert.Equal(t, "payments/ledger", name)

	v, ok := c.GoVersion(11)
	require.True(t, ok)
	assert.Equal(t, "1.21", v)

	_, ok = c.GoVersion(12)
	assert.False(t, ok)

	v, ok = c.LibraryVersion(11, "github.com/rs/zerolog")
	require.True(t, ok)
	assert.Equal(t, "v1.33.0", v)

	_, ok = c.LibraryVersion(11, "github.com/unknown/mod")
	assert.False(t, ok)
	assert.False(t, c.UpdatedAt().IsZero())
}

func TestProjectCache_ReplaceDropsPreviousResults(t *testing.T) {
	c := NewProjectCache()
	c.Replace(sampleProjects())
	c.Replace([]models.Project{{ID: 20, Name: "gateway"}})

	_, ok := c.Project(11)
	assert.False(t, ok)
	require.Len(t, c.Projects(), 1)
	assert.Equal(t, 20, c.Projects()[0].ID)
}

func TestProjectCache_ResolvesNamesForSummary(t *testing.T) {
	c := NewProjectCache()
	c.Replace(sampleProjects())

	store := pending.NewStore(pending.WithNameResolver(c))
	store.Record(11, pending.GoVersionField(), "1.22", "1.21")
	store.Record(99, pending.GoVersionField(), "1.22", "1.21")

	view := store.Summary()
	require.Len(t, view.Projects, 2)
	assert.Equal(t, "billing-api", view.Projects[0].Name)
	assert.Equal(t, "Project #99", view.Projects[1].Name)
}
