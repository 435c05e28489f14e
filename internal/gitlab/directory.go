package gitlab

import (
	"context"
	"fmt"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/modpilot/pkg/models"
)

// Config contains configuration for direct GitLab access
type Config struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

// Directory looks up projects and branches directly on GitLab, for branch
// suggestions and project lookup by name.
type Directory struct {
	client *gitlab.Client
}

// New creates a Directory for the configured GitLab instance
func New(config Config) (*Directory, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("gitlab token is required")
	}

	var opts []gitlab.ClientOptionFunc
	if config.URL != "" {
		// client-go appends /api/v4/ itself
		opts = append(opts, gitlab.WithBaseURL(strings.TrimSuffix(config.URL, "/")))
	}

	client, err := gitlab.NewClient(config.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	return &Directory{client: client}, nil
}

// SearchProjects returns projects the token is a member of whose name matches query
func (d *Directory) SearchProjects(ctx context.Context, query string, limit int) ([]models.Project, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	opts := &gitlab.ListProjectsOptions{
		ListOptions: gitlab.ListOptions{PerPage: limit},
		Membership:  gitlab.Ptr(true),
		Simple:      gitlab.Ptr(true),
	}
	if query != "" {
		opts.Search = gitlab.Ptr(query)
	}

	projects, _, err := d.client.Projects.ListProjects(opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	out := make([]models.Project, 0, len(projects))
	for _, p := range projects {
		out = append(out, convertProject(p))
	}
	return out, nil
}

// ListBranches lists the branches of a project, optionally filtered by a search term
func (d *Directory) ListBranches(ctx context.Context, projectID int, search string) ([]models.Branch, error) {
	opts := &gitlab.ListBranchesOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}
	if search != "" {
		opts.Search = gitlab.Ptr(search)
	}

	branches, _, err := d.client.Branches.ListBranches(projectID, opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list branches for project %d: %w", projectID, err)
	}

	out := make([]models.Branch, 0, len(branches))
	for _, b := range branches {
		out = append(out, models.Branch{
			Name:      b.Name,
			Default:   b.Default,
			Protected: b.Protected,
			WebURL:    b.WebURL,
		})
	}
	return out, nil
}

func convertProject(p *gitlab.Project) models.Project {
	project := models.Project{
		ID:            p.ID,
		Name:          p.Name,
		Path:          p.PathWithNamespace,
		WebURL:        p.WebURL,
		Description:   p.Description,
		DefaultBranch: p.DefaultBranch,
	}
	if p.LastActivityAt != nil {
		project.UpdatedAt = *p.LastActivityAt
	}
	return project
}
