package search

import (
	"sync"
	"time"

	"github.com/modpilot/pkg/models"
)

// ProjectCache holds the most recent project search results. Each Replace
// discards the previous result set.
type ProjectCache struct {
	mu        sync.RWMutex
	projects  map[int]models.Project
	order     []int
	updatedAt time.Time
}

// NewProjectCache creates an empty cache
func NewProjectCache() *ProjectCache {
	return &ProjectCache{projects: make(map[int]models.Project)}
}

// Replace stores a new result set
func (c *ProjectCache) Replace(projects []models.Project) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.projects = make(map[int]models.Project, len(projects))
	c.order = make([]int, 0, len(projects))
	for _, p := range projects {
		if _, dup := c.projects[p.ID]; !dup {
			c.order = append(c.order, p.ID)
		}
		c.projects[p.ID] = p
	}
	c.updatedAt = time.Now()
}

// ProjectName implements pending.NameResolver
func (c *ProjectCache) ProjectName(projectID int) (string, bool) {
	p, ok := c.Project(projectID)
	if !ok {
		return "", false
	}
	if p.Name != "" {
		return p.Name, true
	}
	return p.Path, p.Path != ""
}

// Project returns a cached project
func (c *ProjectCache) Project(projectID int) (models.Project, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.projects[projectID]
	return p, ok
}

// GoVersion returns the go version the project was found with
func (c *ProjectCache) GoVersion(projectID int) (string, bool) {
	p, ok := c.Project(projectID)
	if !ok || p.GoVersion == "" {
		return "", false
	}
	return p.GoVersion, true
}

// LibraryVersion returns the required version of a module in a cached project
func (c *ProjectCache) LibraryVersion(projectID int, name string) (string, bool) {
	p, ok := c.Project(projectID)
	if !ok {
		return "", false
	}
	for _, lib := range p.Libraries {
		if lib.Name == name {
			return lib.Version, true
		}
	}
	return "", false
}

// Projects returns the cached results in the order they were returned
func (c *ProjectCache) Projects() []models.Project {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Project, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.projects[id])
	}
	return out
}

// UpdatedAt returns when the cache was last replaced
func (c *ProjectCache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}
