package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/modpilot/internal/pending"
	"github.com/modpilot/pkg/models"
)

// Plan is a batch of edits read from a TOML file
type Plan struct {
	Branch   string        `koanf:"branch"`
	Projects []ProjectPlan `koanf:"projects"`
}

// ProjectPlan lists the edits for one project
type ProjectPlan struct {
	ID        int           `koanf:"id"`
	GoVersion string        `koanf:"go_version"`
	GoFrom    string        `koanf:"go_from"`
	Libraries []LibraryPlan `koanf:"libraries"`
}

// LibraryPlan is one library edit. From is looked up when empty.
type LibraryPlan struct {
	Name string `koanf:"name"`
	From string `koanf:"from"`
	To   string `koanf:"to"`
}

// LibrarySource returns the current library versions of a project
type LibrarySource interface {
	ProjectLibraries(ctx context.Context, projectID int) ([]models.ProjectLibrary, error)
}

// GoVersionSource returns the current go version of a project
type GoVersionSource interface {
	GoVersion(projectID int) (string, bool)
}

// Load reads a plan file
func Load(path string) (*Plan, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("error loading plan: %w", err)
	}

	var p Plan
	if err := k.Unmarshal("", &p); err != nil {
		return nil, fmt.Errorf("error unmarshalling plan: %w", err)
	}
	return &p, p.Validate()
}

// Validate checks that every entry names a project and a target
func (p *Plan) Validate() error {
	if len(p.Projects) == 0 {
		return fmt.Errorf("plan has no projects")
	}

	seen := make(map[int]bool)
	for i, proj := range p.Projects {
		if proj.ID <= 0 {
			return fmt.Errorf("projects[%d]: id is required", i)
		}
		if seen[proj.ID] {
			return fmt.Errorf("project %d is listed twice", proj.ID)
		}
		seen[proj.ID] = true

		if proj.GoVersion == "" && len(proj.Libraries) == 0 {
			return fmt.Errorf("project %d: no edits", proj.ID)
		}
		for j, lib := range proj.Libraries {
			if strings.TrimSpace(lib.Name) == "" {
				return fmt.Errorf("project %d: libraries[%d]: name is required", proj.ID, j)
			}
			if strings.TrimSpace(lib.To) == "" {
				return fmt.Errorf("project %d: library %s: to is required", proj.ID, lib.Name)
			}
		}
	}
	return nil
}

// NeedsGoVersions reports whether any go version edit lacks its original
func (p *Plan) NeedsGoVersions() bool {
	for _, proj := range p.Projects {
		if proj.GoVersion != "" && proj.GoFrom == "" {
			return true
		}
	}
	return false
}

type edit struct {
	projectID int
	field     pending.Field
	to        string
	from      string
}

// Record resolves missing originals and records every edit in the store.
// Nothing is recorded when an original cannot be resolved.
func (p *Plan) Record(ctx context.Context, store *pending.Store, libs LibrarySource, goVersions GoVersionSource) error {
	var edits []edit

	for _, proj := range p.Projects {
		if proj.GoVersion != "" {
			from := proj.GoFrom
			if from == "" {
				var ok bool
				if goVersions != nil {
					from, ok = goVersions.GoVersion(proj.ID)
				}
				if !ok {
					return fmt.Errorf("project %d: current go version unknown, set go_from", proj.ID)
				}
			}
			edits = append(edits, edit{proj.ID, pending.GoVersionField(), proj.GoVersion, from})
		}

		var current map[string]string
		for _, lib := range proj.Libraries {
			from := lib.From
			if from == "" {
				if current == nil {
					fetched, err := currentVersions(ctx, libs, proj.ID)
					if err != nil {
						return err
					}
					current = fetched
				}
				v, ok := current[lib.Name]
				if !ok {
					return fmt.Errorf("project %d: library %s is not a dependency", proj.ID, lib.Name)
				}
				from = v
			}
			edits = append(edits, edit{proj.ID, pending.LibraryField(lib.Name), lib.To, from})
		}
	}

	for _, e := range edits {
		store.Record(e.projectID, e.field, e.to, e.from)
	}
	return nil
}

func currentVersions(ctx context.Context, libs LibrarySource, projectID int) (map[string]string, error) {
	if libs == nil {
		return nil, fmt.Errorf("project %d: library versions unavailable, set from", projectID)
	}
	list, err := libs.ProjectLibraries(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("project %d: failed to load library versions: %w", projectID, err)
	}
	out := make(map[string]string, len(list))
	for _, l := range list {
		out[l.LibraryName] = l.CurrentVersion
	}
	return out, nil
}
