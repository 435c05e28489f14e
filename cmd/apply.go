package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/modpilot/internal/pending"
	"github.com/modpilot/internal/plan"
	"github.com/modpilot/internal/search"
	"github.com/modpilot/pkg/models"
)

// ApplyCommand returns the apply command
func ApplyCommand() *cli.Command {
	return &cli.Command{
		Name:  "apply",
		Usage: "Record the edits of a plan file and submit them per project",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Print the pending changes without submitting",
			},
			&cli.StringFlag{
				Name:    "branch",
				Aliases: []string{"b"},
				Usage:   "Override the plan's branch name",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall time limit",
				Value: 30 * time.Minute,
			},
		},
		ArgsUsage: "PLAN",
		Action:    runApply,
	}
}

func runApply(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: PLAN")
	}

	p, err := plan.Load(c.Args().Get(0))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	cache := search.NewProjectCache()
	if p.NeedsGoVersions() {
		resp, err := client.SearchProjects(ctx, models.SearchCriteria{UseCache: true})
		if err != nil {
			return fmt.Errorf("failed to load current go versions: %w", err)
		}
		cache.Replace(resp.Projects)
	}

	store := pending.NewStore(pending.WithNameResolver(cache))
	if err := p.Record(ctx, store, client, cache); err != nil {
		return err
	}

	view := store.Summary()
	printSummary(os.Stdout, view)
	if view.Empty() || c.Bool("dry-run") {
		return nil
	}

	branch := c.String("branch")
	if branch == "" {
		branch = p.Branch
	}
	if branch == "" {
		branch = view.SuggestedBranch
	}
	if branch == "" {
		return fmt.Errorf("branch name is required: set --branch or branch in the plan")
	}

	hist, closeHistory, err := openHistory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open submission history: %w", err)
	}
	defer closeHistory()

	coordinator := pending.NewCoordinator(store, client, pending.WithOutcomeRecorder(hist))
	return submitAll(ctx, os.Stdout, coordinator, store, branch)
}

// submitAll submits every project in store order and keeps going after failures
func submitAll(ctx context.Context, w io.Writer, coordinator *pending.Coordinator, store *pending.Store, branch string) error {
	var errs []error
	projects := store.Snapshot()
	for _, changes := range projects {
		outcome, err := coordinator.Submit(ctx, changes.ProjectID, branch)
		if err != nil {
			fmt.Fprintf(w, "✗ %v\n", err)
			errs = append(errs, err)
			continue
		}

		line := fmt.Sprintf("✓ %s submitted on %s", outcome.ProjectName, outcome.BranchName)
		if mr := outcome.MergeRequest(); mr != nil && mr.WebURL != "" {
			line += ": " + mr.WebURL
		}
		if outcome.Partial {
			line += " (partial)"
		}
		fmt.Fprintln(w, line)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d submissions failed: %w", len(errs), len(projects), errors.Join(errs...))
	}
	return nil
}

func printSummary(w io.Writer, view pending.AggregateView) {
	if view.Empty() {
		fmt.Fprintln(w, "No pending changes.")
		return
	}

	fmt.Fprintf(w, "%d project(s), %d library change(s)", view.ProjectsWithChanges, view.TotalLibraryChanges)
	if view.HasGoVersionChange {
		fmt.Fprint(w, ", go version change")
	}
	fmt.Fprintln(w)

	for _, proj := range view.Projects {
		fmt.Fprintf(w, "\n%s (#%d)\n", proj.Name, proj.ProjectID)
		for _, ch := range proj.Changes {
			kind := ""
			if ch.UpdateType != "" {
				kind = " [" + ch.UpdateType + "]"
			}
			fmt.Fprintf(w, "  %s: %s -> %s%s\n", ch.Name, ch.From, ch.To, kind)
		}
	}
	if view.SuggestedBranch != "" {
		fmt.Fprintf(w, "\nSuggested branch: %s\n", view.SuggestedBranch)
	}
}
