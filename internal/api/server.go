package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/modpilot/internal/history"
	"github.com/modpilot/internal/pending"
	"github.com/modpilot/internal/search"
	"github.com/modpilot/pkg/models"
)

// ProjectSearcher runs project searches against the backend
type ProjectSearcher interface {
	SearchProjects(ctx context.Context, criteria models.SearchCriteria) (*models.SearchResponse, error)
}

// GitLabDirectory looks up projects and branches directly on GitLab
type GitLabDirectory interface {
	SearchProjects(ctx context.Context, query string, limit int) ([]models.Project, error)
	ListBranches(ctx context.Context, projectID int, search string) ([]models.Branch, error)
}

// Deps are the collaborators the server exposes over HTTP. GitLab may be
// nil when direct GitLab access is not configured.
type Deps struct {
	Store       *pending.Store
	Coordinator *pending.Coordinator
	Searcher    ProjectSearcher
	Cache       *search.ProjectCache
	GitLab      GitLabDirectory
	History     history.Store
}

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int
	deps Deps
	hub  *Hub
}

// NewServer creates a new API server
func NewServer(port int, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo: e,
		port: port,
		deps: deps,
		hub:  NewHub(),
	}

	deps.Store.Subscribe(func(view pending.AggregateView) {
		server.hub.Broadcast(Message{Type: "changes.updated", Timestamp: time.Now(), Data: view})
	})

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")

	// pending changes
	v1.GET("/changes", s.listChanges)
	v1.DELETE("/changes", s.clearAllChanges)
	v1.GET("/changes/live", s.liveChanges)
	v1.POST("/changes/submit-all", s.submitAll)
	v1.GET("/changes/:project", s.getChanges)
	v1.DELETE("/changes/:project", s.clearChanges)
	v1.PUT("/changes/:project/go-version", s.recordGoVersion)
	v1.PUT("/changes/:project/libraries/:name", s.recordLibrary)
	v1.POST("/changes/:project/submit", s.submit)

	v1.GET("/projects", s.cachedProjects)
	v1.GET("/projects/search", s.searchProjects)
	v1.GET("/projects/:project/branches", s.listBranches)

	v1.GET("/gitlab/projects", s.gitlabProjects)

	v1.GET("/history", s.listHistory)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins the API server and blocks until interrupted
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go s.hub.Run(ctx)

	go func() {
		log.Info().Int("port", s.port).Msg("Starting modpilot API server")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("shutting down the server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(shutdownCtx)
}
