package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/modpilot/internal/pending"
	"github.com/modpilot/pkg/models"
)

func (s *Server) searchProjects(c echo.Context) error {
	criteria := models.SearchCriteria{
		GoVersion:           c.QueryParam("go_version"),
		GoVersionComparison: c.QueryParam("go_version_comparison"),
		Library:             c.QueryParam("library"),
		Version:             c.QueryParam("version"),
		VersionComparison:   c.QueryParam("version_comparison"),
		Group:               c.QueryParam("group"),
		Tag:                 c.QueryParam("tag"),
	}
	if v := c.QueryParam("use_cache"); v != "" {
		useCache, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "use_cache must be a boolean"})
		}
		criteria.UseCache = useCache
	}

	resp, err := s.deps.Searcher.SearchProjects(c.Request().Context(), criteria)
	if err != nil {
		log.Error().Err(err).Msg("Project search failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	if s.deps.Cache != nil {
		s.deps.Cache.Replace(resp.Projects)
	}
	return c.JSON(http.StatusOK, resp)
}

// cachedProjects returns the most recent search results without a backend call
func (s *Server) cachedProjects(c echo.Context) error {
	if s.deps.Cache == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"projects": []models.Project{}, "count": 0})
	}

	projects := s.deps.Cache.Projects()
	resp := map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
	}
	if updated := s.deps.Cache.UpdatedAt(); !updated.IsZero() {
		resp["updated_at"] = updated
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) gitlabProjects(c echo.Context) error {
	if s.deps.GitLab == nil {
		return c.JSON(http.StatusNotImplemented, map[string]string{"error": "gitlab access is not configured"})
	}

	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	projects, err := s.deps.GitLab.SearchProjects(c.Request().Context(), c.QueryParam("search"), limit)
	if err != nil {
		log.Error().Err(err).Msg("GitLab project search failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
	})
}

func (s *Server) listBranches(c echo.Context) error {
	projectID, err := projectParam(c)
	if err != nil {
		return err
	}
	if s.deps.GitLab == nil {
		return c.JSON(http.StatusNotImplemented, map[string]string{"error": "gitlab access is not configured"})
	}

	branches, err := s.deps.GitLab.ListBranches(c.Request().Context(), projectID, c.QueryParam("search"))
	if err != nil {
		log.Error().Err(err).Int("project_id", projectID).Msg("Failed to list branches")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	var names pending.NameResolver
	if s.deps.Cache != nil {
		names = s.deps.Cache
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"branches":  branches,
		"suggested": pending.SuggestBranchName(pending.DisplayName(projectID, names)),
	})
}

func (s *Server) listHistory(c echo.Context) error {
	projectID := 0
	if v := c.QueryParam("project"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid project id"})
		}
		projectID = id
	}

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	outcomes, err := s.deps.History.List(c.Request().Context(), projectID, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list submission history")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load history"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"submissions": outcomes,
		"count":       len(outcomes),
	})
}
