package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/modpilot/internal/logging"
	"github.com/modpilot/internal/retry"
	"github.com/modpilot/pkg/models"
)

// Config configures the backend client
type Config struct {
	BaseURL          string
	Token            string
	Timeout          time.Duration
	SearchRatePerSec float64
	DisableReadRetry bool
}

// Client talks to the dependency-management backend API
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	searchLimiter *rate.Limiter
	readRetry     retry.Config
}

// NewClient creates a backend client. BaseURL is the API root, for example
// "https://deps.example.com/api".
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		// project updates clone and push repositories
		timeout = 5 * time.Minute
	}

	limit := rate.Inf
	if config.SearchRatePerSec > 0 {
		limit = rate.Limit(config.SearchRatePerSec)
	}

	readRetry := retry.ReadConfig()
	if config.DisableReadRetry {
		readRetry.MaxRetries = 0
	}

	return &Client{
		baseURL:       strings.TrimSuffix(config.BaseURL, "/"),
		token:         config.Token,
		httpClient:    &http.Client{Timeout: timeout},
		searchLimiter: rate.NewLimiter(limit, 1),
		readRetry:     readRetry,
	}, nil
}

// UpdateProjectLibraries handles POST /library/project-update. It is never retried.
func (c *Client) UpdateProjectLibraries(ctx context.Context, req *models.ProjectUpdateRequest) (*models.UpdateResponse, error) {
	var resp models.UpdateResponse
	if err := c.do(ctx, http.MethodPost, "/library/project-update", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchProjects handles GET /projects/search
func (c *Client) SearchProjects(ctx context.Context, criteria models.SearchCriteria) (*models.SearchResponse, error) {
	if err := c.searchLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search rate limit: %w", err)
	}

	query := url.Values{}
	setIfNotEmpty(query, "go_version", criteria.GoVersion)
	setIfNotEmpty(query, "go_version_comparison", criteria.GoVersionComparison)
	setIfNotEmpty(query, "library", criteria.Library)
	setIfNotEmpty(query, "library_version", criteria.Version)
	setIfNotEmpty(query, "version_comparison", criteria.VersionComparison)
	setIfNotEmpty(query, "group", criteria.Group)
	setIfNotEmpty(query, "tag", criteria.Tag)
	if criteria.UseCache {
		query.Set("use_cache", "true")
	}

	var resp models.SearchResponse
	err := c.read(ctx, "search_projects", func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/projects/search", query, nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectLibraries handles GET /library/project/{id}
func (c *Client) ProjectLibraries(ctx context.Context, projectID int) ([]models.ProjectLibrary, error) {
	var resp models.ProjectLibrariesResponse
	err := c.read(ctx, "project_libraries", func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, "/library/project/"+strconv.Itoa(projectID), nil, nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Libraries, nil
}

func (c *Client) read(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	oplog := logging.StartOperation(operation)
	result := retry.Do(ctx, c.readRetry, fn, oplog)
	if !result.Success {
		return result.LastError
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &models.APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.ResponseDecodeError{StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// errorMessage extracts "message" (or "error") from a JSON error body and
// falls back to the plain text the backend's http.Error produces.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

func setIfNotEmpty(values url.Values, key, value string) {
	if value != "" {
		values.Set(key, value)
	}
}
