package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modpilot/internal/history"
	"github.com/modpilot/internal/pending"
	"github.com/modpilot/internal/search"
	"github.com/modpilot/pkg/models"
)

type stubUpdater struct {
	mu       sync.Mutex
	requests []*models.ProjectUpdateRequest
	failFor  map[int]error
	block    chan struct{}
	started  chan struct{}
}

func (u *stubUpdater) UpdateProjectLibraries(_ context.Context, req *models.ProjectUpdateRequest) (*models.UpdateResponse, error) {
	u.mu.Lock()
	u.requests = append(u.requests, req)
	u.mu.Unlock()

	if u.started != nil {
		u.started <- struct{}{}
	}
	if u.block != nil {
		<-u.block
	}
	if err := u.failFor[req.ProjectID]; err != nil {
		return nil, err
	}
	return &models.UpdateResponse{
		ProjectID: req.ProjectID,
		Results: []models.UpdateResult{{
			Success:      true,
			MergeRequest: &models.MergeRequest{IID: 5, WebURL: "https://gitlab.example.com/g/p/-/merge_requests/5"},
		}},
	}, nil
}

type stubSearcher struct {
	resp     *models.SearchResponse
	err      error
	criteria models.SearchCriteria
}

func (s *stubSearcher) SearchProjects(_ context.Context, criteria models.SearchCriteria) (*models.SearchResponse, error) {
	s.criteria = criteria
	return s.resp, s.err
}

type stubGitLab struct {
	query string
	limit int
}

func (g *stubGitLab) SearchProjects(_ context.Context, query string, limit int) ([]models.Project, error) {
	g.query, g.limit = query, limit
	return []models.Project{{ID: 11, Name: "billing-api", Path: "payments/billing-api"}}, nil
}

func (*stubGitLab) ListBranches(_ context.Context, projectID int, query string) ([]models.Branch, error) {
	return []models.Branch{{Name: "main", Default: true}, {Name: "update-" + query}}, nil
}

type testEnv struct {
	server   *Server
	store    *pending.Store
	cache    *search.ProjectCache
	updater  *stubUpdater
	searcher *stubSearcher
	history  *history.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cache := search.NewProjectCache()
	store := pending.NewStore(pending.WithNameResolver(cache))
	updater := &stubUpdater{failFor: map[int]error{}}
	hist := history.NewMemoryStore(0)
	searcher := &stubSearcher{resp: &models.SearchResponse{}}

	srv := NewServer(0, Deps{
		Store:       store,
		Coordinator: pending.NewCoordinator(store, updater, pending.WithOutcomeRecorder(hist)),
		Searcher:    searcher,
		Cache:       cache,
		History:     hist,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return &testEnv{server: srv, store: store, cache: cache, updater: updater, searcher: searcher, history: hist}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestRecordLibrary_EscapedNameAndRevert(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/changes/7/libraries/github.com%2Frs%2Fzerolog",
		EditRequest{Value: "v1.34.0", Original: "v1.30.0"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ChangesResponse](t, rec)
	require.NotNil(t, resp.Pending)
	require.Len(t, resp.Pending.Libraries, 1)
	assert.Equal(t, "github.com/rs/zerolog", resp.Pending.Libraries[0].Name)
	assert.Equal(t, "upgrade", resp.Pending.Libraries[0].UpdateType)
	assert.Equal(t, 1, resp.Summary.TotalLibraryChanges)
	assert.True(t, resp.Summary.SingleProject)

	rec = env.do(t, http.MethodPut, "/api/v1/changes/7/libraries/github.com%2Frs%2Fzerolog",
		EditRequest{Value: "v1.30.0", Original: "v1.30.0"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp = decode[ChangesResponse](t, rec)
	assert.Nil(t, resp.Pending)
	assert.Equal(t, 0, resp.Summary.ProjectsWithChanges)
}

func TestRecordGoVersion_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/changes/7/go-version", EditRequest{Value: " ", Original: "1.21"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/changes/abc/go-version", EditRequest{Value: "1.22", Original: "1.21"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/changes/7/go-version", EditRequest{Value: "1.22", Original: "1.21"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ChangesResponse](t, rec).Summary.HasGoVersionChange)
}

func TestGetAndClearChanges(t *testing.T) {
	env := newTestEnv(t)
	env.store.Record(1, pending.LibraryField("a"), "v2", "v1")
	env.store.Record(2, pending.LibraryField("b"), "v2", "v1")

	rec := env.do(t, http.MethodGet, "/api/v1/changes/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[pending.ProjectChanges](t, rec).ProjectID)

	rec = env.do(t, http.MethodGet, "/api/v1/changes/3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/changes/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, env.store.Len())

	rec = env.do(t, http.MethodGet, "/api/v1/changes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[pending.AggregateView](t, rec).ProjectsWithChanges)

	rec = env.do(t, http.MethodDelete, "/api/v1/changes", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, env.store.Len())
}

func TestSubmit_Success(t *testing.T) {
	env := newTestEnv(t)
	env.cache.Replace([]models.Project{{ID: 4, Name: "billing-api"}})
	env.store.Record(4, pending.GoVersionField(), "1.22", "1.21")

	rec := env.do(t, http.MethodPost, "/api/v1/changes/4/submit", SubmitRequest{BranchName: "go-1.22"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	outcome := decode[pending.Outcome](t, rec)
	assert.Equal(t, "billing-api", outcome.ProjectName)
	assert.Equal(t, "go-1.22", outcome.BranchName)
	assert.Equal(t, 0, env.store.Len())

	require.Len(t, env.updater.requests, 1)
	assert.Equal(t, "1.22", env.updater.requests[0].GoVersion)

	rec = env.do(t, http.MethodGet, "/api/v1/history?project=4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), outcome.SubmissionID)
}

func TestSubmit_StatusMapping(t *testing.T) {
	env := newTestEnv(t)
	env.updater.failFor[2] = &models.APIError{StatusCode: http.StatusInternalServerError, Message: "push rejected"}
	env.updater.failFor[3] = errors.New("connection refused")
	for _, id := range []int{1, 2, 3} {
		env.store.Record(id, pending.LibraryField("a"), "v2", "v1")
	}

	rec := env.do(t, http.MethodPost, "/api/v1/changes/1/submit", SubmitRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/changes/9/submit", SubmitRequest{BranchName: "b"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/changes/2/submit", SubmitRequest{BranchName: "b"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[SubmitError](t, rec)
	assert.Equal(t, http.StatusInternalServerError, body.StatusCode)
	assert.Contains(t, body.Error, "push rejected")

	rec = env.do(t, http.MethodPost, "/api/v1/changes/3/submit", SubmitRequest{BranchName: "b"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	assert.Equal(t, 3, env.store.Len(), "failed submissions keep their changes")
}

func TestSubmit_InProgressConflict(t *testing.T) {
	env := newTestEnv(t)
	env.updater.block = make(chan struct{})
	env.updater.started = make(chan struct{}, 1)
	env.store.Record(1, pending.LibraryField("a"), "v2", "v1")

	done := make(chan int, 1)
	go func() {
		done <- env.do(t, http.MethodPost, "/api/v1/changes/1/submit", SubmitRequest{BranchName: "b"}).Code
	}()
	<-env.updater.started

	rec := env.do(t, http.MethodPost, "/api/v1/changes/1/submit", SubmitRequest{BranchName: "b"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(env.updater.block)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestSubmitAll(t *testing.T) {
	env := newTestEnv(t)
	env.updater.failFor[2] = &models.APIError{StatusCode: http.StatusBadGateway, Message: "gitlab down"}
	env.store.Record(1, pending.LibraryField("a"), "v2", "v1")
	env.store.Record(2, pending.LibraryField("a"), "v2", "v1")

	rec := env.do(t, http.MethodPost, "/api/v1/changes/submit-all", SubmitRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/changes/submit-all", SubmitRequest{BranchName: "deps"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Results []SubmitAllItem       `json:"results"`
		Summary pending.AggregateView `json:"summary"`
	}](t, rec)
	require.Len(t, body.Results, 2)
	assert.Equal(t, http.StatusOK, body.Results[0].Status)
	assert.NotNil(t, body.Results[0].Outcome)
	assert.Equal(t, http.StatusBadGateway, body.Results[1].Status)
	assert.Equal(t, 1, body.Summary.ProjectsWithChanges)
}

func TestSearchProjects_RefreshesCache(t *testing.T) {
	env := newTestEnv(t)
	env.searcher.resp = &models.SearchResponse{
		Projects: []models.Project{{ID: 11, Name: "billing-api", GoVersion: "1.21"}},
		Count:    1,
	}

	rec := env.do(t, http.MethodGet, "/api/v1/projects/search?library=golang.org/x/time&version=v0.5.0&use_cache=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "golang.org/x/time", env.searcher.criteria.Library)
	assert.True(t, env.searcher.criteria.UseCache)

	name, ok := env.cache.ProjectName(11)
	require.True(t, ok)
	assert.Equal(t, "billing-api", name)

	rec = env.do(t, http.MethodGet, "/api/v1/projects/search?use_cache=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.searcher.err = errors.New("backend down")
	rec = env.do(t, http.MethodGet, "/api/v1/projects/search", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListBranches(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/projects/11/branches", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	env.server.deps.GitLab = &stubGitLab{}
	env.cache.Replace([]models.Project{{ID: 11, Name: "Billing API"}})

	rec = env.do(t, http.MethodGet, "/api/v1/projects/11/branches?search=deps", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Branches  []models.Branch `json:"branches"`
		Suggested string          `json:"suggested"`
	}](t, rec)
	assert.Len(t, body.Branches, 2)
	assert.Equal(t, "update-deps", body.Branches[1].Name)
	assert.Equal(t, "update-libraries-billing-api", body.Suggested)
}

func TestListHistory_Validation(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/history?limit=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/history?project=x", nil).Code)

	rec := env.do(t, http.MethodGet, "/api/v1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestLiveChanges(t *testing.T) {
	env := newTestEnv(t)
	env.store.Record(1, pending.LibraryField("a"), "v2", "v1")
	require.Eventually(t, func() bool { return len(env.server.hub.broadcast) == 0 }, 2*time.Second, 10*time.Millisecond)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/changes/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readMessage := func() (string, pending.AggregateView) {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg struct {
			Type string                `json:"type"`
			Data pending.AggregateView `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg.Type, msg.Data
	}

	msgType, view := readMessage()
	assert.Equal(t, "changes.snapshot", msgType)
	assert.Equal(t, 1, view.TotalLibraryChanges)

	require.Eventually(t, func() bool { return env.server.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.store.Record(2, pending.GoVersionField(), "1.22", "1.21")

	msgType, view = readMessage()
	assert.Equal(t, "changes.updated", msgType)
	assert.Equal(t, 2, view.ProjectsWithChanges)
	assert.True(t, view.HasGoVersionChange)
}

func TestHub_SnapshotTakenAtRegistration(t *testing.T) {
	env := newTestEnv(t)
	hub := env.server.hub

	client := &liveClient{id: "test", hub: hub, send: make(chan Message, clientBuffer)}
	client.snapshot = func() Message {
		return Message{Type: "changes.snapshot", Timestamp: time.Now(), Data: env.store.Summary()}
	}

	// an edit between accepting the connection and registering it
	env.store.Record(1, pending.LibraryField("a"), "v2", "v1")
	require.True(t, hub.add(client))

	select {
	case msg := <-client.send:
		assert.Equal(t, "changes.snapshot", msg.Type)
		view, ok := msg.Data.(pending.AggregateView)
		require.True(t, ok)
		assert.Equal(t, 1, view.TotalLibraryChanges)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}

	env.store.Record(2, pending.GoVersionField(), "1.22", "1.21")
	for {
		select {
		case msg := <-client.send:
			view := msg.Data.(pending.AggregateView)
			if view.ProjectsWithChanges == 2 {
				assert.Equal(t, "changes.updated", msg.Type)
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatal("registered client missed the update")
		}
	}
}

func TestGitLabProjects(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/gitlab/projects?search=billing", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	gl := &stubGitLab{}
	env.server.deps.GitLab = gl

	rec = env.do(t, http.MethodGet, "/api/v1/gitlab/projects?search=billing&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "billing", gl.query)
	assert.Equal(t, 5, gl.limit)

	body := decode[struct {
		Projects []models.Project `json:"projects"`
		Count    int              `json:"count"`
	}](t, rec)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "payments/billing-api", body.Projects[0].Path)

	rec = env.do(t, http.MethodGet, "/api/v1/gitlab/projects?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCachedProjects(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
	assert.NotContains(t, rec.Body.String(), "updated_at")

	env.searcher.resp = &models.SearchResponse{
		Projects: []models.Project{{ID: 12, Name: "ledger"}, {ID: 11, Name: "billing-api"}},
		Count:    2,
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/projects/search", nil).Code)

	rec = env.do(t, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Projects  []models.Project `json:"projects"`
		Count     int              `json:"count"`
		UpdatedAt time.Time        `json:"updated_at"`
	}](t, rec)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, 12, body.Projects[0].ID)
	assert.False(t, body.UpdatedAt.IsZero())
}
