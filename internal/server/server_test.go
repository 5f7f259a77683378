package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/emilythestrangee/thumbsup/internal/handlers"
	"github.com/emilythestrangee/thumbsup/internal/memstore"
	"github.com/emilythestrangee/thumbsup/internal/metrics"
	"github.com/emilythestrangee/thumbsup/internal/middleware"
	"github.com/emilythestrangee/thumbsup/internal/models"
	"github.com/emilythestrangee/thumbsup/internal/votes"
)

var secret = []byte("test-secret-0123456789")

type testServer struct {
	router *gin.Engine
	store  *memstore.Store
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New()
	store.PutEntity(models.Ref{Type: models.UserKind, ID: 1}, map[string]any{"username": "alice"})
	store.PutEntity(models.Ref{Type: models.UserKind, ID: 2}, map[string]any{"username": "bob"})
	store.PutEntity(models.Ref{Type: models.PostKind, ID: 1}, map[string]any{"title": "hello", "vote_count": int64(0)})
	store.PutEntity(models.Ref{Type: models.PostKind, ID: 2}, map[string]any{"title": "world", "vote_count": int64(0)})
	store.PutEntity(models.Ref{Type: models.CommentKind, ID: 1}, map[string]any{"post_id": int64(1), "votes_count": int64(0)})

	registry, err := votes.NewRegistry(
		votes.CounterColumn{Kind: models.PostKind},
		votes.CounterColumn{Kind: models.CommentKind, Column: "votes_count", Mode: votes.CounterCount},
	)
	require.NoError(t, err)
	reg := metrics.Registry()
	svc := votes.NewService(store, registry, zap.NewNop(), metrics.NewVotes(reg))

	handler := handlers.NewHandler(nil, svc, secret, zap.NewNop())
	token, err := middleware.IssueToken(secret, 1, "alice")
	require.NoError(t, err)

	return &testServer{
		router: New(nil, handler, reg, secret, zap.NewNop()).RegisterRoutes(),
		store:  store,
		token:  token,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, auth bool) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && strings.HasPrefix(w.Body.String(), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestVotingRequiresToken(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/votes/posts/1", `{"value":"up"}`, false)
	assert.Equal(t, http.StatusUnauthorized, code)

	s.token = "not-a-token"
	code, _ = s.do(t, http.MethodPost, "/api/votes/posts/1", `{"value":"up"}`, true)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCastAndClearVote(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/api/votes/posts/1", `{"value":"up"}`, true)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(1), body["vote_counter"])

	code, body = s.do(t, http.MethodPost, "/api/votes/posts/1", `{"value":"gold","exclusive":true}`, true)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(3), body["vote_counter"])

	code, body = s.do(t, http.MethodGet, "/api/votes/posts/1", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["votes_count"])
	assert.Equal(t, float64(1), body["golds"])

	code, body = s.do(t, http.MethodGet, "/api/votes/posts/1/me", "", true)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["voted_on"])
	assert.Equal(t, true, body["gold"])
	assert.Equal(t, false, body["voted_against"])

	code, body = s.do(t, http.MethodDelete, "/api/votes/posts/1", "", true)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["removed"])

	code, body = s.do(t, http.MethodPost, "/api/votes/posts/1/counter", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["vote_counter"])
}

func TestCastVoteRejects(t *testing.T) {
	s := newTestServer(t)

	tests := map[string]struct {
		path string
		body string
		want int
	}{
		"missing value": {"/api/votes/posts/1", `{}`, http.StatusBadRequest},
		"zero value":    {"/api/votes/posts/1", `{"value":0}`, http.StatusBadRequest},
		"fraction":      {"/api/votes/posts/1", `{"value":1.5}`, http.StatusBadRequest},
		"unknown value": {"/api/votes/posts/1", `{"value":"sideways"}`, http.StatusBadRequest},
		"unknown kind":  {"/api/votes/widgets/1", `{"value":"up"}`, http.StatusNotFound},
		"missing post":  {"/api/votes/posts/99", `{"value":"up"}`, http.StatusNotFound},
		"bad id":        {"/api/votes/posts/abc", `{"value":"up"}`, http.StatusBadRequest},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			code, _ := s.do(t, http.MethodPost, tc.path, tc.body, true)
			assert.Equal(t, tc.want, code)
		})
	}

	found, err := s.store.Count(t.Context(), votes.Filter{})
	require.NoError(t, err)
	assert.Zero(t, found)
}

func TestTallyRoute(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/api/votes/posts/2", `{"value":"up"}`, true)
	require.Equal(t, http.StatusCreated, code)
	code, _ = s.do(t, http.MethodPost, "/api/votes/posts/2", `{"value":"down"}`, true)
	require.Equal(t, http.StatusCreated, code)
	code, _ = s.do(t, http.MethodPost, "/api/votes/posts/1", `{"value":"up"}`, true)
	require.Equal(t, http.StatusCreated, code)

	req := httptest.NewRequest(http.MethodGet, "/api/tally/posts?at_least=1&where=title:ne:nothing", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var rows []votes.TallyRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].Ref.ID)
	assert.Equal(t, int64(2), rows[0].VoteCount)

	code, _ = s.do(t, http.MethodGet, "/api/tally/posts?limit=-1", "", false)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodGet, "/api/tally/posts?order=title:sideways", "", false)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodGet, "/api/tally/widgets", "", false)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMyVotesAndReconcile(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/api/votes/posts/1", `{"value":"up"}`, true)
	require.Equal(t, http.StatusCreated, code)
	code, _ = s.do(t, http.MethodPost, "/api/votes/posts/2", `{"value":"down"}`, true)
	require.Equal(t, http.StatusCreated, code)

	code, body := s.do(t, http.MethodGet, "/api/me/votes?direction=down", "", true)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["vote_count"])

	code, _ = s.do(t, http.MethodGet, "/api/me/votes?direction=sideways", "", true)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodPost, "/api/admin/reconcile", "", true)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["repaired"])
}

func TestCommentVotesCount(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodPost, "/api/votes/comments/1", `{"value":"up"}`, true)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(1), body["vote_counter"])

	// count mode: a down vote still adds one
	code, body = s.do(t, http.MethodPost, "/api/votes/comments/1", `{"value":"down"}`, true)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(2), body["vote_counter"])

	attrs, ok := s.store.Entity(models.Ref{Type: models.CommentKind, ID: 1})
	require.True(t, ok)
	assert.Equal(t, int64(2), attrs["votes_count"])

	code, body = s.do(t, http.MethodGet, "/api/votes/comments/1", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["votes_count"])
	assert.Equal(t, float64(0), body["plusminus"])

	code, _ = s.do(t, http.MethodPost, "/api/votes/comments/2", `{"value":"up"}`, true)
	assert.Equal(t, http.StatusNotFound, code)
}
