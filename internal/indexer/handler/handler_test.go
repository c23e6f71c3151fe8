package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/post"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/tree"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/health"
)

func newServer(t *testing.T, tr tree.Engine) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	New(indexer.New(tr, nil)).Register(mux, health.NewChecker())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodePost(t *testing.T, resp *http.Response) post.Post {
	t.Helper()
	var p post.Post
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return p
}

func seed(t *testing.T, base string) {
	t.Helper()
	for _, body := range []string{
		`{"id":"a","timestamp":100,"score":5}`,
		`{"id":"b","timestamp":200,"score":9}`,
		`{"id":"c","timestamp":150,"score":7}`,
	} {
		resp := do(t, http.MethodPost, base+"/api/v1/posts", body)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
}

func TestPostLifecycle(t *testing.T) {
	for _, kind := range tree.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			tr, err := tree.New(kind, tree.Options{Seed: 7})
			require.NoError(t, err)
			srv := newServer(t, tr)
			seed(t, srv.URL)

			resp := do(t, http.MethodGet, srv.URL+"/api/v1/posts/c", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, post.Post{ID: "c", Timestamp: 150, Score: 7}, decodePost(t, resp))

			resp = do(t, http.MethodGet, srv.URL+"/api/v1/posts/popular", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "b", decodePost(t, resp).ID)

			for i := 0; i < 3; i++ {
				resp = do(t, http.MethodPost, srv.URL+"/api/v1/posts/c/like", "")
				require.Equal(t, http.StatusOK, resp.StatusCode)
			}
			assert.EqualValues(t, 10, decodePost(t, resp).Score)

			resp = do(t, http.MethodGet, srv.URL+"/api/v1/posts/popular", "")
			assert.Equal(t, "c", decodePost(t, resp).ID)

			resp = do(t, http.MethodGet, srv.URL+"/api/v1/posts/recent?k=2", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var recent struct {
				K     int         `json:"k"`
				Count int         `json:"count"`
				Posts []post.Post `json:"posts"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&recent))
			require.Equal(t, 2, recent.Count)
			assert.Equal(t, "b", recent.Posts[0].ID)
			assert.Equal(t, "c", recent.Posts[1].ID)

			resp = do(t, http.MethodDelete, srv.URL+"/api/v1/posts/b", "")
			require.Equal(t, http.StatusNoContent, resp.StatusCode)
			resp = do(t, http.MethodGet, srv.URL+"/api/v1/posts/b", "")
			require.Equal(t, http.StatusNotFound, resp.StatusCode)

			resp = do(t, http.MethodGet, srv.URL+"/api/v1/stats", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var stats tree.Stats
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
			assert.Equal(t, kind, stats.Kind)
			assert.EqualValues(t, 2, stats.Nodes)
		})
	}
}

func TestUnknownPostReturns404(t *testing.T) {
	srv := newServer(t, tree.NewBST(0, 0))

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/posts/missing"},
		{http.MethodDelete, "/api/v1/posts/missing"},
		{http.MethodPost, "/api/v1/posts/missing/like"},
		{http.MethodGet, "/api/v1/posts/popular"},
	} {
		resp := do(t, tc.method, srv.URL+tc.path, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, tc.method+" "+tc.path)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	srv := newServer(t, tree.NewBST(0, 0))

	for name, body := range map[string]string{
		"not json":      `{"id":`,
		"empty id":      `{"id":"  ","timestamp":1,"score":1}`,
		"unknown field": `{"id":"x","timestamp":1,"score":1,"extra":true}`,
		"score too big": `{"id":"x","timestamp":1,"score":4294967296}`,
	} {
		resp := do(t, http.MethodPost, srv.URL+"/api/v1/posts", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestCreateAtCapacity(t *testing.T) {
	srv := newServer(t, tree.NewBST(1, 0))

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/posts", `{"id":"a","timestamp":1,"score":1}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = do(t, http.MethodPost, srv.URL+"/api/v1/posts", `{"id":"b","timestamp":2,"score":1}`)
	require.Equal(t, http.StatusInsufficientStorage, resp.StatusCode)
}

func TestRecentValidatesK(t *testing.T) {
	srv := newServer(t, tree.NewTreap(1, 0))
	seed(t, srv.URL)

	for _, k := range []string{"0", "-3", "abc"} {
		resp := do(t, http.MethodGet, srv.URL+"/api/v1/posts/recent?k="+k, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, k)
	}

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/posts/recent", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		K     int `json:"k"`
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 10, body.K)
	assert.Equal(t, 3, body.Count)
}

func TestTreeDump(t *testing.T) {
	srv := newServer(t, tree.NewBST(0, 0))

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/tree", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sb bytes.Buffer
	_, err := sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "The tree is empty.")

	seed(t, srv.URL)
	resp = do(t, http.MethodGet, srv.URL+"/api/v1/tree", "")
	sb.Reset()
	_, err = sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "ROOT: TS: 100 | ID: a | Score: 5")
}

func TestHealthRoutes(t *testing.T) {
	srv := newServer(t, tree.NewBST(0, 0))

	resp := do(t, http.MethodGet, srv.URL+"/health/live", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, http.MethodGet, srv.URL+"/health/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
