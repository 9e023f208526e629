package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flemzord/memgraph/internal/embedding/embedtest"
	"github.com/flemzord/memgraph/internal/memory"
	"github.com/flemzord/memgraph/internal/metrics"
	"github.com/flemzord/memgraph/internal/recorder"
	"github.com/flemzord/memgraph/internal/retrieval"
)

const testToken = "test-token"

type testEnv struct {
	handler http.Handler
	rec     *recorder.Recorder
	graph   *memory.InMemoryGraph
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	reg := memory.NewRegistry()
	graph := memory.NewInMemoryGraph(reg)
	cache := memory.NewSessionCache()
	m := metrics.New()
	rec := recorder.New(graph, graph, reg, cache, nil, m)
	engine := retrieval.NewEngine(graph, graph, retrieval.Config{}, nil, m)

	g := New(Config{BearerToken: testToken}, engine, rec, cache, &embedtest.Provider{}, nil, m)
	return &testEnv{handler: g.buildRouter(), rec: rec, graph: graph}
}

func (env *testEnv) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

func TestHealthIsPublic(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("status = %q, want ok", resp.Status)
	}
}

func TestMetricsIsPublic(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/metrics", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "memgraph_") {
		t.Fatal("metrics output should contain memgraph collectors")
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/sessions/s1/summary", "", false); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s1/summary", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", w.Code)
	}
}

func TestSessionSummary(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := t.Context()
	if _, err := env.rec.RememberFact(ctx, "s1", "likes gardens", ""); err != nil {
		t.Fatalf("RememberFact: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/sessions/s1/summary", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp retrieval.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.NodeCount != 1 || len(resp.RecentNodes) != 1 {
		t.Fatalf("summary = %+v, want one node", resp)
	}
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := t.Context()
	if _, err := env.rec.RememberFact(ctx, "s1", "likes gardens", ""); err != nil {
		t.Fatalf("RememberFact: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/sessions/s1/retrieve", `{"query":"gardens","limit":5}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Nodes []retrieval.ScoredNode `json:"nodes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Nodes) != 1 || resp.Nodes[0].Summary != "likes gardens" {
		t.Fatalf("nodes = %+v, want the stored fact", resp.Nodes)
	}
}

func TestClearSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := t.Context()
	if _, err := env.rec.RememberFact(ctx, "s1", "likes gardens", ""); err != nil {
		t.Fatalf("RememberFact: %v", err)
	}

	w := env.do(t, http.MethodDelete, "/api/sessions/s1", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp recorder.ClearResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.NodesDeleted != 1 {
		t.Fatalf("result = %+v, want one node deleted", resp)
	}
}

func TestFindRelatedErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/nodes/ghost/related", "", true); w.Code != http.StatusNotFound {
		t.Fatalf("unknown node status = %d, want 404", w.Code)
	}

	node, err := env.rec.RememberFact(t.Context(), "s1", "anchor", "")
	if err != nil {
		t.Fatalf("RememberFact: %v", err)
	}
	if w := env.do(t, http.MethodGet, "/api/nodes/"+node.ID+"/related?relation=knows", "", true); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown relation status = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/nodes/"+node.ID+"/related", "", true); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
