package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"paretodesk/internal/config"
	"paretodesk/internal/design"
	"paretodesk/internal/optimizer"
	"paretodesk/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubOptimizer struct {
	mu        sync.Mutex
	err       error
	downloads []int
}

func (s *stubOptimizer) Optimize(ctx context.Context, req types.OptimizeRequest) (*optimizer.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return front(), nil
}

func (s *stubOptimizer) Demo(ctx context.Context) (*optimizer.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := front()
	r.Cached = true
	return r, nil
}

func (s *stubOptimizer) Download(ctx context.Context, designID int) (*optimizer.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads = append(s.downloads, designID)
	return &optimizer.Asset{
		Body:        io.NopCloser(strings.NewReader("PK-archive")),
		ContentType: "application/zip",
		Filename:    "design.zip",
	}, nil
}

func front() *optimizer.Result {
	rec := func(id int, mass, cost, stress float64) design.Record {
		return design.Record{ID: &id, Mass: mass, Cost: cost, StressPredicted: &stress}
	}
	return &optimizer.Result{
		Records:     []design.Record{rec(1, 8.82, 10.32, 12), rec(2, 9.18, 10.31, 11), rec(3, 10.4, 9.9, 9)},
		Generations: 50,
		Evaluations: 2000,
	}
}

func newTestServer(t *testing.T, opt *stubOptimizer) *Server {
	t.Helper()
	cfg := config.Config{
		OptimizerURL:     "http://optimizer.test",
		OptimizerTimeout: time.Second,
		CORSOrigins:      []string{"*"},
	}
	s := NewServer(cfg, opt, nil)
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &stubOptimizer{})
	w := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestAdvisor(t *testing.T) {
	s := newTestServer(t, &stubOptimizer{})

	w := do(t, s, http.MethodPost, "/api/advisor", map[string]any{"load": 250, "environment": "Industrial", "budget": "low"})
	require.Equal(t, http.StatusOK, w.Code)
	var advice struct {
		Recommendation struct {
			Material string `json:"material"`
		} `json:"recommendation"`
		Comparison []map[string]any `json:"comparison"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &advice))
	assert.Equal(t, "Steel1045", advice.Recommendation.Material)
	assert.Len(t, advice.Comparison, 3)
}

func TestAdvisor_RejectsNegativeLoad(t *testing.T) {
	s := newTestServer(t, &stubOptimizer{})

	w := do(t, s, http.MethodPost, "/api/advisor", map[string]any{"load": -5, "environment": "general", "budget": "low"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[struct {
		Error  string `json:"error"`
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	}](t, w)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "load", body.Fields[0].Field)

	w = do(t, s, http.MethodPost, "/api/advisor", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMaterials(t *testing.T) {
	s := newTestServer(t, &stubOptimizer{})
	w := do(t, s, http.MethodGet, "/api/materials", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Materials []map[string]any `json:"materials"`
	}](t, w)
	assert.Len(t, body.Materials, 3)
}

func TestDesigns_NoCatalog(t *testing.T) {
	s := newTestServer(t, &stubOptimizer{})
	w := do(t, s, http.MethodGet, "/api/designs", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDemoSelectCompareFlow(t *testing.T) {
	s := newTestServer(t, &stubOptimizer{})

	w := do(t, s, http.MethodPost, "/api/demo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[types.CatalogView](t, w)
	assert.Len(t, view.Designs, 3)
	assert.True(t, view.Cached)
	assert.Equal(t, "PLA", view.Material)

	w = do(t, s, http.MethodPost, "/api/select", map[string]any{"design_id": 1, "compare_requested": true})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, s, http.MethodPost, "/api/select", map[string]any{"design_id": 2, "compare_requested": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/api/selection", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[types.SelectionSnapshot](t, w)
	assert.Equal(t, []int{1, 2}, snap.Selected)
	require.NotNil(t, snap.Comparison)
	assert.InDelta(t, 0.36, snap.Comparison.Mass.Value, 1e-9)

	w = do(t, s, http.MethodPost, "/api/select", map[string]any{"design_id": 99})
	require.Equal(t, http.StatusOK, w.Code)
	applied := decode[struct {
		Applied bool `json:"applied"`
	}](t, w)
	assert.False(t, applied.Applied)

	w = do(t, s, http.MethodPost, "/api/select", map[string]any{"compare_requested": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/comparison/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap = decode[types.SelectionSnapshot](t, w)
	assert.Equal(t, "single", string(snap.Mode))
	assert.Empty(t, snap.Selected)
}

func TestDownload(t *testing.T) {
	opt := &stubOptimizer{}
	s := newTestServer(t, opt)

	w := do(t, s, http.MethodGet, "/api/download", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/demo", nil).Code)

	w = do(t, s, http.MethodGet, "/api/download", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "select a design")

	w = do(t, s, http.MethodGet, "/api/designs/abc/download", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodGet, "/api/designs/42/download", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, opt.downloads)

	w = do(t, s, http.MethodGet, "/api/designs/3/download", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PK-archive", w.Body.String())
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="design.zip"`)
	assert.Equal(t, []int{3}, opt.downloads)
}

func TestOptimize(t *testing.T) {
	s := newTestServer(t, &stubOptimizer{})

	w := do(t, s, http.MethodPost, "/api/optimize", map[string]any{"load": 0, "material": "PLA"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/optimize", map[string]any{"load": 50, "material": "unobtainium"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/optimize?wait=true", map[string]any{"load": 50, "material": "aluminum6061"})
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[types.CatalogView](t, w)
	assert.Equal(t, "Aluminum6061", view.Material)
	assert.Equal(t, 276.0, view.YieldStrength)

	w = do(t, s, http.MethodPost, "/api/optimize", map[string]any{"load": 50})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"started"`)
}

func TestOptimize_ServiceError(t *testing.T) {
	s := newTestServer(t, &stubOptimizer{err: optimizer.ErrService})
	w := do(t, s, http.MethodPost, "/api/optimize?wait=true", map[string]any{"load": 50})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, &stubOptimizer{})
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/demo", nil).Code)

	w := do(t, s, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[types.StatusSnapshot](t, w)
	assert.Equal(t, "operational", st.Status)
	assert.Equal(t, 3, st.Designs)
	assert.Equal(t, 3, st.Materials)
	assert.Equal(t, "http://optimizer.test", st.OptimizerURL)
}

func TestWebsocketActivation(t *testing.T) {
	s := newTestServer(t, &stubOptimizer{})
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/demo", nil).Code)

	ts := httptest.NewServer(s.Router)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(types.ClientMessage{Type: types.MessageActivate, DesignID: intPtr(2)}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	type wsEvent struct {
		Type    string `json:"type"`
		Payload struct {
			State struct {
				Selected []int `json:"selected"`
			} `json:"state"`
			Design *design.Design `json:"design"`
		} `json:"payload"`
	}
	// Events from the demo install may still be in flight; skip them.
	var ev wsEvent
	for {
		ev = wsEvent{}
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == "state" && ev.Payload.Design != nil {
			break
		}
	}
	assert.Equal(t, []int{2}, ev.Payload.State.Selected)
	assert.Equal(t, 2, ev.Payload.Design.ID)
	assert.Equal(t, []int{2}, s.orch.Selection().Selected)
}

func intPtr(v int) *int { return &v }
