package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"corrplot-backend/internal/config"
	"corrplot-backend/internal/model"
	"corrplot-backend/internal/plot"
	"corrplot-backend/internal/service"
	"corrplot-backend/internal/storage"

	"github.com/gin-gonic/gin"
)

const resultCSV = "t,N,thermal,1,2,3,4,I1,I2,I3,I4\n" +
	"0,4,0,0.1,1,0.2,0.05,0,0,0,0\n" +
	"0.5,4,0,0.2,0.8,0.3,0.1,0.01,0.1,0.02,0.01\n" +
	"1,4,0,0.3,0.6,0.3,0.2,0.02,0.2,0.05,0.02\n"

const testKey = "Correlation_false_4_0.1_1_50.csv"

// fakeSimulator 把固定结果写进结果目录
type fakeSimulator struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSimulator) Run(_ context.Context, dir, _ string, _ []string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := filepath.Join(dir, "code", ".results", "correlationx", "XXZ")
	if err := os.MkdirAll(out, 0755); err != nil {
		return nil, err
	}
	return nil, os.WriteFile(filepath.Join(out, "result.csv"), []byte(resultCSV), 0644)
}

func newTestRouter(t *testing.T, sim *fakeSimulator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	workDir := t.TempDir()
	cfg.Simulation.WorkDir = workDir
	cfg.Web.StaticDir = ""

	cache := storage.NewDiskCache(filepath.Join(workDir, "cache"), 4)
	if err := cache.Init(); err != nil {
		t.Fatal(err)
	}
	ledger, err := storage.NewSQLiteLedger(filepath.Join(workDir, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })

	svc := service.NewSimulationService(cfg.Simulation, cache, ledger, sim)
	h := NewCorrelationHandler(svc, plot.NewRenderer(plot.Options{DPI: 40}))

	router, err := NewRouter(cfg, h)
	if err != nil {
		t.Fatal(err)
	}
	return router
}

func validForm() url.Values {
	return url.Values{
		"thermal": {"false"},
		"N":       {"4"},
		"Delta":   {"0.1"},
		"time":    {"1"},
		"MaxDim":  {"50"},
	}
}

func do(router *gin.Engine, method, target string, body *strings.Reader, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func postForm(router *gin.Engine, target string, form url.Values) *httptest.ResponseRecorder {
	return do(router, http.MethodPost, target, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &fakeSimulator{})
	w := do(router, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}

func TestPageShowsDefaultImages(t *testing.T) {
	router := newTestRouter(t, &fakeSimulator{})
	w := do(router, http.MethodGet, "/correlation", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, defaultCorrelationURL) || !strings.Contains(body, defaultAutoCorrelationURL) {
		t.Errorf("default images missing:\n%s", body)
	}
}

func TestSubmitRendersImages(t *testing.T) {
	sim := &fakeSimulator{}
	router := newTestRouter(t, sim)

	w := postForm(router, "/correlation", validForm())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if strings.Count(body, "data:image/png;base64,") != 2 {
		t.Errorf("expected two embedded images")
	}
	if strings.Contains(body, "ZgotmplZ") {
		t.Error("data uri was sanitized by the template")
	}
	if sim.calls.Load() != 1 {
		t.Errorf("expected one invocation, got %d", sim.calls.Load())
	}

	// 第二次命中缓存
	w = postForm(router, "/correlation", validForm())
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "(cached)") {
		t.Errorf("expected cached page, got %d", w.Code)
	}
	if sim.calls.Load() != 1 {
		t.Errorf("cache hit should not invoke, got %d calls", sim.calls.Load())
	}
}

func TestSubmitMissingParameter(t *testing.T) {
	sim := &fakeSimulator{}
	router := newTestRouter(t, sim)

	form := validForm()
	form.Del("MaxDim")
	w := postForm(router, "/correlation", form)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `class="error"`) {
		t.Error("error message missing from page")
	}
	if sim.calls.Load() != 0 {
		t.Error("simulation must not run on invalid input")
	}
}

func TestComputeJSON(t *testing.T) {
	sim := &fakeSimulator{}
	router := newTestRouter(t, sim)
	body := `{"thermal": false, "N": 4, "Delta": 0.1, "time": 1, "MaxDim": 50, "nSweeps": 3}`

	var first, second model.CorrelationResponse
	for i, out := range []*model.CorrelationResponse{&first, &second} {
		w := do(router, http.MethodPost, "/api/correlation", strings.NewReader(body), "application/json")
		if w.Code != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatal(err)
		}
	}

	if first.CacheKey != testKey || first.CacheHit {
		t.Errorf("unexpected first response key=%s hit=%v", first.CacheKey, first.CacheHit)
	}
	if !second.CacheHit {
		t.Error("second call should hit the cache")
	}
	if first.Correlation != second.Correlation {
		t.Error("same input should render the same image")
	}
	if sim.calls.Load() != 1 {
		t.Errorf("expected one invocation, got %d", sim.calls.Load())
	}
}

func TestComputeJSONBindingError(t *testing.T) {
	router := newTestRouter(t, &fakeSimulator{})
	w := do(router, http.MethodPost, "/api/correlation", strings.NewReader(`{"N": 4}`), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestComputeFormInvalid(t *testing.T) {
	router := newTestRouter(t, &fakeSimulator{})
	form := validForm()
	form.Set("N", "four")

	w := postForm(router, "/api/correlation", form)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp model.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Kind != "invalid_parameter" || resp.RequestID == "" {
		t.Errorf("unexpected error response %+v", resp)
	}
}

func TestComputeInvocationFailure(t *testing.T) {
	router := newTestRouter(t, &fakeSimulator{err: fmt.Errorf("exit status 2")})

	w := postForm(router, "/api/correlation", validForm())
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	router := newTestRouter(t, &fakeSimulator{})
	if w := postForm(router, "/api/correlation", validForm()); w.Code != http.StatusOK {
		t.Fatalf("compute failed: %d", w.Code)
	}

	w := do(router, http.MethodGet, "/api/cache", nil, "")
	var listing struct {
		Entries []model.CacheEntry `json:"entries"`
		Stats   model.CacheStats   `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.Entries) != 1 || listing.Entries[0].Key != testKey {
		t.Fatalf("unexpected entries %+v", listing.Entries)
	}

	if w := do(router, http.MethodDelete, "/api/cache/"+testKey, nil, ""); w.Code != http.StatusOK {
		t.Errorf("delete: expected 200, got %d", w.Code)
	}
	if w := do(router, http.MethodDelete, "/api/cache/"+testKey, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", w.Code)
	}
	if w := do(router, http.MethodDelete, "/api/cache/.hidden", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid key: expected 400, got %d", w.Code)
	}

	w = do(router, http.MethodDelete, "/api/cache", nil, "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"removed":0`)) {
		t.Errorf("unexpected clear response %d %s", w.Code, w.Body.String())
	}
}

func TestRunsEndpoint(t *testing.T) {
	router := newTestRouter(t, &fakeSimulator{})
	postForm(router, "/api/correlation", validForm())
	postForm(router, "/api/correlation", validForm())

	w := do(router, http.MethodGet, "/api/runs?limit=10", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Runs    []model.RunRecord `json:"runs"`
		Summary model.RunSummary  `json:"summary"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Runs) != 2 || resp.Summary.Hits != 1 || resp.Summary.Misses != 1 {
		t.Errorf("unexpected runs %+v summary %+v", resp.Runs, resp.Summary)
	}

	if w := do(router, http.MethodGet, "/api/runs?limit=x", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: N", service.ErrMissingParameter), http.StatusBadRequest},
		{fmt.Errorf("%w: N", service.ErrInvalidParameter), http.StatusBadRequest},
		{&service.SimulationError{Stage: service.StageInvoke, Err: service.ErrInvocationFailed}, http.StatusBadGateway},
		{&service.SimulationError{Stage: service.StageInvoke, Err: fmt.Errorf("%w: %w", service.ErrInvocationFailed, context.DeadlineExceeded)}, http.StatusGatewayTimeout},
		{&service.SimulationError{Stage: service.StageLocate, Err: service.ErrResultNotFound}, http.StatusInternalServerError},
		{&service.SimulationError{Stage: service.StageLocate, Err: service.ErrAmbiguousResult}, http.StatusInternalServerError},
		{&service.SimulationError{Stage: service.StageLoad, Err: service.ErrInvalidResult}, http.StatusInternalServerError},
		{fmt.Errorf("render: %w", plot.ErrDegenerateDataset), http.StatusUnprocessableEntity},
		{plot.ErrMixedDataset, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got, _ := errorStatus(tt.err); got != tt.status {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.status, got)
		}
	}
}
