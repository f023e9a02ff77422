package probe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/mec-orchestrator/internal/catalog"
	"github.com/Sh00ty/mec-orchestrator/internal/controller"
	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeContexts struct {
	infos []controller.ContextInfo
	err   error
}

func (f fakeContexts) GetContext(_ context.Context, id models.ContextID) (controller.ContextInfo, error) {
	if f.err != nil {
		return controller.ContextInfo{}, f.err
	}
	for _, info := range f.infos {
		if info.ID == id {
			return info, nil
		}
	}
	return controller.ContextInfo{}, models.ErrNotFound
}

func (f fakeContexts) ListContexts(context.Context) ([]controller.ContextInfo, error) {
	return f.infos, f.err
}

var created = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, contexts Contexts, ready Pinger) *Server {
	t.Helper()
	apps, err := catalog.New(
		models.AppDescriptor{AppDID: "my_app_1", AppName: "gw", AppProvider: "acme"},
		models.AppDescriptor{AppDID: "my_app_2", AppName: "cdn", AppProvider: "other"},
	)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_test_total"}))
	return New(":0", contexts, apps, ready, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), zerolog.Nop())
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, fakeContexts{}, nil)

	rec := do(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "probe_test_total")
}

func TestReady(t *testing.T) {
	s := newTestServer(t, fakeContexts{}, func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, do(t, s, "/ready").Code)

	s = newTestServer(t, fakeContexts{}, func(context.Context) error { return errors.New("etcd is down") })
	rec := do(t, s, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "etcd is down")
}

func TestDebugContexts(t *testing.T) {
	info := controller.ContextInfo{
		AppContext: models.AppContext{
			ID:         "ctx-1",
			AppDID:     "my_app_1",
			PlatformID: "P2",
			State:      models.ContextActive,
			Version:    3,
			CreatedAt:  created,
			UpdatedAt:  created,
		},
		ReferenceURI: "http://p2.mec/my_app_1",
	}
	s := newTestServer(t, fakeContexts{infos: []controller.ContextInfo{info}}, nil)

	rec := do(t, s, "/debug/contexts")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Contexts []contextDto `json:"contexts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	want := contextDto{
		ContextID:    "ctx-1",
		AppDID:       "my_app_1",
		PlatformID:   "P2",
		ReferenceURI: "http://p2.mec/my_app_1",
		State:        "active",
		Version:      3,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	if diff := cmp.Diff([]contextDto{want}, list.Contexts); diff != "" {
		t.Errorf("contexts mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, s, "/debug/contexts/ctx-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var got contextDto
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want, got)

	assert.Equal(t, http.StatusNotFound, do(t, s, "/debug/contexts/missing").Code)
}

func TestDebugContextsRegistryFailure(t *testing.T) {
	s := newTestServer(t, fakeContexts{err: errors.New("boom")}, nil)
	assert.Equal(t, http.StatusInternalServerError, do(t, s, "/debug/contexts").Code)
}

func TestDebugApplications(t *testing.T) {
	s := newTestServer(t, fakeContexts{}, nil)

	rec := do(t, s, "/debug/applications?appProvider=acme")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Applications []models.AppDescriptor `json:"applications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Applications, 1)
	assert.Equal(t, models.AppDID("my_app_1"), body.Applications[0].AppDID)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newTestServer(t, fakeContexts{}, nil)
	s.srv.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
