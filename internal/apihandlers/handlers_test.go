package apihandlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pollster/internal/banner"
	"pollster/internal/devserver"
	"pollster/internal/httpclient"
	"pollster/internal/models"
	"pollster/internal/polling"
	"pollster/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockJobStore struct {
	mock.Mock
}

var _ store.JobStore = (*mockJobStore)(nil)

func (m *mockJobStore) RecordJobStart(ctx context.Context, rec *models.JobRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockJobStore) UpdateJob(ctx context.Context, id uuid.UUID, upd store.JobUpdate) error {
	return m.Called(ctx, id, upd).Error(0)
}

func (m *mockJobStore) GetJob(ctx context.Context, id uuid.UUID) (*models.JobRecord, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*models.JobRecord)
	return rec, args.Error(1)
}

func (m *mockJobStore) ListJobs(ctx context.Context, slot string, limit, offset int) ([]*models.JobRecord, error) {
	args := m.Called(ctx, slot, limit, offset)
	recs, _ := args.Get(0).([]*models.JobRecord)
	return recs, args.Error(1)
}

func (m *mockJobStore) Ping(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockJobStore) Close() error                   { return nil }

type testEnv struct {
	router *gin.Engine
	engine *polling.Engine
	banner *banner.Banner
}

// newTestEnv serves the API over an engine that polls a local dev backend
// answering steps progress polls per job.
func newTestEnv(t *testing.T, steps int, history store.JobStore) *testEnv {
	t.Helper()
	backend := httptest.NewServer(devserver.New(devserver.EchoGenerator{}, nil, devserver.Options{Steps: steps}).Router())
	t.Cleanup(backend.Close)

	client, err := httpclient.New(backend.URL, nil, httpclient.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)

	opts := polling.DefaultOptions()
	opts.Windows = map[polling.Speed]polling.Window{
		polling.SpeedFast: {Min: time.Millisecond, Max: time.Millisecond},
		polling.SpeedLong: {Min: time.Millisecond, Max: time.Millisecond},
	}
	engine := polling.NewEngine(client, opts)

	env := &testEnv{router: gin.New(), engine: engine, banner: banner.New()}
	NewAPIHandler(engine, env.banner, history).Register(env.router)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	return w, decoded
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %v", body)
	return errObj["code"].(string)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 0, nil)
	w, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestListKinds(t *testing.T) {
	env := newTestEnv(t, 0, nil)
	w, body := env.do(t, http.MethodGet, "/api/v1/kinds", "")
	require.Equal(t, http.StatusOK, w.Code)

	kinds := body["data"].([]any)
	assert.Len(t, kinds, len(polling.DefaultRegistry().List()))
}

func TestStartAndWaitForJob(t *testing.T) {
	env := newTestEnv(t, 2, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/jobs/hero?slot=hero-1", `{"socData":"X"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	data := body["data"].(map[string]any)
	assert.Equal(t, "hero-1", data["slot"])
	assert.Equal(t, "hero", data["kind"])
	assert.NotEmpty(t, data["token"])

	w, body = env.do(t, http.MethodGet, "/api/v1/jobs/hero-1?wait=5s", "")
	require.Equal(t, http.StatusOK, w.Code)
	data = body["data"].(map[string]any)
	assert.Equal(t, models.StoreStatusSucceeded, data["status"])
	assert.Equal(t, map[string]any{"kind": "hero", "input": map[string]any{"socData": "X"}}, data["result"])
	assert.Equal(t, true, data["party"])

	w, body = env.do(t, http.MethodGet, "/api/v1/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["data"].([]any), 1)
}

func TestStartJob_Errors(t *testing.T) {
	env := newTestEnv(t, 0, nil)

	w, body := env.do(t, http.MethodPost, "/api/v1/jobs/unknown-kind", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, body))

	w, body = env.do(t, http.MethodPost, "/api/v1/jobs/hero", `{broken`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", errorCode(t, body))
}

func TestStartJob_UpstreamFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()
	client, err := httpclient.New(backend.URL, nil, httpclient.Options{Timeout: time.Second})
	require.NoError(t, err)

	router := gin.New()
	NewAPIHandler(polling.NewEngine(client, polling.DefaultOptions()), banner.New(), nil).Register(router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/hero?slot=s", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "start_failed")
}

func TestGetJob_NotFoundAndBadWait(t *testing.T) {
	env := newTestEnv(t, 0, nil)

	w, body := env.do(t, http.MethodGet, "/api/v1/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, body))

	w, _ = env.do(t, http.MethodGet, "/api/v1/jobs/missing?wait=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelJob(t *testing.T) {
	// Enough steps that the job is still loading when the cancel arrives.
	env := newTestEnv(t, 100000, nil)

	w, _ := env.do(t, http.MethodPost, "/api/v1/jobs/faq?slot=faq-1", `{}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w, body := env.do(t, http.MethodDelete, "/api/v1/jobs/faq-1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := body["data"].(map[string]any)
	assert.Equal(t, models.StoreStatusFailed, data["status"])
	assert.Equal(t, models.ErrCancelled.Error(), data["error"])

	w, body = env.do(t, http.MethodDelete, "/api/v1/jobs/faq-1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", errorCode(t, body))

	w, _ = env.do(t, http.MethodDelete, "/api/v1/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListHistory(t *testing.T) {
	js := new(mockJobStore)
	rec := &models.JobRecord{ID: uuid.New(), Slot: "s1", Kind: "seo", Status: models.StoreStatusSucceeded}
	js.On("ListJobs", mock.Anything, "s1", 5, 10).Return([]*models.JobRecord{rec}, nil).Once()
	js.On("ListJobs", mock.Anything, "", 20, 0).Return(nil, nil).Once()
	env := newTestEnv(t, 0, js)

	w, body := env.do(t, http.MethodGet, "/api/v1/history?slot=s1&limit=5&offset=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	jobs := body["data"].([]any)
	require.Len(t, jobs, 1)
	assert.Equal(t, "seo", jobs[0].(map[string]any)["kind"])

	w, body = env.do(t, http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["data"])

	w, _ = env.do(t, http.MethodGet, "/api/v1/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	js.AssertExpectations(t)
}

func TestListHistory_StoreError(t *testing.T) {
	js := new(mockJobStore)
	js.On("ListJobs", mock.Anything, "", 20, 0).Return(nil, errors.New("db down"))
	env := newTestEnv(t, 0, js)

	w, body := env.do(t, http.MethodGet, "/api/v1/history", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", errorCode(t, body))
}

func TestListHistory_Disabled(t *testing.T) {
	env := newTestEnv(t, 0, nil)
	w, body := env.do(t, http.MethodGet, "/api/v1/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "history_disabled", errorCode(t, body))
}

func TestBanner(t *testing.T) {
	env := newTestEnv(t, 0, nil)

	w, body := env.do(t, http.MethodGet, "/api/v1/banner", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["data"].(map[string]any)["show"])

	env.banner.Set("")
	_, body = env.do(t, http.MethodGet, "/api/v1/banner", "")
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["show"])
	assert.Equal(t, banner.DefaultMessage, data["message"])

	_, body = env.do(t, http.MethodDelete, "/api/v1/banner", "")
	assert.Equal(t, false, body["data"].(map[string]any)["show"])
}
