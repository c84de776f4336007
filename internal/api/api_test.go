package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fallguard/internal/accident"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/datastore"
	"github.com/tphakala/fallguard/internal/errors"
	"github.com/tphakala/fallguard/internal/status"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveEpisode(ctx context.Context, e accident.Episode) error {
	return m.Called(e).Error(0)
}

func (m *mockStore) GetEpisode(ctx context.Context, id string) (accident.Episode, error) {
	args := m.Called(id)
	return args.Get(0).(accident.Episode), args.Error(1)
}

func (m *mockStore) ListEpisodes(ctx context.Context, opts datastore.ListOptions) ([]accident.Episode, error) {
	args := m.Called(opts)
	return args.Get(0).([]accident.Episode), args.Error(1)
}

func (m *mockStore) CountEpisodes(ctx context.Context, opts datastore.ListOptions) (int64, error) {
	args := m.Called(opts)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Close() error { return nil }

type fakeCoordinator struct {
	mu      sync.Mutex
	snap    accident.Snapshot
	full    bool
	audio   []accident.AudioScore
	frames  []accident.Frame
	sources []accident.SourceEvent
}

func (f *fakeCoordinator) SubmitAudio(s accident.AudioScore) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.audio = append(f.audio, s)
	return true
}

func (f *fakeCoordinator) SubmitFrame(fr accident.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
}

func (f *fakeCoordinator) ReportSource(ev accident.SourceEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, ev)
}

func (f *fakeCoordinator) Snapshot() accident.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type fakeStatus struct{ view status.View }

func (s fakeStatus) View() status.View { return s.view }

type recordedRequest struct {
	method, path string
	code         int
}

type fakeMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
	rejected map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{rejected: make(map[string]int)}
}

func (m *fakeMetrics) RecordHTTPRequest(method, path string, code int, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method, path, code})
}

func (m *fakeMetrics) RecordEvidenceRejected(stream, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[stream+"/"+reason]++
}

type testEnv struct {
	ctrl    *Controller
	coord   *fakeCoordinator
	store   *mockStore
	metrics *fakeMetrics
}

func setupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()
	settings := &conf.Settings{Version: "1.2.3", BuildDate: "2026-01-02"}
	env := &testEnv{
		coord: &fakeCoordinator{snap: accident.Snapshot{
			State:     accident.StateMonitoring,
			StateName: "monitoring",
			EpisodeID: "ep-1",
		}},
		store:   &mockStore{},
		metrics: newFakeMetrics(),
	}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "fallguard_state 1\n")
	})
	view := fakeStatus{view: status.View{Audio: accident.AudioStatus{Alert: true, Score: 0.9}}}
	env.ctrl = New(settings, env.coord, view,
		WithDatastore(env.store),
		WithMetrics(env.metrics, metricsHandler),
		WithEvidenceIngestion(),
	)
	return env
}

func (env *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.ctrl.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	env := setupTestEnvironment(t)
	env.store.On("CountEpisodes", datastore.ListOptions{}).Return(int64(3), nil)

	rec := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "1.2.3", response["version"])
	assert.Equal(t, "2026-01-02", response["build_date"])
	assert.Equal(t, "monitoring", response["state"])
	assert.Equal(t, "connected", response["database_status"])
	assert.Contains(t, response, "system")
}

func TestHealthCheckDegradedDatabase(t *testing.T) {
	env := setupTestEnvironment(t)
	env.store.On("CountEpisodes", datastore.ListOptions{}).Return(int64(0), errors.NewStd("database is locked"))

	rec := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "degraded", response["status"])
	assert.Equal(t, "disconnected", response["database_status"])
}

func TestGetStatus(t *testing.T) {
	env := setupTestEnvironment(t)

	rec := env.do(http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "monitoring", resp.Coordinator.StateName)
	assert.Equal(t, "ep-1", resp.Coordinator.EpisodeID)
	assert.True(t, resp.Status.Audio.Alert)
}

func TestListEpisodes(t *testing.T) {
	env := setupTestEnvironment(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	opts := datastore.ListOptions{Limit: 10, Offset: 5, EmergencyOnly: true, Since: since}
	episodes := []accident.Episode{{ID: "ep-9", EmergencyTriggered: true, Outcome: accident.OutcomeEmergency}}
	env.store.On("ListEpisodes", opts).Return(episodes, nil).Once()
	env.store.On("CountEpisodes", opts).Return(int64(6), nil).Once()

	target := "/api/v1/episodes?limit=10&offset=5&emergency=true&since=2026-03-01T00:00:00Z"
	rec := env.do(http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list EpisodeList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, int64(6), list.Total)
	require.Len(t, list.Episodes, 1)
	assert.Equal(t, "ep-9", list.Episodes[0].ID)

	// Second identical request is served from cache; .Once() would fail otherwise.
	rec = env.do(http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env.store.AssertExpectations(t)
}

func TestListEpisodesCapsLimit(t *testing.T) {
	env := setupTestEnvironment(t)
	opts := datastore.ListOptions{Limit: maxPageSize}
	env.store.On("ListEpisodes", opts).Return([]accident.Episode{}, nil)
	env.store.On("CountEpisodes", opts).Return(int64(0), nil)

	rec := env.do(http.MethodGet, "/api/v1/episodes?limit=100000", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListEpisodesInvalidQuery(t *testing.T) {
	env := setupTestEnvironment(t)
	for _, q := range []string{"limit=0", "limit=abc", "offset=-1", "emergency=maybe", "since=yesterday"} {
		rec := env.do(http.MethodGet, "/api/v1/episodes?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.CorrelationID)
	}
	env.store.AssertNotCalled(t, "ListEpisodes", mock.Anything)
}

func TestGetEpisode(t *testing.T) {
	env := setupTestEnvironment(t)
	env.store.On("GetEpisode", "ep-1").Return(accident.Episode{ID: "ep-1", AccidentSeconds: 10.03}, nil)
	notFound := errors.Newf("episode %s not found", "nope").
		Component("datastore").
		Category(errors.CategoryNotFound).
		Build()
	env.store.On("GetEpisode", "nope").Return(accident.Episode{}, notFound)

	rec := env.do(http.MethodGet, "/api/v1/episodes/ep-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ep accident.Episode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ep))
	assert.InDelta(t, 10.03, ep.AccidentSeconds, 1e-9)

	rec = env.do(http.MethodGet, "/api/v1/episodes/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEpisodesDisabledWithoutDatastore(t *testing.T) {
	ctrl := New(&conf.Settings{}, &fakeCoordinator{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/episodes", http.NoBody)
	rec := httptest.NewRecorder()
	ctrl.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// evidence routes are not registered unless enabled
	req = httptest.NewRequest(http.MethodPost, "/api/v1/evidence/audio", strings.NewReader(`{"score":0.5}`))
	rec = httptest.NewRecorder()
	ctrl.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostEvidence(t *testing.T) {
	env := setupTestEnvironment(t)

	rec := env.do(http.MethodPost, "/api/v1/evidence/audio", `{"score":0.91,"timestamp":"2026-03-01T10:00:00Z"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/evidence/video",
		`{"detections":[{"label":"person","score":0.8,"box":{"left":0,"top":0,"right":200,"bottom":100}}]}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/evidence/status", `{"stream":"video","state":"error","message":"model crashed"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	env.coord.mu.Lock()
	defer env.coord.mu.Unlock()
	require.Len(t, env.coord.audio, 1)
	assert.InDelta(t, 0.91, env.coord.audio[0].Score, 1e-9)
	require.Len(t, env.coord.frames, 1)
	assert.Equal(t, "person", env.coord.frames[0].Detections[0].Label)
	assert.False(t, env.coord.frames[0].At.IsZero())
	require.Len(t, env.coord.sources, 1)
	assert.Equal(t, accident.SourceError, env.coord.sources[0].State)
}

func TestPostEvidenceRejections(t *testing.T) {
	env := setupTestEnvironment(t)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/evidence/audio", `{"score":`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/evidence/audio", `{"score":1.5}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/evidence/status", `{"stream":"radar","state":"ready"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/evidence/video",
		`{"detections":[{"label":"person","bbox":{"left":0,"top":0,"right":200,"bottom":100}}]}`).Code)

	env.coord.mu.Lock()
	env.coord.full = true
	env.coord.mu.Unlock()
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/api/v1/evidence/audio", `{"score":0.2}`).Code)

	env.metrics.mu.Lock()
	defer env.metrics.mu.Unlock()
	assert.Equal(t, 1, env.metrics.rejected["audio/malformed"])
	assert.Equal(t, 1, env.metrics.rejected["audio/invalid"])
	assert.Equal(t, 1, env.metrics.rejected["status/invalid"])
	assert.Equal(t, 1, env.metrics.rejected["video/malformed"])
	assert.Equal(t, 1, env.metrics.rejected["audio/queue_full"])
}

func TestMetricsEndpointAndMiddleware(t *testing.T) {
	env := setupTestEnvironment(t)

	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fallguard_state")

	env.do(http.MethodGet, "/api/v1/nothing-here", "")
	env.store.On("GetEpisode", "x").Return(accident.Episode{ID: "x"}, nil)
	env.do(http.MethodGet, "/api/v1/episodes/x", "")

	env.metrics.mu.Lock()
	defer env.metrics.mu.Unlock()
	require.Len(t, env.metrics.requests, 3)
	assert.Equal(t, recordedRequest{http.MethodGet, "/metrics", http.StatusOK}, env.metrics.requests[0])
	assert.Equal(t, http.StatusNotFound, env.metrics.requests[1].code)
	// route pattern, not the raw path
	assert.Equal(t, recordedRequest{http.MethodGet, "/api/v1/episodes/:id", http.StatusOK}, env.metrics.requests[2])
}

func TestRunShutsDownOnCancel(t *testing.T) {
	env := setupTestEnvironment(t)
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() { done <- env.ctrl.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
