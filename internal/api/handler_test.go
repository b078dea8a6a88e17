package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Dialer/internal/analysis"
	"github.com/shaiso/Dialer/internal/config"
	"github.com/shaiso/Dialer/internal/dispatcher"
	"github.com/shaiso/Dialer/internal/domain"
	"github.com/shaiso/Dialer/internal/repo"
	"github.com/shaiso/Dialer/internal/telemetry"
	"github.com/shaiso/Dialer/internal/webhook"
)

// memStore — in-memory реализация CampaignStore, CallStore и StateStore.
type memStore struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	calls     map[string][]domain.CallJob
	states    map[string]*domain.RunState
	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[string]*domain.Campaign),
		calls:     make(map[string][]domain.CallJob),
		states:    make(map[string]*domain.RunState),
	}
}

func (s *memStore) Create(_ context.Context, c *domain.Campaign, calls []domain.CallJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.campaigns[c.ID] = c
	for i := range calls {
		calls[i].ID = int64(i + 1)
	}
	s.calls[c.ID] = calls
	s.states[c.ID] = domain.NewRunState(c.ID, c.CreatedAt)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return c, nil
}

func (s *memStore) List(context.Context) ([]domain.CampaignSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CampaignSummary
	for id, c := range s.campaigns {
		out = append(out, domain.CampaignSummary{Campaign: *c, AnalysisStatus: s.states[id].AnalysisStatus})
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.campaigns, id)
	delete(s.calls, id)
	delete(s.states, id)
	return nil
}

func (s *memStore) Stats(_ context.Context, id string) (*domain.CampaignStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &domain.CampaignStats{Total: len(s.calls[id]), Pending: len(s.calls[id]), AnalysisStatus: state.AnalysisStatus}, nil
}

func (s *memStore) ListByCampaign(_ context.Context, id string) ([]domain.CallJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id], nil
}

func (s *memStore) ListAnalyzed(_ context.Context, id string) ([]domain.CallJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CallJob
	for _, c := range s.calls[id] {
		if c.AnalysisStatus == domain.CallAnalysisCompleted {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) Get(_ context.Context, id string) (*domain.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return state, nil
}

type fakeDispatcher struct {
	store  *memStore
	paused []string
}

func (d *fakeDispatcher) Start(ctx context.Context, id string) (dispatcher.StartResult, error) {
	state, err := d.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if state.IsRunning {
		return dispatcher.ResultAlreadyRunning, nil
	}
	state.IsRunning = true
	return dispatcher.ResultStarted, nil
}

func (d *fakeDispatcher) Pause(ctx context.Context, id string) error {
	state, err := d.store.Get(ctx, id)
	if err != nil {
		return err
	}
	state.IsRunning = false
	d.paused = append(d.paused, id)
	return nil
}

type fakeAnalyzer struct {
	triggered []string
}

func (a *fakeAnalyzer) Trigger(_ context.Context, id string) (analysis.TriggerResult, error) {
	if id == "missing" {
		return "", repo.ErrNotFound
	}
	a.triggered = append(a.triggered, id)
	if len(a.triggered) > 1 {
		return analysis.ResultAlreadyProcessing, nil
	}
	return analysis.ResultProcessingStarted, nil
}

// recordingSink запоминает события вместо применения.
type recordingSink struct {
	events   []webhook.Event
	err      error
	panicMsg string
}

func (s *recordingSink) Submit(_ context.Context, ev webhook.Event) error {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type testEnv struct {
	store    *memStore
	disp     *fakeDispatcher
	analyzer *fakeAnalyzer
	sink     *recordingSink
	mux      *http.ServeMux
}

func newTestEnv(t *testing.T, withAnalyzer bool) *testEnv {
	t.Helper()
	env := &testEnv{store: newMemStore(), analyzer: &fakeAnalyzer{}, sink: &recordingSink{}}
	env.disp = &fakeDispatcher{store: env.store}

	cfg := Config{
		Campaigns:  env.store,
		Calls:      env.store,
		States:     env.store,
		Dispatcher: env.disp,
		Webhooks:   env.sink,
		Public:     config.Public{GeminiModel: "gemini-2.0-flash", WebhookMode: "inline"},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if withAnalyzer {
		cfg.Analyzer = env.analyzer
	}

	env.mux = http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(env.mux)
	return env
}

func (e *testEnv) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createCampaign(t *testing.T) string {
	t.Helper()
	rec := e.do(http.MethodPost, "/api/v1/campaigns", "application/json",
		`{"name":" Spring ","calls":[{"name":"Asha","phone":" +911 "},{"name":"Ravi","phone":"+912"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data CreateCampaignResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data.CampaignID
}

func TestCreateCampaign(t *testing.T) {
	env := newTestEnv(t, true)
	id := env.createCampaign(t)

	require.Contains(t, env.store.campaigns, id)
	assert.Equal(t, "Spring", env.store.campaigns[id].Name)
	assert.Equal(t, 2, env.store.campaigns[id].TotalCalls)

	calls := env.store.calls[id]
	require.Len(t, calls, 2)
	assert.Equal(t, "+911", calls[0].Phone)
	assert.Equal(t, "+912", calls[1].Phone)
	assert.Equal(t, domain.CallStatusPending, calls[0].Status)
}

func TestCreateCampaign_ResponseShape(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(http.MethodPost, "/api/v1/campaigns", "application/json", `{"name":"Empty","calls":[]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "created", resp.Data["status"])
	assert.EqualValues(t, 0, resp.Data["total_calls"])
	assert.NotEmpty(t, resp.Data["campaign_id"])
}

func TestCreateCampaign_Invalid(t *testing.T) {
	env := newTestEnv(t, true)

	tests := map[string]string{
		"bad json":      `{"name":`,
		"missing name":  `{"name":"  ","calls":[]}`,
		"missing phone": `{"name":"x","calls":[{"name":"a","phone":""}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/v1/campaigns", "application/json", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, env.store.campaigns)
}

func TestCreateCampaign_StoreError(t *testing.T) {
	env := newTestEnv(t, true)
	env.store.createErr = errors.New("db down")

	rec := env.do(http.MethodPost, "/api/v1/campaigns", "application/json", `{"name":"x","calls":[]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetCampaign(t *testing.T) {
	env := newTestEnv(t, true)
	id := env.createCampaign(t)

	rec := env.do(http.MethodGet, "/api/v1/campaigns/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data CampaignDetailResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.Data.Campaign.ID)
	assert.Len(t, resp.Data.Calls, 2)
	require.NotNil(t, resp.Data.State)
	assert.False(t, resp.Data.State.IsRunning)
	assert.Equal(t, domain.AnalysisStatusNotStarted, resp.Data.AnalysisStatus)
}

func TestGetCampaign_NotFound(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(http.MethodGet, "/api/v1/campaigns/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), string(ErrCodeNotFound))
}

func TestListCampaigns_Empty(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(http.MethodGet, "/api/v1/campaigns", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"total":0}`, rec.Body.String())
}

func TestStartPauseDelete(t *testing.T) {
	env := newTestEnv(t, true)
	id := env.createCampaign(t)

	rec := env.do(http.MethodPost, "/api/v1/campaigns/"+id+"/start", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"status":"started"}}`, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/v1/campaigns/"+id+"/start", "", "")
	assert.JSONEq(t, `{"data":{"status":"already_running"}}`, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/v1/campaigns/"+id+"/pause", "", "")
	assert.JSONEq(t, `{"data":{"status":"paused"}}`, rec.Body.String())
	assert.Equal(t, []string{id}, env.disp.paused)

	rec = env.do(http.MethodDelete, "/api/v1/campaigns/"+id, "", "")
	assert.JSONEq(t, `{"data":{"status":"deleted"}}`, rec.Body.String())
	assert.NotContains(t, env.store.campaigns, id)

	rec = env.do(http.MethodDelete, "/api/v1/campaigns/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartCampaign_NotFound(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(http.MethodPost, "/api/v1/campaigns/nope/start", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCampaignStats(t *testing.T) {
	env := newTestEnv(t, true)
	id := env.createCampaign(t)

	rec := env.do(http.MethodGet, "/api/v1/campaigns/"+id+"/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data domain.CampaignStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Total)
}

func TestTriggerAnalysis(t *testing.T) {
	env := newTestEnv(t, true)
	id := env.createCampaign(t)

	rec := env.do(http.MethodPost, "/api/v1/campaigns/"+id+"/analysis", "", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"data":{"status":"processing_started"}}`, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/v1/campaigns/"+id+"/analysis", "", "")
	assert.JSONEq(t, `{"data":{"status":"already_processing"}}`, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/v1/campaigns/missing/analysis", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerAnalysis_NotConfigured(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(http.MethodPost, "/api/v1/campaigns/x/analysis", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetAnalysis(t *testing.T) {
	env := newTestEnv(t, true)
	id := env.createCampaign(t)
	env.store.calls[id][0].AnalysisStatus = domain.CallAnalysisCompleted
	env.store.calls[id][0].PreferredCity = "Pune"
	env.store.calls[id][0].Interested = domain.InterestYes
	env.store.calls[id][0].AnalysisOutcome = "wants a callback"
	env.store.states[id].AnalysisStatus = domain.AnalysisStatusCompleted

	rec := env.do(http.MethodGet, "/api/v1/campaigns/"+id+"/analysis", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data AnalysisResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.AnalysisStatusCompleted, resp.Data.AnalysisStatus)
	require.Len(t, resp.Data.Calls, 1)
	assert.Equal(t, "Pune", resp.Data.Calls[0].PreferredCity)
	assert.Equal(t, "wants a callback", resp.Data.Calls[0].Outcome)
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(http.MethodGet, "/api/v1/config", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"gemini_model":"gemini-2.0-flash"`)
}

func TestProviderStatusWebhook_Form(t *testing.T) {
	env := newTestEnv(t, true)
	form := url.Values{
		"CallSid":      {"CA123"},
		"Status":       {"no-answer"},
		"RecordingUrl": {"https://rec/1.mp3"},
		"Duration":     {"17"},
	}

	rec := env.do(http.MethodPost, "/webhooks/provider/status", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	require.Len(t, env.sink.events, 1)
	ev := env.sink.events[0]
	assert.Equal(t, webhook.KindProviderStatus, ev.Kind)

	var p webhook.ProviderStatusPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	assert.Equal(t, "CA123", p.CallSid)
	assert.Equal(t, "no-answer", p.Status)
	assert.Equal(t, 17, p.Seconds())
}

func TestProviderStatusWebhook_JSON(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(http.MethodPost, "/webhooks/provider/status", "application/json; charset=utf-8",
		`{"CallSid":"CA9","Status":"completed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.sink.events, 1)
	assert.JSONEq(t, `{"CallSid":"CA9","Status":"completed"}`, string(env.sink.events[0].Payload))
}

func TestSessionWebhooks_Acks(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(http.MethodPost, "/webhooks/session/start", "application/json", `{"external_id":"CA1","conversation_id":"conv-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"response":{"http_code":200,"method":"POST","request_id":"any-string","response":{"http_code":200,"data":{}}}}`,
		rec.Body.String())

	rec = env.do(http.MethodPost, "/webhooks/session/end", "application/json", `{"conversation_id":"conv-1"}`)
	assert.JSONEq(t, `{"http_code":200,"response":{"data":{}}}`, rec.Body.String())

	rec = env.do(http.MethodPost, "/webhooks/transcript", "application/json", `{"conversation_id":"conv-1","events":[]}`)
	assert.JSONEq(t, `{"http_code":200,"response":{"data":{}}}`, rec.Body.String())

	require.Len(t, env.sink.events, 3)
	assert.Equal(t, webhook.KindSessionStart, env.sink.events[0].Kind)
	assert.Equal(t, webhook.KindSessionEnd, env.sink.events[1].Kind)
	assert.Equal(t, webhook.KindTranscriptEvents, env.sink.events[2].Kind)
}

func TestWebhook_MalformedIsAcknowledged(t *testing.T) {
	env := newTestEnv(t, true)
	dropped := testutil.ToFloat64(telemetry.WebhookEvents.WithLabelValues(string(webhook.KindSessionEnd), telemetry.OutcomeDropped))

	rec := env.do(http.MethodPost, "/webhooks/session/end", "application/json", `{not json`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"http_code":200,"response":{"data":{}}}`, rec.Body.String())
	assert.Empty(t, env.sink.events)

	rec = env.do(http.MethodPost, "/webhooks/provider/status", "application/json", `[1,`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	assert.Equal(t, dropped+1,
		testutil.ToFloat64(telemetry.WebhookEvents.WithLabelValues(string(webhook.KindSessionEnd), telemetry.OutcomeDropped)))
}

func TestWebhook_SinkErrorsAreAcknowledged(t *testing.T) {
	env := newTestEnv(t, true)
	dropped := testutil.ToFloat64(telemetry.WebhookEvents.WithLabelValues(string(webhook.KindTranscriptEvents), telemetry.OutcomeDropped))

	env.sink.err = errors.New("queue unavailable")
	rec := env.do(http.MethodPost, "/webhooks/transcript", "application/json", `{"conversation_id":"conv-1","events":[]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"http_code":200,"response":{"data":{}}}`, rec.Body.String())

	env.sink.err = webhook.ErrMalformed
	rec = env.do(http.MethodPost, "/webhooks/session/start", "application/json", `{"external_id":"CA1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"response":{"http_code":200,"method":"POST","request_id":"any-string","response":{"http_code":200,"data":{}}}}`,
		rec.Body.String())

	assert.Equal(t, dropped+1,
		testutil.ToFloat64(telemetry.WebhookEvents.WithLabelValues(string(webhook.KindTranscriptEvents), telemetry.OutcomeDropped)))
}

func TestWebhook_PanicIsAcknowledged(t *testing.T) {
	env := newTestEnv(t, true)
	env.sink.panicMsg = "nil map"

	rec := env.do(http.MethodPost, "/webhooks/session/end", "application/json", `{"conversation_id":"conv-1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"http_code":200,"response":{"data":{}}}`, rec.Body.String())
}
