package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Dialer/internal/domain"
	"github.com/shaiso/Dialer/internal/mq"
	"github.com/shaiso/Dialer/internal/repo"
)

// memCalls — in-memory CallStore с compare-and-swap на статусе.
type memCalls struct {
	mu       sync.Mutex
	calls    map[int64]*domain.CallJob
	merges   map[string]repo.SessionInsights
	counters map[domain.CallStatus]int

	// beforeTransition вызывается перед CAS (для симуляции гонок).
	beforeTransition func(c *domain.CallJob)
}

func newMemCalls(calls ...domain.CallJob) *memCalls {
	m := &memCalls{
		calls:    make(map[int64]*domain.CallJob),
		merges:   make(map[string]repo.SessionInsights),
		counters: make(map[domain.CallStatus]int),
	}
	for i := range calls {
		c := calls[i]
		m.calls[c.ID] = &c
	}
	return m
}

func (m *memCalls) GetByID(_ context.Context, id int64) (*domain.CallJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCalls) GetByProviderCallID(_ context.Context, sid string) (*domain.CallJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c.ProviderCallID == sid {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memCalls) Transition(_ context.Context, id int64, from, to domain.CallStatus, upd repo.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.calls[id]
	if m.beforeTransition != nil {
		hook := m.beforeTransition
		m.beforeTransition = nil
		hook(c)
	}
	if c.Status != from {
		return repo.ErrInvalidState
	}
	c.Status = to
	if upd.RecordingURL != "" {
		c.RecordingURL = upd.RecordingURL
	}
	if upd.Duration > 0 {
		c.Duration = upd.Duration
	}
	if to.IsTerminal() {
		m.counters[to]++
	}
	return nil
}

func (m *memCalls) SetConversationID(_ context.Context, id int64, conv string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls[id].ConversationID == "" {
		m.calls[id].ConversationID = conv
	}
	return nil
}

func (m *memCalls) MergeSessionInsights(_ context.Context, conv string, in repo.SessionInsights) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.calls {
		if c.ConversationID == conv {
			m.merges[conv] = in
			n++
		}
	}
	return n, nil
}

func (m *memCalls) SaveSessionEnd(_ context.Context, id int64, duration int, transcript string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.calls[id]
	if duration > 0 {
		c.Duration = duration
	}
	if transcript != "" {
		c.Transcript = transcript
	}
	return nil
}

func (m *memCalls) get(id int64) domain.CallJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.calls[id]
}

func newTestReconciler(calls *memCalls) *Reconciler {
	return NewReconciler(calls, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func callingCall() domain.CallJob {
	return domain.CallJob{ID: 1, CampaignID: "c1", Status: domain.CallStatusCalling, ProviderCallID: "sid-1"}
}

func event(t *testing.T, kind Kind, payload any) Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return NewEvent(kind, raw)
}

func TestProviderStatus_AppliesTerminal(t *testing.T) {
	calls := newMemCalls(callingCall())
	r := newTestReconciler(calls)

	res, err := r.Apply(context.Background(), event(t, KindProviderStatus, map[string]any{
		"CallSid": "sid-1", "Status": "No-Answer", "RecordingUrl": "https://r/1.mp3", "Duration": 0,
	}))
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)

	call := calls.get(1)
	assert.Equal(t, domain.CallStatusMissed, call.Status)
	assert.Equal(t, "https://r/1.mp3", call.RecordingURL)
	assert.Equal(t, 1, calls.counters[domain.CallStatusMissed])

	// повторная доставка не меняет статус и не увеличивает счётчики
	res, err = r.ProviderStatus(context.Background(), ProviderStatusPayload{CallSid: "sid-1", Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, ResultNoop, res)
	assert.Equal(t, domain.CallStatusMissed, calls.get(1).Status)
	assert.Zero(t, calls.counters[domain.CallStatusCompleted])
}

func TestProviderStatus_NoopCases(t *testing.T) {
	calls := newMemCalls(callingCall())
	r := newTestReconciler(calls)
	ctx := context.Background()

	res, err := r.ProviderStatus(ctx, ProviderStatusPayload{CallSid: "sid-1", Status: "ringing"})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, res)

	res, err = r.ProviderStatus(ctx, ProviderStatusPayload{CallSid: "sid-404", Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, ResultUnknownCall, res)

	res, err = r.ProviderStatus(ctx, ProviderStatusPayload{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, res)

	assert.Equal(t, domain.CallStatusCalling, calls.get(1).Status)
}

func TestProviderStatus_TerminalWinsOverSession(t *testing.T) {
	call := callingCall()
	call.Status = domain.CallStatusUserConnected
	calls := newMemCalls(call)
	r := newTestReconciler(calls)

	res, err := r.ProviderStatus(context.Background(), ProviderStatusPayload{CallSid: "sid-1", Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)
	assert.Equal(t, domain.CallStatusCompleted, calls.get(1).Status)

	// session-end после финального статуса: транскрипт сохраняется, статус нет
	res, err = r.SessionEnd(context.Background(), sessionEnd("sid-1"))
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)

	got := calls.get(1)
	assert.Equal(t, domain.CallStatusCompleted, got.Status)
	assert.Equal(t, "Assistant: Hi\nUser: Hello", got.Transcript)
	assert.Equal(t, 45, got.Duration)
}

func sessionEnd(sid string) SessionEndPayload {
	var p SessionEndPayload
	p.Metadata.CallSid = sid
	p.StartTime = "2026-03-01T10:00:00Z"
	p.EndTime = "2026-03-01T10:00:45Z"
	p.Events = []TranscriptEvent{
		{EventType: "transcript", Role: "assistant", Text: "Hi"},
		{EventType: "transcript", Role: "user", Text: "Hello"},
	}
	return p
}

func TestSessionEnd_BeforeSessionStart(t *testing.T) {
	calls := newMemCalls(callingCall())
	r := newTestReconciler(calls)
	ctx := context.Background()

	res, err := r.SessionEnd(ctx, sessionEnd("sid-1"))
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)
	assert.Equal(t, domain.CallStatusBotEnd, calls.get(1).Status)

	var start SessionStartPayload
	start.ExternalID = "sid-1"
	start.ConversationID = "conv-1"
	res, err = r.SessionStart(ctx, start)
	require.NoError(t, err)
	assert.Equal(t, ResultNoop, res)

	got := calls.get(1)
	assert.Equal(t, domain.CallStatusBotEnd, got.Status)
	assert.Equal(t, "conv-1", got.ConversationID)
}

func TestSessionEnd_UserEnd(t *testing.T) {
	call := callingCall()
	call.Status = domain.CallStatusUserConnected
	calls := newMemCalls(call)
	r := newTestReconciler(calls)

	_, err := r.SessionEnd(context.Background(), sessionEnd("sid-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusUserEnd, calls.get(1).Status)
}

func TestSessionEnd_BadTimestampsStillApplies(t *testing.T) {
	calls := newMemCalls(callingCall())
	r := newTestReconciler(calls)

	p := sessionEnd("sid-1")
	p.StartTime = "not-a-time"
	res, err := r.SessionEnd(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)

	got := calls.get(1)
	assert.Equal(t, domain.CallStatusBotEnd, got.Status)
	assert.Zero(t, got.Duration)
	assert.NotEmpty(t, got.Transcript)
}

func TestSessionStart_MergesPriorSessions(t *testing.T) {
	prior := domain.CallJob{ID: 2, CampaignID: "c1", Status: domain.CallStatusBotEnd, ProviderCallID: "sid-0", ConversationID: "conv-0"}
	calls := newMemCalls(callingCall(), prior)
	r := newTestReconciler(calls)

	payload := []byte(`{
		"external_id": "sid-1",
		"conversation_id": "conv-1",
		"previous_sessions": {"sessions": [
			{
				"conversation_id": "conv-0",
				"call_outcome": {"justification": "asked to call back"},
				"intents": [
					{"intent": "CITY", "reasoning": "user lives in 'Bengaluru'"},
					{"intent": "RIDER_RESEARCH", "reasoning": "wants to join"}
				]
			},
			{"conversation_id": "conv-unknown", "intents": []},
			{"conversation_id": ""}
		]}
	}`)

	res, err := r.Apply(context.Background(), NewEvent(KindSessionStart, payload))
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)

	got := calls.get(1)
	assert.Equal(t, domain.CallStatusBotConnected, got.Status)
	assert.Equal(t, "conv-1", got.ConversationID)

	assert.Equal(t, repo.SessionInsights{
		City:          "Bengaluru",
		Justification: "asked to call back",
		Interested:    domain.InterestYes,
	}, calls.merges["conv-0"])
	assert.NotContains(t, calls.merges, "conv-unknown")
}

func TestTranscriptEvents_BotConnectedOnce(t *testing.T) {
	calls := newMemCalls(callingCall())
	r := newTestReconciler(calls)
	ctx := context.Background()

	p := TranscriptEventsPayload{
		ExternalID: "sid-1",
		Events:     []TranscriptEvent{{EventType: "transcript", Role: "assistant", Text: "Hi"}},
	}

	res, err := r.TranscriptEvents(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)
	assert.Equal(t, domain.CallStatusBotConnected, calls.get(1).Status)

	res, err = r.TranscriptEvents(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, ResultNoop, res)

	res, err = r.TranscriptEvents(ctx, TranscriptEventsPayload{
		ExternalID: "sid-1",
		Events:     []TranscriptEvent{{EventType: "dtmf"}},
	})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, res)
}

func TestAdvance_RetriesOnConcurrentWrite(t *testing.T) {
	calls := newMemCalls(callingCall())
	// пока reconciler считает звонок calling, другой webhook переводит его в bot_connected
	calls.beforeTransition = func(c *domain.CallJob) {
		c.Status = domain.CallStatusBotConnected
	}
	r := newTestReconciler(calls)

	res, err := r.SessionEnd(context.Background(), sessionEnd("sid-1"))
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, res)
	assert.Equal(t, domain.CallStatusBotEnd, calls.get(1).Status)
}

func TestApply_Errors(t *testing.T) {
	r := newTestReconciler(newMemCalls())

	_, err := r.Apply(context.Background(), NewEvent(KindSessionEnd, []byte("{")))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = r.Apply(context.Background(), NewEvent("carrier_pigeon", []byte("{}")))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

// fakePublisher запоминает опубликованные события.
type fakePublisher struct {
	events []any
}

func (p *fakePublisher) PublishWebhookEvent(_ context.Context, ev any) error {
	p.events = append(p.events, ev)
	return nil
}

func TestQueueRoundTrip(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewQueueSink(pub)

	ev := event(t, KindProviderStatus, map[string]string{"CallSid": "sid-1", "Status": "completed"})
	require.NoError(t, sink.Submit(context.Background(), ev))
	require.Len(t, pub.events, 1)

	msg, err := mq.NewMessage(mq.MessageTypeWebhookEvent, pub.events[0])
	require.NoError(t, err)

	calls := newMemCalls(callingCall())
	handler := QueueHandler(newTestReconciler(calls), nil)
	require.NoError(t, handler(context.Background(), msg))
	assert.Equal(t, domain.CallStatusCompleted, calls.get(1).Status)

	// звонок ещё не найден — просим повтор
	unknown := event(t, KindProviderStatus, map[string]string{"CallSid": "sid-2", "Status": "completed"})
	msg, err = mq.NewMessage(mq.MessageTypeWebhookEvent, unknown)
	require.NoError(t, err)
	assert.ErrorIs(t, handler(context.Background(), msg), ErrUnresolved)
}
