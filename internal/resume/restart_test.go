package resume

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Dialer/internal/dispatcher"
	"github.com/shaiso/Dialer/internal/domain"
	"github.com/shaiso/Dialer/internal/repo"
)

// campaignStore — общее для двух "процессов" хранилище кампаний.
type campaignStore struct {
	mu      sync.Mutex
	running map[string]bool
	status  map[string]domain.CampaignStatus
	calls   []*domain.CallJob
}

func newCampaignStore() *campaignStore {
	return &campaignStore{
		running: make(map[string]bool),
		status:  make(map[string]domain.CampaignStatus),
	}
}

func (s *campaignStore) add(id string, phones ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[id] = false
	s.status[id] = domain.CampaignStatusPending
	for _, p := range phones {
		s.calls = append(s.calls, &domain.CallJob{
			ID:         int64(len(s.calls) + 1),
			CampaignID: id,
			Phone:      p,
			Status:     domain.CallStatusPending,
		})
	}
}

func (s *campaignStore) TryStart(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] {
		return false, nil
	}
	s.running[id] = true
	s.status[id] = domain.CampaignStatusRunning
	return true, nil
}

func (s *campaignStore) Pause(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[id] = false
	s.status[id] = domain.CampaignStatusPaused
	return nil
}

func (s *campaignStore) Complete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running[id] {
		return false, nil
	}
	s.running[id] = false
	s.status[id] = domain.CampaignStatusCompleted
	return true, nil
}

func (s *campaignStore) IsRunning(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	running, ok := s.running[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	return running, nil
}

func (s *campaignStore) ListRunning(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, running := range s.running {
		if running {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *campaignStore) NextPending(_ context.Context, id string) (*domain.CallJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.CampaignID == id && c.Status == domain.CallStatusPending {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *campaignStore) Transition(_ context.Context, id int64, from, to domain.CallStatus, _ repo.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.calls[id-1]
	if c.Status != from {
		return repo.ErrInvalidState
	}
	c.Status = to
	return nil
}

func (s *campaignStore) SaveProviderCallID(_ context.Context, id int64, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[id-1].ProviderCallID = sid
	return nil
}

func (s *campaignStore) statuses() []domain.CallStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CallStatus, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Status
	}
	return out
}

func (s *campaignStore) campaignStatus(id string) domain.CampaignStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[id]
}

// sharedLocker — lock, общий для процессов.
type sharedLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *sharedLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

// phoneLog — все размещённые звонки обоих процессов.
type phoneLog struct {
	mu     sync.Mutex
	phones []string
	placed chan string
}

func (p *phoneLog) PlaceCall(_ context.Context, phone, _, _ string) (string, error) {
	p.mu.Lock()
	p.phones = append(p.phones, phone)
	n := len(p.phones)
	p.mu.Unlock()

	select {
	case p.placed <- phone:
	default:
	}
	return fmt.Sprintf("sid-%d", n), nil
}

func (p *phoneLog) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.phones...)
}

func newDispatcher(store *campaignStore, locker *sharedLocker, caller *phoneLog, interval time.Duration) *dispatcher.Manager {
	return dispatcher.New(dispatcher.Config{
		Campaigns:  store,
		States:     store,
		Calls:      store,
		Locker:     locker,
		Caller:     caller,
		Interval:   interval,
		RetryDelay: time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestResume_AfterRestartDialsEveryContactOnce(t *testing.T) {
	store := newCampaignStore()
	store.add("c1", "+1", "+2", "+3", "+4")
	store.add("idle", "+9")
	locker := &sharedLocker{held: make(map[string]bool)}
	caller := &phoneLog{placed: make(chan string, 1)}

	// первый процесс успевает позвонить один раз и останавливается
	before := newDispatcher(store, locker, caller, time.Hour)
	_, err := before.Start(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "+1", <-caller.placed)
	before.Stop()

	running, err := store.IsRunning(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, running)

	// второй процесс поднимает кампанию по флагу
	after := newDispatcher(store, locker, caller, 0)
	defer after.Stop()

	m := New(Config{
		States:   store,
		Launcher: after,
		Grace:    time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	n, err := m.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		return store.campaignStatus("c1") == domain.CampaignStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !after.IsActive("c1") }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"+1", "+2", "+3", "+4"}, caller.all())
	assert.Equal(t, []domain.CallStatus{
		domain.CallStatusCalling,
		domain.CallStatusCalling,
		domain.CallStatusCalling,
		domain.CallStatusCalling,
		domain.CallStatusPending,
	}, store.statuses())
	assert.Equal(t, domain.CampaignStatusPending, store.campaignStatus("idle"))
}
