package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockServer имитирует таблицу advisory lock'ов PostgreSQL:
// ключ принадлежит одной сессии, повторный захват своей сессией успешен.
type lockServer struct {
	mu       sync.Mutex
	owners   map[string]*fakeLockConn
	sessions int
}

func newLockServer() *lockServer {
	return &lockServer{owners: make(map[string]*fakeLockConn)}
}

func (s *lockServer) connect(context.Context) (lockConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions++
	return &fakeLockConn{server: s}, nil
}

func (s *lockServer) owner(key string) *fakeLockConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners[key]
}

type fakeLockConn struct {
	server *lockServer
	closed bool
}

func (c *fakeLockConn) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return fakeRow{err: errors.New("conn closed")}
	}
	key := args[0].(string)
	if owner, ok := s.owners[key]; ok && owner != c {
		return fakeRow{value: false}
	}
	s.owners[key] = c
	return fakeRow{value: true}
}

func (c *fakeLockConn) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return pgconn.CommandTag{}, errors.New("conn closed")
	}
	key := args[0].(string)
	if s.owners[key] == c {
		delete(s.owners, key)
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (c *fakeLockConn) IsClosed() bool {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.closed
}

func (c *fakeLockConn) Close(context.Context) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.drop()
	return nil
}

// drop закрывает сессию; сервер снимает все её lock'и.
func (c *fakeLockConn) drop() {
	c.closed = true
	for key, owner := range c.server.owners {
		if owner == c {
			delete(c.server.owners, key)
		}
	}
}

type fakeRow struct {
	value bool
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*bool) = r.value
	return nil
}

func TestAdvisoryLocker_ManyKeysShareOneSession(t *testing.T) {
	server := newLockServer()
	locker := newAdvisoryLocker(server.connect)
	ctx := context.Background()

	var releases []func()
	for i := range 50 {
		release, ok, err := locker.TryLock(ctx, fmt.Sprintf("dialer:campaign:c%d", i))
		require.NoError(t, err)
		require.True(t, ok)
		releases = append(releases, release)
	}
	assert.Equal(t, 1, server.sessions)

	for _, release := range releases {
		release()
	}
	assert.Empty(t, server.owners)
}

func TestAdvisoryLocker_HeldKeyIsNotReentrant(t *testing.T) {
	locker := newAdvisoryLocker(newLockServer().connect)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "dialer:campaign:c1")
	require.NoError(t, err)
	require.True(t, ok)

	again, ok, err := locker.TryLock(ctx, "dialer:campaign:c1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, again)

	release()
	release() // повторный release безопасен

	_, ok, err = locker.TryLock(ctx, "dialer:campaign:c1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdvisoryLocker_OtherProcessSeesLock(t *testing.T) {
	server := newLockServer()
	a := newAdvisoryLocker(server.connect)
	b := newAdvisoryLocker(server.connect)
	ctx := context.Background()

	release, ok, err := a.TryLock(ctx, "dialer:poller")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.TryLock(ctx, "dialer:poller")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	_, ok, err = b.TryLock(ctx, "dialer:poller")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdvisoryLocker_ReconnectsAfterSessionLoss(t *testing.T) {
	server := newLockServer()
	locker := newAdvisoryLocker(server.connect)
	ctx := context.Background()

	stale, ok, err := locker.TryLock(ctx, "dialer:campaign:c1")
	require.NoError(t, err)
	require.True(t, ok)

	// сессия оборвалась: сервер снял lock
	owner := server.owner("dialer:campaign:c1")
	require.NotNil(t, owner)
	require.NoError(t, owner.Close(ctx))

	release, ok, err := locker.TryLock(ctx, "dialer:campaign:c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, server.sessions)

	// release потерянного lock'а не снимает новый
	stale()
	assert.NotNil(t, server.owner("dialer:campaign:c1"))

	release()
	assert.Nil(t, server.owner("dialer:campaign:c1"))
}

func TestAdvisoryLocker_Close(t *testing.T) {
	server := newLockServer()
	locker := newAdvisoryLocker(server.connect)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "dialer:campaign:c1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locker.Close(ctx))
	assert.Empty(t, server.owners)
	release()

	require.NoError(t, locker.Close(ctx))
}

func TestAdvisoryLocker_ConnectError(t *testing.T) {
	locker := newAdvisoryLocker(func(context.Context) (lockConn, error) {
		return nil, errors.New("connection refused")
	})

	release, ok, err := locker.TryLock(context.Background(), "dialer:poller")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, release)
}
