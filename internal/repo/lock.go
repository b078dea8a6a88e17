package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const unlockTimeout = 5 * time.Second

// lockConn — сессия PostgreSQL, на которой живут advisory lock'и.
// *pgx.Conn реализует его.
type lockConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	IsClosed() bool
	Close(ctx context.Context) error
}

// AdvisoryLocker выдаёт сессионные advisory lock'и PostgreSQL.
//
// Все lock'и процесса живут на одном выделенном соединении вне пула,
// поэтому число запущенных кампаний не расходует соединения пула.
// Сессионные lock'и в PostgreSQL реентерабельны, так что повторный
// захват ключа внутри процесса отсекается по held.
//
// Если соединение рвётся, PostgreSQL снимает все его lock'и. Locker
// забывает их и переподключается при следующем TryLock; release
// потерянных lock'ов становится no-op.
type AdvisoryLocker struct {
	connect func(ctx context.Context) (lockConn, error)

	mu   sync.Mutex
	conn lockConn
	gen  uint64 // номер сессии, растёт при каждом переподключении
	held map[string]uint64
}

// NewAdvisoryLocker создаёт AdvisoryLocker с параметрами подключения пула.
func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	connCfg := pool.Config().ConnConfig.Copy()
	return newAdvisoryLocker(func(ctx context.Context) (lockConn, error) {
		conn, err := pgx.ConnectConfig(ctx, connCfg)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

func newAdvisoryLocker(connect func(ctx context.Context) (lockConn, error)) *AdvisoryLocker {
	return &AdvisoryLocker{
		connect: connect,
		held:    make(map[string]uint64),
	}
}

// TryLock пытается взять lock по строковому ключу без ожидания.
// При ok == false release равен nil.
func (l *AdvisoryLocker) TryLock(ctx context.Context, key string) (release func(), ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	conn, err := l.session(ctx)
	if err != nil {
		return nil, false, err
	}
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}

	var locked bool
	err = conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&locked)
	if err != nil {
		l.dropSessionIfClosed()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		return nil, false, nil
	}

	gen := l.gen
	l.held[key] = gen

	var once sync.Once
	release = func() {
		once.Do(func() { l.unlock(key, gen) })
	}
	return release, true, nil
}

// Close закрывает соединение; все lock'и снимаются.
func (l *AdvisoryLocker) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	err := l.conn.Close(ctx)
	l.conn = nil
	l.gen++
	clear(l.held)
	return err
}

// session возвращает живое соединение, при необходимости подключаясь заново.
func (l *AdvisoryLocker) session(ctx context.Context) (lockConn, error) {
	l.dropSessionIfClosed()
	if l.conn != nil {
		return l.conn, nil
	}
	conn, err := l.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect lock session: %w", err)
	}
	l.conn = conn
	return conn, nil
}

// dropSessionIfClosed забывает разорванное соединение вместе с его lock'ами.
func (l *AdvisoryLocker) dropSessionIfClosed() {
	if l.conn == nil || !l.conn.IsClosed() {
		return
	}
	l.conn = nil
	l.gen++
	clear(l.held)
}

func (l *AdvisoryLocker) unlock(key string, gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// lock потерян вместе с прежней сессией
	if held, ok := l.held[key]; !ok || held != gen || l.conn == nil {
		return
	}
	delete(l.held, key)

	// ctx вызывающего к этому моменту обычно уже отменён
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if _, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
		// неснятый lock нельзя оставлять на сессии: закрываем её целиком
		_ = l.conn.Close(ctx)
		l.conn = nil
		l.gen++
		clear(l.held)
	}
}
