package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultLeaderLockKey is the advisory lock key used by the scheduler.
const DefaultLeaderLockKey int64 = 7310468226

// LeaderLock elects a single scheduler instance with a session-level advisory
// lock. The lock lives as long as the dedicated connection that acquired it.
type LeaderLock struct {
	pool *pgxpool.Pool
	key  int64

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewLeaderLock creates a leader lock on key.
func NewLeaderLock(pool *pgxpool.Pool, key int64) *LeaderLock {
	return &LeaderLock{pool: pool, key: key}
}

// TryLead returns true if this process holds the lock, acquiring it if free.
func (l *LeaderLock) TryLead(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		slog.Warn("leader connection lost, re-electing")
		l.conn.Release()
		l.conn = nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, WrapError("acquire leader connection", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&acquired); err != nil {
		conn.Release()
		return false, WrapError("try advisory lock", err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	slog.Info("acquired scheduler leadership", "lock_key", l.key)
	return true, nil
}

// Release gives up leadership.
func (l *LeaderLock) Release(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return
	}
	if _, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		slog.Warn("failed to release advisory lock", "error", fmt.Errorf("unlock: %w", err))
	}
	l.conn.Release()
	l.conn = nil
}
