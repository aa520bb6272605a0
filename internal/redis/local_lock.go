package redisclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// localEmployeeLocker is the single-process Locker used when LOCK_BACKEND=local.
// It gives the same per-employee mutual exclusion as the Redis locker but only
// inside one api-server; Postgres still guards correctness across replicas.
type localEmployeeLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*localLock
	wait  time.Duration
}

// localLock is held by at most one caller; refs counts the holder plus every
// waiter so the entry can be dropped when the last of them leaves.
type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalEmployeeLocker(wait time.Duration) Locker {
	return &localEmployeeLocker{
		locks: make(map[uuid.UUID]*localLock),
		wait:  wait,
	}
}

func (l *localEmployeeLocker) ref(employeeID uuid.UUID) *localLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[employeeID]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[employeeID] = lk
	}
	lk.refs++
	return lk
}

func (l *localEmployeeLocker) unref(employeeID uuid.UUID, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, employeeID)
	}
}

func (l *localEmployeeLocker) WithEmployeeLock(ctx context.Context, employeeID uuid.UUID, fn func(ctx context.Context) error) error {
	lk := l.ref(employeeID)
	defer l.unref(employeeID, lk)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case lk.ch <- struct{}{}:
	case <-timer.C:
		return ErrLockNotAcquired
	case <-ctx.Done():
		return fmt.Errorf("acquire employee lock: %w", ctx.Err())
	}
	defer func() { <-lk.ch }()

	return fn(ctx)
}

// held reports how many employees currently have a holder or waiter.
func (l *localEmployeeLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
