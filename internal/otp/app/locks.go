package app

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/aelexs/otp-fetcher/internal/domain"
)

// userLocks serialises operations per user. Waiters are served in arrival
// order. Entries are reference counted and dropped when nobody holds or waits
// on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[domain.UserID]*userLock
}

type userLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[domain.UserID]*userLock)}
}

// lock blocks until userID's lock is held or ctx is done.
func (l *userLocks) lock(ctx context.Context, userID domain.UserID) (unlock func(), err error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{sem: semaphore.NewWeighted(1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	if err := ul.sem.Acquire(ctx, 1); err != nil {
		l.release(userID, ul)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ul.sem.Release(1)
			l.release(userID, ul)
		})
	}, nil
}

func (l *userLocks) release(userID domain.UserID, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}

func (l *userLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
