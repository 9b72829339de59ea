// Package lock provides ledger.Locker implementations: Local for a single
// process and Redis for several server instances sharing one database.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/site-ledger/ledger"
)

// Local is a keyed mutex. Waiting honors ctx; an expired ctx returns
// ledger.ErrLockNotObtained.
type Local struct {
	mu   sync.Mutex
	held map[string]*slot
}

type slot struct {
	token chan struct{}
	refs  int
}

func NewLocal() *Local {
	return &Local{held: make(map[string]*slot)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.held[key]
	if !ok {
		s = &slot{token: make(chan struct{}, 1)}
		l.held[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.token <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, fmt.Errorf("%w: %s: %v", ledger.ErrLockNotObtained, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.token
			l.release(key, s)
		})
	}, nil
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.held, key)
	}
}

// Held reports how many keys are locked or awaited. Used by tests.
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
