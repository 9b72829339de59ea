package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/site-ledger/ledger"
	"github.com/warp/site-ledger/lock"
)

func TestLocal_MutualExclusion(t *testing.T) {
	// GIVEN: 20 goroutines competing for one key
	// WHEN: Each holds the lock while touching a shared counter
	// THEN: At most one is ever inside, and all keys are released afterwards

	l := lock.NewLocal()
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "material:m1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Zero(t, l.Held())
}

func TestLocal_IndependentKeys(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "material:a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "material:b")
	require.NoError(t, err)
	unlockB()
}

func TestLocal_ContextTimeout(t *testing.T) {
	l := lock.NewLocal()

	unlock, err := l.Lock(context.Background(), "transaction:t1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "transaction:t1")
	assert.ErrorIs(t, err, ledger.ErrLockNotObtained)
	assert.True(t, ledger.IsRetryable(err))

	unlock()
	unlock() // second call is a no-op
	assert.Zero(t, l.Held())
}
